package valuation

import "strings"

// Severity grades a single defect.
type Severity string

const (
	SeverityCosmetic   Severity = "cosmetic"
	SeverityRepairable Severity = "repairable"
	SeverityStructural Severity = "structural"
	SeverityFunctional Severity = "functional_failure"
	SeverityBER        Severity = "beyond_economic_repair"
)

// SeverityBuckets counts defects by grade for one assessment.
type SeverityBuckets struct {
	Cosmetic   int `json:"cosmetic"`
	Repairable int `json:"repairable"`
	Structural int `json:"structural"`
	Functional int `json:"functional_failure"`
	BER        int `json:"beyond_economic_repair"`
}

// Major returns the count of structural plus functional defects.
func (b SeverityBuckets) Major() int { return b.Structural + b.Functional }

// berSignals end an item's purchase candidacy on their own, whatever
// the declared category: the repair carries board-level or
// unbounded-risk work.
var berSignals = []string{
	"water damage", "liquid damage", "won't power on", "wont power on",
	"doesn't power on", "doesnt power on", "won't turn on", "main board",
	"mainboard", "motherboard", "logic board",
}

var structuralSignals = []string{
	"cracked", "crack", "shattered", "bent", "dent", "hinge broken",
	"hinge loose", "frame", "housing",
}

var functionalSignals = []string{
	"not working", "broken", "doesn't work", "doesnt work", "faulty",
	"no sound", "no display", "won't charge", "wont charge",
	"overheating", "shutter", "leaks", "drips",
}

var cosmeticSignals = []string{
	"scratch", "scuff", "wear", "faded", "discolor", "mark", "stain",
}

// ClassifyDefect grades a single defect string by keyword. Board-level
// and liquid-damage signals always grade BER; otherwise structural
// beats functional beats cosmetic, and anything unrecognized is
// assumed repairable.
func ClassifyDefect(defect string) Severity {
	lower := strings.ToLower(defect)
	for _, s := range berSignals {
		if strings.Contains(lower, s) {
			return SeverityBER
		}
	}
	for _, s := range structuralSignals {
		if strings.Contains(lower, s) {
			return SeverityStructural
		}
	}
	for _, s := range functionalSignals {
		if strings.Contains(lower, s) {
			return SeverityFunctional
		}
	}
	for _, s := range cosmeticSignals {
		if strings.Contains(lower, s) {
			return SeverityCosmetic
		}
	}
	return SeverityRepairable
}

// ClassifyDefects buckets a defect list by severity. No-damage
// sentinels contribute nothing.
func ClassifyDefects(defects []string) SeverityBuckets {
	var b SeverityBuckets
	if ReportsNoDamage(defects) {
		return b
	}
	for _, defect := range defects {
		switch ClassifyDefect(defect) {
		case SeverityBER:
			b.BER++
		case SeverityStructural:
			b.Structural++
		case SeverityFunctional:
			b.Functional++
		case SeverityCosmetic:
			b.Cosmetic++
		default:
			b.Repairable++
		}
	}
	return b
}

// repairCostShareLimit is the fraction of market value repair may
// consume before outright purchase stops making sense. Cheap items
// tolerate a larger share: a R500 repair on a R1,500 item is routine,
// the same share on a R20,000 item is not.
func repairCostShareLimit(marketValue float64) float64 {
	switch {
	case marketValue < 2000:
		return 0.50
	case marketValue < 10000:
		return 0.35
	default:
		return 0.25
	}
}

// IsBeyondEconomicRepair decides whether the defect profile makes
// outright purchase unwise, routing the item to consignment instead.
// Itemized per-defect costs understate compounding risk when several
// major faults interact, so the gate also fires on defect counts and
// on age-plus-cost combinations.
func IsBeyondEconomicRepair(repairCost, marketValue float64, buckets SeverityBuckets, ageYears float64) (bool, string) {
	if buckets.BER > 0 {
		return true, "defect profile includes board-level or liquid damage"
	}
	if buckets.Major() >= 3 {
		return true, "three or more structural or functional defects reported"
	}
	if marketValue > 0 {
		share := repairCost / marketValue
		if share > repairCostShareLimit(marketValue) {
			return true, "repair cost is too large a share of market value"
		}
		if ageYears > 5 && share > 0.30 {
			return true, "item is over five years old with significant repair cost"
		}
	}
	return false, ""
}
