package valuation

import (
	"strings"

	"go.uber.org/zap"

	"github.com/epicdeals/instant-offer/internal/category"
	"github.com/epicdeals/instant-offer/internal/model"
)

// defaultMultiplier is the mid-tier value applied when the condition
// label is unrecognized.
const defaultMultiplier = 0.775

// partsValueFloor is the fraction of market value an item retains even
// when unsellable as-is: scrap and parts worth.
const partsValueFloor = 0.20

// ConditionMultiplier maps a condition label to its grading multiplier.
// Structured labels like "Pristine - Like new, no visible wear
// (95-100% value)" reduce to their leading grade word; free-text
// phrasings go through the synonym table.
func ConditionMultiplier(label string) float64 {
	key := strings.ToLower(strings.TrimSpace(label))
	if key == "" {
		return deductions.ConditionMultipliers["good"]
	}

	// "pristine - like new (95-100% value)" -> "pristine"
	head := key
	if i := strings.IndexAny(head, "-("); i >= 0 {
		head = strings.TrimSpace(head[:i])
	}
	if m, ok := deductions.ConditionMultipliers[head]; ok {
		return m
	}
	if m, ok := deductions.ConditionMultipliers[key]; ok {
		return m
	}
	for phrase, m := range deductions.ConditionSynonyms {
		if strings.Contains(key, phrase) {
			return m
		}
	}
	zap.L().Debug("valuation: unrecognized condition label, using mid tier",
		zap.String("label", label))
	return defaultMultiplier
}

// normalizeDefectKey reduces a checklist label or free-text defect to a
// deduction table key: lowercase, punctuation stripped, common
// phrasings folded.
func normalizeDefectKey(defect string) string {
	key := strings.ToLower(strings.TrimSpace(defect))
	key = strings.ReplaceAll(key, "- ", "")
	key = strings.ReplaceAll(key, " or ", "_")
	key = strings.ReplaceAll(key, "/", "_")
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	for _, ch := range []string{"(", ")", ",", "'", "%"} {
		key = strings.ReplaceAll(key, ch, "")
	}
	key = strings.ReplaceAll(key, "cracked_scratched", "cracked")
	key = strings.ReplaceAll(key, "blurry", "issues")
	key = strings.ReplaceAll(key, "not_working", "broken")
	key = strings.ReplaceAll(key, "doesn’t", "doesnt")
	return key
}

// DeductionFor looks a defect up in the family's deduction table,
// falling back to partial key matching. A miss returns zero and is
// logged, never fatal.
func DeductionFor(defect string, family category.Family) float64 {
	table := deductionTable(family)
	key := normalizeDefectKey(defect)
	if key == "" {
		return 0
	}
	if amount, ok := table[key]; ok {
		return amount
	}
	for tableKey, amount := range table {
		if strings.Contains(key, tableKey) || strings.Contains(tableKey, key) {
			return amount
		}
	}
	zap.L().Info("valuation: no deduction found for defect",
		zap.String("defect", defect),
		zap.String("normalized", key),
		zap.String("family", string(family)),
	)
	return 0
}

// ReportsNoDamage reports whether the defect list amounts to "nothing
// wrong": empty, the no_damage sentinel, or only perfect-condition
// checklist labels.
func ReportsNoDamage(defects []string) bool {
	if len(defects) == 0 {
		return true
	}
	for _, d := range defects {
		lower := strings.ToLower(d)
		if d == model.ValueNoDamage || d == "none" {
			continue
		}
		if strings.Contains(lower, "none") &&
			(strings.Contains(lower, "works") || strings.Contains(lower, "perfect")) {
			continue
		}
		return false
	}
	return true
}

// Assessment is the outcome of condition-and-repair valuation.
type Assessment struct {
	ConditionMultiplier float64
	RepairDeduction     float64
	ItemizedDeductions  map[string]float64
	AdjustedValue       float64
	FlooredAtPartsValue bool
	Severity            SeverityBuckets
}

// Assess values the item's condition against the market value of a
// good-condition unit. Two data states, two strategies, never both:
// an itemized defect list subtracts per-defect repair costs with a
// parts-value floor; a bare condition grade applies its multiplier.
func Assess(marketValue float64, conditionLabel string, defects []string, family category.Family, repairOverride *model.RepairEstimate) Assessment {
	a := Assessment{
		ConditionMultiplier: ConditionMultiplier(conditionLabel),
		ItemizedDeductions:  map[string]float64{},
		Severity:            ClassifyDefects(defects),
	}
	if marketValue <= 0 {
		return a
	}

	if ReportsNoDamage(defects) {
		// No itemized defects: the self-reported grade is the only
		// signal, so the multiplier path applies.
		if a.ConditionMultiplier > 0 {
			a.AdjustedValue = marketValue * a.ConditionMultiplier
		} else {
			a.AdjustedValue = marketValue * defaultMultiplier
		}
		return a
	}

	// Itemized path: start from the good-condition market value and
	// subtract researched or table repair costs.
	if repairOverride != nil && repairOverride.Total > 0 {
		a.RepairDeduction = repairOverride.Total
		for _, item := range repairOverride.Items {
			a.ItemizedDeductions[item.Defect] = item.Cost
		}
	} else {
		for _, defect := range defects {
			if amount := DeductionFor(defect, family); amount > 0 {
				a.ItemizedDeductions[defect] = amount
				a.RepairDeduction += amount
			}
		}
	}

	adjusted := marketValue - a.RepairDeduction
	floor := marketValue * partsValueFloor
	if adjusted < floor {
		adjusted = floor
		a.FlooredAtPartsValue = true
	}
	a.AdjustedValue = adjusted
	return a
}
