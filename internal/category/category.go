// Package category normalizes free-form category, brand, and model text
// into a closed set of super-categories used to size question budgets
// and select deduction and depreciation tables.
package category

import (
	"strings"

	"github.com/epicdeals/instant-offer/internal/model"
)

// Super is a normalized super-category.
type Super string

const (
	Electronics Super = "electronics"
	Vehicle     Super = "vehicle"
	Appliance   Super = "appliance"
	Fashion     Super = "fashion"
	Furniture   Super = "furniture"
	Generic     Super = "generic"
)

// questionLimits is the per-conversation question budget by super-category.
var questionLimits = map[Super]int{
	Electronics: 4,
	Vehicle:     6,
	Appliance:   3,
	Fashion:     3,
	Furniture:   2,
	Generic:     4,
}

// matchRule maps keywords to a super-category. Rules are evaluated in
// order; the first keyword hit wins.
type matchRule struct {
	super    Super
	keywords []string
}

// matchRules is the authoritative category-matching table. More specific
// families come first so "washing machine" does not land in generic.
var matchRules = []matchRule{
	{Vehicle, []string{
		"car", "vehicle", "bakkie", "motorbike", "motorcycle", "scooter",
		"polo", "golf", "corolla", "hilux", "ranger", "bmw", "quad",
	}},
	{Appliance, []string{
		"appliance", "washing machine", "washer", "tumble dryer", "dryer",
		"fridge", "refrigerator", "freezer", "dishwasher", "microwave",
		"oven", "stove", "kettle", "air fryer", "vacuum", "geyser",
		"heater", "aircon", "air conditioner",
	}},
	{Fashion, []string{
		"shoe", "sneaker", "trainer", "boot", "clothing", "jacket",
		"dress", "handbag", "bag", "jersey", "denim", "cap", "fashion",
		"jewellery", "jewelry", "sunglasses",
	}},
	{Furniture, []string{
		"furniture", "couch", "sofa", "bed", "mattress", "table", "desk",
		"chair", "wardrobe", "cabinet", "shelf", "dresser",
	}},
	{Electronics, []string{
		"phone", "smartphone", "iphone", "android", "mobile", "tablet",
		"ipad", "laptop", "notebook", "macbook", "computer", "pc",
		"monitor", "tv", "television", "camera", "dslr", "mirrorless",
		"lens", "console", "playstation", "ps4", "ps5", "xbox",
		"nintendo", "switch", "watch", "smartwatch", "headphone",
		"earbud", "airpod", "speaker", "soundbar", "drone", "router",
		"gpu", "graphics card", "hard drive", "ssd", "keyboard", "mouse",
		"printer", "projector", "electronics",
	}},
}

// Normalize maps a product's free-form category/brand/model text to a
// super-category. Unmatched text falls back to Generic.
func Normalize(p model.ProductRecord) Super {
	text := p.SearchText()
	tokens := tokenize(text)
	for _, rule := range matchRules {
		for _, kw := range rule.keywords {
			if matchKeyword(text, tokens, kw) {
				return rule.super
			}
		}
	}
	return Generic
}

// matchKeyword matches multi-word keywords as substrings and single
// words on token boundaries (with a plural fallback), so "car" does not
// fire on "graphics card".
func matchKeyword(text string, tokens map[string]struct{}, kw string) bool {
	if strings.ContainsRune(kw, ' ') {
		return strings.Contains(text, kw)
	}
	if _, ok := tokens[kw]; ok {
		return true
	}
	_, ok := tokens[kw+"s"]
	return ok
}

func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// QuestionLimit returns the question budget for a super-category.
func QuestionLimit(s Super) int {
	if n, ok := questionLimits[s]; ok {
		return n
	}
	return questionLimits[Generic]
}

// Family is the device family within a super-category. It selects the
// damage checklist and the repair deduction table.
type Family string

const (
	FamilyPhone     Family = "phone"
	FamilyLaptop    Family = "laptop"
	FamilyCamera    Family = "camera"
	FamilyTV        Family = "tv"
	FamilyConsole   Family = "console"
	FamilyAppliance Family = "appliance"
	FamilyGeneric   Family = "generic"
)

// DeviceFamily maps a product to its device family, keyed off the raw
// category/brand/model text so families within electronics are told
// apart.
func DeviceFamily(p model.ProductRecord) Family {
	text := p.SearchText()
	tokens := tokenize(text)
	containsAny := func(keywords ...string) bool {
		for _, kw := range keywords {
			if matchKeyword(text, tokens, kw) {
				return true
			}
		}
		return false
	}

	switch {
	case containsAny("phone", "smartphone", "iphone", "android", "mobile", "tablet", "ipad"):
		return FamilyPhone
	case containsAny("laptop", "notebook", "macbook", "computer"):
		return FamilyLaptop
	case containsAny("camera", "dslr", "mirrorless"):
		return FamilyCamera
	case containsAny("tv", "television"):
		return FamilyTV
	case containsAny("console", "playstation", "xbox", "nintendo", "switch"):
		return FamilyConsole
	case containsAny("washing", "fridge", "refrigerator", "dishwasher", "dryer", "appliance", "microwave", "oven"):
		return FamilyAppliance
	default:
		return FamilyGeneric
	}
}

// DamageOptions returns the condition checklist presented to the seller
// for a product.
func DamageOptions(p model.ProductRecord) []string {
	switch DeviceFamily(p) {
	case FamilyPhone:
		return []string{
			"Screen cracked or scratched",
			"Back glass cracked",
			"Body dents or deep scratches",
			"Battery health below 80%",
			"Camera issues",
			"Face ID or Touch ID not working",
			"Buttons or ports damaged",
			"Water damage",
			"None - everything works perfectly",
		}
	case FamilyLaptop:
		return []string{
			"Screen scratches, dead pixels, or cracks",
			"Keyboard keys missing or sticky",
			"Trackpad not working properly",
			"Battery health below 80%",
			"Dents or cracks in body",
			"Hinge loose or broken",
			"Ports not working",
			"Overheating issues",
			"None - everything works perfectly",
		}
	case FamilyCamera:
		return []string{
			"Lens scratches or fungus",
			"Sensor dust or spots",
			"Shutter not working or high count",
			"Autofocus issues",
			"Body scratches or dents",
			"Missing parts",
			"None - everything works perfectly",
		}
	case FamilyTV:
		return []string{
			"Screen burn-in or dead pixels",
			"Cracked screen",
			"Lines or discoloration",
			"HDMI ports not working",
			"Smart features not working",
			"Stand missing or broken",
			"Remote missing",
			"None - everything works perfectly",
		}
	case FamilyConsole:
		return []string{
			"Doesn't power on",
			"Disc drive not working",
			"Controller issues",
			"HDMI port damaged",
			"Overheating or loud fan",
			"Body scratches or dents",
			"Missing cables or controllers",
			"None - everything works perfectly",
		}
	case FamilyAppliance:
		return []string{
			"Doesn't work properly",
			"Leaks or drips",
			"Makes excessive noise",
			"Missing parts",
			"Visible damage or rust",
			"None - everything works perfectly",
		}
	default:
		return []string{
			"Doesn't work properly",
			"Visible damage or scratches",
			"Missing parts or accessories",
			"Cosmetic wear",
			"None - everything works perfectly",
		}
	}
}
