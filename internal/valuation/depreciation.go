package valuation

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/epicdeals/instant-offer/internal/model"
)

// defaultAgeYears is the conservative assumption when nothing in the
// product description reveals its age.
const defaultAgeYears = 3.0

// yearToken matches an explicit release or purchase year in a model
// string, e.g. "MacBook Pro 2020".
var yearToken = regexp.MustCompile(`\b(20\d{2})\b`)

// ArchetypeFor picks the depreciation curve for a product. Specific
// device lines come first: an Apple phone depreciates like an iPhone,
// not like a generic smartphone.
func ArchetypeFor(p model.ProductRecord) string {
	cat := strings.ToLower(p.Category)
	brand := strings.ToLower(p.Brand)
	mdl := strings.ToLower(p.Model)

	switch {
	case strings.Contains(mdl, "iphone"), brand == "apple" && strings.Contains(cat, "phone"):
		return "iphone"
	case strings.Contains(mdl, "macbook"), brand == "apple" && strings.Contains(cat, "laptop"):
		return "macbook"
	case strings.Contains(mdl, "ipad"), brand == "apple" && strings.Contains(cat, "tablet"):
		return "ipad"
	case brand == "samsung" && (strings.Contains(cat, "phone") || strings.Contains(mdl, "galaxy")):
		return "samsung_phone"
	case strings.Contains(cat, "watch"), strings.Contains(mdl, "watch"):
		return "smartwatch"
	case strings.Contains(cat, "phone"), strings.Contains(cat, "smartphone"):
		return "phone"
	case strings.Contains(cat, "laptop"):
		return "laptop"
	case strings.Contains(cat, "tablet"):
		return "tablet"
	case strings.Contains(cat, "console"), strings.Contains(mdl, "playstation"), strings.Contains(mdl, "xbox"):
		return "console"
	case strings.Contains(cat, "camera"):
		return "camera"
	case strings.Contains(cat, "tv"), strings.Contains(cat, "television"):
		return "tv"
	case strings.Contains(cat, "appliance"), strings.Contains(mdl, "washing"), strings.Contains(mdl, "fridge"):
		return "appliance"
	default:
		return "default"
	}
}

// RetentionFactor returns the fraction of new retail value a product of
// the given archetype retains at the given age. Ages past a curve's
// last anchor clamp to its final value; fractional ages interpolate
// linearly between the bounding whole years.
func RetentionFactor(archetype string, ageYears float64) float64 {
	curve, ok := depreciation.Curves[archetype]
	if !ok {
		curve = depreciation.Curves["default"]
	}
	if ageYears < 0 {
		ageYears = 0
	}

	maxYear := 0
	for year := range curve {
		if year > maxYear {
			maxYear = year
		}
	}

	lower := int(ageYears)
	if lower >= maxYear {
		return curve[maxYear]
	}

	lowerValue := curve[lower]
	if ageYears == float64(lower) {
		return lowerValue
	}
	upperValue := curve[lower+1]
	fraction := ageYears - float64(lower)
	return lowerValue - (lowerValue-upperValue)*fraction
}

// releaseYearRule maps a model-name fragment to a release year. Rules
// are ordered: "iphone 15" must win before "iphone 1" could.
type releaseYearRule struct {
	fragment string
	year     int
}

var releaseYearRules = []releaseYearRule{
	{"iphone 15", 2023},
	{"iphone 14", 2022},
	{"iphone 13", 2021},
	{"iphone 12", 2020},
	{"iphone 11", 2019},
	{"iphone xs", 2018},
	{"iphone xr", 2018},
	{"iphone x", 2017},
	{"iphone 8", 2017},
	{"iphone 7", 2016},
	{"iphone 6s", 2015},
	{"iphone 6", 2014},
	{"s24", 2024},
	{"s23", 2023},
	{"s22", 2022},
	{"s21", 2021},
	{"s20", 2020},
	{"s10", 2019},
	{"s9", 2018},
	{"s8", 2017},
	{"m3", 2023},
	{"m2", 2022},
	{"m1", 2020},
	{"ps5", 2020},
	{"playstation 5", 2020},
	{"ps4", 2013},
	{"playstation 4", 2013},
	{"series x", 2020},
	{"series s", 2020},
	{"xbox one", 2013},
}

// ReleaseYear extracts the release year from a model name: an explicit
// year token wins, then the known model-line lookup. Returns 0 when
// nothing matches.
func ReleaseYear(p model.ProductRecord) int {
	if m := yearToken.FindString(p.Model); m != "" {
		year, _ := strconv.Atoi(m)
		return year
	}
	mdl := strings.ToLower(p.Model)
	for _, rule := range releaseYearRules {
		if strings.Contains(mdl, rule.fragment) {
			return rule.year
		}
	}
	return 0
}

// AgeYears infers the product's age. A seller-reported year spec wins,
// then the model-derived release year, then a conservative default.
// Mid-year (July) release is assumed when converting a year to an age.
func AgeYears(p model.ProductRecord, now time.Time) float64 {
	if raw, ok := p.Specifications["year"]; ok && !model.IsPlaceholder(raw) {
		if year, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && year >= 2000 && year <= now.Year() {
			return ageFromYear(year, now)
		}
	}
	if year := ReleaseYear(p); year != 0 {
		return ageFromYear(year, now)
	}
	zap.L().Debug("valuation: no age signal, assuming default",
		zap.String("product", p.DisplayName()),
		zap.Float64("age_years", defaultAgeYears),
	)
	return defaultAgeYears
}

func ageFromYear(year int, now time.Time) float64 {
	age := float64(now.Year()-year) + float64(int(now.Month())-7)/12.0
	if age < 0 {
		return 0
	}
	return age
}

// DepreciatedValue derives a synthetic second-hand estimate from a new
// retail price. Used when no used-market observations exist.
func DepreciatedValue(p model.ProductRecord, newPrice float64, now time.Time) (float64, float64) {
	age := AgeYears(p, now)
	factor := RetentionFactor(ArchetypeFor(p), age)
	return newPrice * factor, factor
}
