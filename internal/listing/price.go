package listing

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	zarPattern = regexp.MustCompile(`R\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	usdPattern = regexp.MustCompile(`\$\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
)

// extractZAR pulls the first rand amount out of listing text.
func extractZAR(text string) (float64, bool) {
	return extractAmount(zarPattern, text, 1, 1_000_000)
}

// extractUSD pulls the first dollar amount out of listing text. eBay
// prices above $100k are junk matches, not listings.
func extractUSD(text string) (float64, bool) {
	return extractAmount(usdPattern, text, 1, 100_000)
}

func extractAmount(re *regexp.Regexp, text string, min, max float64) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || v <= min || v >= max {
		return 0, false
	}
	return v, true
}

// inferCondition guesses listing condition from its title.
func inferCondition(title string) string {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "new") || strings.Contains(lower, "sealed"):
		return "New"
	case strings.Contains(lower, "excellent") || strings.Contains(lower, "mint"):
		return "Excellent"
	case strings.Contains(lower, "good"):
		return "Good"
	default:
		return "Used"
	}
}

// inferGrade maps refurbished-stock grades used on our own listings.
func inferGrade(title string) string {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "grade a"):
		return "Grade A"
	case strings.Contains(lower, "grade b"):
		return "Grade B"
	case strings.Contains(lower, "grade c"):
		return "Grade C"
	case strings.Contains(lower, "sealed") || strings.Contains(lower, "new"):
		return "New"
	default:
		return "Refurbished"
	}
}
