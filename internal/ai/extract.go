package ai

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/epicdeals/instant-offer/internal/model"
)

var (
	digitRun  = regexp.MustCompile(`\d+`)
	yearToken = regexp.MustCompile(`20\d{2}|19\d{2}`)
)

var uncertainAnswers = []string{"not sure", "don't know", "dont know", "unsure", "idk"}

// ExtractAnswer converts a natural-language answer into a structured
// value for one field. It is deterministic: answer parsing never needs
// a model call.
//
//	"128GB"                        -> "128GB"
//	"not sure"                     -> the unknown sentinel
//	"none, it's perfect"           -> the no-damage sentinel
//	"about 85,000" (mileage field) -> 85000
func ExtractAnswer(answer, field string) any {
	answer = strings.TrimSpace(answer)
	lower := strings.ToLower(answer)

	for _, phrase := range uncertainAnswers {
		if strings.Contains(lower, phrase) {
			return model.ValueUnknown
		}
	}

	fieldLower := strings.ToLower(field)
	if strings.Contains(fieldLower, "condition") || strings.Contains(fieldLower, "damage") {
		for _, phrase := range []string{"none", "no issues", "perfect", "excellent"} {
			if strings.Contains(lower, phrase) {
				return model.ValueNoDamage
			}
		}
		return answer
	}

	if strings.Contains(fieldLower, "mileage") || strings.Contains(fieldLower, "km") {
		if m := digitRun.FindString(strings.ReplaceAll(answer, ",", "")); m != "" {
			if v, err := strconv.Atoi(m); err == nil {
				return v
			}
		}
	}

	if strings.Contains(fieldLower, "year") {
		if m := yearToken.FindString(answer); m != "" {
			if v, err := strconv.Atoi(m); err == nil {
				return v
			}
		}
	}

	return answer
}
