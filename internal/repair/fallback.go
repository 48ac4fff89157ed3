package repair

import (
	"fmt"
	"strings"

	"github.com/epicdeals/instant-offer/internal/model"
)

// fallbackEstimate provides a static estimate when research fails or
// produces no usable prices. Apple devices carry premium repair
// pricing across the board.
func fallbackEstimate(defect, brand, category string) model.RepairItem {
	lower := strings.ToLower(defect)
	brandLower := strings.ToLower(brand)
	catLower := strings.ToLower(category)

	isApple := strings.Contains(brandLower, "apple") ||
		strings.Contains(brandLower, "iphone") ||
		strings.Contains(brandLower, "macbook")
	isPhone := strings.Contains(catLower, "phone")
	isLaptop := strings.Contains(catLower, "laptop")

	var cost float64
	switch {
	case strings.Contains(lower, "screen") && strings.Contains(lower, "crack"):
		switch {
		case isApple && isPhone:
			cost = 1500
		case isApple:
			cost = 4000
		case isPhone:
			cost = 1000
		case isLaptop:
			cost = 2500
		default:
			cost = 1200
		}
	case strings.Contains(lower, "battery"):
		switch {
		case isApple && isPhone:
			cost = 800
		case isApple:
			cost = 1500
		case isPhone:
			cost = 600
		case isLaptop:
			cost = 1200
		default:
			cost = 700
		}
	case strings.Contains(lower, "back glass"):
		cost = 500
		if isApple {
			cost = 800
		}
	case strings.Contains(lower, "camera"):
		cost = 700
		if isApple {
			cost = 1000
		}
	case strings.Contains(lower, "keyboard"):
		cost = 1500
		if isApple {
			cost = 2000
		}
	case strings.Contains(lower, "water damage"):
		cost = 2000
	case strings.Contains(lower, "port"), strings.Contains(lower, "button"):
		cost = 500
	case strings.Contains(lower, "hinge"):
		cost = 1500
	default:
		cost = 800
	}

	return model.RepairItem{
		Defect:     defect,
		Cost:       cost,
		Source:     "Industry standard estimates",
		Details:    fmt.Sprintf("Typical cost for %s", strings.ToLower(defect)),
		Researched: false,
		Confidence: fallbackConfidence,
	}
}
