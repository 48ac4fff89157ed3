// Package courier gates offers on whether an item can physically be
// couriered, and decides which business models apply to it.
package courier

import (
	"fmt"
	"strings"

	"github.com/epicdeals/instant-offer/internal/model"
)

// electronicsCategories qualify for both sell-now purchase and
// consignment resale; anything else is consignment-only because it is
// harder to price accurately.
var electronicsCategories = []string{
	"phone", "smartphone", "mobile", "iphone", "android",
	"laptop", "notebook", "macbook", "tablet", "ipad",
	"watch", "smartwatch", "apple watch",
	"camera", "dslr", "mirrorless",
	"headphones", "earbuds", "airpods", "speaker", "portable speaker",
	"keyboard", "mouse", "drone",
	"gaming console", "playstation", "ps4", "ps5", "xbox", "nintendo", "switch", "controller",
	"router", "modem", "hard drive", "ssd", "external drive",
	"graphics card", "gpu", "cpu", "processor", "ram", "memory",
	"powerbank", "power bank", "charger", "cable",
	"smart home", "echo", "alexa", "google home", "nest",
}

var courierEligibleCategories = []string{
	"phone", "smartphone", "mobile", "laptop", "notebook", "tablet", "ipad",
	"watch", "smartwatch", "camera", "headphones", "earbuds", "airpods",
	"speaker", "portable speaker", "keyboard", "mouse", "drone",
	"gaming console", "playstation", "xbox", "nintendo", "controller",
	"router", "modem", "hard drive", "ssd", "graphics card", "gpu",
	"cpu", "processor", "ram", "memory", "powerbank", "charger", "cable",
}

// nonCourierCategories are too large or heavy to ship.
var nonCourierCategories = []string{
	"fridge", "refrigerator", "freezer",
	"washing machine", "washer", "dryer", "dishwasher",
	"oven", "stove", "microwave",
	"tv", "television", "monitor",
	"furniture", "couch", "sofa", "bed", "mattress",
	"table", "desk", "chair", "wardrobe", "cabinet",
	"treadmill", "exercise bike",
	"air conditioner", "ac unit", "heater", "geyser", "water heater",
	"lawnmower", "generator", "compressor", "toolbox", "safe",
}

// Eligibility is the outcome of the courier gate.
type Eligibility struct {
	Eligible        bool   `json:"eligible"`
	Reason          string `json:"reason"`
	CategoryMatched string `json:"category_matched"`
}

// BusinessModels describes which purchase models apply to an item.
type BusinessModels struct {
	SellNowAvailable     bool   `json:"sell_now_available"`
	ConsignmentAvailable bool   `json:"consignment_available"`
	Reason               string `json:"reason"`
}

// CheckEligibility decides whether an item can be couriered. Non-listed
// items default to eligible since most small electronics ship fine.
func CheckEligibility(p model.ProductRecord) Eligibility {
	text := p.SearchText()

	for _, item := range nonCourierCategories {
		if strings.Contains(text, item) {
			return Eligibility{
				Eligible:        false,
				Reason:          fmt.Sprintf("Unfortunately, we currently only accept items that can be couriered. We're unable to process large items like %ss at this time. Please check back in the future as we expand our services!", item),
				CategoryMatched: item,
			}
		}
	}

	for _, item := range courierEligibleCategories {
		if strings.Contains(text, item) {
			return Eligibility{
				Eligible:        true,
				Reason:          "Item can be couriered",
				CategoryMatched: item,
			}
		}
	}

	return Eligibility{
		Eligible:        true,
		Reason:          "Item appears to be courier-eligible",
		CategoryMatched: "general electronics",
	}
}

// ModelsFor reports which business models the item qualifies for:
// electronics get both sell-now and consignment, everything else is
// consignment-only.
func ModelsFor(p model.ProductRecord) BusinessModels {
	text := p.SearchText()

	for _, item := range electronicsCategories {
		if strings.Contains(text, item) {
			return BusinessModels{
				SellNowAvailable:     true,
				ConsignmentAvailable: true,
				Reason:               "Electronics item - both models available",
			}
		}
	}

	return BusinessModels{
		SellNowAvailable:     false,
		ConsignmentAvailable: true,
		Reason:               "Non-electronics item - consignment only (harder to price accurately)",
	}
}
