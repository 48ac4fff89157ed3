package category

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/epicdeals/instant-offer/internal/model"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name    string
		product model.ProductRecord
		want    Super
	}{
		{"iphone", model.ProductRecord{Category: "Cell Phones", Brand: "Apple", Model: "iPhone 11"}, Electronics},
		{"washing machine", model.ProductRecord{Category: "Home", Model: "Samsung washing machine"}, Appliance},
		{"vehicle", model.ProductRecord{Category: "Cars", Brand: "VW", Model: "Polo Vivo"}, Vehicle},
		{"sneakers", model.ProductRecord{Category: "Fashion", Model: "Air Jordan 1"}, Fashion},
		{"couch", model.ProductRecord{Category: "Furniture", Model: "3-seater couch"}, Furniture},
		{"unknown", model.ProductRecord{Category: "Collectibles", Model: "vintage stamp album"}, Generic},
		// "card" must not trip the vehicle "car" keyword.
		{"graphics card", model.ProductRecord{Category: "Computer Parts", Model: "RTX 3080 graphics card"}, Electronics},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.product))
		})
	}
}

func TestQuestionLimit(t *testing.T) {
	assert.Equal(t, 4, QuestionLimit(Electronics))
	assert.Equal(t, 6, QuestionLimit(Vehicle))
	assert.Equal(t, 3, QuestionLimit(Appliance))
	assert.Equal(t, 2, QuestionLimit(Furniture))
	assert.Equal(t, 4, QuestionLimit(Super("nonsense")))
}

func TestDeviceFamily(t *testing.T) {
	cases := []struct {
		name    string
		product model.ProductRecord
		want    Family
	}{
		{"iphone", model.ProductRecord{Category: "Cell Phones", Model: "iPhone 12"}, FamilyPhone},
		{"macbook", model.ProductRecord{Category: "Laptops", Model: "MacBook Pro"}, FamilyLaptop},
		{"dslr", model.ProductRecord{Category: "Photography", Model: "Canon EOS 90D DSLR"}, FamilyCamera},
		{"tv", model.ProductRecord{Category: "Electronics", Model: "LG OLED TV"}, FamilyTV},
		{"ps5", model.ProductRecord{Category: "Gaming", Model: "PlayStation 5"}, FamilyConsole},
		{"fridge", model.ProductRecord{Category: "Appliances", Model: "Samsung fridge"}, FamilyAppliance},
		{"headphones", model.ProductRecord{Category: "Audio", Model: "Sony headphones"}, FamilyGeneric},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeviceFamily(tc.product))
		})
	}
}

func TestDamageOptionsDeviceFamilies(t *testing.T) {
	phone := DamageOptions(model.ProductRecord{Category: "Electronics", Brand: "Apple", Model: "iPhone 12"})
	assert.Contains(t, phone, "Screen cracked or scratched")

	laptop := DamageOptions(model.ProductRecord{Category: "Electronics", Brand: "Apple", Model: "MacBook Air M1"})
	assert.Contains(t, laptop, "Trackpad not working properly")

	// Headphones are electronics but not phones; they get the generic list.
	headphones := DamageOptions(model.ProductRecord{Category: "Audio", Brand: "Sony", Model: "WH-1000XM4 headphones"})
	assert.NotContains(t, headphones, "Screen cracked or scratched")
	assert.Contains(t, headphones, "None - everything works perfectly")
}

func TestDamageOptionsAlwaysOfferNone(t *testing.T) {
	for _, p := range []model.ProductRecord{
		{Model: "iPhone 13"},
		{Model: "LG OLED TV"},
		{Model: "PS5 console"},
		{Model: "random thing"},
	} {
		opts := DamageOptions(p)
		assert.Equal(t, "None - everything works perfectly", opts[len(opts)-1])
	}
}
