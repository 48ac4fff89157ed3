// Package valuation turns a researched market value and the seller's
// condition report into an adjusted value and a pair of payout offers.
// It carries the depreciation curves, condition grading, repair
// deduction tables, and the beyond-economic-repair gate.
package valuation

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/epicdeals/instant-offer/internal/category"
)

//go:embed deductions.yaml
var deductionsYAML []byte

//go:embed depreciation.yaml
var depreciationYAML []byte

// deductionTables is the parsed form of deductions.yaml.
type deductionTables struct {
	ConditionMultipliers map[string]float64                     `yaml:"condition_multipliers"`
	ConditionSynonyms    map[string]float64                     `yaml:"condition_synonyms"`
	Families             map[category.Family]map[string]float64 `yaml:"families"`
}

// depreciationTables is the parsed form of depreciation.yaml.
type depreciationTables struct {
	Curves map[string]map[int]float64 `yaml:"curves"`
}

var (
	deductions   deductionTables
	depreciation depreciationTables
)

func init() {
	if err := yaml.Unmarshal(deductionsYAML, &deductions); err != nil {
		panic(fmt.Sprintf("valuation: parse deductions.yaml: %v", err))
	}
	if err := yaml.Unmarshal(depreciationYAML, &depreciation); err != nil {
		panic(fmt.Sprintf("valuation: parse depreciation.yaml: %v", err))
	}
	if _, ok := depreciation.Curves["default"]; !ok {
		panic("valuation: depreciation.yaml missing default curve")
	}
	if _, ok := deductions.Families[category.FamilyGeneric]; !ok {
		panic("valuation: deductions.yaml missing generic family table")
	}
}

// deductionTable returns the repair deduction table for a device family.
func deductionTable(f category.Family) map[string]float64 {
	if t, ok := deductions.Families[f]; ok {
		return t
	}
	return deductions.Families[category.FamilyGeneric]
}
