package model

import "strings"

// placeholderValues are spec values that carry no information and are
// discarded when flattening an identification result.
var placeholderValues = map[string]struct{}{
	"":        {},
	"unknown": {},
	"n/a":     {},
	"none":    {},
	"null":    {},
}

// ProductRecord is the item being priced. It is created by the
// identification capability, mutated as answers arrive, and read-only
// once handed to the valuation pipeline.
type ProductRecord struct {
	Name           string            `json:"name"`
	Category       string            `json:"category"`
	Brand          string            `json:"brand"`
	Model          string            `json:"model"`
	Specifications map[string]string `json:"specifications,omitempty"`
	Condition      string            `json:"condition,omitempty"`
	DamageDetails  []string          `json:"damage_details,omitempty"`
}

// DisplayName returns "Brand Model", falling back to Name.
func (p ProductRecord) DisplayName() string {
	s := strings.TrimSpace(strings.TrimSpace(p.Brand) + " " + strings.TrimSpace(p.Model))
	if s == "" {
		return p.Name
	}
	return s
}

// SearchText concatenates category, brand, and model for keyword matching.
func (p ProductRecord) SearchText() string {
	return strings.ToLower(strings.Join([]string{p.Category, p.Brand, p.Model}, " "))
}

// MeaningfulSpecs returns the specification entries that carry a real
// value, with placeholders ("unknown", "n/a", empty) dropped.
func (p ProductRecord) MeaningfulSpecs() map[string]string {
	out := make(map[string]string, len(p.Specifications))
	for k, v := range p.Specifications {
		if IsPlaceholder(v) {
			continue
		}
		out[k] = v
	}
	return out
}

// IsPlaceholder reports whether a raw spec value carries no information.
func IsPlaceholder(v string) bool {
	_, ok := placeholderValues[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// Answer sentinels. An uncertain answer is stored as ValueUnknown so it
// still counts against the question budget; a "nothing wrong" checklist
// selection collapses to ValueNoDamage instead of the literal UI label.
const (
	ValueUnknown  = "unknown"
	ValueNoDamage = "no_damage"
)

// Turn is one entry in the conversation audit trail.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// UIType tells the front end how to present a question.
type UIType string

const (
	UISingleSelect UIType = "single_select"
	UIMultiSelect  UIType = "multi_select"
	UIFreeText     UIType = "free_text"
)

// GeneratedQuestion is the phrased question produced by the
// question-generation capability for a single approved field.
type GeneratedQuestion struct {
	FieldName    string   `json:"field_name"`
	Text         string   `json:"text"`
	QuickOptions []string `json:"quick_options,omitempty"`
	UIType       UIType   `json:"ui_type"`
}

// IdentificationResult is the output contract of the
// product-identification capability.
type IdentificationResult struct {
	Product                ProductRecord `json:"product"`
	ProposedQuestions      []string      `json:"proposed_questions"`
	NeedsModelConfirmation bool          `json:"needs_model_confirmation,omitempty"`
	ModelOptions           []string      `json:"model_options,omitempty"`
	Acknowledgment         string        `json:"acknowledgment,omitempty"`
}
