// Package engine implements the conversation guardrail: the single
// authority on which question may be asked next and on when questioning
// stops and the offer is calculated. Intelligence lives in the external
// model capabilities; discipline lives here.
package engine

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/epicdeals/instant-offer/internal/category"
	"github.com/epicdeals/instant-offer/internal/model"
)

// State is the conversation phase. Calculating is entered at most once;
// there is no transition back to Questioning.
type State string

const (
	StateIdentifying    State = "identifying"
	StateQuestioning    State = "questioning"
	StateCalculating    State = "calculating"
	StateOfferReady     State = "offer_ready"
	StateCollectingInfo State = "collecting_info"
)

// uncertainPhrases are answer fragments normalized to the unknown
// sentinel so an "I don't know" still spends budget without blocking.
var uncertainPhrases = []string{
	"not sure", "don't know", "dont know", "unsure", "unknown", "idk",
	"no idea", "can't remember", "cant remember",
}

// noDamagePhrases are checklist labels and free-text fragments meaning
// "nothing wrong"; they collapse to the no_damage sentinel.
var noDamagePhrases = []string{
	"none", "no damage", "no issues", "nothing wrong", "perfect",
	"everything works", "works perfectly", "no problems",
}

// Conversation is the guardrail state for one dialogue. It is owned by
// exactly one conversation and is not safe for concurrent use; callers
// serialize access per session token.
type Conversation struct {
	state             State
	productIdentified bool
	product           model.ProductRecord
	super             category.Super
	questionLimit     int

	approvedQuestions []string
	collectedFields   map[string]any
	askedFields       map[string]struct{}
	// autoFields are collectedFields promoted straight from the
	// identification payload, never actually asked. They do not satisfy
	// the mandatory condition question.
	autoFields    map[string]struct{}
	questionCount int

	uiOptions []string
	turns     []model.Turn
}

// New returns an empty conversation in the identifying state.
func New() *Conversation {
	return &Conversation{
		state:           StateIdentifying,
		questionLimit:   category.QuestionLimit(category.Generic),
		collectedFields: make(map[string]any),
		askedFields:     make(map[string]struct{}),
		autoFields:      make(map[string]struct{}),
	}
}

// Phase returns the current conversation phase.
func (c *Conversation) Phase() State { return c.state }

// SetPhase advances the conversation phase. The calculating phase is a
// one-way door: once left behind, questioning never resumes.
func (c *Conversation) SetPhase(s State) { c.state = s }

// Product returns the current product record.
func (c *Conversation) Product() model.ProductRecord { return c.product }

// Super returns the normalized super-category.
func (c *Conversation) Super() category.Super { return c.super }

// QuestionLimit returns the per-conversation question budget.
func (c *Conversation) QuestionLimit() int { return c.questionLimit }

// QuestionCount returns the number of questions spent so far.
func (c *Conversation) QuestionCount() int { return c.questionCount }

// ApprovedQuestions returns the current question plan.
func (c *Conversation) ApprovedQuestions() []string {
	return append([]string(nil), c.approvedQuestions...)
}

// CollectedFields returns a copy of the answered fields.
func (c *Conversation) CollectedFields() map[string]any {
	out := make(map[string]any, len(c.collectedFields))
	for k, v := range c.collectedFields {
		out[k] = v
	}
	return out
}

// UIOptions returns the presentation options recorded for the question
// currently in flight.
func (c *Conversation) UIOptions() []string {
	return append([]string(nil), c.uiOptions...)
}

// Turns returns the append-only conversation audit trail.
func (c *Conversation) Turns() []model.Turn {
	return append([]model.Turn(nil), c.turns...)
}

// RecordUserMessage appends a user turn to the audit trail.
func (c *Conversation) RecordUserMessage(text string) {
	c.turns = append(c.turns, model.Turn{Role: "user", Content: text})
}

// RecordAssistantMessage appends an assistant turn to the audit trail.
func (c *Conversation) RecordAssistantMessage(text string) {
	c.turns = append(c.turns, model.Turn{Role: "assistant", Content: text})
}

// identityFields are product metadata, never promoted into
// collectedFields and never counted as answered questions.
var identityFields = map[string]struct{}{
	"name": {}, "brand": {}, "category": {}, "model": {},
}

// SetProductInfo accepts the externally identified product. Meaningful
// specification values are flattened onto the field namespace and
// promoted into collectedFields and askedFields, so information the
// seller volunteered up front is never re-asked. The category is
// normalized once and fixes the question budget. Idempotent: calling it
// again never resets fields already collected.
func (c *Conversation) SetProductInfo(p model.ProductRecord) {
	if !c.productIdentified {
		c.super = category.Normalize(p)
		c.questionLimit = category.QuestionLimit(c.super)
		c.productIdentified = true
	}
	c.product = p
	if c.state == StateIdentifying {
		c.state = StateQuestioning
	}

	for field, value := range p.MeaningfulSpecs() {
		field = strings.ToLower(strings.TrimSpace(field))
		if field == "" {
			continue
		}
		if _, identity := identityFields[field]; identity {
			continue
		}
		if _, done := c.collectedFields[field]; done {
			continue
		}
		c.collectedFields[field] = value
		c.askedFields[field] = struct{}{}
		c.autoFields[field] = struct{}{}
	}

	zap.L().Info("engine: product identified",
		zap.String("product", p.DisplayName()),
		zap.String("super_category", string(c.super)),
		zap.Int("question_limit", c.questionLimit),
		zap.Int("auto_collected", len(c.autoFields)),
	)
}

// IsConditionField reports whether a field name carries the mandatory
// condition or damage assessment.
func IsConditionField(field string) bool {
	f := strings.ToLower(field)
	return strings.Contains(f, "condition") || strings.Contains(f, "damage") ||
		strings.Contains(f, "defect") || strings.Contains(f, "issues")
}

// trulyCollected reports whether a field was answered by the seller,
// as opposed to auto-promoted from the identification payload.
func (c *Conversation) trulyCollected(field string) bool {
	if _, ok := c.collectedFields[field]; !ok {
		return false
	}
	_, auto := c.autoFields[field]
	return !auto
}

// askRepeatBlocked reports whether asking this field again is forbidden.
// Membership in the asked set is a hard gate, with one exception: a
// condition field that is only "asked" because the identification
// payload volunteered damage details may still be asked properly once.
func (c *Conversation) askRepeatBlocked(field string) bool {
	if _, asked := c.askedFields[field]; !asked {
		return false
	}
	_, auto := c.autoFields[field]
	return !(auto && IsConditionField(field))
}

// ApproveQuestions filters the proposed question plan down to what the
// budget and the no-repeat rule allow. Condition/damage fields always
// move to the front, and one is injected when the proposal omitted it:
// damage assessment is never skippable. The returned list becomes the
// authoritative plan for this conversation.
func (c *Conversation) ApproveQuestions(proposed []string) []string {
	var mandatory, optional []string
	seen := make(map[string]struct{}, len(proposed))
	for _, field := range proposed {
		field = strings.ToLower(strings.TrimSpace(field))
		if field == "" {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		if IsConditionField(field) {
			mandatory = append(mandatory, field)
		} else {
			optional = append(optional, field)
		}
	}
	if len(mandatory) == 0 && !c.conditionCollected() {
		mandatory = []string{"damage"}
	}

	approved := make([]string, 0, len(proposed))
	for _, field := range append(mandatory, optional...) {
		if c.trulyCollected(field) {
			zap.L().Debug("engine: skipping proposed question, already answered",
				zap.String("field", field))
			continue
		}
		if c.askRepeatBlocked(field) {
			zap.L().Debug("engine: skipping proposed question, already asked",
				zap.String("field", field))
			continue
		}
		if len(approved)+c.questionCount >= c.questionLimit {
			zap.L().Debug("engine: question budget reached, truncating plan",
				zap.Int("limit", c.questionLimit))
			break
		}
		approved = append(approved, field)
	}

	c.approvedQuestions = approved
	zap.L().Info("engine: approved question plan",
		zap.Strings("fields", approved),
		zap.Int("question_count", c.questionCount),
		zap.Int("question_limit", c.questionLimit),
	)
	return append([]string(nil), approved...)
}

// conditionCollected reports whether a condition/damage field has a real
// seller-provided answer.
func (c *Conversation) conditionCollected() bool {
	for field := range c.collectedFields {
		if IsConditionField(field) && c.trulyCollected(field) {
			return true
		}
	}
	return false
}

// Validation is the outcome of ValidateQuestion.
type Validation struct {
	Valid     bool
	Reason    string
	UIOptions []string
}

// ValidateQuestion is the final gate before a question reaches the
// seller. Acceptance spends one unit of budget: the field joins the
// asked set and the counter increments, so callers must not validate a
// question they will not actually show.
func (c *Conversation) ValidateQuestion(field, text string, options []string) Validation {
	field = strings.ToLower(strings.TrimSpace(field))

	if c.trulyCollected(field) {
		return Validation{Reason: fmt.Sprintf("field %q already collected", field)}
	}
	if c.askRepeatBlocked(field) {
		return Validation{Reason: fmt.Sprintf("field %q already asked", field)}
	}
	if c.questionCount >= c.questionLimit {
		return Validation{Reason: fmt.Sprintf("question budget of %d exhausted", c.questionLimit)}
	}

	c.askedFields[field] = struct{}{}
	delete(c.autoFields, field)
	c.questionCount++
	c.uiOptions = append([]string(nil), options...)
	c.RecordAssistantMessage(text)

	zap.L().Info("engine: question accepted",
		zap.String("field", field),
		zap.Int("question", c.questionCount),
		zap.Int("limit", c.questionLimit),
	)
	return Validation{Valid: true, UIOptions: c.UIOptions()}
}

// RecordAnswer stores the seller's answer. Uncertain phrasings collapse
// to the unknown sentinel; a condition answer reporting nothing wrong
// collapses to the no_damage sentinel. The field is marked both asked
// and collected.
func (c *Conversation) RecordAnswer(field string, value any) {
	field = strings.ToLower(strings.TrimSpace(field))

	switch v := value.(type) {
	case string:
		if isUncertain(v) {
			value = model.ValueUnknown
		} else if IsConditionField(field) && isNoDamage(v) {
			value = model.ValueNoDamage
		}
	case []string:
		if IsConditionField(field) {
			if filtered := dropNoDamage(v); len(filtered) == 0 {
				value = model.ValueNoDamage
			} else {
				value = filtered
			}
		}
	}

	c.collectedFields[field] = value
	c.askedFields[field] = struct{}{}
	delete(c.autoFields, field)
	c.applyAnswerToProduct(field, value)

	zap.L().Debug("engine: answer recorded",
		zap.String("field", field),
		zap.Any("value", value),
		zap.Int("collected", len(c.collectedFields)),
	)
}

// applyAnswerToProduct folds an answer back into the product record so
// the valuation pipeline sees everything the seller reported.
func (c *Conversation) applyAnswerToProduct(field string, value any) {
	if IsConditionField(field) {
		switch v := value.(type) {
		case string:
			if v == model.ValueNoDamage {
				c.product.DamageDetails = nil
				if c.product.Condition == "" {
					c.product.Condition = "excellent"
				}
			} else if v != model.ValueUnknown {
				c.product.DamageDetails = append(c.product.DamageDetails, v)
			}
		case []string:
			c.product.DamageDetails = append(c.product.DamageDetails, v...)
		}
		return
	}
	if s, ok := value.(string); ok && s != model.ValueUnknown {
		if c.product.Specifications == nil {
			c.product.Specifications = make(map[string]string)
		}
		c.product.Specifications[field] = s
	}
}

func isUncertain(v string) bool {
	lower := strings.ToLower(v)
	for _, phrase := range uncertainPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func isNoDamage(v string) bool {
	lower := strings.ToLower(strings.TrimSpace(v))
	for _, phrase := range noDamagePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// dropNoDamage removes "nothing wrong" checklist labels from a
// multi-select answer.
func dropNoDamage(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if isNoDamage(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// ShouldCalculateOffer decides whether questioning ends now. It never
// fires before the first question is asked, always fires once the
// budget is spent, and otherwise fires only when every planned question
// has an answer, not merely an ask.
func (c *Conversation) ShouldCalculateOffer() bool {
	if c.questionCount == 0 {
		return false
	}
	if c.questionCount >= c.questionLimit {
		zap.L().Info("engine: calculating, question budget spent",
			zap.Int("count", c.questionCount), zap.Int("limit", c.questionLimit))
		return true
	}
	if len(c.approvedQuestions) == 0 {
		return false
	}
	for _, field := range c.approvedQuestions {
		if _, ok := c.collectedFields[field]; !ok {
			return false
		}
	}
	zap.L().Info("engine: calculating, question plan fully answered",
		zap.Strings("plan", c.approvedQuestions))
	return true
}

// Progress reports questions used against the plan for front-end display.
type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// ProgressInfo returns the current question progress.
func (c *Conversation) ProgressInfo() Progress {
	total := len(c.approvedQuestions) + c.questionCount
	if total == 0 || total > c.questionLimit {
		total = c.questionLimit
	}
	pct := 0
	if c.questionLimit > 0 {
		pct = c.questionCount * 100 / c.questionLimit
	}
	return Progress{Current: c.questionCount, Total: total, Percentage: pct}
}

// PromptSummary renders the collected state for the external model's
// prompt so it never proposes a question that would be rejected.
func (c *Conversation) PromptSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "PRODUCT: %s\n", orUnknown(c.product.DisplayName()))
	fmt.Fprintf(&b, "CATEGORY: %s\n", orUnknown(c.product.Category))

	if len(c.collectedFields) > 0 {
		b.WriteString("\nALREADY COLLECTED:\n")
		for _, field := range sortedKeys(c.collectedFields) {
			fmt.Fprintf(&b, "  %s: %v\n", field, c.collectedFields[field])
		}
	}

	var askedOnly []string
	for field := range c.askedFields {
		if _, ok := c.collectedFields[field]; !ok {
			askedOnly = append(askedOnly, field)
		}
	}
	if len(askedOnly) > 0 {
		sort.Strings(askedOnly)
		b.WriteString("\nALREADY ASKED (do not ask again):\n")
		for _, field := range askedOnly {
			fmt.Fprintf(&b, "  %s (seller was unsure)\n", field)
		}
	}

	fmt.Fprintf(&b, "\nQUESTIONS USED: %d/%d", c.questionCount, c.questionLimit)
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stale reports whether a resumed conversation claims an identified
// product but never spent a question while still questioning. A
// healthy flow identifies the product and validates the first question
// inside one request, so a persisted state like this is corrupted and
// must restart identification rather than resume. Later phases are
// exempt: a conversation that skipped straight to calculating did so
// because every field arrived with the identification.
func (c *Conversation) Stale() bool {
	return c.state == StateQuestioning && c.productIdentified && c.questionCount == 0
}

// Reset returns the conversation to its initial state.
func (c *Conversation) Reset() {
	*c = *New()
}
