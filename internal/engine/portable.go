package engine

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/epicdeals/instant-offer/internal/category"
	"github.com/epicdeals/instant-offer/internal/model"
)

// Portable is the JSON-serializable form of a Conversation, carried in
// external session storage between requests. The server holds no
// per-conversation state of its own.
type Portable struct {
	State             State               `json:"state"`
	ProductIdentified bool                `json:"product_identified"`
	Product           model.ProductRecord `json:"product"`
	SuperCategory     category.Super      `json:"super_category"`
	QuestionLimit     int                 `json:"question_limit"`
	ApprovedQuestions []string            `json:"approved_questions"`
	CollectedFields   map[string]any      `json:"collected_fields"`
	AskedFields       []string            `json:"asked_fields"`
	AutoFields        []string            `json:"auto_fields,omitempty"`
	QuestionCount     int                 `json:"question_count"`
	UIOptions         []string            `json:"ui_options,omitempty"`
	Turns             []model.Turn        `json:"conversation_turns,omitempty"`
}

// ToPortable serializes the conversation losslessly. Set-typed fields
// are emitted as sorted lists so the output is deterministic.
func (c *Conversation) ToPortable() Portable {
	return Portable{
		State:             c.state,
		ProductIdentified: c.productIdentified,
		Product:           c.product,
		SuperCategory:     c.super,
		QuestionLimit:     c.questionLimit,
		ApprovedQuestions: append([]string(nil), c.approvedQuestions...),
		CollectedFields:   c.CollectedFields(),
		AskedFields:       sortedSet(c.askedFields),
		AutoFields:        sortedSet(c.autoFields),
		QuestionCount:     c.questionCount,
		UIOptions:         append([]string(nil), c.uiOptions...),
		Turns:             append([]model.Turn(nil), c.turns...),
	}
}

// FromPortable rebuilds a conversation from its serialized form.
func FromPortable(p Portable) (*Conversation, error) {
	c := New()
	switch p.State {
	case "", StateIdentifying:
		c.state = StateIdentifying
	case StateQuestioning, StateCalculating, StateOfferReady, StateCollectingInfo:
		c.state = p.State
	default:
		return nil, eris.Errorf("engine: unknown conversation state %q", p.State)
	}

	c.productIdentified = p.ProductIdentified
	c.product = p.Product
	c.super = p.SuperCategory
	if c.super == "" {
		c.super = category.Generic
	}
	c.questionLimit = p.QuestionLimit
	if c.questionLimit <= 0 {
		c.questionLimit = category.QuestionLimit(c.super)
	}
	c.approvedQuestions = append([]string(nil), p.ApprovedQuestions...)
	for k, v := range p.CollectedFields {
		c.collectedFields[k] = normalizeJSONValue(v)
	}
	for _, f := range p.AskedFields {
		c.askedFields[f] = struct{}{}
	}
	for _, f := range p.AutoFields {
		c.autoFields[f] = struct{}{}
	}
	c.questionCount = p.QuestionCount
	c.uiOptions = append([]string(nil), p.UIOptions...)
	c.turns = append([]model.Turn(nil), p.Turns...)
	return c, nil
}

// normalizeJSONValue re-types list answers that json.Unmarshal delivers
// as []any back to []string so round-trips compare equal.
func normalizeJSONValue(v any) any {
	items, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return v
		}
		out = append(out, s)
	}
	return out
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
