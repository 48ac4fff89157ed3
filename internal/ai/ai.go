// Package ai defines the external-model capabilities the conversation
// flow depends on. The flow logic itself lives in the guardrail
// engine; these capabilities only need to be smart about products.
package ai

import (
	"context"

	"github.com/epicdeals/instant-offer/internal/model"
)

// ProductIdentifier turns a seller's opening message into a product
// record plus a proposed question plan.
type ProductIdentifier interface {
	Identify(ctx context.Context, userMessage string) (*model.IdentificationResult, error)
}

// QuestionGenerator phrases one approved field as a friendly question
// with quick-select options.
type QuestionGenerator interface {
	GenerateQuestion(ctx context.Context, field string, p model.ProductRecord, collected map[string]any) (*model.GeneratedQuestion, error)
}

// Acknowledger produces the one-line seller-context acknowledgment
// shown after identification.
type Acknowledger interface {
	Acknowledge(ctx context.Context, p model.ProductRecord) (string, error)
}

// Capabilities bundles every conversation capability behind one value.
type Capabilities interface {
	ProductIdentifier
	QuestionGenerator
	Acknowledger
}
