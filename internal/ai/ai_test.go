package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epicdeals/instant-offer/internal/model"
	"github.com/epicdeals/instant-offer/pkg/anthropic"
)

type stubAnthropic struct {
	fn func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
}

func (s *stubAnthropic) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return s.fn(req)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

func TestIdentify_ParsesProductJSON(t *testing.T) {
	svc := NewService(&stubAnthropic{fn: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		assert.Equal(t, conversationModel, req.Model)
		return textResponse(`Here is the identification:
{
  "product_info": {
    "name": "Apple iPhone 14",
    "brand": "Apple",
    "model": "iPhone 14",
    "category": "phone",
    "specs": {"storage": "128GB", "year": "2022"}
  },
  "proposed_questions": ["condition", "battery_health"],
  "needs_model_confirmation": false
}`), nil
	}})

	result, err := svc.Identify(context.Background(), "selling my iphone 14 128gb")
	require.NoError(t, err)
	assert.Equal(t, "Apple", result.Product.Brand)
	assert.Equal(t, "iPhone 14", result.Product.Model)
	assert.Equal(t, "phone", result.Product.Category)
	assert.Equal(t, "128GB", result.Product.Specifications["storage"])
	assert.Equal(t, []string{"condition", "battery_health"}, result.ProposedQuestions)
	assert.False(t, result.NeedsModelConfirmation)
}

func TestIdentify_ModelConfirmation(t *testing.T) {
	svc := NewService(&stubAnthropic{fn: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(`{
  "product_info": {"name": "Apple MacBook Pro", "brand": "Apple", "model": "MacBook Pro", "category": "laptop"},
  "proposed_questions": ["condition"],
  "needs_model_confirmation": true,
  "model_options": ["MacBook Pro 13\" M1", "MacBook Pro 14\" M1 Pro", "MacBook Pro 16\" M1 Max"]
}`), nil
	}})

	result, err := svc.Identify(context.Background(), "macbook pro")
	require.NoError(t, err)
	assert.True(t, result.NeedsModelConfirmation)
	assert.Len(t, result.ModelOptions, 3)
}

func TestIdentify_FallbackOnError(t *testing.T) {
	svc := NewService(&stubAnthropic{fn: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return nil, assert.AnError
	}})

	result, err := svc.Identify(context.Background(), "samsung tv 55 inch")
	require.NoError(t, err)
	assert.Equal(t, "samsung tv 55 inch", result.Product.Name)
	assert.Equal(t, "Unknown", result.Product.Brand)
	assert.Equal(t, []string{"condition", "age"}, result.ProposedQuestions)
}

func TestIdentify_FallbackOnMalformedJSON(t *testing.T) {
	svc := NewService(&stubAnthropic{fn: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse("I could not identify this product."), nil
	}})

	result, err := svc.Identify(context.Background(), "thing")
	require.NoError(t, err)
	assert.Equal(t, "thing", result.Product.Name)
	assert.Equal(t, "Unknown", result.Product.Brand)
}

func TestGenerateQuestion_ChecklistUIType(t *testing.T) {
	svc := NewService(&stubAnthropic{fn: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(`{
  "question_text": "Any issues with your iPhone 14? Select all that apply",
  "quick_options": ["Cracked screen", "Battery health under 85%", "None - everything works perfectly"],
  "ui_type": "checklist"
}`), nil
	}})

	q, err := svc.GenerateQuestion(context.Background(), "condition", model.ProductRecord{
		Brand: "Apple", Model: "iPhone 14", Category: "phone",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "condition", q.FieldName)
	assert.Equal(t, model.UIMultiSelect, q.UIType)
	assert.Contains(t, q.QuickOptions, "None - everything works perfectly")
}

func TestGenerateQuestion_QuickSelectDefault(t *testing.T) {
	svc := NewService(&stubAnthropic{fn: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(`{"question_text": "How old is it?", "quick_options": ["Under 1 year", "1-2 years", "3+ years"], "ui_type": "quick_select"}`), nil
	}})

	q, err := svc.GenerateQuestion(context.Background(), "age", model.ProductRecord{Name: "PS5"}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.UISingleSelect, q.UIType)
	assert.Len(t, q.QuickOptions, 3)
}

func TestGenerateQuestion_FallbackOnError(t *testing.T) {
	svc := NewService(&stubAnthropic{fn: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return nil, assert.AnError
	}})

	q, err := svc.GenerateQuestion(context.Background(), "mileage", model.ProductRecord{
		Brand: "VW", Model: "Polo",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Tell me about the mileage of your VW Polo", q.Text)
	assert.Equal(t, model.UIFreeText, q.UIType)
}

func TestAcknowledge_UsesFastModel(t *testing.T) {
	svc := NewService(&stubAnthropic{fn: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		assert.Equal(t, fastModel, req.Model)
		return textResponse(`"Nice, an iPhone 14! Those hold their value really well"`), nil
	}})

	ack, err := svc.Acknowledge(context.Background(), model.ProductRecord{Brand: "Apple", Model: "iPhone 14"})
	require.NoError(t, err)
	assert.Equal(t, "Nice, an iPhone 14! Those hold their value really well", ack)
}

func TestAcknowledge_FallbackOnError(t *testing.T) {
	svc := NewService(&stubAnthropic{fn: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return nil, assert.AnError
	}})

	ack, err := svc.Acknowledge(context.Background(), model.ProductRecord{Brand: "Sony", Model: "PS5"})
	require.NoError(t, err)
	assert.Equal(t, "Great, a Sony PS5!", ack)
}

func TestUITypeFrom(t *testing.T) {
	assert.Equal(t, model.UIMultiSelect, uiTypeFrom("checklist"))
	assert.Equal(t, model.UIFreeText, uiTypeFrom("text"))
	assert.Equal(t, model.UISingleSelect, uiTypeFrom("quick_select"))
	assert.Equal(t, model.UISingleSelect, uiTypeFrom(""))
}

func TestExtractAnswer(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		field  string
		want   any
	}{
		{"uncertain maps to unknown", "Not sure", "storage", model.ValueUnknown},
		{"no damage collapses", "None - everything works perfectly", "condition", model.ValueNoDamage},
		{"damage kept verbatim", "Cracked screen", "condition", "Cracked screen"},
		{"mileage digits", "about 120,000 km", "mileage", 120000},
		{"year extracted", "bought it in 2021", "year", 2021},
		{"plain text passthrough", "Space Grey", "color", "Space Grey"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractAnswer(tt.answer, tt.field))
		})
	}
}
