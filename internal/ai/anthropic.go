package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/epicdeals/instant-offer/internal/model"
	"github.com/epicdeals/instant-offer/pkg/anthropic"
)

const (
	conversationModel = "claude-sonnet-4-5-20250929"
	fastModel         = "claude-haiku-4-5-20251001"
)

var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// Service implements the conversation capabilities on the Anthropic
// API. Every method degrades to a deterministic fallback on failure so
// a model outage never strands a conversation.
type Service struct {
	client anthropic.Client
	model  string
	fast   string
}

// Option configures a Service.
type Option func(*Service)

// WithModel overrides the conversation model.
func WithModel(m string) Option {
	return func(s *Service) {
		s.model = m
	}
}

// WithFastModel overrides the model used for short acknowledgments.
func WithFastModel(m string) Option {
	return func(s *Service) {
		s.fast = m
	}
}

// NewService creates the Anthropic-backed capability set.
func NewService(client anthropic.Client, opts ...Option) *Service {
	s := &Service{client: client, model: conversationModel, fast: fastModel}
	for _, o := range opts {
		o(s)
	}
	return s
}

const identifyPromptFmt = `You are a South African product pricing expert for EpicDeals.

The user wants to sell: %q

Your job: Identify the product and propose 1-4 questions that would affect its resale price.

Think about what makes THIS specific product more or less valuable:
- Phones: storage, condition, unlock status, contract status
- Cars: mileage, condition, service history
- Shoes: size, condition, colorway, authenticity
- Appliances: age, condition, completeness (all attachments?)
- Furniture: age, condition, material/color
- Electronics: age, condition, included accessories

IMPORTANT:
- Extract any specs already mentioned (if user said "iPhone 14 128GB", storage is 128GB - don't ask again!)
- Only propose questions about things NOT mentioned
- Condition/damage is almost always relevant
- Keep it to 1-4 questions max

MODEL CONFIRMATION:
If the user's description is AMBIGUOUS about the exact model or variant, set "needs_model_confirmation" to true and provide a list of likely models in "model_options". When the user IS specific enough (e.g. "iPhone 16 Pro 256GB", "Sony WH-1000XM4"), set it to false.

Respond with ONLY this JSON:
{
  "product_info": {
    "name": "Full product name",
    "brand": "Brand name",
    "model": "Model/version (your best guess if ambiguous)",
    "category": "phone|laptop|vehicle|shoes|appliance|furniture|etc",
    "specs": {
      "storage": "if mentioned",
      "year": "if mentioned or inferable (iPhone 14 = 2022)",
      "size": "if mentioned",
      "color": "if mentioned"
    }
  },
  "proposed_questions": ["field1", "field2", "field3"],
  "needs_model_confirmation": false,
  "model_options": ["Model A", "Model B", "Model C"]
}

Be smart about years: iPhone 16 = 2024, iPhone 15 = 2023, PS5 = 2020, etc.`

type identifyPayload struct {
	ProductInfo struct {
		Name     string            `json:"name"`
		Brand    string            `json:"brand"`
		Model    string            `json:"model"`
		Category string            `json:"category"`
		Specs    map[string]string `json:"specs"`
	} `json:"product_info"`
	ProposedQuestions      []string `json:"proposed_questions"`
	NeedsModelConfirmation bool     `json:"needs_model_confirmation"`
	ModelOptions           []string `json:"model_options"`
}

// Identify implements ProductIdentifier.
func (s *Service) Identify(ctx context.Context, userMessage string) (*model.IdentificationResult, error) {
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: 1024,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(identifyPromptFmt, userMessage)},
		},
	})
	if err != nil {
		zap.L().Warn("product identification failed, using fallback", zap.Error(err))
		return fallbackIdentification(userMessage), nil
	}
	resp.Usage.LogCost(s.model, "identify")

	var payload identifyPayload
	if err := unmarshalJSONBlock(resp.Text(), &payload); err != nil {
		zap.L().Warn("product identification returned malformed JSON, using fallback", zap.Error(err))
		return fallbackIdentification(userMessage), nil
	}

	result := &model.IdentificationResult{
		Product: model.ProductRecord{
			Name:           payload.ProductInfo.Name,
			Brand:          payload.ProductInfo.Brand,
			Model:          payload.ProductInfo.Model,
			Category:       payload.ProductInfo.Category,
			Specifications: payload.ProductInfo.Specs,
		},
		ProposedQuestions:      payload.ProposedQuestions,
		NeedsModelConfirmation: payload.NeedsModelConfirmation,
		ModelOptions:           payload.ModelOptions,
	}
	if result.Product.Name == "" {
		result.Product.Name = userMessage
	}
	return result, nil
}

func fallbackIdentification(userMessage string) *model.IdentificationResult {
	return &model.IdentificationResult{
		Product: model.ProductRecord{
			Name:     userMessage,
			Brand:    "Unknown",
			Model:    userMessage,
			Category: "general",
		},
		ProposedQuestions: []string{"condition", "age"},
	}
}

const questionPromptFmt = `You are asking the seller a question about their %s (%s).

Field to ask about: %s

Product details: %s
Already collected: %s

Generate a friendly, natural question with quick-select options.

PERSONALITY:
- Friendly South African tone
- Use emojis sparingly
- Keep it conversational
- Be encouraging ("No stress - we factor that in fairly")

For CONDITION/DAMAGE questions, generate a checklist of common issues for THIS specific product type, always ending with a "None - everything works perfectly" option. For iPhones, always include "Battery health under 85%%" as an option.

For other questions, provide 3-6 tap-able options.

Respond with ONLY this JSON:
{
  "question_text": "Your friendly question here",
  "quick_options": ["Option 1", "Option 2", "Option 3"],
  "ui_type": "quick_select"
}

ui_type must be "quick_select", "checklist" (condition questions), or "text".`

type questionPayload struct {
	QuestionText string   `json:"question_text"`
	QuickOptions []string `json:"quick_options"`
	UIType       string   `json:"ui_type"`
}

// GenerateQuestion implements QuestionGenerator.
func (s *Service) GenerateQuestion(ctx context.Context, field string, p model.ProductRecord, collected map[string]any) (*model.GeneratedQuestion, error) {
	productJSON, _ := json.Marshal(p)
	collectedJSON, _ := json.Marshal(collected)

	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: 512,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(questionPromptFmt,
				p.DisplayName(), p.Category, field, productJSON, collectedJSON)},
		},
	})
	if err != nil {
		zap.L().Warn("question generation failed, using fallback",
			zap.String("field", field), zap.Error(err))
		return fallbackQuestion(field, p), nil
	}
	resp.Usage.LogCost(s.model, "generate_question")

	var payload questionPayload
	if err := unmarshalJSONBlock(resp.Text(), &payload); err != nil || payload.QuestionText == "" {
		zap.L().Warn("question generation returned malformed JSON, using fallback",
			zap.String("field", field))
		return fallbackQuestion(field, p), nil
	}

	return &model.GeneratedQuestion{
		FieldName:    field,
		Text:         payload.QuestionText,
		QuickOptions: payload.QuickOptions,
		UIType:       uiTypeFrom(payload.UIType),
	}, nil
}

func fallbackQuestion(field string, p model.ProductRecord) *model.GeneratedQuestion {
	return &model.GeneratedQuestion{
		FieldName: field,
		Text:      fmt.Sprintf("Tell me about the %s of your %s", field, p.DisplayName()),
		UIType:    model.UIFreeText,
	}
}

func uiTypeFrom(s string) model.UIType {
	switch s {
	case "checklist":
		return model.UIMultiSelect
	case "text":
		return model.UIFreeText
	default:
		return model.UISingleSelect
	}
}

const acknowledgePromptFmt = `The user wants to SELL their %s (%s) through our second-hand marketplace.

Generate a SHORT, friendly acknowledgment. ONE sentence only. South African tone.

IMPORTANT: The user is SELLING this item, not buying it. Focus on how well the item sells, its demand, or its resale value.

Good examples (seller context):
- "Nice, an iPhone 14! Those hold their value really well"
- "A 2019 Polo - always in demand on the second-hand market!"

BAD examples (sounds like buying - DO NOT do this):
- "You'll be sorted with this gadget!"
- "Great pickup!"

Just the acknowledgment, no extra text:`

// Acknowledge implements Acknowledger.
func (s *Service) Acknowledge(ctx context.Context, p model.ProductRecord) (string, error) {
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.fast,
		MaxTokens: 100,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(acknowledgePromptFmt, p.DisplayName(), p.Category)},
		},
	})
	if err != nil {
		return fmt.Sprintf("Great, a %s!", p.DisplayName()), nil
	}
	resp.Usage.LogCost(s.fast, "acknowledge")

	ack := strings.Trim(strings.TrimSpace(resp.Text()), `"'`)
	if ack == "" {
		ack = fmt.Sprintf("Great, a %s!", p.DisplayName())
	}
	return ack, nil
}

// unmarshalJSONBlock finds the JSON object inside a response that may
// carry surrounding prose or markdown fencing.
func unmarshalJSONBlock(text string, v any) error {
	block := jsonObject.FindString(text)
	if block == "" {
		return eris.New("ai: no JSON object in response")
	}
	if err := json.Unmarshal([]byte(block), v); err != nil {
		return eris.Wrap(err, "ai: unmarshal response JSON")
	}
	return nil
}
