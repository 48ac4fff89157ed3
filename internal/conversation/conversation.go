// Package conversation drives a seller dialogue end to end: product
// identification, the guarded question loop, and session persistence.
// The engine decides what may be asked; the model capabilities decide
// how to ask it.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/epicdeals/instant-offer/internal/ai"
	"github.com/epicdeals/instant-offer/internal/category"
	"github.com/epicdeals/instant-offer/internal/engine"
	"github.com/epicdeals/instant-offer/internal/model"
	"github.com/epicdeals/instant-offer/internal/store"
)

// ProductIdentifier turns the seller's opening message into a product
// record and a proposed question plan.
type ProductIdentifier interface {
	Identify(ctx context.Context, userMessage string) (*model.IdentificationResult, error)
}

// QuestionGenerator phrases one approved field as a seller-facing
// question.
type QuestionGenerator interface {
	GenerateQuestion(ctx context.Context, field string, p model.ProductRecord, collected map[string]any) (*model.GeneratedQuestion, error)
}

// Acknowledger produces the one-line acknowledgment after
// identification.
type Acknowledger interface {
	Acknowledge(ctx context.Context, p model.ProductRecord) (string, error)
}

// DefaultSessionTTL bounds how long an abandoned conversation survives
// in the store.
const DefaultSessionTTL = 24 * time.Hour

// Service owns the dialogue flow for all sessions.
type Service struct {
	identifier ProductIdentifier
	generator  QuestionGenerator
	acker      Acknowledger
	store      store.Store
	ttl        time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithSessionTTL overrides the stale-session retention window.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewService wires the model capabilities and session store together.
func NewService(identifier ProductIdentifier, generator QuestionGenerator, acker Acknowledger, st store.Store, opts ...Option) *Service {
	s := &Service{
		identifier: identifier,
		generator:  generator,
		acker:      acker,
		store:      st,
		ttl:        DefaultSessionTTL,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Reply is one server turn of the dialogue.
type Reply struct {
	SessionToken  string                   `json:"session_token"`
	State         engine.State             `json:"state"`
	Message       string                   `json:"message,omitempty"`
	Question      *model.GeneratedQuestion `json:"question,omitempty"`
	Progress      engine.Progress          `json:"progress"`
	ModelOptions  []string                 `json:"model_options,omitempty"`
	ReadyForOffer bool                     `json:"ready_for_offer"`
	Product       model.ProductRecord      `json:"product"`
}

// Start opens a new conversation from the seller's first message.
func (s *Service) Start(ctx context.Context, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, eris.New("conversation: empty opening message")
	}

	token := uuid.NewString()
	conv := engine.New()
	conv.RecordUserMessage(message)

	reply, err := s.identify(ctx, token, conv, message)
	if err != nil {
		return nil, err
	}
	if err := s.Save(ctx, token, conv); err != nil {
		return nil, err
	}
	return reply, nil
}

// Answer processes one seller answer and returns the next turn. During
// model confirmation the answer names the exact model and restarts
// identification with it.
func (s *Service) Answer(ctx context.Context, token, field string, answer any) (*Reply, error) {
	conv, err := s.Load(ctx, token)
	if err != nil {
		return nil, err
	}

	text := answerText(answer)
	conv.RecordUserMessage(text)

	if conv.Phase() == engine.StateIdentifying {
		// The answer disambiguates the model; re-identify with it.
		first := text
		if turns := conv.Turns(); len(turns) > 0 {
			first = turns[0].Content + " " + text
		}
		reply, err := s.identify(ctx, token, conv, first)
		if err != nil {
			return nil, err
		}
		return reply, s.Save(ctx, token, conv)
	}

	value := extractValue(field, answer)
	conv.RecordAnswer(field, value)

	reply := &Reply{
		SessionToken: token,
		Product:      conv.Product(),
	}

	if conv.ShouldCalculateOffer() {
		conv.SetPhase(engine.StateCalculating)
		reply.State = conv.Phase()
		reply.Progress = conv.ProgressInfo()
		reply.ReadyForOffer = true
		return reply, s.Save(ctx, token, conv)
	}

	q := s.nextQuestion(ctx, conv)
	if q == nil {
		// Plan exhausted without the budget firing; nothing is left to
		// ask, so calculation starts now.
		conv.SetPhase(engine.StateCalculating)
		reply.ReadyForOffer = true
	} else {
		reply.Question = q
		reply.Message = q.Text
	}
	reply.State = conv.Phase()
	reply.Progress = conv.ProgressInfo()
	reply.Product = conv.Product()
	return reply, s.Save(ctx, token, conv)
}

// identify runs the identification capability and, when the product is
// unambiguous, approves the question plan and asks the first question.
func (s *Service) identify(ctx context.Context, token string, conv *engine.Conversation, message string) (*Reply, error) {
	ident, err := s.identifier.Identify(ctx, message)
	if err != nil {
		return nil, eris.Wrap(err, "conversation: identify product")
	}

	if ident.NeedsModelConfirmation && len(ident.ModelOptions) > 0 {
		msg := "Thanks! To price it accurately, which exact model is it?"
		conv.RecordAssistantMessage(msg)
		return &Reply{
			SessionToken: token,
			State:        conv.Phase(),
			Message:      msg,
			ModelOptions: ident.ModelOptions,
			Progress:     conv.ProgressInfo(),
			Product:      ident.Product,
		}, nil
	}

	conv.SetProductInfo(ident.Product)
	conv.ApproveQuestions(ident.ProposedQuestions)

	ackText := ident.Acknowledgment
	if ackText == "" && s.acker != nil {
		if a, err := s.acker.Acknowledge(ctx, conv.Product()); err == nil {
			ackText = a
		}
	}
	if ackText != "" {
		conv.RecordAssistantMessage(ackText)
	}

	reply := &Reply{
		SessionToken: token,
		Message:      ackText,
		Product:      conv.Product(),
	}

	q := s.nextQuestion(ctx, conv)
	if q == nil {
		// Everything worth asking arrived with the identification; the
		// engine still demands a condition answer before calculating,
		// so this only happens when that too was volunteered.
		conv.SetPhase(engine.StateCalculating)
		reply.ReadyForOffer = true
	} else {
		reply.Question = q
	}
	reply.State = conv.Phase()
	reply.Progress = conv.ProgressInfo()
	return reply, nil
}

// nextQuestion walks the approved plan until the engine accepts a
// question. Condition questions fall back to the per-category damage
// checklist when the generator offered no options.
func (s *Service) nextQuestion(ctx context.Context, conv *engine.Conversation) *model.GeneratedQuestion {
	for _, field := range conv.ApprovedQuestions() {
		q, err := s.generator.GenerateQuestion(ctx, field, conv.Product(), conv.CollectedFields())
		if err != nil || q == nil {
			zap.L().Warn("conversation: question generation failed",
				zap.String("field", field), zap.Error(err))
			continue
		}
		if engine.IsConditionField(field) && len(q.QuickOptions) == 0 {
			q.QuickOptions = category.DamageOptions(conv.Product())
			q.UIType = model.UIMultiSelect
		}
		if v := conv.ValidateQuestion(field, q.Text, q.QuickOptions); v.Valid {
			return q
		}
	}
	return nil
}

// Load rebuilds a conversation from the session store.
func (s *Service) Load(ctx context.Context, token string) (*engine.Conversation, error) {
	raw, err := s.store.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, eris.Errorf("conversation: session %s not found", token)
	}

	var p engine.Portable
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, eris.Wrap(err, "conversation: decode session state")
	}
	conv, err := engine.FromPortable(p)
	if err != nil {
		return nil, err
	}
	if conv.Stale() {
		// Corrupted state: restart identification with the original
		// opening message instead of failing the seller's turn.
		zap.L().Warn("conversation: stale session state, restarting identification",
			zap.String("token", token))
		var opening string
		for _, turn := range conv.Turns() {
			if turn.Role == "user" {
				opening = turn.Content
				break
			}
		}
		conv.Reset()
		if opening != "" {
			conv.RecordUserMessage(opening)
		}
	}
	return conv, nil
}

// Save writes the conversation back to the session store.
func (s *Service) Save(ctx context.Context, token string, conv *engine.Conversation) error {
	raw, err := json.Marshal(conv.ToPortable())
	if err != nil {
		return eris.Wrap(err, "conversation: encode session state")
	}
	return s.store.SaveSession(ctx, token, raw)
}

// End deletes a finished session.
func (s *Service) End(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}

// PurgeStale removes sessions older than the retention window. Run
// periodically by the server.
func (s *Service) PurgeStale(ctx context.Context) (int, error) {
	n, err := s.store.DeleteStaleSessions(ctx, s.ttl)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		zap.L().Info("conversation: purged stale sessions", zap.Int("count", n))
	}
	return n, nil
}

// answerText renders an answer payload for the audit trail.
func answerText(answer any) string {
	switch v := answer.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// extractValue converts a raw answer payload to the structured value
// the engine records. Checklist answers pass through as-is.
func extractValue(field string, answer any) any {
	switch v := answer.(type) {
	case string:
		return ai.ExtractAnswer(v, field)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		return v
	}
}
