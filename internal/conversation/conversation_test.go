package conversation

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epicdeals/instant-offer/internal/engine"
	"github.com/epicdeals/instant-offer/internal/model"
	"github.com/epicdeals/instant-offer/internal/store"
)

type stubIdentifier struct {
	results  []*model.IdentificationResult
	messages []string
}

func (s *stubIdentifier) Identify(_ context.Context, msg string) (*model.IdentificationResult, error) {
	s.messages = append(s.messages, msg)
	r := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return r, nil
}

type stubGenerator struct{}

func (stubGenerator) GenerateQuestion(_ context.Context, field string, _ model.ProductRecord, _ map[string]any) (*model.GeneratedQuestion, error) {
	return &model.GeneratedQuestion{
		FieldName: field,
		Text:      fmt.Sprintf("What is the %s?", field),
		UIType:    model.UIFreeText,
	}, nil
}

type stubAcker struct{}

func (stubAcker) Acknowledge(_ context.Context, p model.ProductRecord) (string, error) {
	return "Great, a " + p.DisplayName() + "!", nil
}

func identified() *model.IdentificationResult {
	return &model.IdentificationResult{
		Product: model.ProductRecord{
			Name:     "iPhone 13",
			Category: "smartphone",
			Brand:    "Apple",
			Model:    "iPhone 13",
		},
		ProposedQuestions: []string{"storage", "condition"},
	}
}

func newTestService(t *testing.T, identifier *stubIdentifier) *Service {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return NewService(identifier, stubGenerator{}, stubAcker{}, st)
}

func TestStart_AsksConditionFirst(t *testing.T) {
	identifier := &stubIdentifier{results: []*model.IdentificationResult{identified()}}
	svc := newTestService(t, identifier)

	reply, err := svc.Start(context.Background(), "I want to sell my iPhone 13")
	require.NoError(t, err)

	assert.NotEmpty(t, reply.SessionToken)
	assert.Equal(t, engine.StateQuestioning, reply.State)
	assert.Equal(t, "Great, a Apple iPhone 13!", reply.Message)
	require.NotNil(t, reply.Question)
	assert.Equal(t, "condition", reply.Question.FieldName, "condition moves to the front of the plan")
	assert.Equal(t, 1, reply.Progress.Current)
	assert.False(t, reply.ReadyForOffer)

	// The session round-trips through the store.
	conv, err := svc.Load(context.Background(), reply.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.QuestionCount())
}

func TestStart_ConditionGetsDamageChecklist(t *testing.T) {
	identifier := &stubIdentifier{results: []*model.IdentificationResult{identified()}}
	svc := newTestService(t, identifier)

	reply, err := svc.Start(context.Background(), "selling my iPhone 13")
	require.NoError(t, err)

	require.NotNil(t, reply.Question)
	assert.Equal(t, model.UIMultiSelect, reply.Question.UIType)
	assert.Contains(t, reply.Question.QuickOptions, "None - everything works perfectly")
}

func TestStart_EmptyMessage(t *testing.T) {
	svc := newTestService(t, &stubIdentifier{results: []*model.IdentificationResult{identified()}})

	_, err := svc.Start(context.Background(), "   ")
	require.Error(t, err)
}

func TestStart_ModelConfirmation(t *testing.T) {
	ambiguous := &model.IdentificationResult{
		Product:                model.ProductRecord{Name: "MacBook Pro", Brand: "Apple", Category: "laptop"},
		NeedsModelConfirmation: true,
		ModelOptions:           []string{"MacBook Pro 14 M1", "MacBook Pro 14 M2", "MacBook Pro 14 M3"},
	}
	identifier := &stubIdentifier{results: []*model.IdentificationResult{ambiguous, identified()}}
	svc := newTestService(t, identifier)

	reply, err := svc.Start(context.Background(), "selling a MacBook Pro 14")
	require.NoError(t, err)

	assert.Equal(t, engine.StateIdentifying, reply.State)
	assert.Len(t, reply.ModelOptions, 3)
	assert.Nil(t, reply.Question)

	// The chosen model re-runs identification with the combined text.
	reply2, err := svc.Answer(context.Background(), reply.SessionToken, "", "MacBook Pro 14 M2")
	require.NoError(t, err)

	assert.Equal(t, engine.StateQuestioning, reply2.State)
	require.NotNil(t, reply2.Question)
	require.Len(t, identifier.messages, 2)
	assert.Contains(t, identifier.messages[1], "selling a MacBook Pro 14")
	assert.Contains(t, identifier.messages[1], "MacBook Pro 14 M2")
}

func TestAnswer_WalksPlanThenCalculates(t *testing.T) {
	identifier := &stubIdentifier{results: []*model.IdentificationResult{identified()}}
	svc := newTestService(t, identifier)

	start, err := svc.Start(context.Background(), "selling my iPhone 13")
	require.NoError(t, err)
	require.Equal(t, "condition", start.Question.FieldName)

	next, err := svc.Answer(context.Background(), start.SessionToken, "condition", "Screen cracked or scratched")
	require.NoError(t, err)
	require.NotNil(t, next.Question)
	assert.Equal(t, "storage", next.Question.FieldName)
	assert.False(t, next.ReadyForOffer)
	assert.Equal(t, 2, next.Progress.Current)

	final, err := svc.Answer(context.Background(), start.SessionToken, "storage", "128GB")
	require.NoError(t, err)
	assert.True(t, final.ReadyForOffer)
	assert.Equal(t, engine.StateCalculating, final.State)
	assert.Nil(t, final.Question)

	// Answers were folded back into the product record.
	assert.Contains(t, final.Product.DamageDetails, "Screen cracked or scratched")
	assert.Equal(t, "128GB", final.Product.Specifications["storage"])
}

func TestAnswer_ChecklistAnswer(t *testing.T) {
	identifier := &stubIdentifier{results: []*model.IdentificationResult{identified()}}
	svc := newTestService(t, identifier)

	start, err := svc.Start(context.Background(), "selling my iPhone 13")
	require.NoError(t, err)

	reply, err := svc.Answer(context.Background(), start.SessionToken, "condition",
		[]any{"Screen cracked or scratched", "Battery health below 80%"})
	require.NoError(t, err)

	assert.Len(t, reply.Product.DamageDetails, 2)
}

func TestAnswer_UncertainSpendsBudget(t *testing.T) {
	identifier := &stubIdentifier{results: []*model.IdentificationResult{identified()}}
	svc := newTestService(t, identifier)

	start, err := svc.Start(context.Background(), "selling my iPhone 13")
	require.NoError(t, err)

	reply, err := svc.Answer(context.Background(), start.SessionToken, "condition", "not sure really")
	require.NoError(t, err)

	// The unknown sentinel still advances the plan.
	require.NotNil(t, reply.Question)
	assert.Equal(t, "storage", reply.Question.FieldName)
}

func TestAnswer_UnknownSession(t *testing.T) {
	svc := newTestService(t, &stubIdentifier{results: []*model.IdentificationResult{identified()}})

	_, err := svc.Answer(context.Background(), "no-such-token", "condition", "fine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoad_StaleSessionRestartsIdentification(t *testing.T) {
	identifier := &stubIdentifier{results: []*model.IdentificationResult{identified()}}
	svc := newTestService(t, identifier)

	// A persisted state claiming identification happened but no question
	// was ever asked is corrupted: a healthy flow asks the first question
	// in the same request that identifies.
	conv := engine.New()
	conv.RecordUserMessage("selling my iPhone 13")
	conv.SetProductInfo(identified().Product)
	require.NoError(t, svc.Save(context.Background(), "stale-token", conv))

	reply, err := svc.Answer(context.Background(), "stale-token", "", "it's the 128GB one")
	require.NoError(t, err)

	// Identification restarted from the original opening message.
	require.Len(t, identifier.messages, 1)
	assert.Contains(t, identifier.messages[0], "selling my iPhone 13")
	assert.Equal(t, engine.StateQuestioning, reply.State)
	require.NotNil(t, reply.Question)
}

func TestEnd_DeletesSession(t *testing.T) {
	identifier := &stubIdentifier{results: []*model.IdentificationResult{identified()}}
	svc := newTestService(t, identifier)

	start, err := svc.Start(context.Background(), "selling my iPhone 13")
	require.NoError(t, err)

	require.NoError(t, svc.End(context.Background(), start.SessionToken))
	_, err = svc.Load(context.Background(), start.SessionToken)
	require.Error(t, err)
}
