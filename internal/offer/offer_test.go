package offer

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epicdeals/instant-offer/internal/model"
	"github.com/epicdeals/instant-offer/internal/research"
	"github.com/epicdeals/instant-offer/internal/resilience"
	"github.com/epicdeals/instant-offer/internal/store"
	"github.com/epicdeals/instant-offer/internal/valuation"
	"github.com/epicdeals/instant-offer/pkg/perplexity"
)

var testNow = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func testParams() valuation.Params {
	return valuation.Params{
		SellNowRate:         0.65,
		ConsignmentRate:     0.85,
		MinItemValue:        1500,
		MaxItemValue:        25000,
		ConfidenceThreshold: 0.75,
		RoundIncrement:      10,
	}
}

type stubPerplexity struct {
	usedContent string
	newContent  string
}

func (s *stubPerplexity) ChatCompletion(_ context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	content := s.usedContent
	if strings.Contains(req.Messages[0].Content, "retail price expert") {
		content = s.newContent
	}
	return &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: content}}},
	}, nil
}

type stubNotifier struct {
	mu           sync.Mutex
	reviewItem   *model.ReviewItem
	customerTo   string
	disputeOur   float64
	disputeUser  float64
	disputeLinks []string
}

func (n *stubNotifier) SendReviewRequest(item *model.ReviewItem) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reviewItem = item
	return nil
}

func (n *stubNotifier) SendCustomerOffer(to string, _ *model.OfferResult, _ model.ProductRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.customerTo = to
	return nil
}

func (n *stubNotifier) SendPriceDispute(_ model.ProductRecord, our, user float64, _ string, links []string, _ model.Contact) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disputeOur = our
	n.disputeUser = user
	n.disputeLinks = links
	return nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "offers.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newAggregator(client perplexity.Client) *research.Aggregator {
	expert := research.NewExpert(client, research.WithRetryConfig(resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
	}))
	return research.NewAggregator(expert, nil, research.WithClock(func() time.Time { return testNow }))
}

func iphone13() model.ProductRecord {
	return model.ProductRecord{
		Name:      "iPhone 13",
		Category:  "smartphone",
		Brand:     "Apple",
		Model:     "iPhone 13",
		Condition: "excellent",
	}
}

func contact() model.Contact {
	return model.Contact{Name: "Thabo M", Email: "thabo@example.co.za", Phone: "0821234567"}
}

func TestCalculate_InstantOffer(t *testing.T) {
	client := &stubPerplexity{usedContent: `{"prices": [7200, 7500, 7800, 7400], "sources": ["gumtree.co.za"]}`}
	st := newTestStore(t)
	svc := NewService(newAggregator(client), nil, testParams(),
		WithStore(st), WithClock(func() time.Time { return testNow }))

	result, err := svc.Calculate(context.Background(), "tok-1", iphone13())
	require.NoError(t, err)

	assert.Equal(t, model.RecommendInstantOffer, result.Recommendation)
	assert.InDelta(t, 7450.0, result.MarketValue, 0.001)
	// 7450 * 0.90 (excellent) * 0.65, rounded to R10.
	assert.InDelta(t, 4360.0, result.SellNowAmount, 0.001)
	assert.True(t, result.SellNowAvailable)
	assert.GreaterOrEqual(t, result.Confidence, 0.75)

	saved, err := st.GetOffer(context.Background(), result.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, model.RecommendInstantOffer, saved.Recommendation)
}

func TestCalculate_NonCourierItem(t *testing.T) {
	client := &stubPerplexity{usedContent: `{"prices": [5000, 5200, 5400], "sources": []}`}
	svc := NewService(newAggregator(client), nil, testParams(),
		WithClock(func() time.Time { return testNow }))

	fridge := model.ProductRecord{
		Name: "Samsung fridge", Category: "fridge", Brand: "Samsung", Model: "RB34",
	}
	result, err := svc.Calculate(context.Background(), "tok-2", fridge)
	require.NoError(t, err)

	assert.Equal(t, model.RecommendNonCourierItem, result.Recommendation)
	assert.Contains(t, result.Reason, "couriered")
	assert.Zero(t, result.SellNowAmount)
}

func TestCalculate_NeedsUserEstimate(t *testing.T) {
	client := &stubPerplexity{usedContent: "no listings found", newContent: "nothing here either"}
	svc := NewService(newAggregator(client), nil, testParams(),
		WithClock(func() time.Time { return testNow }))

	result, err := svc.Calculate(context.Background(), "tok-3", iphone13())
	require.NoError(t, err)

	assert.Equal(t, model.RecommendUserEstimate, result.Recommendation)
	require.NotNil(t, result.Research)
	assert.True(t, result.Research.NeedsUserEstimate)
}

func TestCalculate_DamagedItemDeductions(t *testing.T) {
	client := &stubPerplexity{usedContent: `{"prices": [7200, 7500, 7800, 7400], "sources": ["gumtree.co.za"]}`}
	svc := NewService(newAggregator(client), nil, testParams(),
		WithClock(func() time.Time { return testNow }))

	p := iphone13()
	p.DamageDetails = []string{"cracked screen"}
	result, err := svc.Calculate(context.Background(), "tok-4", p)
	require.NoError(t, err)

	assert.Greater(t, result.RepairDeduction, 0.0)
	assert.Less(t, result.AdjustedValue, result.MarketValue)
}

func TestCalculate_RejectsIncompleteProduct(t *testing.T) {
	svc := NewService(newAggregator(&stubPerplexity{}), nil, testParams())

	_, err := svc.Calculate(context.Background(), "tok-5", model.ProductRecord{Name: "something"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required field")
}

func TestCalculateFromUserEstimate(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(newAggregator(&stubPerplexity{}), nil, testParams(),
		WithStore(st), WithClock(func() time.Time { return testNow }))

	result, err := svc.CalculateFromUserEstimate(context.Background(), "tok-6", iphone13(), 8000)
	require.NoError(t, err)

	assert.True(t, result.BasedOnUserEstimate)
	assert.Equal(t, model.RecommendEmailReview, result.Recommendation)
	assert.InDelta(t, 5200.0, result.SellNowAmount, 0.001) // 8000 * 0.65
	assert.InDelta(t, 0.3, result.Confidence, 0.001)
}

func TestCalculateFromUserEstimate_RejectsNonPositive(t *testing.T) {
	svc := NewService(newAggregator(&stubPerplexity{}), nil, testParams())

	_, err := svc.CalculateFromUserEstimate(context.Background(), "tok-7", iphone13(), 0)
	require.Error(t, err)
}

func TestSubmitCustomerInfo_InstantSendsOfferEmail(t *testing.T) {
	st := newTestStore(t)
	notifier := &stubNotifier{}
	svc := NewService(newAggregator(&stubPerplexity{}), nil, testParams(),
		WithStore(st), WithNotifier(notifier), WithClock(func() time.Time { return testNow }))

	saved := &model.OfferResult{
		Recommendation: model.RecommendInstantOffer,
		SellNowAmount:  4360,
		CreatedAt:      testNow,
	}
	require.NoError(t, st.SaveOffer(context.Background(), "tok-8", saved))

	sub, err := svc.SubmitCustomerInfo(context.Background(), saved.ID, contact(), iphone13())
	require.NoError(t, err)
	svc.Flush()

	assert.True(t, sub.InstantOffer)
	assert.Empty(t, sub.ReviewID)
	assert.Equal(t, "thabo@example.co.za", notifier.customerTo)
}

func TestSubmitCustomerInfo_ReviewQueuesAndNotifies(t *testing.T) {
	st := newTestStore(t)
	notifier := &stubNotifier{}
	svc := NewService(newAggregator(&stubPerplexity{}), nil, testParams(),
		WithStore(st), WithNotifier(notifier), WithClock(func() time.Time { return testNow }))

	saved := &model.OfferResult{
		Recommendation: model.RecommendEmailReview,
		SellNowAmount:  900,
		Reason:         "offer R900 below minimum threshold R1500",
		CreatedAt:      testNow,
	}
	require.NoError(t, st.SaveOffer(context.Background(), "tok-9", saved))

	sub, err := svc.SubmitCustomerInfo(context.Background(), saved.ID, contact(), iphone13())
	require.NoError(t, err)
	svc.Flush()

	assert.False(t, sub.InstantOffer)
	assert.NotEmpty(t, sub.ReviewID)
	assert.True(t, sub.SLADeadline.After(testNow))

	pending, err := st.ListReviews(context.Background(), store.ReviewFilter{Status: model.ReviewPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, sub.ReviewID, pending[0].ID)

	require.NotNil(t, notifier.reviewItem)
	assert.Equal(t, sub.ReviewID, notifier.reviewItem.ID)
}

func TestSubmitCustomerInfo_RejectsBadContact(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(newAggregator(&stubPerplexity{}), nil, testParams(), WithStore(st))

	_, err := svc.SubmitCustomerInfo(context.Background(), "missing",
		model.Contact{Name: "X", Email: "not-an-email"}, iphone13())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
}

func TestSubmitCustomerInfo_UnknownOffer(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(newAggregator(&stubPerplexity{}), nil, testParams(), WithStore(st))

	_, err := svc.SubmitCustomerInfo(context.Background(), "nope", contact(), iphone13())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDispute_SendsNotification(t *testing.T) {
	st := newTestStore(t)
	notifier := &stubNotifier{}
	svc := NewService(newAggregator(&stubPerplexity{}), nil, testParams(),
		WithStore(st), WithNotifier(notifier))

	saved := &model.OfferResult{
		Recommendation: model.RecommendInstantOffer,
		SellNowAmount:  5000,
		CreatedAt:      testNow,
	}
	require.NoError(t, st.SaveOffer(context.Background(), "tok-10", saved))

	err := svc.Dispute(context.Background(), saved.ID, iphone13(), 8000,
		"I have seen identical phones listed higher", []string{"https://gumtree.co.za/item/1"}, contact())
	require.NoError(t, err)
	svc.Flush()

	assert.InDelta(t, 5000.0, notifier.disputeOur, 0.001)
	assert.InDelta(t, 8000.0, notifier.disputeUser, 0.001)
	assert.Len(t, notifier.disputeLinks, 1)
}

func TestDispute_RequiresJustification(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(newAggregator(&stubPerplexity{}), nil, testParams(), WithStore(st))

	err := svc.Dispute(context.Background(), "any", iphone13(), 8000, "   ", nil, contact())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "justification")
}
