// Package offer orchestrates the valuation pipeline: courier gating,
// tiered price research, repair-cost research, condition assessment,
// and the final calculation, plus persistence and the notifications
// that follow a routing decision.
package offer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/epicdeals/instant-offer/internal/category"
	"github.com/epicdeals/instant-offer/internal/courier"
	"github.com/epicdeals/instant-offer/internal/model"
	"github.com/epicdeals/instant-offer/internal/repair"
	"github.com/epicdeals/instant-offer/internal/research"
	"github.com/epicdeals/instant-offer/internal/store"
	"github.com/epicdeals/instant-offer/internal/validate"
	"github.com/epicdeals/instant-offer/internal/valuation"
)

// Notifier sends the emails that follow a routing decision. Sends are
// fire-and-forget: a failed email never fails the offer.
type Notifier interface {
	SendReviewRequest(item *model.ReviewItem) error
	SendCustomerOffer(to string, offer *model.OfferResult, p model.ProductRecord) error
	SendPriceDispute(p model.ProductRecord, ourEstimate, userEstimate float64, justification string, links []string, c model.Contact) error
}

// Service runs valuations end to end.
type Service struct {
	research *research.Aggregator
	repairs  *repair.Researcher
	params   valuation.Params
	store    store.Store
	notifier Notifier
	now      func() time.Time

	sends sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithStore enables offer persistence and the review queue.
func WithStore(st store.Store) Option {
	return func(s *Service) {
		s.store = st
	}
}

// WithNotifier enables email dispatch.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService wires the pipeline stages together. A nil repair
// researcher falls back to table deductions inside the assessment.
func NewService(agg *research.Aggregator, repairs *repair.Researcher, params valuation.Params, opts ...Option) *Service {
	s := &Service{
		research: agg,
		repairs:  repairs,
		params:   params,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Calculate runs the full valuation for an identified product and
// persists the outcome under the session token. Routing terminates
// early for items that cannot be couriered and for items with no
// market data at all.
func (s *Service) Calculate(ctx context.Context, sessionToken string, p model.ProductRecord) (*model.OfferResult, error) {
	if err := validate.Product(p); err != nil {
		return nil, err
	}
	now := s.now()
	log := zap.L().With(zap.String("product", p.DisplayName()))

	elig := courier.CheckEligibility(p)
	if !elig.Eligible {
		log.Info("offer: item not courier eligible",
			zap.String("category", elig.CategoryMatched))
		result := &model.OfferResult{
			ID:             uuid.NewString(),
			Recommendation: model.RecommendNonCourierItem,
			Reason:         elig.Reason,
			CreatedAt:      now,
		}
		return result, s.persist(ctx, sessionToken, result)
	}

	models := courier.ModelsFor(p)

	researched := s.research.Research(ctx, p)
	if researched.NeedsUserEstimate {
		result := &model.OfferResult{
			ID:               uuid.NewString(),
			Recommendation:   model.RecommendUserEstimate,
			Reason:           "no market pricing data found, seller estimate needed",
			Research:         researched,
			SellNowAvailable: models.SellNowAvailable,
			CreatedAt:        now,
		}
		return result, s.persist(ctx, sessionToken, result)
	}

	defects := p.DamageDetails
	var repairs *model.RepairEstimate
	if s.repairs != nil && !valuation.ReportsNoDamage(defects) {
		repairs = s.repairs.EstimateAll(ctx, p, defects)
	}

	assessment := valuation.Assess(
		researched.MarketValue, p.Condition, defects, category.DeviceFamily(p), repairs)

	result := valuation.Compute(s.params, valuation.Input{
		Product:    p,
		Research:   *researched,
		Assessment: assessment,
		Repairs:    repairs,
		AgeYears:   valuation.AgeYears(p, now),
		SellNowOK:  models.SellNowAvailable,
		Now:        now,
	})
	return &result, s.persist(ctx, sessionToken, &result)
}

// CalculateFromUserEstimate prices an item off the seller's own
// estimate after research came up empty. Always routed to review.
func (s *Service) CalculateFromUserEstimate(ctx context.Context, sessionToken string, p model.ProductRecord, estimate float64) (*model.OfferResult, error) {
	if err := validate.Product(p); err != nil {
		return nil, err
	}
	if estimate <= 0 {
		return nil, eris.Errorf("offer: user estimate must be positive, got %.2f", estimate)
	}

	defects := p.DamageDetails
	var repairs *model.RepairEstimate
	if s.repairs != nil && !valuation.ReportsNoDamage(defects) {
		repairs = s.repairs.EstimateAll(ctx, p, defects)
	}

	models := courier.ModelsFor(p)
	result := valuation.ComputeFromUserEstimate(s.params, p, estimate, repairs, models.SellNowAvailable)

	zap.L().Info("offer: computed from user estimate",
		zap.String("product", p.DisplayName()),
		zap.Float64("estimate", estimate),
		zap.Float64("sell_now", result.SellNowAmount))
	return &result, s.persist(ctx, sessionToken, &result)
}

// Submission is the outcome of a customer-info submission.
type Submission struct {
	InstantOffer bool      `json:"instant_offer"`
	ReviewID     string    `json:"review_id,omitempty"`
	SLADeadline  time.Time `json:"sla_deadline,omitzero"`
}

// SubmitCustomerInfo attaches the seller's contact details to an offer
// and routes it: instant offers get the offer email directly, anything
// else lands in the review queue with an SLA deadline and a staff
// notification.
func (s *Service) SubmitCustomerInfo(ctx context.Context, offerID string, contact model.Contact, p model.ProductRecord) (*Submission, error) {
	if err := validate.Contact(contact); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, eris.New("offer: no store configured")
	}

	result, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, eris.Errorf("offer: offer %s not found", offerID)
	}

	if result.Recommendation == model.RecommendInstantOffer {
		s.send("customer offer", func(n Notifier) error {
			return n.SendCustomerOffer(contact.Email, result, p)
		})
		return &Submission{InstantOffer: true}, nil
	}

	item := &model.ReviewItem{
		ID:          uuid.NewString(),
		Product:     p,
		Contact:     contact,
		Preliminary: result,
		Notes:       result.Reason,
		Status:      model.ReviewPending,
		CreatedAt:   s.now(),
		SLADeadline: store.SLADeadline(s.now(), store.ReviewSLABusinessDays),
	}
	if err := s.store.EnqueueReview(ctx, item); err != nil {
		return nil, err
	}

	s.send("review request", func(n Notifier) error {
		return n.SendReviewRequest(item)
	})

	zap.L().Info("offer: queued for manual review",
		zap.String("review_id", item.ID),
		zap.String("offer_id", offerID),
		zap.Time("sla_deadline", item.SLADeadline))
	return &Submission{ReviewID: item.ID, SLADeadline: item.SLADeadline}, nil
}

// Dispute forwards a seller's price disagreement to staff. The
// justification is mandatory; links are optional supporting evidence.
func (s *Service) Dispute(ctx context.Context, offerID string, p model.ProductRecord, userEstimate float64, justification string, links []string, contact model.Contact) error {
	if err := validate.Contact(contact); err != nil {
		return err
	}
	if userEstimate <= 0 {
		return eris.Errorf("offer: disputed estimate must be positive, got %.2f", userEstimate)
	}
	justification = validate.Sanitize(justification)
	if strings.TrimSpace(justification) == "" {
		return eris.New("offer: dispute justification is required")
	}
	if s.store == nil {
		return eris.New("offer: no store configured")
	}

	result, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return err
	}
	if result == nil {
		return eris.Errorf("offer: offer %s not found", offerID)
	}

	s.send("price dispute", func(n Notifier) error {
		return n.SendPriceDispute(p, result.SellNowAmount, userEstimate, justification, links, contact)
	})
	return nil
}

// send dispatches one notification in the background. Failures are
// logged and dropped: email is advisory, never on the offer path.
func (s *Service) send(what string, fn func(Notifier) error) {
	if s.notifier == nil {
		return
	}
	s.sends.Add(1)
	go func() {
		defer s.sends.Done()
		if err := fn(s.notifier); err != nil {
			zap.L().Warn("offer: notification failed",
				zap.String("kind", what),
				zap.Error(err))
		}
	}()
}

// Flush blocks until in-flight notifications have finished. Called on
// shutdown and in tests.
func (s *Service) Flush() {
	s.sends.Wait()
}

func (s *Service) persist(ctx context.Context, sessionToken string, result *model.OfferResult) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveOffer(ctx, sessionToken, result); err != nil {
		return eris.Wrap(err, "offer: save result")
	}
	return nil
}
