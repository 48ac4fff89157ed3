package store

import (
	"context"
	"time"

	"github.com/epicdeals/instant-offer/internal/model"
)

// OfferFilter specifies criteria for listing stored offers.
type OfferFilter struct {
	Recommendation model.Recommendation `json:"recommendation,omitempty"`
	Limit          int                  `json:"limit,omitempty"`
	Offset         int                  `json:"offset,omitempty"`
}

// ReviewFilter specifies criteria for listing review queue entries.
type ReviewFilter struct {
	Status      model.ReviewStatus `json:"status,omitempty"`
	OverdueOnly bool               `json:"overdue_only,omitempty"`
	Limit       int                `json:"limit,omitempty"`
}

// Store defines the persistence interface for the offer service.
//
// Session state is stored as an opaque JSON blob so the store never
// depends on the conversation engine's internal types.
type Store interface {
	// Sessions
	SaveSession(ctx context.Context, token string, state []byte) error
	GetSession(ctx context.Context, token string) ([]byte, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteStaleSessions(ctx context.Context, olderThan time.Duration) (int, error)

	// Offers
	SaveOffer(ctx context.Context, sessionToken string, offer *model.OfferResult) error
	GetOffer(ctx context.Context, offerID string) (*model.OfferResult, error)
	ListOffers(ctx context.Context, filter OfferFilter) ([]model.OfferResult, error)

	// Manual review queue
	EnqueueReview(ctx context.Context, item *model.ReviewItem) error
	GetReview(ctx context.Context, reviewID string) (*model.ReviewItem, error)
	ListReviews(ctx context.Context, filter ReviewFilter) ([]model.ReviewItem, error)
	CompleteReview(ctx context.Context, reviewID string, finalOffer float64, notes string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
