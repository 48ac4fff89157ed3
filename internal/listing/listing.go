// Package listing searches second-hand marketplaces for comparable
// listings via the Jina search reader. Each connector covers one
// marketplace and returns prices in ZAR.
package listing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/epicdeals/instant-offer/internal/model"
	"github.com/epicdeals/instant-offer/pkg/jina"
)

const (
	maxQueriesPerConnector = 2
	maxResultsPerQuery     = 10
)

// Listing is one comparable item found at a marketplace.
type Listing struct {
	Title     string  `json:"title"`
	Price     float64 `json:"price"` // ZAR
	URL       string  `json:"url"`
	Condition string  `json:"condition"`
	Source    string  `json:"source"`
	Sold      bool    `json:"sold,omitempty"`
}

// Observation converts a listing into a price observation.
func (l Listing) Observation() model.PriceObservation {
	return model.PriceObservation{
		Amount: l.Price,
		Source: l.Source,
		Kind:   model.SourceListingScrape,
		Title:  l.Title,
	}
}

// Connector searches one marketplace for comparable listings.
type Connector interface {
	Name() string
	Search(ctx context.Context, queries []string) ([]Listing, error)
}

// circuitBreaker tracks consecutive search failures to skip a flaky
// upstream instead of burning the research time budget on it.
type circuitBreaker struct {
	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	openUntil   time.Time
	threshold   int
	window      time.Duration
	cooldown    time.Duration
}

func newCircuitBreaker(threshold int, window, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, window: window, cooldown: cooldown}
}

func (cb *circuitBreaker) isOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return time.Now().Before(cb.openUntil)
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := time.Now()
	if now.Sub(cb.lastFailure) > cb.window {
		cb.failures = 0
	}
	cb.failures++
	cb.lastFailure = now
	if cb.failures >= cb.threshold {
		cb.openUntil = now.Add(cb.cooldown)
		zap.L().Warn("listing: search circuit breaker opened",
			zap.Int("failures", cb.failures),
			zap.Duration("cooldown", cb.cooldown))
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
}

// Backend is the shared search transport for all connectors: one Jina
// client, one rate limiter, one circuit breaker.
type Backend struct {
	client  jina.Client
	limiter *rate.Limiter
	breaker *circuitBreaker
}

// NewBackend wraps a Jina client for marketplace searches. qps bounds
// the search rate across all connectors; values <= 0 default to 2.
func NewBackend(client jina.Client, qps float64) *Backend {
	if qps <= 0 {
		qps = 2
	}
	return &Backend{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(qps), 1),
		breaker: newCircuitBreaker(3, 30*time.Second, 60*time.Second),
	}
}

// search runs one site-scoped query, returning at most
// maxResultsPerQuery results. An open circuit yields no results.
func (b *Backend) search(ctx context.Context, query, site string) []jina.SearchResult {
	if b.breaker.isOpen() {
		zap.L().Debug("listing: circuit open, skipping search",
			zap.String("site", site))
		return nil
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return nil
	}

	resp, err := b.client.Search(ctx, query, jina.WithSiteFilter(site), jina.WithCountry("za"))
	if err != nil {
		b.breaker.recordFailure()
		zap.L().Warn("listing: search failed",
			zap.String("site", site),
			zap.String("query", query),
			zap.Error(err))
		return nil
	}
	b.breaker.recordSuccess()

	results := resp.Data
	if len(results) > maxResultsPerQuery {
		results = results[:maxResultsPerQuery]
	}
	return results
}

func capQueries(queries []string) []string {
	if len(queries) > maxQueriesPerConnector {
		return queries[:maxQueriesPerConnector]
	}
	return queries
}
