// Package currency handles USD to ZAR conversion for offshore
// marketplace prices and rand display formatting.
package currency

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// FallbackUSDZARRate is used when every rate source fails. Stale but
// safe; offers built on it still pass through the usual review gates.
const FallbackUSDZARRate = 18.5

const rateCacheTTL = time.Hour

// rate source endpoints, tried in order.
var rateSources = []string{
	"https://api.exchangerate-api.com/v4/latest/USD",
	"https://open.er-api.com/v6/latest/USD",
}

// Converter fetches and caches the USD/ZAR exchange rate.
type Converter struct {
	http     *http.Client
	fallback float64

	mu        sync.Mutex
	cached    float64
	fetchedAt time.Time
}

// Option configures a Converter.
type Option func(*Converter)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Converter) {
		c.http = hc
	}
}

// WithFallbackRate overrides the configured last-resort rate.
func WithFallbackRate(rate float64) Option {
	return func(c *Converter) {
		if rate > 0 {
			c.fallback = rate
		}
	}
}

// NewConverter creates a converter with a short-timeout HTTP client;
// rate lookups sit on the pricing hot path and must fail fast.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		http:     &http.Client{Timeout: 5 * time.Second},
		fallback: FallbackUSDZARRate,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// USDToZARRate returns the current exchange rate, trying each source
// in order and falling back to FallbackUSDZARRate when all fail.
// Successful lookups are cached for an hour.
func (c *Converter) USDToZARRate(ctx context.Context) float64 {
	c.mu.Lock()
	if c.cached > 0 && time.Since(c.fetchedAt) < rateCacheTTL {
		rate := c.cached
		c.mu.Unlock()
		return rate
	}
	c.mu.Unlock()

	for _, src := range rateSources {
		rate, err := c.fetchRate(ctx, src)
		if err != nil {
			zap.L().Warn("exchange rate source failed",
				zap.String("source", src),
				zap.Error(err))
			continue
		}
		c.mu.Lock()
		c.cached = rate
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		return rate
	}

	zap.L().Warn("all exchange rate sources failed, using fallback",
		zap.Float64("rate", c.fallback))
	return c.fallback
}

// Convert converts a USD amount to ZAR at the current rate.
func (c *Converter) Convert(ctx context.Context, usd float64) float64 {
	return usd * c.USDToZARRate(ctx)
}

type rateResponse struct {
	Rates map[string]float64 `json:"rates"`
}

func (c *Converter) fetchRate(ctx context.Context, url string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, eris.Wrap(err, "currency: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "currency: fetch rate")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, eris.Errorf("currency: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, eris.Wrap(err, "currency: read response")
	}

	var parsed rateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, eris.Wrap(err, "currency: unmarshal response")
	}

	rate, ok := parsed.Rates["ZAR"]
	if !ok || rate <= 0 {
		return 0, eris.New("currency: no ZAR rate in response")
	}
	return rate, nil
}

var zarPrinter = message.NewPrinter(language.English)

// FormatZAR renders an amount as rand with cents, e.g. "R7,549.90".
func FormatZAR(amount float64) string {
	return zarPrinter.Sprintf("R%v", number.Decimal(amount,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// FormatZARWhole renders an amount as whole rand, e.g. "R7,550".
func FormatZARWhole(amount float64) string {
	return zarPrinter.Sprintf("R%v", number.Decimal(amount,
		number.MaxFractionDigits(0)))
}
