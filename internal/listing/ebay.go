package listing

import (
	"context"

	"github.com/epicdeals/instant-offer/internal/currency"
)

// EBay searches ebay.com for international comparables. Prices are
// quoted in USD and converted to ZAR at the current exchange rate;
// sold listings are searched separately since they reflect realized
// market value rather than asking prices.
type EBay struct {
	backend   *Backend
	converter *currency.Converter
}

// NewEBay creates the eBay connector.
func NewEBay(b *Backend, conv *currency.Converter) *EBay {
	return &EBay{backend: b, converter: conv}
}

func (e *EBay) Name() string { return "eBay" }

func (e *EBay) Search(ctx context.Context, queries []string) ([]Listing, error) {
	rate := e.converter.USDToZARRate(ctx)

	var out []Listing
	for _, query := range capQueries(queries) {
		out = append(out, e.collect(ctx, query+" used", rate, false)...)
		out = append(out, e.collect(ctx, query+" sold", rate, true)...)
	}
	return out, nil
}

func (e *EBay) collect(ctx context.Context, query string, rate float64, sold bool) []Listing {
	var out []Listing
	for _, r := range e.backend.search(ctx, query, "ebay.com") {
		usd, ok := extractUSD(r.Title + " " + r.Description)
		if !ok {
			continue
		}
		source := e.Name()
		if sold {
			source = "eBay (Sold)"
		}
		out = append(out, Listing{
			Title:     r.Title,
			Price:     usd * rate,
			URL:       r.URL,
			Condition: inferCondition(r.Title),
			Source:    source,
			Sold:      sold,
		})
	}
	return out
}
