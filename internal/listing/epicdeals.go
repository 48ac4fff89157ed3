package listing

import (
	"context"
)

// EpicDeals searches our own storefront: refurbished stock priced to
// sell, which anchors the resale side of the offer math.
type EpicDeals struct {
	backend *Backend
}

// NewEpicDeals creates the own-storefront connector.
func NewEpicDeals(b *Backend) *EpicDeals {
	return &EpicDeals{backend: b}
}

func (e *EpicDeals) Name() string { return "EpicDeals" }

func (e *EpicDeals) Search(ctx context.Context, queries []string) ([]Listing, error) {
	var out []Listing
	for _, query := range capQueries(queries) {
		for _, r := range e.backend.search(ctx, query, "epicdeals.co.za") {
			price, ok := extractZAR(r.Title + " " + r.Description)
			if !ok {
				continue
			}
			out = append(out, Listing{
				Title:     r.Title,
				Price:     price,
				URL:       r.URL,
				Condition: inferGrade(r.Title),
				Source:    e.Name(),
			})
		}
	}
	return out, nil
}
