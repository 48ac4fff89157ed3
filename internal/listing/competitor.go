package listing

import (
	"context"
)

// competitorSites lists rival buy-back and refurbished shops, searched
// with a single query each to stay inside the research time budget.
var competitorSites = []struct {
	domain string
	label  string
}{
	{"bobshop.co.za", "BobShop"},
	{"wefix.co.za", "WeFix"},
	{"swopp.co.za", "Swopp"},
	{"istore.co.za", "iStore"},
}

// Competitors searches rival second-hand shops in one connector.
type Competitors struct {
	backend *Backend
}

// NewCompetitors creates the competitor-shops connector.
func NewCompetitors(b *Backend) *Competitors {
	return &Competitors{backend: b}
}

func (c *Competitors) Name() string { return "Competitors" }

func (c *Competitors) Search(ctx context.Context, queries []string) ([]Listing, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	query := queries[0]

	var out []Listing
	for _, site := range competitorSites {
		for _, r := range c.backend.search(ctx, query, site.domain) {
			price, ok := extractZAR(r.Title + " " + r.Description)
			if !ok {
				continue
			}
			out = append(out, Listing{
				Title:     r.Title,
				Price:     price,
				URL:       r.URL,
				Condition: inferCondition(r.Title),
				Source:    site.label,
			})
		}
	}
	return out, nil
}
