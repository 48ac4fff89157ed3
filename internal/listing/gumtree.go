package listing

import (
	"context"
)

// Gumtree searches gumtree.co.za, the largest local classifieds site.
type Gumtree struct {
	backend *Backend
}

// NewGumtree creates the Gumtree connector.
func NewGumtree(b *Backend) *Gumtree {
	return &Gumtree{backend: b}
}

func (g *Gumtree) Name() string { return "Gumtree" }

func (g *Gumtree) Search(ctx context.Context, queries []string) ([]Listing, error) {
	var out []Listing
	for _, query := range capQueries(queries) {
		for _, r := range g.backend.search(ctx, query, "gumtree.co.za") {
			price, ok := extractZAR(r.Title + " " + r.Description)
			if !ok {
				continue
			}
			out = append(out, Listing{
				Title:     r.Title,
				Price:     price,
				URL:       r.URL,
				Condition: inferCondition(r.Title),
				Source:    g.Name(),
			})
		}
	}
	return out, nil
}
