// Package research estimates an item's second-hand market value by
// layering price sources: expert research first, marketplace listing
// scrapes second, a new-retail-price depreciation estimate third, and
// a user-supplied estimate as the last resort.
package research

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/epicdeals/instant-offer/internal/category"
	"github.com/epicdeals/instant-offer/internal/listing"
	"github.com/epicdeals/instant-offer/internal/model"
	"github.com/epicdeals/instant-offer/internal/valuation"
)

const (
	// Three or more expert prices are corroboration enough to skip
	// the scraping tier entirely.
	expertSkipThreshold = 3

	maxPricesPerSource = 5

	scrapeWorkers = 3
	scrapeTimeout = 12 * time.Second

	confidenceCeiling    = 0.95
	depreciationEstimate = 0.6
)

// Aggregator runs the tiered price research.
type Aggregator struct {
	expert     *Expert
	connectors []listing.Connector
	workers    int
	timeout    time.Duration
	now        func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithScrapeTimeout overrides the listing-tier wall clock budget.
func WithScrapeTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		a.timeout = d
	}
}

// WithWorkers overrides the listing-tier concurrency bound.
func WithWorkers(n int) Option {
	return func(a *Aggregator) {
		a.workers = n
	}
}

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator wires the expert tier and the listing connectors.
func NewAggregator(expert *Expert, connectors []listing.Connector, opts ...Option) *Aggregator {
	a := &Aggregator{
		expert:     expert,
		connectors: connectors,
		workers:    scrapeWorkers,
		timeout:    scrapeTimeout,
		now:        time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// sourcesByFamily maps a device family to the marketplaces worth
// checking for it, in priority order.
var sourcesByFamily = map[category.Family][]string{
	category.FamilyPhone:     {"EpicDeals", "Gumtree", "Competitors", "eBay"},
	category.FamilyLaptop:    {"EpicDeals", "Gumtree", "Competitors", "eBay"},
	category.FamilyTV:        {"Gumtree", "Competitors"},
	category.FamilyAppliance: {"Gumtree", "Competitors"},
	category.FamilyConsole:   {"Gumtree", "Competitors", "eBay"},
	category.FamilyCamera:    {"Gumtree", "Competitors", "EpicDeals"},
}

var defaultSources = []string{"Gumtree", "Competitors"}

// Research produces a market value estimate for the product. It never
// fails outright: when every tier comes up empty the result carries
// NeedsUserEstimate and zero confidence.
func (a *Aggregator) Research(ctx context.Context, p model.ProductRecord) *model.ResearchResult {
	result := &model.ResearchResult{}
	log := zap.L().With(zap.String("product", p.DisplayName()))

	// Tier 1: expert research.
	if a.expert != nil {
		expert := a.expert.SearchUsed(ctx, p)
		for _, price := range expert.Prices {
			result.Observations = append(result.Observations, model.PriceObservation{
				Amount: price,
				Source: "Expert research",
				Kind:   model.SourceExpertResearch,
				Title:  p.DisplayName(),
			})
		}
		result.SourcesChecked = append(result.SourcesChecked, expert.Sources...)

		if len(expert.Prices) >= expertSkipThreshold {
			result.MarketValue = MarketValue(prices(result.Observations))
			result.Confidence = capConfidence(0.75 + float64(len(expert.Prices))*0.05)
			log.Info("expert research sufficient, skipping listing scrape",
				zap.Int("prices", len(expert.Prices)),
				zap.Float64("market_value", result.MarketValue))
			return result
		}
	}

	// Tier 2: marketplace listings, bounded workers under one wall
	// clock. Partial success is the normal case.
	scraped := a.scrapeListings(ctx, p)
	for _, s := range scraped {
		result.SourcesChecked = append(result.SourcesChecked, s.source)
		for _, l := range s.listings {
			result.Observations = append(result.Observations, l.Observation())
		}
	}

	if len(result.Observations) > 0 {
		result.MarketValue = MarketValue(prices(result.Observations))
		result.Confidence = capConfidence(0.5 + float64(len(scraped))*0.2)
		log.Info("listing research complete",
			zap.Int("observations", len(result.Observations)),
			zap.Int("sources", len(scraped)),
			zap.Float64("market_value", result.MarketValue))
		return result
	}

	// Tier 3: depreciate a new retail price.
	if a.expert != nil {
		if est, ok := a.estimateFromNewRetail(ctx, p, result); ok {
			return est
		}
	}

	// Tier 4: nothing worked; ask the seller.
	log.Info("no pricing data found, requesting user estimate")
	result.NeedsUserEstimate = true
	return result
}

type sourceResult struct {
	source   string
	listings []listing.Listing
}

func (a *Aggregator) scrapeListings(ctx context.Context, p model.ProductRecord) []sourceResult {
	connectors := a.selectConnectors(p)
	if len(connectors) == 0 {
		return nil
	}

	queries := searchQueries(p)

	scrapeCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results []sourceResult
	)
	g, gctx := errgroup.WithContext(scrapeCtx)
	g.SetLimit(a.workers)

	for _, conn := range connectors {
		conn := conn
		g.Go(func() error {
			listings, err := conn.Search(gctx, queries)
			if err != nil {
				zap.L().Warn("listing source failed",
					zap.String("source", conn.Name()),
					zap.Error(err))
				return nil
			}
			if len(listings) == 0 {
				return nil
			}
			if len(listings) > maxPricesPerSource {
				listings = listings[:maxPricesPerSource]
			}
			mu.Lock()
			results = append(results, sourceResult{source: conn.Name(), listings: listings})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (a *Aggregator) selectConnectors(p model.ProductRecord) []listing.Connector {
	wanted := defaultSources
	if s, ok := sourcesByFamily[category.DeviceFamily(p)]; ok {
		wanted = s
	}

	byName := make(map[string]listing.Connector, len(a.connectors))
	for _, c := range a.connectors {
		byName[c.Name()] = c
	}

	var out []listing.Connector
	for _, name := range wanted {
		if c, ok := byName[name]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (a *Aggregator) estimateFromNewRetail(ctx context.Context, p model.ProductRecord, result *model.ResearchResult) (*model.ResearchResult, bool) {
	expert := a.expert.SearchNewRetail(ctx, p)
	if len(expert.Prices) == 0 {
		return nil, false
	}

	newPrice := MarketValue(expert.Prices)
	age := valuation.AgeYears(p, a.now())
	estimated, factor := valuation.DepreciatedValue(p, newPrice, a.now())

	result.Observations = append(result.Observations, model.PriceObservation{
		Amount:              estimated,
		Source:              "New retail + depreciation",
		Kind:                model.SourceExpertResearch,
		Title:               p.DisplayName(),
		IsNewRetailEstimate: true,
	})
	result.SourcesChecked = append(result.SourcesChecked, expert.Sources...)
	result.MarketValue = estimated
	result.Confidence = depreciationEstimate
	result.UsedDepreciation = true

	zap.L().Info("estimated value from new retail price",
		zap.String("product", p.DisplayName()),
		zap.Float64("new_price", newPrice),
		zap.Float64("age_years", age),
		zap.Float64("retention", factor),
		zap.Float64("estimated", estimated))

	return result, true
}

// searchQueries builds marketplace queries from most to least
// specific.
func searchQueries(p model.ProductRecord) []string {
	var out []string
	display := p.DisplayName()
	if storage := p.Specifications["storage"]; storage != "" {
		out = append(out, display+" "+storage)
	}
	out = append(out, display)
	if p.Name != "" && !strings.EqualFold(p.Name, display) {
		out = append(out, p.Name)
	}
	return out
}

// MarketValue reduces price observations to a single estimate: with
// three or more values the median of the outlier-filtered set, with
// two their mean, with one that value. Filtering discards anything
// outside [0.3x, 3x] of the raw median, which shrugs off a stray new
// retail price leaking into second-hand results. The filter is
// idempotent: running it on its own output changes nothing.
func MarketValue(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	filtered := values
	if len(values) >= 3 {
		m := median(values)
		kept := make([]float64, 0, len(values))
		for _, v := range values {
			if v >= 0.3*m && v <= 3*m {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			filtered = kept
		}
	}

	switch len(filtered) {
	case 1:
		return filtered[0]
	case 2:
		return (filtered[0] + filtered[1]) / 2
	default:
		return median(filtered)
	}
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func prices(obs []model.PriceObservation) []float64 {
	out := make([]float64, 0, len(obs))
	for _, o := range obs {
		if o.Amount > 0 {
			out = append(out, o.Amount)
		}
	}
	return out
}

func capConfidence(c float64) float64 {
	if c > confidenceCeiling {
		return confidenceCeiling
	}
	return c
}

func parsePrice(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}
