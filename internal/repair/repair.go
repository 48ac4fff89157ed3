// Package repair researches real-world repair costs for reported
// defects using Perplexity, with static fallback estimates when
// research fails or returns nothing usable.
package repair

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/epicdeals/instant-offer/internal/model"
	"github.com/epicdeals/instant-offer/internal/valuation"
	"github.com/epicdeals/instant-offer/pkg/perplexity"
)

const (
	// Quoted amounts outside this band are noise (accessory prices,
	// phone numbers, new-device prices) and are discarded.
	minPlausibleCost = 100
	maxPlausibleCost = 50000

	researchedConfidence = 0.85
	fallbackConfidence   = 0.7
)

const systemPrompt = `You are a repair cost research expert for South Africa.

When asked about repair costs:
1. Research current prices from South African repair shops
2. Provide prices in South African Rand (ZAR)
3. Give a realistic range (min-max)
4. Cite specific sources (iStore, iFix, repair shops, etc.)
5. Consider labor + parts

Format your response as:
"Typical cost: R[amount] (Range: R[min] - R[max])
Source: [shop/website names]
Details: [brief explanation]"`

// zarAmount matches rand amounts like "R1,200", "R 1200", "R1200".
var zarAmount = regexp.MustCompile(`R\s*([0-9,]+)`)

// Researcher estimates repair costs per defect.
type Researcher struct {
	client perplexity.Client
	now    func() time.Time
}

// Option configures a Researcher.
type Option func(*Researcher)

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Researcher) {
		r.now = now
	}
}

// NewResearcher creates a repair cost researcher. A nil client is
// allowed; every defect then falls back to static estimates.
func NewResearcher(client perplexity.Client, opts ...Option) *Researcher {
	r := &Researcher{client: client, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// EstimateAll researches a cost for every reported defect and returns
// the aggregate. A no-damage report yields an empty estimate with full
// confidence. Individual research failures degrade to fallback
// estimates rather than failing the whole pass.
func (r *Researcher) EstimateAll(ctx context.Context, p model.ProductRecord, defects []string) *model.RepairEstimate {
	est := &model.RepairEstimate{Confidence: 1.0}
	if valuation.ReportsNoDamage(defects) {
		return est
	}

	for _, defect := range defects {
		if isNoDamageLabel(defect) {
			continue
		}
		item := r.researchDefect(ctx, p, defect)
		if item.Cost <= 0 {
			continue
		}
		est.Items = append(est.Items, item)
		est.Total += item.Cost
	}

	if len(est.Items) > 0 {
		sum := 0.0
		for _, it := range est.Items {
			sum += it.Confidence
		}
		est.Confidence = sum / float64(len(est.Items))
	}

	zap.L().Info("repair estimate complete",
		zap.String("product", p.DisplayName()),
		zap.Int("defects", len(est.Items)),
		zap.Float64("total", est.Total),
		zap.Float64("confidence", est.Confidence))

	return est
}

func (r *Researcher) researchDefect(ctx context.Context, p model.ProductRecord, defect string) model.RepairItem {
	if r.client == nil {
		return fallbackEstimate(defect, p.Brand, p.Category)
	}

	query := r.buildQuery(p, defect)
	user := fmt.Sprintf("What is the current %s? Provide specific South African repair shop prices in Rand.", query)

	content, err := perplexity.Ask(ctx, r.client, systemPrompt, user, nil)
	if err != nil {
		zap.L().Warn("repair research failed, using fallback",
			zap.String("defect", defect),
			zap.Error(err))
		return fallbackEstimate(defect, p.Brand, p.Category)
	}

	cost, ok := medianCost(content)
	if !ok {
		return fallbackEstimate(defect, p.Brand, p.Category)
	}

	return model.RepairItem{
		Defect:     defect,
		Cost:       cost,
		Source:     extractSource(content),
		Details:    extractDetails(content, defect),
		Researched: true,
		Confidence: researchedConfidence,
	}
}

// buildQuery composes a search query scoped to the South African
// repair market, e.g. "Apple iPhone 11 screen replacement repair cost
// South Africa 2026 Johannesburg Cape Town Durban Pretoria".
func (r *Researcher) buildQuery(p model.ProductRecord, defect string) string {
	parts := []string{p.Brand, p.Model, simplifyDefect(defect),
		"repair cost South Africa", strconv.Itoa(r.now().Year()),
		"Johannesburg Cape Town Durban Pretoria"}
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(part)
	}
	return b.String()
}

// simplifyDefect rewrites a checklist label into search-friendly
// repair terminology ("Screen cracked or scratched" -> "screen
// replacement").
func simplifyDefect(defect string) string {
	lower := strings.ToLower(defect)
	switch {
	case strings.Contains(lower, "screen") && strings.Contains(lower, "crack"):
		return "screen replacement"
	case strings.Contains(lower, "screen"):
		return "screen repair"
	case strings.Contains(lower, "battery"):
		return "battery replacement"
	case strings.Contains(lower, "back glass"):
		return "back glass replacement"
	case strings.Contains(lower, "camera"):
		return "camera repair"
	case strings.Contains(lower, "keyboard"):
		return "keyboard replacement"
	case strings.Contains(lower, "trackpad"):
		return "trackpad repair"
	case strings.Contains(lower, "water damage"):
		return "water damage repair"
	case strings.Contains(lower, "port"), strings.Contains(lower, "button"):
		return "port button repair"
	case strings.Contains(lower, "hinge"):
		return "hinge repair replacement"
	default:
		return defect
	}
}

// medianCost extracts all plausible ZAR amounts from the response text
// and returns their median.
func medianCost(content string) (float64, bool) {
	matches := zarAmount.FindAllStringSubmatch(content, -1)
	var amounts []float64
	for _, m := range matches {
		v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			continue
		}
		if v < minPlausibleCost || v > maxPlausibleCost {
			continue
		}
		amounts = append(amounts, float64(v))
	}
	if len(amounts) == 0 {
		return 0, false
	}
	sort.Float64s(amounts)
	mid := len(amounts) / 2
	if len(amounts)%2 == 0 {
		return (amounts[mid-1] + amounts[mid]) / 2, true
	}
	return amounts[mid], true
}

func extractSource(content string) string {
	lower := strings.ToLower(content)
	var sources []string
	if strings.Contains(lower, "istore") {
		sources = append(sources, "iStore")
	}
	if strings.Contains(lower, "ifix") {
		sources = append(sources, "iFix")
	}
	if strings.Contains(lower, "repair") && strings.Contains(lower, "shop") {
		sources = append(sources, "local repair shops")
	}
	if len(sources) == 0 {
		return "Based on South African repair market research"
	}
	return "Based on " + strings.Join(sources, ", ")
}

func extractDetails(content, defect string) string {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "labor"):
		return fmt.Sprintf("Typical %s cost including labor", strings.ToLower(defect))
	case strings.Contains(lower, "parts"):
		return fmt.Sprintf("Typical %s including parts", strings.ToLower(defect))
	default:
		return fmt.Sprintf("Current market rate for %s", strings.ToLower(defect))
	}
}

func isNoDamageLabel(defect string) bool {
	lower := strings.ToLower(defect)
	if lower == model.ValueNoDamage {
		return true
	}
	return strings.Contains(lower, "none") &&
		(strings.Contains(lower, "works") || strings.Contains(lower, "perfect"))
}
