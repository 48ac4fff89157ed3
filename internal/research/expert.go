package research

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/epicdeals/instant-offer/internal/model"
	"github.com/epicdeals/instant-offer/internal/resilience"
	"github.com/epicdeals/instant-offer/pkg/perplexity"
)

const (
	maxExpertPrices  = 10
	maxExpertSources = 5

	minPlausiblePrice = 1000
	maxPlausiblePrice = 50000
)

const usedPricesPrompt = `You are a South African SECOND-HAND market price expert. Search for current USED/SECOND-HAND prices ONLY and return ONLY a JSON object with this exact format: {"prices": [price1, price2, ...], "sources": ["source1", "source2", ...]}. Prices must be in ZAR (South African Rand). CRITICAL: Only include SECOND-HAND/USED prices from classifieds and resale sites like gumtree.co.za, facebook marketplace, carbonite.co.za, bobshop.co.za. Do NOT include new retail prices from takealot.com, incredible.co.za, makro.co.za or any other new-product retailer. We need what people are actually selling used items for, not what they cost new.`

const newPricesPrompt = `You are a South African retail price expert. Search for current NEW retail prices and return ONLY a JSON object: {"prices": [price1, price2, ...], "sources": ["source1", "source2", ...]}. Prices must be in ZAR.`

var (
	jsonBlock     = regexp.MustCompile(`(?s)\{.*\}`)
	expertZAR     = regexp.MustCompile(`R\s?(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`)
	expertSources = regexp.MustCompile(`(epicdeals\.co\.za|bobshop\.co\.za|takealot\.com|gumtree\.co\.za)`)
)

// ExpertResult is the parsed outcome of one expert price query.
type ExpertResult struct {
	Prices  []float64
	Sources []string
}

// Expert asks Perplexity for real-time market prices; it is the
// primary research tier because a search-grounded model sees the same
// classifieds a scraper would, minus the brittle selectors.
type Expert struct {
	client perplexity.Client
	retry  resilience.RetryConfig
}

// ExpertOption configures an Expert.
type ExpertOption func(*Expert)

// WithRetryConfig overrides the single-retry policy, used in tests.
func WithRetryConfig(cfg resilience.RetryConfig) ExpertOption {
	return func(e *Expert) {
		e.retry = cfg
	}
}

// NewExpert creates the expert-research tier. A nil client disables
// the tier: every query returns an empty result.
func NewExpert(client perplexity.Client, opts ...ExpertOption) *Expert {
	e := &Expert{client: client, retry: resilience.SingleRetry()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SearchUsed asks for second-hand asking prices for the product.
func (e *Expert) SearchUsed(ctx context.Context, p model.ProductRecord) ExpertResult {
	query := buildUsedQuery(p)
	return e.ask(ctx, usedPricesPrompt, query)
}

// SearchNewRetail asks for new retail prices, used as the base for a
// depreciation estimate when no second-hand data exists.
func (e *Expert) SearchNewRetail(ctx context.Context, p model.ProductRecord) ExpertResult {
	query := buildNewRetailQuery(p)
	return e.ask(ctx, newPricesPrompt, query)
}

// errNoPrices marks an answer that parsed to zero prices; the query
// gets one more chance before the tier gives up.
var errNoPrices = eris.New("research: no prices in expert response")

// ask runs one expert query with a single retry. The transport client
// already retries connection-level failures, so the retry here covers
// the semantic failure of an answer with no usable prices in it.
func (e *Expert) ask(ctx context.Context, system, query string) ExpertResult {
	if e.client == nil {
		return ExpertResult{}
	}

	cfg := e.retry
	cfg.ShouldRetry = func(error) bool { return true }
	cfg.OnRetry = resilience.RetryLogger("perplexity", "expert_prices")

	result, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (ExpertResult, error) {
		content, err := perplexity.Ask(ctx, e.client, system, query, nil)
		if err != nil {
			return ExpertResult{}, err
		}
		parsed := parseExpertResponse(content)
		if len(parsed.Prices) == 0 {
			return parsed, errNoPrices
		}
		return parsed, nil
	})
	if err != nil {
		zap.L().Warn("expert price research failed",
			zap.String("query", query),
			zap.Error(err))
		return ExpertResult{}
	}
	return result
}

func buildUsedQuery(p model.ProductRecord) string {
	var b strings.Builder
	b.WriteString("Find current SECOND-HAND / USED prices in South Africa for ")
	b.WriteString(p.DisplayName())
	if storage := p.Specifications["storage"]; storage != "" {
		b.WriteString(" ")
		b.WriteString(storage)
	}
	cond := strings.ToLower(p.Condition)
	if strings.Contains(cond, "excellent") {
		b.WriteString(" in excellent condition")
	} else if strings.Contains(cond, "good") {
		b.WriteString(" in good condition")
	}
	b.WriteString(". Search gumtree.co.za, facebook marketplace, carbonite.co.za, bobshop.co.za for USED listings only. Do NOT include new retail prices from takealot or other retailers. Return actual second-hand asking prices in ZAR.")
	return b.String()
}

func buildNewRetailQuery(p model.ProductRecord) string {
	var b strings.Builder
	b.WriteString("Find current NEW retail prices in South Africa for ")
	b.WriteString(p.DisplayName())
	if storage := p.Specifications["storage"]; storage != "" {
		b.WriteString(" ")
		b.WriteString(storage)
	}
	b.WriteString(". Search takealot.com, incredible.co.za, game.co.za, makro.co.za. Return actual NEW prices in ZAR.")
	return b.String()
}

// parseExpertResponse extracts prices and sources from the model's
// answer: a JSON object when the model followed instructions, a ZAR
// regex sweep when it did not.
func parseExpertResponse(content string) ExpertResult {
	var out ExpertResult

	if block := jsonBlock.FindString(content); block != "" {
		var parsed struct {
			Prices  []float64 `json:"prices"`
			Sources []string  `json:"sources"`
		}
		if err := json.Unmarshal([]byte(block), &parsed); err == nil {
			for _, p := range parsed.Prices {
				if p > 0 {
					out.Prices = append(out.Prices, p)
				}
			}
			out.Sources = parsed.Sources
		}
	}

	if len(out.Prices) == 0 {
		for _, m := range expertZAR.FindAllStringSubmatch(content, -1) {
			v, err := parsePrice(m[1])
			if err != nil {
				continue
			}
			if v >= minPlausiblePrice && v <= maxPlausiblePrice {
				out.Prices = append(out.Prices, v)
			}
		}
		seen := make(map[string]struct{})
		for _, m := range expertSources.FindAllString(content, -1) {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out.Sources = append(out.Sources, m)
		}
	}

	if len(out.Prices) > maxExpertPrices {
		out.Prices = out.Prices[:maxExpertPrices]
	}
	if len(out.Sources) > maxExpertSources {
		out.Sources = out.Sources[:maxExpertSources]
	}
	return out
}
