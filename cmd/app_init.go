package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/epicdeals/instant-offer/internal/ai"
	"github.com/epicdeals/instant-offer/internal/conversation"
	"github.com/epicdeals/instant-offer/internal/currency"
	"github.com/epicdeals/instant-offer/internal/listing"
	"github.com/epicdeals/instant-offer/internal/notify"
	"github.com/epicdeals/instant-offer/internal/offer"
	"github.com/epicdeals/instant-offer/internal/repair"
	"github.com/epicdeals/instant-offer/internal/research"
	"github.com/epicdeals/instant-offer/internal/store"
	"github.com/epicdeals/instant-offer/internal/valuation"
	anthropicpkg "github.com/epicdeals/instant-offer/pkg/anthropic"
	"github.com/epicdeals/instant-offer/pkg/jina"
	"github.com/epicdeals/instant-offer/pkg/perplexity"
)

// appEnv holds the initialized store and services needed by the serve,
// value, and offers commands.
type appEnv struct {
	Store         store.Store
	Offers        *offer.Service
	Conversations *conversation.Service
}

// Close flushes in-flight notifications and releases the store.
// Callers should defer env.Close().
func (e *appEnv) Close() {
	if e.Offers != nil {
		e.Offers.Flush()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp sets up the store, all API clients, and the conversation and
// offer services.
func initApp(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	aiService := ai.NewService(anthropicClient,
		ai.WithModel(cfg.Anthropic.ConversationModel),
		ai.WithFastModel(cfg.Anthropic.FastModel),
	)

	perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
	)

	jinaOpts := []jina.Option{jina.WithBaseURL(cfg.Jina.BaseURL)}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jinaOpts...)

	converter := currency.NewConverter(
		currency.WithFallbackRate(cfg.Currency.FallbackUSDZAR),
	)

	backend := listing.NewBackend(jinaClient, cfg.Research.SearchQPS)
	connectors := []listing.Connector{
		listing.NewGumtree(backend),
		listing.NewEBay(backend, converter),
		listing.NewEpicDeals(backend),
		listing.NewCompetitors(backend),
	}

	aggregator := research.NewAggregator(
		research.NewExpert(perplexityClient),
		connectors,
		research.WithScrapeTimeout(time.Duration(cfg.Research.ScrapeTimeoutSecs)*time.Second),
		research.WithWorkers(cfg.Research.Workers),
	)

	repairs := repair.NewResearcher(perplexityClient)

	params := valuation.Params{
		SellNowRate:         cfg.Offer.SellNowRate,
		ConsignmentRate:     cfg.Offer.ConsignmentRate,
		MinItemValue:        cfg.Offer.MinItemValue,
		MaxItemValue:        cfg.Offer.MaxItemValue,
		ConfidenceThreshold: cfg.Offer.ConfidenceThreshold,
		RoundIncrement:      cfg.Offer.RoundIncrement,
	}

	offerOpts := []offer.Option{offer.WithStore(st)}
	if cfg.SMTP.Host != "" {
		mailer := notify.NewMailer(notify.Config{
			Host:       cfg.SMTP.Host,
			Port:       cfg.SMTP.Port,
			Username:   cfg.SMTP.Username,
			Password:   cfg.SMTP.Password,
			StaffEmail: cfg.SMTP.StaffEmail,
		})
		offerOpts = append(offerOpts, offer.WithNotifier(mailer))
	} else {
		zap.L().Warn("smtp not configured, notifications disabled")
	}

	offers := offer.NewService(aggregator, repairs, params, offerOpts...)

	conversations := conversation.NewService(aiService, aiService, aiService, st,
		conversation.WithSessionTTL(time.Duration(cfg.Session.TTLHours)*time.Hour),
	)

	return &appEnv{
		Store:         st,
		Offers:        offers,
		Conversations: conversations,
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "offers.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
