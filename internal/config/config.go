package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Offer      OfferConfig      `yaml:"offer" mapstructure:"offer"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Currency   CurrencyConfig   `yaml:"currency" mapstructure:"currency"`
	SMTP       SMTPConfig       `yaml:"smtp" mapstructure:"smtp"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// JinaConfig holds Jina AI search settings for the listing connectors.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key               string `yaml:"key" mapstructure:"key"`
	ConversationModel string `yaml:"conversation_model" mapstructure:"conversation_model"`
	FastModel         string `yaml:"fast_model" mapstructure:"fast_model"`
}

// OfferConfig holds the business rules for offer computation.
type OfferConfig struct {
	SellNowRate         float64 `yaml:"sell_now_rate" mapstructure:"sell_now_rate"`
	ConsignmentRate     float64 `yaml:"consignment_rate" mapstructure:"consignment_rate"`
	MinItemValue        float64 `yaml:"min_item_value" mapstructure:"min_item_value"`
	MaxItemValue        float64 `yaml:"max_item_value" mapstructure:"max_item_value"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	RoundIncrement      float64 `yaml:"round_increment" mapstructure:"round_increment"`
}

// ResearchConfig configures the price research fan-out.
type ResearchConfig struct {
	ScrapeTimeoutSecs int     `yaml:"scrape_timeout_secs" mapstructure:"scrape_timeout_secs"`
	Workers           int     `yaml:"workers" mapstructure:"workers"`
	SearchQPS         float64 `yaml:"search_qps" mapstructure:"search_qps"`
}

// CurrencyConfig configures USD to ZAR conversion.
type CurrencyConfig struct {
	FallbackUSDZAR float64 `yaml:"fallback_usd_zar" mapstructure:"fallback_usd_zar"`
}

// SMTPConfig configures outgoing notification email.
type SMTPConfig struct {
	Host       string `yaml:"host" mapstructure:"host"`
	Port       int    `yaml:"port" mapstructure:"port"`
	Username   string `yaml:"username" mapstructure:"username"`
	Password   string `yaml:"password" mapstructure:"password"`
	StaffEmail string `yaml:"staff_email" mapstructure:"staff_email"`
}

// SessionConfig configures conversation session retention.
type SessionConfig struct {
	TTLHours int `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OFFER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "offers.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("session.ttl_hours", 24)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("anthropic.conversation_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.fast_model", "claude-haiku-4-5-20251001")
	v.SetDefault("offer.sell_now_rate", 0.65)
	v.SetDefault("offer.consignment_rate", 0.85)
	v.SetDefault("offer.min_item_value", 1500)
	v.SetDefault("offer.max_item_value", 25000)
	v.SetDefault("offer.confidence_threshold", 0.75)
	v.SetDefault("offer.round_increment", 10)
	v.SetDefault("research.scrape_timeout_secs", 12)
	v.SetDefault("research.workers", 3)
	v.SetDefault("research.search_qps", 2)
	v.SetDefault("currency.fallback_usd_zar", 18.5)
	v.SetDefault("smtp.port", 587)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required to serve conversations are
// present. The conversation layer cannot run without an Anthropic key.
func (c *Config) Validate() error {
	if c.Anthropic.Key == "" {
		return eris.New("config: anthropic key is required (OFFER_ANTHROPIC_KEY)")
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Offer.SellNowRate <= 0 || c.Offer.SellNowRate > 1 {
		return eris.Errorf("config: sell_now_rate %.2f out of range (0, 1]", c.Offer.SellNowRate)
	}
	if c.Offer.MinItemValue >= c.Offer.MaxItemValue {
		return eris.New("config: min_item_value must be below max_item_value")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
