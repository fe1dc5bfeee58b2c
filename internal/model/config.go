package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"time"
)

// Config holds the complete trendbrief configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Aggregation  AggregationConfig  `yaml:"aggregation" mapstructure:"aggregation"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Sources      []SourceConfig     `yaml:"sources" mapstructure:"sources" validate:"dive"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Prompt       PromptConfig       `yaml:"prompt" mapstructure:"prompt"`
	Briefing     BriefingConfig     `yaml:"briefing" mapstructure:"briefing"`
	Dispatch     DispatchConfig     `yaml:"dispatch" mapstructure:"dispatch"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"` // Must outlive a streamed briefing
}

// HTTPConfig configures outbound feed fetching
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxRetries    int           `yaml:"max_retries" mapstructure:"max_retries"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"` // Applies to ad-hoc feed URLs
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// ConcurrencyConfig bounds fetch parallelism
type ConcurrencyConfig struct {
	Workers            int `yaml:"workers" mapstructure:"workers"`                           // Per-request fetch workers
	MaxOutboundFetches int `yaml:"max_outbound_fetches" mapstructure:"max_outbound_fetches"` // Process-wide cap
}

// RateLimitingConfig sets per-domain request rates
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// CacheConfig controls the transport-level fetch cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
	Dir     string        `yaml:"dir,omitempty" mapstructure:"dir"` // Optional disk layer
}

// AggregationConfig controls source aggregation
type AggregationConfig struct {
	Deadline time.Duration `yaml:"deadline" mapstructure:"deadline"`
	Lookback time.Duration `yaml:"lookback" mapstructure:"lookback"` // Window for archive sources
}

// StoreConfig points at the historical item archive
type StoreConfig struct {
	DSN   string `yaml:"dsn,omitempty" mapstructure:"dsn"`
	Table string `yaml:"table" mapstructure:"table"`
}

// SourceKind selects the fetcher used for a source
type SourceKind string

const (
	SourceKindNewsNow SourceKind = "newsnow"
	SourceKindRSS     SourceKind = "rss"
	SourceKindHTML    SourceKind = "html"
	SourceKindStore   SourceKind = "store"
)

// SourceConfig describes a named source
type SourceConfig struct {
	ID           string        `yaml:"id" mapstructure:"id" validate:"required"`
	Name         string        `yaml:"name" mapstructure:"name"`
	Kind         SourceKind    `yaml:"kind" mapstructure:"kind" validate:"required,oneof=newsnow rss html store"`
	URL          string        `yaml:"url,omitempty" mapstructure:"url" validate:"required_unless=Kind store"`
	ItemSelector string        `yaml:"item_selector,omitempty" mapstructure:"item_selector"` // html only
	TitleAttr    string        `yaml:"title_attr,omitempty" mapstructure:"title_attr"`       // html only, defaults to text
	MaxItems     int           `yaml:"max_items,omitempty" mapstructure:"max_items"`
	Lookback     time.Duration `yaml:"lookback,omitempty" mapstructure:"lookback"` // store only, overrides aggregation.lookback
	AdHoc        bool          `yaml:"-" mapstructure:"-"`                         // Supplied per request rather than configured
}

// DisplayName returns the human name of the source
func (s SourceConfig) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// CustomSource builds the source for a feed URL supplied with a single request
func CustomSource(rawURL string) SourceConfig {
	hash := sha256.Sum256([]byte(rawURL))
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		name = u.Host
	}
	return SourceConfig{
		ID:    "custom-" + hex.EncodeToString(hash[:4]),
		Name:  name,
		Kind:  SourceKindRSS,
		URL:   rawURL,
		AdHoc: true,
	}
}

// LLMConfig configures the generation backend
type LLMConfig struct {
	Provider     string        `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, gemini
	Model        string        `yaml:"model" mapstructure:"model"`
	APIKey       string        `yaml:"-" mapstructure:"api_key"`
	BaseURL      string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens    int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature  float32       `yaml:"temperature" mapstructure:"temperature"`
	SystemPrompt string        `yaml:"system_prompt" mapstructure:"system_prompt"`
}

// PromptConfig configures prompt construction
type PromptConfig struct {
	Template   string `yaml:"template,omitempty" mapstructure:"template"` // Empty uses the built-in template
	MaxChars   int    `yaml:"max_chars" mapstructure:"max_chars"`
	Language   string `yaml:"language" mapstructure:"language"`
	ReportType string `yaml:"report_type" mapstructure:"report_type"`
}

// BriefingConfig configures the pipeline entry point
type BriefingConfig struct {
	EmptySentinel string `yaml:"empty_sentinel" mapstructure:"empty_sentinel"`
}

// DispatchConfig configures notification delivery
type DispatchConfig struct {
	SendTimeout   time.Duration    `yaml:"send_timeout" mapstructure:"send_timeout"`
	MaxRetries    int              `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSecond float64          `yaml:"rate_per_second" mapstructure:"rate_per_second"` // Per target, paces multi-batch sends
	Burst         int              `yaml:"burst" mapstructure:"burst"`
	Targets       []DispatchTarget `yaml:"targets" mapstructure:"targets" validate:"dive"`
}

// LoggingConfig configures slog output
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		HTTP: HTTPConfig{
			Timeout:       10 * time.Second,
			UserAgent:     "trendbrief/0.1 (+https://github.com/ppiankov/trendbrief)",
			MaxBodyBytes:  4_000_000,
			MaxRetries:    2,
			RespectRobots: true,
		},
		Concurrency: ConcurrencyConfig{
			Workers:            8,
			MaxOutboundFetches: 32,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     2 * time.Minute,
		},
		Aggregation: AggregationConfig{
			Deadline: 15 * time.Second,
			Lookback: 24 * time.Hour,
		},
		Store: StoreConfig{
			Table: "trend_items",
		},
		Sources: []SourceConfig{
			{ID: "weibo", Name: "Weibo", Kind: SourceKindNewsNow, URL: "https://newsnow.busiyi.world/api/s?id=weibo"},
			{ID: "toutiao", Name: "Toutiao", Kind: SourceKindNewsNow, URL: "https://newsnow.busiyi.world/api/s?id=toutiao"},
			{ID: "zhihu", Name: "Zhihu", Kind: SourceKindNewsNow, URL: "https://newsnow.busiyi.world/api/s?id=zhihu"},
			{ID: "hackernews", Name: "Hacker News", Kind: SourceKindRSS, URL: "https://hnrss.org/frontpage"},
		},
		LLM: LLMConfig{
			Provider:     "",
			Timeout:      2 * time.Minute,
			MaxTokens:    2000,
			Temperature:  0.3,
			SystemPrompt: "You are a news analyst. Write concise, factual trend briefings grounded only in the supplied headlines.",
		},
		Prompt: PromptConfig{
			MaxChars:   24_000,
			Language:   "English",
			ReportType: "Custom briefing",
		},
		Briefing: BriefingConfig{
			EmptySentinel: "No related updates today.",
		},
		Dispatch: DispatchConfig{
			SendTimeout:   20 * time.Second,
			MaxRetries:    3,
			RatePerSecond: 1,
			Burst:         2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SourceByID returns the configured source with the given id
func (c *Config) SourceByID(id string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}
