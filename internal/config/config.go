package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/amishk599/jobagent/internal/adapter"
	"github.com/amishk599/jobagent/internal/ingest"
	"github.com/amishk599/jobagent/internal/model"
)

// EnvConfigPath names the environment variable that points at the config file.
const EnvConfigPath = "JOBAGENT_CONFIG"

// DefaultPath is used when neither --config nor JOBAGENT_CONFIG is set.
const DefaultPath = "config.yaml"

const (
	defaultDatabase    = "jobs.db"
	defaultHTTPTimeout = 20 * time.Second
	defaultMinDelay    = 2 * time.Second // 30 requests per minute
	defaultMaxRetries  = 2
	defaultBaseDelay   = time.Second
	slackWebhookPrefix = "https://hooks.slack.com/"
)

// Config is the root configuration for jobagent.
type Config struct {
	Database     string        `validate:"required"`
	UserAgent    string        `validate:"required"`
	HTTPTimeout  time.Duration `validate:"gt=0"`
	RateLimit    RateLimitConfig
	Retry        RetryConfig
	Region       RegionConfig
	Sources      []SourceConfig `validate:"dive"`
	Notification NotificationConfig
	Metrics      MetricsConfig
}

// RateLimitConfig controls per-host request spacing.
type RateLimitConfig struct {
	MinDelay          time.Duration            `validate:"gte=0"`
	ProviderOverrides map[string]time.Duration // keyed by provider name
}

// MinDelayFor returns the configured delay for the given provider, falling back to MinDelay.
func (r RateLimitConfig) MinDelayFor(provider string) time.Duration {
	if d, ok := r.ProviderOverrides[provider]; ok {
		return d
	}
	return r.MinDelay
}

// RetryConfig bounds per-page retries.
type RetryConfig struct {
	MaxRetries int           `validate:"gte=0,lte=10"`
	BaseDelay  time.Duration `validate:"gte=0"`
}

// RegionConfig lists the cities the normalizer recognizes. Empty means the
// built-in Greater Boston list.
type RegionConfig struct {
	Cities []string
}

// SourceConfig describes a single board to ingest.
type SourceConfig struct {
	Provider string        `yaml:"provider" validate:"required,oneof=greenhouse lever workday"`
	Source   string        `yaml:"source" validate:"required"`
	Name     string        `yaml:"name"`
	Enabled  bool          `yaml:"-"`
	Rate     time.Duration `yaml:"-"` // zero means the provider default
}

// NotificationConfig controls alerts for newly inserted postings.
type NotificationConfig struct {
	Type          string   `yaml:"type" validate:"omitempty,oneof=log slack"`
	WebhookURL    string   `yaml:"webhook_url" validate:"required_if=Type slack"`
	TitleKeywords []string `yaml:"title_keywords"`
	Cities        []string `yaml:"cities"`
}

// MetricsConfig controls the Prometheus textfile output.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Database     string             `yaml:"database"`
	UserAgent    string             `yaml:"user_agent"`
	HTTPTimeout  string             `yaml:"http_timeout"`
	RateLimit    rawRateLimitConfig `yaml:"rate_limit"`
	Retry        rawRetryConfig     `yaml:"retry"`
	Region       RegionConfig       `yaml:"region"`
	Sources      []rawSourceConfig  `yaml:"sources"`
	Notification NotificationConfig `yaml:"notification"`
	Metrics      MetricsConfig      `yaml:"metrics"`

	// Legacy registry layout, one list per provider.
	Greenhouse struct {
		Tokens []string `yaml:"tokens"`
	} `yaml:"greenhouse"`
	Lever struct {
		Companies []string `yaml:"companies"`
	} `yaml:"lever"`
	Workday struct {
		CXSEndpoints []string `yaml:"cxs_endpoints"`
	} `yaml:"workday"`
}

type rawRateLimitConfig struct {
	MinDelay          string            `yaml:"min_delay"`
	ProviderOverrides map[string]string `yaml:"provider_overrides"`
}

type rawRetryConfig struct {
	MaxRetries *int   `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
}

type rawSourceConfig struct {
	SourceConfig `yaml:",inline"`
	Enabled      *bool   `yaml:"enabled"` // defaults to true
	Rate         float64 `yaml:"rate"`    // requests per minute
}

// ResolvePath picks the config file: the flag value, then JOBAGENT_CONFIG,
// then ./config.yaml.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML, expanding environment variables first.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	httpTimeout, err := parseDuration("http_timeout", raw.HTTPTimeout, defaultHTTPTimeout)
	if err != nil {
		return nil, err
	}
	minDelay, err := parseDuration("rate_limit.min_delay", raw.RateLimit.MinDelay, defaultMinDelay)
	if err != nil {
		return nil, err
	}
	overrides := make(map[string]time.Duration)
	for provider, value := range raw.RateLimit.ProviderOverrides {
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("parse rate_limit.provider_overrides[%q]: %w", provider, err)
		}
		overrides[provider] = d
	}
	baseDelay, err := parseDuration("retry.base_delay", raw.Retry.BaseDelay, defaultBaseDelay)
	if err != nil {
		return nil, err
	}
	maxRetries := defaultMaxRetries
	if raw.Retry.MaxRetries != nil {
		maxRetries = *raw.Retry.MaxRetries
	}

	cfg := &Config{
		Database:    orDefault(raw.Database, defaultDatabase),
		UserAgent:   orDefault(raw.UserAgent, adapter.DefaultUserAgent),
		HTTPTimeout: httpTimeout,
		RateLimit: RateLimitConfig{
			MinDelay:          minDelay,
			ProviderOverrides: overrides,
		},
		Retry: RetryConfig{
			MaxRetries: maxRetries,
			BaseDelay:  baseDelay,
		},
		Region:       raw.Region,
		Notification: raw.Notification,
		Metrics:      raw.Metrics,
	}
	if cfg.Notification.Type == "" {
		cfg.Notification.Type = "log"
	}

	for _, rs := range raw.Sources {
		sc := rs.SourceConfig
		sc.Provider = strings.ToLower(strings.TrimSpace(sc.Provider))
		sc.Source = strings.TrimSpace(sc.Source)
		sc.Enabled = rs.Enabled == nil || *rs.Enabled
		if rs.Rate < 0 {
			return nil, fmt.Errorf("source %s/%s: rate must not be negative", sc.Provider, sc.Source)
		}
		if rs.Rate > 0 {
			sc.Rate = time.Duration(float64(time.Minute) / rs.Rate)
		}
		cfg.Sources = append(cfg.Sources, sc)
	}
	cfg.Sources = append(cfg.Sources, legacySources(model.ProviderGreenhouse, raw.Greenhouse.Tokens)...)
	cfg.Sources = append(cfg.Sources, legacySources(model.ProviderLever, raw.Lever.Companies)...)
	cfg.Sources = append(cfg.Sources, legacySources(model.ProviderWorkday, raw.Workday.CXSEndpoints)...)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Requests turns the enabled sources into ingest requests, in registry order.
// Sources without their own rate use the provider's configured delay.
func (c *Config) Requests() []ingest.Request {
	var reqs []ingest.Request
	for _, s := range c.Sources {
		if !s.Enabled {
			continue
		}
		rate := s.Rate
		if rate == 0 {
			rate = c.RateLimit.MinDelayFor(s.Provider)
		}
		reqs = append(reqs, ingest.Request{
			Provider: s.Provider,
			Source:   s.Source,
			Name:     s.Name,
			Rate:     rate,
		})
	}
	return reqs
}

func legacySources(provider string, values []string) []SourceConfig {
	var out []SourceConfig
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, SourceConfig{Provider: provider, Source: v, Enabled: true})
	}
	return out
}

var validate = func() func(cfg *Config) error {
	v := validator.New()
	return func(cfg *Config) error {
		if err := v.Struct(cfg); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				fe := verrs[0]
				return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
			}
			return fmt.Errorf("invalid config: %w", err)
		}

		enabled := 0
		seen := make(map[string]bool)
		for _, s := range cfg.Sources {
			key := s.Provider + ":" + s.Source
			if seen[key] {
				return fmt.Errorf("source %s listed twice", key)
			}
			seen[key] = true
			if s.Enabled {
				enabled++
			}
		}
		if enabled == 0 {
			return fmt.Errorf("at least one source must be enabled")
		}

		if cfg.Notification.Type == "slack" && !strings.HasPrefix(cfg.Notification.WebhookURL, slackWebhookPrefix) {
			return fmt.Errorf("notification.webhook_url must start with %s", slackWebhookPrefix)
		}
		return nil
	}
}()

func parseDuration(key, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", key, value, err)
	}
	return d, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
