// Package config loads and validates the tender-radar configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/tender-radar/internal/filter"
	"github.com/jonathan/tender-radar/internal/llm"
	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/retry"
	"github.com/jonathan/tender-radar/internal/sources"
)

// Config is the complete application configuration. Thresholds and keyword lists
// live here and are passed to components explicitly.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	// MemoryPath is the snapshot file used with the in-memory store.
	MemoryPath string `yaml:"memory_path"`

	Keywords       KeywordsConfig       `yaml:"keywords"`
	CategoryCodes  []string             `yaml:"category_codes"`
	Window         WindowConfig         `yaml:"window"`
	Classification ClassificationConfig `yaml:"classification"`
	LLM            llm.Config           `yaml:"llm"`
	Sources        []sources.Config     `yaml:"sources" validate:"dive"`
	Retry          retry.Config         `yaml:"retry"`
	HTTP           HTTPConfig           `yaml:"http"`
	Notify         NotifyConfig         `yaml:"notify"`
	Schedule       string               `yaml:"schedule"`
	Log            logger.Config        `yaml:"log"`
	Server         ServerConfig         `yaml:"server"`
	JWT            JWTConfig            `yaml:"jwt"`
}

// KeywordsConfig holds the include and exclude term lists.
type KeywordsConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// WindowConfig bounds the publication dates requested from sources.
type WindowConfig struct {
	LookbackDays int `yaml:"lookback_days" validate:"gte=0"`
	PageSize     int `yaml:"page_size" validate:"gte=0"`
}

// ClassificationConfig configures both classification tiers.
type ClassificationConfig struct {
	ServiceCatalogue []string `yaml:"service_catalogue"`
	CuratedKeywords  []string `yaml:"curated_keywords"`
	// SimilarityThreshold is the cosine similarity a fallback verdict needs to be relevant.
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gte=0,lte=1"`
	// ConfidenceFloor filters exports and notifications (0-100).
	ConfidenceFloor float64 `yaml:"confidence_floor" validate:"gte=0,lte=100"`
	// PromotionThreshold is the primary confidence needed to promote a tender to an exemplar (0-100).
	PromotionThreshold float64       `yaml:"promotion_threshold" validate:"gte=0,lte=100"`
	ExemplarsPath      string        `yaml:"exemplars_path"`
	Timeout            time.Duration `yaml:"timeout"`
	Reprompt           bool          `yaml:"reprompt"`
}

// HTTPConfig configures outbound requests to sources.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// NotifyConfig configures Telegram notifications. The bot token only comes from
// the environment.
type NotifyConfig struct {
	TelegramToken  string `yaml:"-"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

// Enabled reports whether notifications can be sent.
func (n NotifyConfig) Enabled() bool {
	return n.TelegramToken != "" && n.TelegramChatID != 0
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port              int     `yaml:"port" validate:"gte=0,lte=65535"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		MemoryPath: filepath.Join("data", "store.json"),
		Window:     WindowConfig{LookbackDays: 7, PageSize: sources.DefaultPageSize},
		Classification: ClassificationConfig{
			SimilarityThreshold: 0.3,
			ConfidenceFloor:     60,
			PromotionThreshold:  80,
			ExemplarsPath:       filepath.Join("data", "exemplars.json"),
			Timeout:             60 * time.Second,
			Reprompt:            true,
		},
		LLM:    llm.Config{Provider: llm.ProviderGemini},
		Retry:  retry.DefaultConfig(),
		HTTP:   HTTPConfig{Timeout: 30 * time.Second},
		Log:    logger.Config{Level: logger.DefaultLevel},
		Server: ServerConfig{Port: 8080, RequestsPerSecond: 5, Burst: 10},
		JWT:    JWTConfig{ExpirationHours: DefaultJWTExpirationHours},
	}
}

// LoadConfig reads a YAML or JSON file over the defaults and applies environment
// overrides. JSON is parsed as YAML.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load returns LoadConfig(path), or the defaults with environment overrides when
// path is empty.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadConfig(path)
	}
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		p, err := llm.ParseProvider(v)
		if err != nil {
			return fmt.Errorf("LLM_PROVIDER: %w", err)
		}
		if p != c.LLM.Provider {
			c.LLM.Provider = p
			c.LLM.Models = nil
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	c.Notify.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		c.Notify.TelegramChatID = id
	}
	return c.JWT.applyEnv()
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("config error: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config error: %w", err)
	}

	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if seen[s.Name] {
			return fmt.Errorf("config error: duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("config error: invalid schedule %q: %w", c.Schedule, err)
		}
	}
	if _, err := llm.ParseProvider(string(c.LLM.Provider)); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config error: retry.max_attempts must be at least 1")
	}
	return nil
}

// Filter returns the keyword/category filter configuration.
func (c *Config) Filter() filter.Config {
	return filter.Config{
		Include:       c.Keywords.Include,
		Exclude:       c.Keywords.Exclude,
		CategoryCodes: c.CategoryCodes,
	}
}

// FilterParams returns the source request window ending at now.
func (c *Config) FilterParams(now time.Time) sources.FilterParams {
	p := sources.FilterParams{
		CategoryCodes: c.CategoryCodes,
		Keywords:      c.Keywords.Include,
		PageSize:      c.Window.PageSize,
	}
	if c.Window.LookbackDays > 0 {
		from := now.AddDate(0, 0, -c.Window.LookbackDays)
		p.From = &from
		p.To = &now
	}
	return p
}

// EnabledSources returns the sources not marked disabled.
func (c *Config) EnabledSources() []sources.Config {
	var out []sources.Config
	for _, s := range c.Sources {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// LLMAPIKey returns the API key for the configured provider from the environment.
func (c *Config) LLMAPIKey() string {
	return os.Getenv(c.LLM.Provider.APIKeyEnv())
}
