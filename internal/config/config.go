package config

import (
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ahermangesh/Leads/internal/cost"
	"github.com/ahermangesh/Leads/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Oracle     OracleConfig     `yaml:"oracle" mapstructure:"oracle"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Contact    ContactConfig    `yaml:"contact" mapstructure:"contact"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Outreach   OutreachConfig   `yaml:"outreach" mapstructure:"outreach"`
	Sender     SenderConfig     `yaml:"sender" mapstructure:"sender"`
	Resend     ResendConfig     `yaml:"resend" mapstructure:"resend"`
	Memory     MemoryConfig     `yaml:"memory" mapstructure:"memory"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" mapstructure:"rate_limit"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`

	// Cost overrides or extends the built-in oracle pricing per model.
	Cost cost.Rates `yaml:"cost" mapstructure:"cost"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// NotionConfig holds Notion API credentials and the lead database ID.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// OracleConfig selects the reasoning oracle backend.
type OracleConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina AI Reader settings (fetch fallback).
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FirecrawlConfig holds Firecrawl settings (last-resort fetcher, enabled
// when a key is set).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GoogleConfig holds Google Places API settings (places lead source).
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FetchConfig configures the local page fetcher.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBytes    int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
}

// ContactConfig configures the contact resolver.
type ContactConfig struct {
	Paths []string `yaml:"paths" mapstructure:"paths"`
}

// ResearchConfig configures the research engine.
type ResearchConfig struct {
	MaxContentChars int `yaml:"max_content_chars" mapstructure:"max_content_chars"`
	MaxAttempts     int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ScoringConfig configures the quality scorer and approval gate.
type ScoringConfig struct {
	Weights       model.Weights `yaml:"weights" mapstructure:"weights"`
	Threshold     int           `yaml:"threshold" mapstructure:"threshold"`
	AutoThreshold int           `yaml:"auto_threshold" mapstructure:"auto_threshold"`
	BulkMinScore  int           `yaml:"bulk_min_score" mapstructure:"bulk_min_score"`
}

// OutreachConfig configures draft generation and the compliance footer.
type OutreachConfig struct {
	SenderName      string `yaml:"sender_name" mapstructure:"sender_name"`
	SenderEmail     string `yaml:"sender_email" mapstructure:"sender_email"`
	SenderAddress   string `yaml:"sender_address" mapstructure:"sender_address"`
	MaxSubjectChars int    `yaml:"max_subject_chars" mapstructure:"max_subject_chars"`
	MaxBodyWords    int    `yaml:"max_body_words" mapstructure:"max_body_words"`
	Strategy        string `yaml:"strategy" mapstructure:"strategy"`
	Tone            string `yaml:"tone" mapstructure:"tone"`
	PromptsFile     string `yaml:"prompts_file" mapstructure:"prompts_file"`
}

// SenderConfig configures delivery quotas and pacing.
type SenderConfig struct {
	Provider         string `yaml:"provider" mapstructure:"provider"`
	DailyQuota       int    `yaml:"daily_quota" mapstructure:"daily_quota"`
	MonthlyQuota     int    `yaml:"monthly_quota" mapstructure:"monthly_quota"`
	DelayBetweenSecs int    `yaml:"delay_between_secs" mapstructure:"delay_between_secs"`
}

// ResendConfig holds Resend API settings.
type ResendConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// MemoryConfig configures the outcome memory and recommendations.
type MemoryConfig struct {
	MinSamples      int    `yaml:"min_samples" mapstructure:"min_samples"`
	DefaultStrategy string `yaml:"default_strategy" mapstructure:"default_strategy"`
	DefaultTone     string `yaml:"default_tone" mapstructure:"default_tone"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Size                int `yaml:"size" mapstructure:"size"`
	Workers             int `yaml:"workers" mapstructure:"workers"`
	ApprovalTimeoutSecs int `yaml:"approval_timeout_secs" mapstructure:"approval_timeout_secs"`
}

// RetryConfig configures the shared retry policy.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	CallTimeoutSecs  int     `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
}

// RateLimitConfig configures the shared external-call limiter.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" mapstructure:"per_second"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures the periodic store health check.
type MonitoringConfig struct {
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackHours        int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultContactPaths are probed in order when contact.paths is unset.
var DefaultContactPaths = []string{
	"/", "/contact", "/contact-us", "/contactus", "/about", "/about-us",
	"/aboutus", "/team", "/our-team", "/leadership", "/get-in-touch", "/reach-us",
}

// Load reads configuration from config.yaml (optional) and LEADS_* env vars.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. Unlike the default
// ./config.yaml, an explicit file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leads.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("oracle.provider", "anthropic")
	v.SetDefault("oracle.max_tokens", 1024)
	v.SetDefault("oracle.temperature", 0.3)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; LeadsBot/1.0)")
	v.SetDefault("fetch.max_bytes", 512*1024)
	v.SetDefault("contact.paths", DefaultContactPaths)
	v.SetDefault("research.max_content_chars", 5000)
	v.SetDefault("research.max_attempts", 3)
	v.SetDefault("scoring.weights.contact", 0.30)
	v.SetDefault("scoring.weights.research", 0.30)
	v.SetDefault("scoring.weights.relevance", 0.25)
	v.SetDefault("scoring.weights.social", 0.15)
	v.SetDefault("scoring.threshold", 60)
	v.SetDefault("scoring.auto_threshold", 80)
	v.SetDefault("scoring.bulk_min_score", 70)
	v.SetDefault("outreach.max_subject_chars", 60)
	v.SetDefault("outreach.max_body_words", 500)
	v.SetDefault("sender.provider", "log")
	v.SetDefault("sender.daily_quota", 50)
	v.SetDefault("sender.monthly_quota", 1000)
	v.SetDefault("sender.delay_between_secs", 10)
	v.SetDefault("resend.base_url", "https://api.resend.com")
	v.SetDefault("memory.min_samples", 5)
	v.SetDefault("memory.default_strategy", string(model.StrategyValueProposition))
	v.SetDefault("memory.default_tone", string(model.ToneProfessional))
	v.SetDefault("batch.size", 25)
	v.SetDefault("batch.workers", 3)
	v.SetDefault("batch.approval_timeout_secs", 600)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.call_timeout_secs", 30)
	v.SetDefault("rate_limit.per_second", 5)
	v.SetDefault("rate_limit.burst", 1)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
}

// Validate checks the settings an operation needs. mode is "run" or "serve";
// both need the pipeline settings, and the generic checks always apply.
func (c *Config) Validate(mode string) error {
	var errs []string

	if err := ValidateWeights(c.Scoring.Weights); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Scoring.Threshold < 0 || c.Scoring.Threshold > 100 {
		errs = append(errs, "scoring.threshold must be within [0,100]")
	}
	if c.Scoring.AutoThreshold < c.Scoring.Threshold || c.Scoring.AutoThreshold > 101 {
		errs = append(errs, "scoring.auto_threshold must be within [threshold,101]")
	}
	if c.Batch.Workers <= 0 {
		errs = append(errs, "batch.workers must be positive")
	}
	if c.Batch.Size <= 0 {
		errs = append(errs, "batch.size must be positive")
	}
	if c.RateLimit.PerSecond < 0 {
		errs = append(errs, "rate_limit.per_second must not be negative")
	}
	if s := c.Outreach.Strategy; s != "" && !model.Strategy(s).Valid() {
		errs = append(errs, "outreach.strategy is not a known strategy: "+s)
	}
	if t := c.Outreach.Tone; t != "" && !model.Tone(t).Valid() {
		errs = append(errs, "outreach.tone is not a known tone: "+t)
	}
	if !model.Strategy(c.Memory.DefaultStrategy).Valid() {
		errs = append(errs, "memory.default_strategy is not a known strategy")
	}
	if !model.Tone(c.Memory.DefaultTone).Valid() {
		errs = append(errs, "memory.default_tone is not a known tone")
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}

	if mode == "run" || mode == "serve" {
		switch c.Oracle.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required")
			}
		case "gemini":
			if c.Gemini.Key == "" {
				errs = append(errs, "gemini.key is required")
			}
		default:
			errs = append(errs, "oracle.provider must be anthropic or gemini")
		}
		if c.Outreach.SenderName == "" || c.Outreach.SenderEmail == "" {
			errs = append(errs, "outreach.sender_name and outreach.sender_email are required")
		}
		switch c.Sender.Provider {
		case "log":
		case "resend":
			if c.Resend.Key == "" {
				errs = append(errs, "resend.key is required")
			}
		default:
			errs = append(errs, "sender.provider must be log or resend")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateWeights checks that every weight lies in [0,1] and that they sum to 1.0.
func ValidateWeights(w model.Weights) error {
	for name, v := range map[string]float64{
		"contact": w.Contact, "research": w.Research, "relevance": w.Relevance, "social": w.Social,
	} {
		if v < 0 || v > 1 {
			return eris.Errorf("scoring.weights.%s must be within [0,1], got %.4f", name, v)
		}
	}
	if math.Abs(w.Sum()-1.0) > 1e-9 {
		return eris.Errorf("scoring.weights must sum to 1.0, got %.4f", w.Sum())
	}
	return nil
}

// ApprovalTimeout returns the approval wait as a duration; zero waits until
// the run is cancelled.
func (c *Config) ApprovalTimeout() time.Duration {
	return time.Duration(c.Batch.ApprovalTimeoutSecs) * time.Second
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
