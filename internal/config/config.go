package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Vision     VisionConfig     `yaml:"vision" mapstructure:"vision"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// VisionConfig selects the image-understanding provider and bounds its calls.
type VisionConfig struct {
	Provider                string  `yaml:"provider" mapstructure:"provider"`
	ClassifyTimeoutSecs     int     `yaml:"classify_timeout_secs" mapstructure:"classify_timeout_secs"`
	AnalyzeTimeoutSecs      int     `yaml:"analyze_timeout_secs" mapstructure:"analyze_timeout_secs"`
	AggregateTimeoutSecs    int     `yaml:"aggregate_timeout_secs" mapstructure:"aggregate_timeout_secs"`
	RequestsPerSecond       float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst                   int     `yaml:"burst" mapstructure:"burst"`
	CircuitFailureThreshold int     `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	ClassifyModel  string `yaml:"classify_model" mapstructure:"classify_model"`
	AnalyzeModel   string `yaml:"analyze_model" mapstructure:"analyze_model"`
	AggregateModel string `yaml:"aggregate_model" mapstructure:"aggregate_model"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	ClassifyModel  string `yaml:"classify_model" mapstructure:"classify_model"`
	AnalyzeModel   string `yaml:"analyze_model" mapstructure:"analyze_model"`
	AggregateModel string `yaml:"aggregate_model" mapstructure:"aggregate_model"`
}

// GoogleConfig holds Google Places API settings used by the scan command.
type GoogleConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RadiusMeters int     `yaml:"radius_meters" mapstructure:"radius_meters"`
	MaxResults   int     `yaml:"max_results" mapstructure:"max_results"`
	MaxPhotos    int     `yaml:"max_photos" mapstructure:"max_photos"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RedisConfig configures the optional cross-process run lock.
type RedisConfig struct {
	Addr        string `yaml:"addr" mapstructure:"addr"`
	Password    string `yaml:"password" mapstructure:"password"`
	DB          int    `yaml:"db" mapstructure:"db"`
	LockTTLSecs int    `yaml:"lock_ttl_secs" mapstructure:"lock_ttl_secs"`
}

// PricingConfig holds per-model token pricing.
type PricingConfig struct {
	Models        map[string]ModelPricing `yaml:"models" mapstructure:"models"`
	FallbackPer1K float64                 `yaml:"fallback_per_1k" mapstructure:"fallback_per_1k"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PipelineConfig configures the extraction run.
type PipelineConfig struct {
	EntityWorkers         int     `yaml:"entity_workers" mapstructure:"entity_workers"`
	ClassifyWorkers       int     `yaml:"classify_workers" mapstructure:"classify_workers"`
	AnalyzeWorkers        int     `yaml:"analyze_workers" mapstructure:"analyze_workers"`
	MaxPhotos             int     `yaml:"max_photos" mapstructure:"max_photos"`
	AggregationMode       string  `yaml:"aggregation_mode" mapstructure:"aggregation_mode"`
	SimilarityThreshold   float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	PrimaryPhotoPattern   string  `yaml:"primary_photo_pattern" mapstructure:"primary_photo_pattern"`
	SecondaryPhotoPattern string  `yaml:"secondary_photo_pattern" mapstructure:"secondary_photo_pattern"`
	RunTimeoutSecs        int     `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
	HeartbeatSecs         int     `yaml:"heartbeat_secs" mapstructure:"heartbeat_secs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	StuckAfterMins       int     `yaml:"stuck_after_mins" mapstructure:"stuck_after_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml in the working directory (if
// present) and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. Unlike the default
// config.yaml, an explicit file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("MENU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("vision.provider", "anthropic")
	v.SetDefault("vision.classify_timeout_secs", 30)
	v.SetDefault("vision.analyze_timeout_secs", 90)
	v.SetDefault("vision.aggregate_timeout_secs", 120)
	v.SetDefault("vision.requests_per_second", 5.0)
	v.SetDefault("vision.burst", 5)
	v.SetDefault("vision.circuit_failure_threshold", 8)
	v.SetDefault("vision.circuit_reset_secs", 30)
	v.SetDefault("anthropic.classify_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.analyze_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.aggregate_model", "claude-haiku-4-5-20251001")
	v.SetDefault("openai.classify_model", "gpt-4.1-mini")
	v.SetDefault("openai.analyze_model", "gpt-4.1")
	v.SetDefault("openai.aggregate_model", "gpt-4.1")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.radius_meters", 1500)
	v.SetDefault("google.max_results", 20)
	v.SetDefault("google.rate_limit", 10)
	v.SetDefault("google.max_photos", 10)
	v.SetDefault("redis.lock_ttl_secs", 900)
	v.SetDefault("pricing.fallback_per_1k", 0.003)
	v.SetDefault("pipeline.entity_workers", 3)
	v.SetDefault("pipeline.classify_workers", 5)
	v.SetDefault("pipeline.analyze_workers", 3)
	v.SetDefault("pipeline.max_photos", 0)
	v.SetDefault("pipeline.aggregation_mode", "llm")
	v.SetDefault("pipeline.similarity_threshold", 0.75)
	v.SetDefault("pipeline.primary_photo_pattern", `googleusercontent\.com/p/`)
	v.SetDefault("pipeline.secondary_photo_pattern", `googleusercontent\.com/gps-cs-s/`)
	v.SetDefault("pipeline.run_timeout_secs", 900)
	v.SetDefault("pipeline.heartbeat_secs", 60)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 50.0)
	v.SetDefault("monitoring.stuck_after_mins", 30)

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

// minHeartbeatsPerSweep is how many missed heartbeats mark a claim stale.
const minHeartbeatsPerSweep = 3

// Validate checks the settings a command mode needs. Modes: "store" checks
// the database only; "process" adds the vision provider and pipeline bounds;
// "serve" adds the listen port; "scan" adds the Google key; "vision" checks the
// provider alone.
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore := mode == "store" || mode == "process" || mode == "serve" || mode == "scan"
	needVision := mode == "process" || mode == "serve" || mode == "scan" || mode == "vision"

	if needStore && c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if needVision {
		switch c.Vision.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required")
			}
		case "openai":
			if c.OpenAI.Key == "" {
				errs = append(errs, "openai.key is required")
			}
		default:
			errs = append(errs, "vision.provider must be anthropic or openai")
		}

		if c.Pipeline.EntityWorkers < 1 || c.Pipeline.ClassifyWorkers < 1 || c.Pipeline.AnalyzeWorkers < 1 {
			errs = append(errs, "pipeline worker counts must be at least 1")
		}
		if c.Pipeline.AggregationMode != "llm" && c.Pipeline.AggregationMode != "local" {
			errs = append(errs, "pipeline.aggregation_mode must be llm or local")
		}
		if c.Pipeline.SimilarityThreshold <= 0 || c.Pipeline.SimilarityThreshold > 1 {
			errs = append(errs, "pipeline.similarity_threshold must be in (0, 1]")
		}
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	// The stale sweep must not catch claims that are still being refreshed.
	if mode == "serve" && c.Monitoring.Enabled && c.Monitoring.StuckAfterMins > 0 {
		heartbeat := c.Pipeline.HeartbeatSecs
		if heartbeat <= 0 {
			heartbeat = 60
		}
		if c.Monitoring.StuckAfterMins*60 < minHeartbeatsPerSweep*heartbeat {
			errs = append(errs, fmt.Sprintf(
				"monitoring.stuck_after_mins must be at least %d pipeline.heartbeat_secs (%ds)",
				minHeartbeatsPerSweep, minHeartbeatsPerSweep*heartbeat))
		}
	}

	if mode == "scan" && c.Google.Key == "" {
		errs = append(errs, "google.key is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
