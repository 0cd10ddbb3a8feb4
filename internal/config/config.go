package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Screenshot ScreenshotConfig `yaml:"screenshot" mapstructure:"screenshot"`
	Aggregate  AggregateConfig  `yaml:"aggregate" mapstructure:"aggregate"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	UploadRatePerMin int      `yaml:"upload_rate_per_min" mapstructure:"upload_rate_per_min"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// OCRConfig configures per-region text recognition.
type OCRConfig struct {
	Provider          string `yaml:"provider" mapstructure:"provider"`
	TesseractPath     string `yaml:"tesseract_path" mapstructure:"tesseract_path"`
	Language          string `yaml:"language" mapstructure:"language"`
	RegionTimeoutSecs int    `yaml:"region_timeout_secs" mapstructure:"region_timeout_secs"`
	TempDir           string `yaml:"temp_dir" mapstructure:"temp_dir"`
	MaxAttempts       int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// RegionTimeout returns the per-region OCR deadline.
func (c OCRConfig) RegionTimeout() time.Duration {
	return time.Duration(c.RegionTimeoutSecs) * time.Second
}

// AnthropicConfig holds Anthropic API settings for the vision OCR provider.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ScreenshotConfig configures uploads and the background extraction queue.
type ScreenshotConfig struct {
	UploadDir             string  `yaml:"upload_dir" mapstructure:"upload_dir"`
	MaxUploadMB           int     `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	Workers               int     `yaml:"workers" mapstructure:"workers"`
	QueueSize             int     `yaml:"queue_size" mapstructure:"queue_size"`
	ManualReviewThreshold float64 `yaml:"manual_review_threshold" mapstructure:"manual_review_threshold"`
	ResolveWorkerNames    bool    `yaml:"resolve_worker_names" mapstructure:"resolve_worker_names"`
	StaleAfterMins        int     `yaml:"stale_after_mins" mapstructure:"stale_after_mins"`
	SweepIntervalSecs     int     `yaml:"sweep_interval_secs" mapstructure:"sweep_interval_secs"`
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c ScreenshotConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// AggregateConfig configures the summary engine.
type AggregateConfig struct {
	CacheTTLSecs   int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	ResyncParallel int `yaml:"resync_parallel" mapstructure:"resync_parallel"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LOOMTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.upload_rate_per_min", 30)
	v.SetDefault("ocr.provider", "tesseract")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.region_timeout_secs", 30)
	v.SetDefault("ocr.temp_dir", "")
	v.SetDefault("ocr.max_attempts", 2)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("screenshot.upload_dir", "uploads/screenshots")
	v.SetDefault("screenshot.max_upload_mb", 10)
	v.SetDefault("screenshot.workers", 2)
	v.SetDefault("screenshot.queue_size", 64)
	v.SetDefault("screenshot.manual_review_threshold", 50)
	v.SetDefault("screenshot.resolve_worker_names", false)
	v.SetDefault("screenshot.stale_after_mins", 15)
	v.SetDefault("screenshot.sweep_interval_secs", 60)
	v.SetDefault("aggregate.cache_ttl_secs", 300)
	v.SetDefault("aggregate.resync_parallel", 4)

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

// Validate checks the settings a command mode depends on. Mode "serve"
// covers the store, HTTP and extraction settings; "store" covers commands
// that only need the database.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.UploadRatePerMin < 0 {
			errs = append(errs, "server.upload_rate_per_min must be >= 0")
		}
		errs = append(errs, c.validateOCR()...)
		if c.Screenshot.Workers < 1 || c.Screenshot.Workers > 32 {
			errs = append(errs, "screenshot.workers must be between 1 and 32")
		}
		if c.Screenshot.QueueSize < 1 {
			errs = append(errs, "screenshot.queue_size must be >= 1")
		}
		if c.Screenshot.MaxUploadMB < 1 {
			errs = append(errs, "screenshot.max_upload_mb must be >= 1")
		}
		if c.Screenshot.ManualReviewThreshold < 0 || c.Screenshot.ManualReviewThreshold > 100 {
			errs = append(errs, "screenshot.manual_review_threshold must be between 0 and 100")
		}
	case "store":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "sqlite":
	default:
		return []string{"store.driver must be postgres or sqlite"}
	}
	return nil
}

func (c *Config) validateOCR() []string {
	var errs []string
	switch c.OCR.Provider {
	case "tesseract":
		if c.OCR.TesseractPath == "" {
			errs = append(errs, "ocr.tesseract_path is required")
		}
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	default:
		errs = append(errs, "ocr.provider must be tesseract or anthropic")
	}
	if c.OCR.RegionTimeoutSecs <= 0 {
		errs = append(errs, "ocr.region_timeout_secs must be > 0")
	}
	return errs
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
