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
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Kakao   KakaoConfig   `yaml:"kakao" mapstructure:"kakao"`
	Analyze AnalyzeConfig `yaml:"analyze" mapstructure:"analyze"`
	Search  SearchConfig  `yaml:"search" mapstructure:"search"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the entity store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// KakaoConfig holds geocoding API settings.
type KakaoConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	MinIntervalMS int    `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnalyzeConfig configures file analysis.
type AnalyzeConfig struct {
	UploadDir    string `yaml:"upload_dir" mapstructure:"upload_dir"`
	CacheDir     string `yaml:"cache_dir" mapstructure:"cache_dir"`
	AuditPath    string `yaml:"audit_path" mapstructure:"audit_path"`
	MaxUploadMB  int    `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	SkipRows     int    `yaml:"skip_rows" mapstructure:"skip_rows"`
	BackfillSize int    `yaml:"backfill_size" mapstructure:"backfill_size"`
}

// SearchConfig configures result pages.
type SearchConfig struct {
	PerPage         int     `yaml:"per_page" mapstructure:"per_page"`
	DefaultRadiusKm float64 `yaml:"default_radius_km" mapstructure:"default_radius_km"`
}

// ServerConfig configures the HTTP server.
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
	v.SetEnvPrefix("APTLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "aptlens.db")
	v.SetDefault("kakao.base_url", "https://dapi.kakao.com/v2/local/search/address.json")
	v.SetDefault("kakao.min_interval_ms", 100)
	v.SetDefault("kakao.timeout_secs", 10)
	v.SetDefault("analyze.upload_dir", "uploads")
	v.SetDefault("analyze.cache_dir", "datasets")
	v.SetDefault("analyze.audit_path", "audit.jsonl")
	v.SetDefault("analyze.max_upload_mb", 32)
	v.SetDefault("analyze.skip_rows", 15)
	v.SetDefault("analyze.backfill_size", 500)
	v.SetDefault("search.per_page", 20)
	v.SetDefault("search.default_radius_km", 2.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
