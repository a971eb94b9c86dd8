package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Dataset DatasetConfig `yaml:"dataset" mapstructure:"dataset"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Engine  EngineConfig  `yaml:"engine" mapstructure:"engine"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the result database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DatasetConfig configures the bundled example dataset downloads.
type DatasetConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	CacheDir string `yaml:"cache_dir" mapstructure:"cache_dir"`
}

// FetchConfig configures remote file retrieval.
type FetchConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries           int     `yaml:"retries" mapstructure:"retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// EngineConfig holds default parameters for the scoring methods.
type EngineConfig struct {
	MaxCost        float64 `yaml:"max_cost" mapstructure:"max_cost"`
	RAAMTau        float64 `yaml:"raam_tau" mapstructure:"raam_tau"`
	RAAMMaxCycles  int     `yaml:"raam_max_cycles" mapstructure:"raam_max_cycles"`
	EuclidMaxDist  float64 `yaml:"euclid_max_dist" mapstructure:"euclid_max_dist"`
	Normalize      bool    `yaml:"normalize" mapstructure:"normalize"`
	WarnUncovered  bool    `yaml:"warn_uncovered" mapstructure:"warn_uncovered"`
	WeightsFile    string  `yaml:"weights_file" mapstructure:"weights_file"`
}

// ServerConfig configures the scoring HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return ".access-cache"
	}
	return filepath.Join(base, "spatial-access")
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ACCESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "access.db")
	v.SetDefault("dataset.base_url", "https://d2r7gabxtstf5s.cloudfront.net/ex_datasets/")
	v.SetDefault("dataset.cache_dir", defaultCacheDir())
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.retries", 3)
	v.SetDefault("fetch.requests_per_second", 4)
	v.SetDefault("engine.max_cost", 60)
	v.SetDefault("engine.raam_tau", 60)
	v.SetDefault("engine.raam_max_cycles", 150)
	v.SetDefault("engine.euclid_max_dist", 0)
	v.SetDefault("engine.warn_uncovered", true)
	v.SetDefault("engine.weights_file", "")
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

// Validate checks the fields a given run mode depends on. Modes map to
// the top-level commands: "score", "fetch", and "serve".
func (c *Config) Validate(mode string) error {
	var missing []string

	check := func(ok bool, msg string) {
		if !ok {
			missing = append(missing, msg)
		}
	}

	switch mode {
	case "score":
		check(c.Store.Driver == "sqlite" || c.Store.Driver == "postgres",
			"store.driver must be sqlite or postgres")
		check(c.Engine.MaxCost >= 0, "engine.max_cost must be >= 0")
		check(c.Engine.RAAMTau > 0, "engine.raam_tau must be > 0")
		check(c.Engine.RAAMMaxCycles > 0, "engine.raam_max_cycles must be > 0")
	case "fetch":
		check(c.Dataset.BaseURL != "", "dataset.base_url is required")
		check(c.Dataset.CacheDir != "", "dataset.cache_dir is required")
		check(c.Fetch.Retries >= 0, "fetch.retries must be >= 0")
		check(c.Fetch.RequestsPerSecond > 0, "fetch.requests_per_second must be > 0")
	case "serve":
		check(c.Server.Port > 0, "server.port must be > 0")
		check(c.Engine.RAAMTau > 0, "engine.raam_tau must be > 0")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
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
