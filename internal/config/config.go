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
	Firecrawl FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Loader    LoaderConfig    `yaml:"loader" mapstructure:"loader"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// LoaderConfig configures page loading behavior.
type LoaderConfig struct {
	Mode             string   `yaml:"mode" mapstructure:"mode"`
	MaxPages         int      `yaml:"max_pages" mapstructure:"max_pages"`
	MaxDepth         int      `yaml:"max_depth" mapstructure:"max_depth"`
	DelaySecs        float64  `yaml:"delay_secs" mapstructure:"delay_secs"`
	WaitForMs        int      `yaml:"wait_for_ms" mapstructure:"wait_for_ms"`
	ExcludeTags      []string `yaml:"exclude_tags" mapstructure:"exclude_tags"`
	PollIntervalSecs int      `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollTimeoutSecs  int      `yaml:"poll_timeout_secs" mapstructure:"poll_timeout_secs"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentSources int `yaml:"max_concurrent_sources" mapstructure:"max_concurrent_sources"`
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
	v.SetEnvPrefix("WEBLOADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev")
	v.SetDefault("loader.mode", "scrape")
	v.SetDefault("loader.max_pages", 1000)
	v.SetDefault("loader.max_depth", 10)
	v.SetDefault("loader.delay_secs", 0.1)
	v.SetDefault("loader.wait_for_ms", 500)
	v.SetDefault("loader.exclude_tags", []string{"nav", "footer", "aside"})
	v.SetDefault("loader.poll_interval_secs", 5)
	v.SetDefault("loader.poll_timeout_secs", 600)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "webloader.db")
	v.SetDefault("batch.max_concurrent_sources", 5)
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

// Validate checks the settings a command depends on. mode selects the
// command family: "load" covers load and batch, "serve" the HTTP server.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Firecrawl.Key == "" {
		problems = append(problems, "firecrawl.key is required")
	}
	if c.Loader.Mode != "scrape" && c.Loader.Mode != "crawl" {
		problems = append(problems, "loader.mode must be scrape or crawl")
	}
	if c.Loader.PollIntervalSecs <= 0 {
		problems = append(problems, "loader.poll_interval_secs must be > 0")
	}
	if c.Loader.PollTimeoutSecs <= 0 {
		problems = append(problems, "loader.poll_timeout_secs must be > 0")
	}

	switch mode {
	case "load":
		if c.Batch.MaxConcurrentSources < 1 || c.Batch.MaxConcurrentSources > 50 {
			problems = append(problems, "batch.max_concurrent_sources must be between 1 and 50")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
