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
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Scrapingdog ScrapingdogConfig `yaml:"scrapingdog" mapstructure:"scrapingdog"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Redis       RedisConfig       `yaml:"redis" mapstructure:"redis"`
	NATS        NATSConfig        `yaml:"nats" mapstructure:"nats"`
	Validation  ValidationConfig  `yaml:"validation" mapstructure:"validation"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
}

// ScrapingdogConfig holds the search proxy settings.
type ScrapingdogConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Country string `yaml:"country" mapstructure:"country"`
	Results int    `yaml:"results" mapstructure:"results"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	JudgeModel string `yaml:"judge_model" mapstructure:"judge_model"`
	MaxTokens  int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// RedisConfig configures the distributed discovery lock. An empty address
// disables locking.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// NATSConfig configures the task queue. An empty URL disables publishing.
type NATSConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// ValidationConfig tunes the batch validation runs.
type ValidationConfig struct {
	BatchSize        int `yaml:"batch_size" mapstructure:"batch_size"`
	BatchesPerMinute int `yaml:"batches_per_minute" mapstructure:"batches_per_minute"`
	TimeoutSecs      int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the review API server.
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
	v.SetEnvPrefix("LEADCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys with no natural default still need registering here;
	// AutomaticEnv only resolves keys viper already knows about.
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("scrapingdog.key", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("nats.url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("scrapingdog.base_url", "https://api.scrapingdog.com/google")
	v.SetDefault("scrapingdog.country", "us")
	v.SetDefault("scrapingdog.results", 10)
	v.SetDefault("anthropic.judge_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("validation.batch_size", 25)
	v.SetDefault("validation.batches_per_minute", 6)
	v.SetDefault("validation.timeout_secs", 10)

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
