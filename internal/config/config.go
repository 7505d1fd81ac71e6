// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Parser    ParserConfig    `mapstructure:"parser"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ParserConfig governs dispatcher and worker-pool behavior.
type ParserConfig struct {
	Concurrency   int `mapstructure:"concurrency"`
	QueueDepth    int `mapstructure:"queue_depth"`
	MinTextChars  int `mapstructure:"min_text_chars"`
	MaxInputChars int `mapstructure:"max_input_chars"`
	MaxFileSizeMB int `mapstructure:"max_file_size_mb"`
}

// CacheConfig bounds the extraction cache.
type CacheConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
	MaxEntries int `mapstructure:"max_entries"`
}

// StorageConfig sets the content-store location and toggle.
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseDir string `mapstructure:"base_dir"`
}

// DBConfig controls access to the relational job ledger.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// OpenAIConfig configures the analysis engine client.
type OpenAIConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// ExtractorConfig configures the remote document-extraction client.
type ExtractorConfig struct {
	ServiceURL     string `mapstructure:"service_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCPARSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("parser.concurrency", 4)
	v.SetDefault("parser.queue_depth", 64)
	v.SetDefault("parser.min_text_chars", 10)
	v.SetDefault("parser.max_input_chars", 5000)
	v.SetDefault("parser.max_file_size_mb", 10)
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.base_dir", "uploads")
	v.SetDefault("db.table", "parse_jobs")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 3000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.timeout_seconds", 60)
	v.SetDefault("extractor.timeout_seconds", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Parser.Concurrency <= 0 {
		return fmt.Errorf("parser.concurrency must be > 0")
	}
	if c.Parser.QueueDepth <= 0 {
		return fmt.Errorf("parser.queue_depth must be > 0")
	}
	if c.Parser.MaxFileSizeMB <= 0 {
		return fmt.Errorf("parser.max_file_size_mb must be > 0")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be > 0")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be > 0")
	}
	if c.Storage.Enabled && strings.TrimSpace(c.Storage.BaseDir) == "" {
		return fmt.Errorf("storage.base_dir must be set when storage is enabled")
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return fmt.Errorf("openai.temperature must be between 0 and 2")
	}
	if c.OpenAI.TimeoutSeconds <= 0 {
		return fmt.Errorf("openai.timeout_seconds must be > 0")
	}
	return nil
}

// CacheTTL returns the configured cache time-to-live.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// AnalysisTimeout bounds a single analysis engine call.
func (c Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.OpenAI.TimeoutSeconds) * time.Second
}

// ExtractionTimeout bounds a single remote extraction call.
func (c Config) ExtractionTimeout() time.Duration {
	return time.Duration(c.Extractor.TimeoutSeconds) * time.Second
}

// MaxFileSizeBytes converts the upload cap to bytes.
func (c Config) MaxFileSizeBytes() int64 {
	return int64(c.Parser.MaxFileSizeMB) << 20
}
