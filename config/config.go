// Package config loads the runtime configuration from command line flags,
// the environment and an optional duan.yaml, in that order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/yaoapp/duan/errs"
)

// Defaults for the values a bare environment leaves unset.
const (
	DefaultUploadPath = "upload"
	DefaultAddress    = "0.0.0.0:42069"
	DefaultFembedURL  = "http://localhost:6969"
	DefaultLogLevel   = "info"

	DefaultBatchQueue       = 128
	DefaultBatchWorkers     = 2
	DefaultOperationTimeout = 5 * time.Minute
)

// Config carries everything the service needs to start.
type Config struct {
	DatabaseURL    string   `mapstructure:"database_url"`
	UploadPath     string   `mapstructure:"upload_path"`
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	LogLevel       string   `mapstructure:"log_level"`

	QdrantURL      string `mapstructure:"qdrant_url"`
	QdrantAPIKey   string `mapstructure:"qdrant_api_key"`
	WeaviateURL    string `mapstructure:"weaviate_url"`
	ChromemPath    string `mapstructure:"chromem_path"`
	VectorProvider string `mapstructure:"default_vector_provider"`

	FembedURL string `mapstructure:"fembed_url"`
	OpenAIKey string `mapstructure:"openai_key"`

	RedisURL string `mapstructure:"redis_url"`
	MongoURI string `mapstructure:"mongodb_uri"`

	BatchQueue       int           `mapstructure:"batch_queue"`
	BatchWorkers     int           `mapstructure:"batch_workers"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`

	SyncSchedule string `mapstructure:"sync_schedule"`
	Watch        bool   `mapstructure:"watch"`
}

// Load reads the configuration. Defaults are applied first, then the config
// file if one exists, then environment variables and bound flags. Every key
// maps to the environment variable of the same name in upper case.
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("duan")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/duan")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || cfgFile != "" {
			return nil, errs.New(errs.Validation, "read config: %s", err.Error())
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, errs.New(errs.Validation, "parse config: %s", err.Error())
	}

	cfg.AllowedOrigins = cleanOrigins(cfg.AllowedOrigins)
	return cfg, nil
}

// Validate reports configuration the service cannot start with.
func (cfg *Config) Validate() error {
	if cfg.DatabaseURL == "" {
		return errs.New(errs.Validation, "DATABASE_URL is required")
	}
	if cfg.BatchQueue < 1 {
		return errs.New(errs.Validation, "BATCH_QUEUE must be at least 1, got %d", cfg.BatchQueue)
	}
	if cfg.BatchWorkers < 1 {
		return errs.New(errs.Validation, "BATCH_WORKERS must be at least 1, got %d", cfg.BatchWorkers)
	}
	if cfg.OperationTimeout <= 0 {
		return errs.New(errs.Validation, "OPERATION_TIMEOUT must be positive, got %s", cfg.OperationTimeout)
	}

	switch cfg.VectorProvider {
	case "", "chromem":
	case "qdrant":
		if cfg.QdrantURL == "" {
			return errs.New(errs.Validation, "DEFAULT_VECTOR_PROVIDER is qdrant but QDRANT_URL is not set")
		}
	case "weaviate":
		if cfg.WeaviateURL == "" {
			return errs.New(errs.Validation, "DEFAULT_VECTOR_PROVIDER is weaviate but WEAVIATE_URL is not set")
		}
	default:
		return errs.New(errs.InvalidProvider, "unknown vector provider %q", cfg.VectorProvider)
	}
	return nil
}

// DefaultVectorProvider returns the provider the default collection lives
// on. Explicit configuration wins, otherwise the first configured remote
// store, falling back to the embedded one.
func (cfg *Config) DefaultVectorProvider() string {
	if cfg.VectorProvider != "" {
		return cfg.VectorProvider
	}
	if cfg.QdrantURL != "" {
		return "qdrant"
	}
	if cfg.WeaviateURL != "" {
		return "weaviate"
	}
	return "chromem"
}

func setDefaults() {
	viper.SetDefault("database_url", "")
	viper.SetDefault("upload_path", DefaultUploadPath)
	viper.SetDefault("address", DefaultAddress)
	viper.SetDefault("allowed_origins", []string{})
	viper.SetDefault("log_level", DefaultLogLevel)

	viper.SetDefault("qdrant_url", "")
	viper.SetDefault("qdrant_api_key", "")
	viper.SetDefault("weaviate_url", "")
	viper.SetDefault("chromem_path", "")
	viper.SetDefault("default_vector_provider", "")

	viper.SetDefault("fembed_url", DefaultFembedURL)
	viper.SetDefault("openai_key", "")

	viper.SetDefault("redis_url", "")
	viper.SetDefault("mongodb_uri", "")

	viper.SetDefault("batch_queue", DefaultBatchQueue)
	viper.SetDefault("batch_workers", DefaultBatchWorkers)
	viper.SetDefault("operation_timeout", DefaultOperationTimeout)

	viper.SetDefault("sync_schedule", "")
	viper.SetDefault("watch", false)
}

// cleanOrigins drops the empty entries a trailing comma or a blank
// ALLOWED_ORIGINS leaves behind.
func cleanOrigins(origins []string) []string {
	out := origins[:0]
	for _, origin := range origins {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}
