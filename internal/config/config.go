// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override; .env files loaded via godotenv)
//  2. Config file (~/.ara/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Model: Groq model selection, fallback model, temperature, turn limit
//   - Tools: API keys and endpoints for the search providers
//   - Embedding: HuggingFace inference model, batch size, retry budget
//   - Storage: PostgreSQL connection for checkpoints and the vector index
//   - Tracing: OTLP exporter endpoint (optional)
//
// Sensitive values (API keys, passwords) are masked in MarshalJSON and never
// logged in clear.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTurns indicates the agentic loop bound is out of range.
	ErrInvalidMaxTurns = errors.New("invalid max turns")

	// ErrInvalidTopK indicates the retrieval top-k value is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top k")

	// ErrInvalidChunking indicates chunk size/overlap values are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")
)

const (
	// DefaultModel is the primary Groq model.
	DefaultModel = "llama-3.3-70b-versatile"

	// DefaultFallbackModel is used when the primary model is unavailable.
	DefaultFallbackModel = "llama-3.1-8b-instant"

	// DefaultEmbedderModel is the HuggingFace embedding model (384 dimensions).
	DefaultEmbedderModel = "BAAI/bge-small-en-v1.5"

	// DefaultMaxTurns bounds the chat/tool loop per user message.
	DefaultMaxTurns = 8

	// MaxAllowedTurns is the absolute maximum for the loop bound.
	MaxAllowedTurns = 32
)

// Config stores application configuration.
// Sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Model configuration
	GroqAPIKey       string  `mapstructure:"groq_api_key" json:"groq_api_key"`               // SENSITIVE
	GroqAPIKeyBackup string  `mapstructure:"groq_api_key_backup" json:"groq_api_key_backup"` // SENSITIVE
	ModelName        string  `mapstructure:"model_name" json:"model_name"`
	FallbackModel    string  `mapstructure:"fallback_model" json:"fallback_model"`
	Temperature      float32 `mapstructure:"temperature" json:"temperature"`
	MaxTurns         int     `mapstructure:"max_turns" json:"max_turns"`

	// Tool provider configuration
	SerperAPIKey       string `mapstructure:"serper_api_key" json:"serper_api_key"`               // SENSITIVE
	NewsAPIKey         string `mapstructure:"newsapi_key" json:"newsapi_key"`                     // SENSITIVE
	TavilyAPIKey       string `mapstructure:"tavily_api_key" json:"tavily_api_key"`               // SENSITIVE
	AlphaVantageAPIKey string `mapstructure:"alphavantage_api_key" json:"alphavantage_api_key"`   // SENSITIVE

	// Embedding configuration
	HuggingFaceAPIKey string `mapstructure:"huggingface_api_key" json:"huggingface_api_key"` // SENSITIVE
	EmbedderModel     string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedBatchSize    int    `mapstructure:"embed_batch_size" json:"embed_batch_size"`

	// Retrieval configuration
	RetrievalTopK int `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	ChunkSize     int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap  int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Tracing configuration (optional; empty endpoint disables tracing)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`

	// HTTP API configuration (serve mode)
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"` // e.g. "localhost:4318"
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode)
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	// Best-effort .env loading; absence is normal outside development.
	_ = godotenv.Load()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".ara")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults + env apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Model defaults
	v.SetDefault("model_name", DefaultModel)
	v.SetDefault("fallback_model", DefaultFallbackModel)
	v.SetDefault("temperature", 0.25)
	v.SetDefault("max_turns", DefaultMaxTurns)

	// Embedding defaults
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embed_batch_size", 16)

	// Retrieval defaults
	v.SetDefault("retrieval_top_k", 4)
	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)

	// PostgreSQL defaults for local development
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "ara")
	v.SetDefault("postgres_password", "ara_dev_password")
	v.SetDefault("postgres_db_name", "ara")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Tracing defaults (disabled unless endpoint set)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "ara")
	v.SetDefault("tracing.environment", "dev")

	// Serve mode defaults
	v.SetDefault("listen_addr", "127.0.0.1:3400")
}

// bindEnvVariables binds environment variables explicitly.
// Secrets are only ever provided through the environment (or .env), never
// written to the config file.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("groq_api_key", "GROQ_API_KEY")
	mustBind("groq_api_key_backup", "GROQ_API_KEY_BACKUP")
	mustBind("serper_api_key", "SERPER_API_KEY")
	mustBind("newsapi_key", "NEWSAPI_KEY")
	mustBind("tavily_api_key", "TAVILY_API_KEY")
	mustBind("alphavantage_api_key", "ALPHAVANTAGE_API_KEY")
	mustBind("huggingface_api_key", "HUGGINGFACE_API_KEY")
	mustBind("postgres_password", "ARA_POSTGRES_PASSWORD")

	mustBind("model_name", "ARA_MODEL_NAME")
	mustBind("fallback_model", "ARA_FALLBACK_MODEL")
	mustBind("listen_addr", "ARA_LISTEN_ADDR")
	mustBind("tracing.endpoint", "ARA_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new secrets to Config, mask them here.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(*c)
	masked.GroqAPIKey = maskSecret(c.GroqAPIKey)
	masked.GroqAPIKeyBackup = maskSecret(c.GroqAPIKeyBackup)
	masked.SerperAPIKey = maskSecret(c.SerperAPIKey)
	masked.NewsAPIKey = maskSecret(c.NewsAPIKey)
	masked.TavilyAPIKey = maskSecret(c.TavilyAPIKey)
	masked.AlphaVantageAPIKey = maskSecret(c.AlphaVantageAPIKey)
	masked.HuggingFaceAPIKey = maskSecret(c.HuggingFaceAPIKey)
	masked.PostgresPassword = maskSecret(c.PostgresPassword)
	return json.Marshal(masked)
}
