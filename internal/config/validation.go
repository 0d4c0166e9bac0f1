package config

import (
	"fmt"
	"log/slog"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Model configuration.
	// GROQ_API_KEY is required for everything; the backup key is optional.
	if c.GroqAPIKey == "" && c.GroqAPIKeyBackup == "" {
		return fmt.Errorf("%w: GROQ_API_KEY environment variable is required\n"+
			"Get your API key at: https://console.groq.com/keys", ErrMissingAPIKey)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0.
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTurns < 1 || c.MaxTurns > MaxAllowedTurns {
		return fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidMaxTurns, MaxAllowedTurns, c.MaxTurns)
	}

	// Retrieval configuration.
	if c.RetrievalTopK <= 0 || c.RetrievalTopK > 10 {
		return fmt.Errorf("%w: must be between 1 and 10, got %d", ErrInvalidTopK, c.RetrievalTopK)
	}

	if c.ChunkSize < 100 || c.ChunkSize > 8192 {
		return fmt.Errorf("%w: chunk_size must be between 100 and 8192, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be non-negative and smaller than chunk_size, got %d",
			ErrInvalidChunking, c.ChunkOverlap)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// PostgreSQL configuration.
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "ara_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "change postgres_password for production deployments")
	}

	// Search provider keys are optional: tools degrade to an explanatory
	// payload when their key is missing, so the model can still reason.
	if c.SerperAPIKey == "" && c.NewsAPIKey == "" && c.TavilyAPIKey == "" {
		slog.Warn("No search provider API keys configured",
			"effect", "web_search, news_search and tavily_search will return 'not configured' payloads")
	}

	return nil
}
