package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/xhad/vecingest/internal/types"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate inference config
	switch c.Inference.Backend {
	case "llamacpp", "ollama":
	default:
		errors = append(errors, ValidationError{
			Field:   "inference.backend",
			Message: fmt.Sprintf("unknown backend %q, want llamacpp or ollama", c.Inference.Backend),
		})
	}

	if !validHTTPURL(c.Inference.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "inference.base_url",
			Message: "invalid inference service URL",
		})
	}

	if c.Inference.Backend == "ollama" && c.Inference.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "inference.model",
			Message: "model is required for the ollama backend",
		})
	}

	if c.Inference.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "inference.timeout",
			Message: "timeout must be positive",
		})
	}

	if c.Inference.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "inference.rate_limit",
			Message: "rate_limit must not be negative",
		})
	}

	if c.Inference.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "inference.workers",
			Message: "workers must be at least 1",
		})
	}

	// Validate readiness config
	if c.Readiness.InitialBackoff <= 0 {
		errors = append(errors, ValidationError{
			Field:   "readiness.initial_backoff",
			Message: "initial_backoff must be positive",
		})
	}

	if c.Readiness.Increment < 0 || c.Readiness.MaxAttempts < 0 || c.Readiness.MaxWait < 0 {
		errors = append(errors, ValidationError{
			Field:   "readiness",
			Message: "increment, max_attempts and max_wait must not be negative",
		})
	}

	// Validate store config
	switch c.Store.Backend {
	case "qdrant", "milvus":
		if c.Store.Backend == "qdrant" && !validHTTPURL(c.Store.URL) {
			errors = append(errors, ValidationError{
				Field:   "store.url",
				Message: "invalid qdrant URL",
			})
		}
	case "pgvector":
		if c.Store.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "store.url",
				Message: "connection string is required for pgvector",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend %q, want qdrant, pgvector or milvus", c.Store.Backend),
		})
	}

	if strings.TrimSpace(c.Store.Collection) == "" {
		errors = append(errors, ValidationError{
			Field:   "store.collection",
			Message: "collection is required",
		})
	}

	if c.Store.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "store.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if _, err := types.ParseDistance(c.Store.Distance); err != nil {
		errors = append(errors, ValidationError{
			Field:   "store.distance",
			Message: err.Error(),
		})
	}

	if _, err := types.ParseWriteOrdering(c.Store.WriteOrdering); err != nil {
		errors = append(errors, ValidationError{
			Field:   "store.write_ordering",
			Message: err.Error(),
		})
	}

	if c.Store.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "store.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Store.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "store.timeout",
			Message: "timeout must be positive",
		})
	}

	// Validate pipeline config
	if c.Pipeline.ChannelSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.channel_size",
			Message: "channel_size must be positive",
		})
	}

	// Validate source config
	if c.Source.URL != "" && !validHTTPURL(c.Source.URL) {
		errors = append(errors, ValidationError{
			Field:   "source.url",
			Message: "invalid source URL",
		})
	}

	if c.Source.MaxDepth < 0 {
		errors = append(errors, ValidationError{
			Field:   "source.max_depth",
			Message: "max_depth must not be negative",
		})
	}

	if c.Source.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "source.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for _, ext := range c.Source.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "source.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Validate processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate log config
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown level %q", c.Log.Level),
		})
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("unknown format %q", c.Log.Format),
		})
	}

	return errors
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
