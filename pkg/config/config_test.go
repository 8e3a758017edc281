package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"INFERENCE_URL", "STORE_URL", "STORE_API_KEY", "COLLECTION_NAME"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
inference:
  backend: llamacpp
  base_url: "http://gpu-box:8080"
  timeout: 10s
  rate_limit: 5
  workers: 4

readiness:
  initial_backoff: 2s
  increment: 250ms
  max_attempts: 20

store:
  backend: qdrant
  url: "http://qdrant:6334"
  collection: "test_docs"
  vector_dim: 768
  distance: dot
  shard_key: tenant-a
  write_ordering: strong
  batch_size: 64

pipeline:
  channel_size: 32
  dead_letter_path: /tmp/dead

source:
  max_depth: 5
  rate_limit: 1.5
  ignore_patterns:
    - "/test/"
  allowed_extensions:
    - ".html"
    - "/"

processor:
  chunk_size: 500
  chunk_overlap: 100

log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(configPath, []byte(configData), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:8080", config.Inference.BaseURL)
	assert.Equal(t, 10*time.Second, config.Inference.Timeout)
	assert.Equal(t, 5.0, config.Inference.RateLimit)
	assert.Equal(t, 4, config.Inference.Workers)
	assert.Equal(t, 2*time.Second, config.Readiness.InitialBackoff)
	assert.Equal(t, 250*time.Millisecond, config.Readiness.Increment)
	assert.Equal(t, 20, config.Readiness.MaxAttempts)
	assert.Equal(t, "test_docs", config.Store.Collection)
	assert.Equal(t, 768, config.Store.VectorDim)
	assert.Equal(t, "dot", config.Store.Distance)
	assert.Equal(t, "tenant-a", config.Store.ShardKey)
	assert.Equal(t, "strong", config.Store.WriteOrdering)
	assert.Equal(t, 64, config.Store.BatchSize)
	assert.Equal(t, 32, config.Pipeline.ChannelSize)
	assert.Equal(t, "/tmp/dead", config.Pipeline.DeadLetterPath)
	assert.Equal(t, 5, config.Source.MaxDepth)
	assert.Equal(t, []string{"/test/"}, config.Source.IgnorePatterns)
	assert.Equal(t, 500, config.Processor.ChunkSize)
	assert.Equal(t, "json", config.Log.Format)

	// Unset values fall back to defaults.
	assert.Equal(t, 30*time.Second, config.Store.Timeout)
	assert.Equal(t, 100, config.Processor.MinChunkLength)

	assert.Empty(t, config.Validate())
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("inference: [unclosed"), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("inference:\n  timeout: soon\n"), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	config, err := getDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, "llamacpp", config.Inference.Backend)
	assert.Equal(t, "http://127.0.0.1:8080", config.Inference.BaseURL)
	assert.Equal(t, 30*time.Second, config.Inference.Timeout)
	assert.Equal(t, 1, config.Inference.Workers)
	assert.Equal(t, 7*time.Second, config.Readiness.InitialBackoff)
	assert.Equal(t, 500*time.Millisecond, config.Readiness.Increment)
	assert.Zero(t, config.Readiness.MaxAttempts)
	assert.Equal(t, "qdrant", config.Store.Backend)
	assert.Equal(t, "http://localhost:6334", config.Store.URL)
	assert.Equal(t, "documents", config.Store.Collection)
	assert.Equal(t, "cosine", config.Store.Distance)
	assert.Equal(t, "weak", config.Store.WriteOrdering)
	assert.Equal(t, 128, config.Store.BatchSize)
	assert.Equal(t, 256, config.Pipeline.ChannelSize)
	assert.Equal(t, "info", config.Log.Level)

	// The vector dimension has no default and must be configured.
	errs := config.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "store.vector_dim", errs[0].Field)
}

func TestOllamaDefaults(t *testing.T) {
	config := &Config{Inference: InferenceConfig{Backend: "ollama"}}
	applyDefaults(config)

	assert.Equal(t, "http://localhost:11434", config.Inference.BaseURL)
	assert.Equal(t, "nomic-embed-text:latest", config.Inference.Model)
}

func TestMergeWithEnv(t *testing.T) {
	t.Setenv("INFERENCE_URL", "http://embed:9000")
	t.Setenv("STORE_URL", "https://cloud.qdrant.io:6334")
	t.Setenv("STORE_API_KEY", "secret")
	t.Setenv("COLLECTION_NAME", "kb")

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "http://embed:9000", config.Inference.BaseURL)
	assert.Equal(t, "https://cloud.qdrant.io:6334", config.Store.URL)
	assert.Equal(t, "secret", config.Store.APIKey)
	assert.Equal(t, "kb", config.Store.Collection)
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	t.Setenv("COLLECTION_NAME", "")
	os.Unsetenv("COLLECTION_NAME")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("COLLECTION_NAME=from_dotenv\n"), 0644))
	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from_dotenv", os.Getenv("COLLECTION_NAME"))
}

func validConfig() Config {
	config := Config{Store: StoreConfig{VectorDim: 384}}
	applyDefaults(&config)
	return config
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		fields []string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:   "unknown inference backend",
			mutate: func(c *Config) { c.Inference.Backend = "openai" },
			fields: []string{"inference.backend"},
		},
		{
			name:   "inference url without scheme",
			mutate: func(c *Config) { c.Inference.BaseURL = "localhost:8080" },
			fields: []string{"inference.base_url"},
		},
		{
			name:   "zero workers",
			mutate: func(c *Config) { c.Inference.Workers = 0 },
			fields: []string{"inference.workers"},
		},
		{
			name:   "negative readiness bound",
			mutate: func(c *Config) { c.Readiness.MaxWait = -time.Second },
			fields: []string{"readiness"},
		},
		{
			name:   "unknown store backend",
			mutate: func(c *Config) { c.Store.Backend = "redis" },
			fields: []string{"store.backend"},
		},
		{
			name: "pgvector needs connection string",
			mutate: func(c *Config) {
				c.Store.Backend = "pgvector"
				c.Store.URL = ""
			},
			fields: []string{"store.url"},
		},
		{
			name: "bad distance and ordering",
			mutate: func(c *Config) {
				c.Store.Distance = "hamming"
				c.Store.WriteOrdering = "eventual"
			},
			fields: []string{"store.distance", "store.write_ordering"},
		},
		{
			name:   "zero batch size",
			mutate: func(c *Config) { c.Store.BatchSize = 0 },
			fields: []string{"store.batch_size"},
		},
		{
			name:   "overlap larger than chunk",
			mutate: func(c *Config) { c.Processor.ChunkOverlap = 2000 },
			fields: []string{"processor.chunk_overlap"},
		},
		{
			name:   "bad extension",
			mutate: func(c *Config) { c.Source.AllowedExtensions = []string{"pdf"} },
			fields: []string{"source.allowed_extensions"},
		},
		{
			name: "bad log settings",
			mutate: func(c *Config) {
				c.Log.Level = "trace"
				c.Log.Format = "xml"
			},
			fields: []string{"log.level", "log.format"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			var fields []string
			for _, err := range config.Validate() {
				fields = append(fields, err.Field)
			}
			assert.Equal(t, tt.fields, fields)
		})
	}
}

func TestValidationErrorString(t *testing.T) {
	err := ValidationError{Field: "store.vector_dim", Message: "vector_dim must be positive"}
	assert.Equal(t, "store.vector_dim: vector_dim must be positive", err.Error())
}
