package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Inference InferenceConfig `yaml:"inference"`
	Readiness ReadinessConfig `yaml:"readiness"`
	Store     StoreConfig     `yaml:"store"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Source    SourceConfig    `yaml:"source"`
	Processor ProcessorConfig `yaml:"processor"`
	Log       LogConfig       `yaml:"log"`
}

type InferenceConfig struct {
	Backend   string        `yaml:"backend"` // llamacpp or ollama
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second, 0 is unlimited
	Workers   int           `yaml:"workers"`
}

type ReadinessConfig struct {
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	Increment      time.Duration `yaml:"increment"`
	MaxAttempts    int           `yaml:"max_attempts"`
	MaxWait        time.Duration `yaml:"max_wait"`
}

type StoreConfig struct {
	Backend       string        `yaml:"backend"` // qdrant, pgvector or milvus
	URL           string        `yaml:"url"`
	APIKey        string        `yaml:"api_key"`
	Collection    string        `yaml:"collection"`
	VectorDim     int           `yaml:"vector_dim"`
	Distance      string        `yaml:"distance"`
	ShardKey      string        `yaml:"shard_key"`
	WriteOrdering string        `yaml:"write_ordering"`
	BatchSize     int           `yaml:"batch_size"`
	Timeout       time.Duration `yaml:"timeout"`
}

type PipelineConfig struct {
	ChannelSize    int    `yaml:"channel_size"`
	DeadLetterPath string `yaml:"dead_letter_path"`
}

type SourceConfig struct {
	Path              string   `yaml:"path"`
	URL               string   `yaml:"url"`
	MaxDepth          int      `yaml:"max_depth"`
	RateLimit         float64  `yaml:"rate_limit"`
	IgnorePatterns    []string `yaml:"ignore_patterns"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type ProcessorConfig struct {
	ChunkSize      int `yaml:"chunk_size"`
	ChunkOverlap   int `yaml:"chunk_overlap"`
	MinChunkLength int `yaml:"min_chunk_length"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"vecingest.yaml",
			"config.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/vecingest/config.yaml"),
			"/etc/vecingest/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

// LoadEnvFile loads variables from a dotenv file into the process
// environment. A missing file is not an error. Variables that are already set
// win.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Inference.Backend == "" {
		config.Inference.Backend = "llamacpp"
	}
	if config.Inference.BaseURL == "" {
		if config.Inference.Backend == "ollama" {
			config.Inference.BaseURL = "http://localhost:11434"
		} else {
			config.Inference.BaseURL = "http://127.0.0.1:8080"
		}
	}
	if config.Inference.Model == "" && config.Inference.Backend == "ollama" {
		config.Inference.Model = "nomic-embed-text:latest"
	}
	if config.Inference.Timeout == 0 {
		config.Inference.Timeout = 30 * time.Second
	}
	if config.Inference.Workers == 0 {
		config.Inference.Workers = 1
	}

	if config.Readiness.InitialBackoff == 0 {
		config.Readiness.InitialBackoff = 7 * time.Second
	}
	if config.Readiness.Increment == 0 {
		config.Readiness.Increment = 500 * time.Millisecond
	}

	if config.Store.Backend == "" {
		config.Store.Backend = "qdrant"
	}
	if config.Store.URL == "" {
		switch config.Store.Backend {
		case "qdrant":
			config.Store.URL = "http://localhost:6334"
		case "milvus":
			config.Store.URL = "localhost:19530"
		}
	}
	if config.Store.Collection == "" {
		config.Store.Collection = "documents"
	}
	if config.Store.Distance == "" {
		config.Store.Distance = "cosine"
	}
	if config.Store.WriteOrdering == "" {
		config.Store.WriteOrdering = "weak"
	}
	if config.Store.BatchSize == 0 {
		config.Store.BatchSize = 128
	}
	if config.Store.Timeout == 0 {
		config.Store.Timeout = 30 * time.Second
	}

	if config.Pipeline.ChannelSize == 0 {
		config.Pipeline.ChannelSize = 256
	}

	if config.Source.MaxDepth == 0 {
		config.Source.MaxDepth = 3
	}
	if config.Source.RateLimit == 0 {
		config.Source.RateLimit = 2.0
	}
	if len(config.Source.AllowedExtensions) == 0 {
		config.Source.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 200
	}
	if config.Processor.MinChunkLength == 0 {
		config.Processor.MinChunkLength = 100
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("INFERENCE_URL"); baseURL != "" {
		config.Inference.BaseURL = baseURL
	}
	if storeURL := os.Getenv("STORE_URL"); storeURL != "" {
		config.Store.URL = storeURL
	}
	if apiKey := os.Getenv("STORE_API_KEY"); apiKey != "" {
		config.Store.APIKey = apiKey
	}
	if collection := os.Getenv("COLLECTION_NAME"); collection != "" {
		config.Store.Collection = collection
	}
}
