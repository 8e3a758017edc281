package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	cfgPkg "github.com/xhad/vecingest/pkg/config"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "vecingest",
		Usage: "Embed documents and load them into a vector database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a dotenv file",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Set log format (text, json)",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Embed documents from an NDJSON file or a website and store them",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "NDJSON file with one document per line",
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "Documentation site to crawl instead of reading a file",
					},
					&cli.StringFlag{
						Name:  "inference-backend",
						Usage: "Embedding backend (llamacpp, ollama)",
					},
					&cli.StringFlag{
						Name:  "inference-url",
						Usage: "Embedding service URL",
					},
					&cli.StringFlag{
						Name:  "model",
						Usage: "Embedding model (ollama only)",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent embedding requests",
					},
					&cli.StringFlag{
						Name:  "store",
						Usage: "Vector store backend (qdrant, pgvector, milvus)",
					},
					&cli.StringFlag{
						Name:  "store-url",
						Usage: "Vector store URL or connection string",
					},
					&cli.StringFlag{
						Name:  "collection",
						Usage: "Target collection",
					},
					&cli.IntFlag{
						Name:  "vector-dim",
						Usage: "Vector dimension of the embedding model",
					},
					&cli.StringFlag{
						Name:  "distance",
						Usage: "Distance function (cosine, euclid, dot, manhattan)",
					},
					&cli.StringFlag{
						Name:  "shard-key",
						Usage: "Shard key for every write",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Points per store write",
					},
					&cli.StringFlag{
						Name:  "dead-letters",
						Usage: "Directory of the dead-letter database",
					},
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Do not render progress bars",
					},
				},
			},
			{
				Name:   "health",
				Usage:  "Check whether the embedding service is ready",
				Action: healthCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "inference-url",
						Usage: "Embedding service URL",
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Poll with backoff until the service is ready",
					},
				},
			},
			{
				Name:   "dead-letters",
				Usage:  "List documents and points that could not be stored",
				Action: deadLettersCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Usage: "Directory of the dead-letter database",
					},
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Only list entries of this kind (document, point)",
					},
				},
			},
		},
	}
}

// setup loads configuration and installs the default logger.
func setup(c *cli.Context) error {
	if err := cfgPkg.LoadEnvFile(c.String("env-file")); err != nil {
		return err
	}

	cfg, err := cfgPkg.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func newLogger(cfg cfgPkg.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", cfg.Format)
	}
}

// loadedConfig returns the config installed by setup, loading the defaults
// when a command runs without it.
func loadedConfig(c *cli.Context) (*cfgPkg.Config, error) {
	if cfg, ok := c.App.Metadata[configKey].(*cfgPkg.Config); ok {
		return cfg, nil
	}
	cfg, err := cfgPkg.LoadConfig("")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// validate reports every configuration problem at once.
func validate(cfg *cfgPkg.Config) error {
	errs := cfg.Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
}
