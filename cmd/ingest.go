package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"github.com/xhad/vecingest/internal/models"
	"github.com/xhad/vecingest/internal/types"
	cfgPkg "github.com/xhad/vecingest/pkg/config"
	"github.com/xhad/vecingest/pkg/deadletter"
	"github.com/xhad/vecingest/pkg/llm"
	"github.com/xhad/vecingest/pkg/loader"
	"github.com/xhad/vecingest/pkg/pipeline"
	"github.com/xhad/vecingest/pkg/processor"
	"github.com/xhad/vecingest/pkg/scraper"
	"github.com/xhad/vecingest/pkg/store"
)

// openStore is replaced in tests.
var openStore = func(ctx context.Context, cfg cfgPkg.StoreConfig) (types.VectorStore, error) {
	return store.Open(ctx, store.OpenConfig{
		Backend: cfg.Backend,
		URL:     cfg.URL,
		APIKey:  cfg.APIKey,
	})
}

func ingestCommand(c *cli.Context) error {
	cfg, err := loadedConfig(c)
	if err != nil {
		return err
	}
	applyIngestFlags(c, cfg)
	if cfg.Source.Path == "" && cfg.Source.URL == "" {
		return fmt.Errorf("either --file or --url is required")
	}
	if err := validate(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := loadDocuments(ctx, cfg, !c.Bool("no-progress"))
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		color.Yellow("No documents to ingest")
		return nil
	}

	embedder, err := newEmbedder(cfg.Inference)
	if err != nil {
		return err
	}

	vs, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrStartup, err)
	}
	defer vs.Close()

	buffer, err := newBuffer(vs, cfg.Store)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{
		pipeline.WithEmbedWorkers(cfg.Inference.Workers),
		pipeline.WithChannelSize(cfg.Pipeline.ChannelSize),
		pipeline.WithReadiness(backoffConfig(cfg.Readiness)),
	}

	if cfg.Pipeline.DeadLetterPath != "" {
		dl, err := deadletter.Open(cfg.Pipeline.DeadLetterPath, slog.Default())
		if err != nil {
			return err
		}
		defer dl.Close()
		opts = append(opts, pipeline.WithDeadLetters(dl))
	}

	var bar *progressBar
	if !c.Bool("no-progress") {
		bar = newProgressBar(len(docs))
		opts = append(opts, pipeline.WithTracker(bar.tracker))
	}

	p, err := pipeline.NewPipeline(embedder, buffer, opts...)
	if err != nil {
		return err
	}
	defer p.Release()

	color.Blue("\nIngesting %d documents into %s/%s\n", len(docs), cfg.Store.Backend, cfg.Store.Collection)
	start := time.Now()
	snap, err := p.Run(ctx, docs)
	if bar != nil {
		bar.finish()
	}
	if errors.Is(err, pipeline.ErrStartup) {
		color.Red("\n✗ %v\n", err)
		return err
	}

	printSummary(c.App.Writer, snap, time.Since(start))
	if err != nil {
		color.Yellow("Run interrupted: %v\n", err)
	}
	return nil
}

func applyIngestFlags(c *cli.Context, cfg *cfgPkg.Config) {
	if c.IsSet("file") {
		cfg.Source.Path = c.String("file")
	}
	if c.IsSet("url") {
		cfg.Source.URL = c.String("url")
	}
	if c.IsSet("inference-backend") {
		cfg.Inference.Backend = c.String("inference-backend")
	}
	if c.IsSet("inference-url") {
		cfg.Inference.BaseURL = c.String("inference-url")
	}
	if c.IsSet("model") {
		cfg.Inference.Model = c.String("model")
	}
	if c.IsSet("workers") {
		cfg.Inference.Workers = c.Int("workers")
	}
	if c.IsSet("store") {
		cfg.Store.Backend = c.String("store")
	}
	if c.IsSet("store-url") {
		cfg.Store.URL = c.String("store-url")
	}
	if c.IsSet("collection") {
		cfg.Store.Collection = c.String("collection")
	}
	if c.IsSet("vector-dim") {
		cfg.Store.VectorDim = c.Int("vector-dim")
	}
	if c.IsSet("distance") {
		cfg.Store.Distance = c.String("distance")
	}
	if c.IsSet("shard-key") {
		cfg.Store.ShardKey = c.String("shard-key")
	}
	if c.IsSet("batch-size") {
		cfg.Store.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("dead-letters") {
		cfg.Pipeline.DeadLetterPath = c.String("dead-letters")
	}
}

func loadDocuments(ctx context.Context, cfg *cfgPkg.Config, showProgress bool) ([]models.Document, error) {
	if cfg.Source.Path != "" {
		docs, skipped, err := loader.ReadFile(cfg.Source.Path)
		if err != nil {
			return nil, err
		}
		if skipped > 0 {
			color.Yellow("Skipped %d malformed or blank lines", skipped)
		}
		return docs, nil
	}

	var spinner func(string)
	if showProgress {
		s := getSpinner("Crawling documentation...")
		defer s.Finish()
		spinner = func(url string) {
			s.Describe(color.CyanString("Crawling %s", url))
			s.Add(1)
		}
	}

	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:           cfg.Source.URL,
		MaxDepth:          cfg.Source.MaxDepth,
		RateLimit:         cfg.Source.RateLimit,
		IgnorePatterns:    cfg.Source.IgnorePatterns,
		AllowedExtensions: cfg.Source.AllowedExtensions,
		OnProgress:        spinner,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scraper: %w", err)
	}

	pages, err := s.Scrape(ctx, cfg.Source.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to crawl %s: %w", cfg.Source.URL, err)
	}

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:      cfg.Processor.ChunkSize,
		ChunkOverlap:   cfg.Processor.ChunkOverlap,
		MinChunkLength: cfg.Processor.MinChunkLength,
	})
	docs := proc.Process(pages)
	color.Green("\n✓ Crawled %d pages into %d chunks\n", len(pages), len(docs))
	return docs, nil
}

func newEmbedder(cfg cfgPkg.InferenceConfig) (*llm.Embedder, error) {
	var backend types.Embedder
	switch cfg.Backend {
	case "ollama":
		o, err := llm.NewOllama(llm.OllamaConfig{Model: cfg.Model, BaseURL: cfg.BaseURL})
		if err != nil {
			return nil, err
		}
		backend = o
	default:
		backend = llm.NewLlamaCpp(llm.LlamaCppConfig{BaseURL: cfg.BaseURL, Timeout: cfg.Timeout})
	}

	return llm.NewEmbedder(backend, llm.EmbedderConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
	})
}

func newBuffer(vs types.VectorStore, cfg cfgPkg.StoreConfig) (*store.Buffer, error) {
	distance, err := types.ParseDistance(cfg.Distance)
	if err != nil {
		return nil, err
	}
	ordering, err := types.ParseWriteOrdering(cfg.WriteOrdering)
	if err != nil {
		return nil, err
	}

	return store.NewBuffer(vs, store.BufferConfig{
		Collection: types.CollectionSpec{
			Name:      cfg.Collection,
			VectorDim: cfg.VectorDim,
			Distance:  distance,
		},
		Capacity: cfg.BatchSize,
		ShardKey: cfg.ShardKey,
		Ordering: ordering,
		Timeout:  cfg.Timeout,
	})
}

func backoffConfig(cfg cfgPkg.ReadinessConfig) llm.BackoffConfig {
	return llm.BackoffConfig{
		InitialBackoff: cfg.InitialBackoff,
		Increment:      cfg.Increment,
		MaxAttempts:    cfg.MaxAttempts,
		MaxWait:        cfg.MaxWait,
	}
}

func printSummary(w io.Writer, snap pipeline.Snapshot, took time.Duration) {
	color.New(color.FgGreen).Fprintf(w, "\n✓ Stored %d embeddings in %s\n", snap.Stored, took.Round(time.Millisecond))
	fmt.Fprintf(w, "  processed: %d\n", snap.Processed)
	fmt.Fprintf(w, "  embedded:  %d\n", snap.Embedded)
	fmt.Fprintf(w, "  stored:    %d\n", snap.Stored)
	if snap.Failed > 0 {
		color.New(color.FgYellow).Fprintf(w, "  failed:    %d\n", snap.Failed)
	} else {
		fmt.Fprintf(w, "  failed:    0\n")
	}
}
