package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"
	"github.com/xhad/vecingest/pkg/deadletter"
)

// deadLettersCommand prints dead-lettered entries as JSON lines.
func deadLettersCommand(c *cli.Context) error {
	cfg, err := loadedConfig(c)
	if err != nil {
		return err
	}
	path := cfg.Pipeline.DeadLetterPath
	if c.IsSet("path") {
		path = c.String("path")
	}
	if path == "" {
		return fmt.Errorf("dead-letter path is required (--path or pipeline.dead_letter_path)")
	}

	dl, err := deadletter.Open(path, slog.Default())
	if err != nil {
		return err
	}
	defer dl.Close()

	entries, err := dl.List(c.Context, deadletter.Kind(c.String("kind")))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.App.Writer)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	slog.Info("listed dead letters", "entries", len(entries), "path", path)
	return nil
}
