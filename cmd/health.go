package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"github.com/xhad/vecingest/internal/types"
	"github.com/xhad/vecingest/pkg/llm"
)

func healthCommand(c *cli.Context) error {
	cfg, err := loadedConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("inference-url") {
		cfg.Inference.BaseURL = c.String("inference-url")
	}
	if cfg.Inference.Backend == "ollama" {
		fmt.Fprintln(c.App.Writer, color.YellowString("The ollama backend has no health endpoint"))
		return nil
	}

	client := llm.NewLlamaCpp(llm.LlamaCppConfig{BaseURL: cfg.Inference.BaseURL, Timeout: cfg.Inference.Timeout})

	if c.Bool("wait") {
		if err := llm.AwaitReady(c.Context, client.Health, backoffConfig(cfg.Readiness)); err != nil {
			return fmt.Errorf("%s: %w", cfg.Inference.BaseURL, err)
		}
	} else {
		status, err := client.Health(c.Context)
		if err != nil {
			return fmt.Errorf("%s: %w", cfg.Inference.BaseURL, err)
		}
		if status != types.StatusReady {
			return fmt.Errorf("%s: %w: status %s", cfg.Inference.BaseURL, llm.ErrNotReady, status)
		}
	}

	fmt.Fprintln(c.App.Writer, color.GreenString("✓ %s is ready", cfg.Inference.BaseURL))
	return nil
}
