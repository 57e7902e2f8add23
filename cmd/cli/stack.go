package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dvloznov/ledgersync/internal/app"
	"github.com/dvloznov/ledgersync/internal/config"
)

// openStack opens the backend configured in the environment.
func openStack(ctx context.Context) (*app.Stack, error) {
	cfg, err := config.Load(ctx, os.Getenv)
	if err != nil {
		return nil, err
	}
	stack, err := app.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	return stack, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
