package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/coxswain-dev/coxswain/internal/backend"
	"github.com/coxswain-dev/coxswain/internal/cli"
	"github.com/coxswain-dev/coxswain/internal/config"
	"github.com/coxswain-dev/coxswain/internal/core/turn"
	"github.com/coxswain-dev/coxswain/internal/tui"
)

// main bootstraps the coxswain client. The TUI is the default surface; the
// headless line client handles everything else and owns its own flags.
func main() {
	var (
		headless   = flag.Bool("headless", false, "run the line-oriented client instead of the TUI")
		configPath = flag.String("config", "", "path to the config file (defaults to the per-user location)")
		baseURL    = flag.String("backend-url", os.Getenv("COXSWAIN_BACKEND_URL"), "override the backend base URL (optional)")
	)
	flag.Parse()

	if *headless {
		os.Exit(cli.Run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
	}

	if err := godotenv.Load(); err != nil {
		// A missing .env file is fine, but other errors should be surfaced to help with debugging.
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.Backend.BaseURL = *baseURL
	}

	client, err := backend.NewClient(cfg.Backend.BaseURL, os.Getenv(cfg.Backend.APIKeyEnv), turn.NoOpLogger{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	coord, err := turn.New(turn.Options{
		Backend:     client,
		EventBuffer: cfg.Client.EventBuffer,
		EmitTimeout: cfg.EmitTimeout(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create coordinator: %v\n", err)
		os.Exit(1)
	}
	code := tui.Run(context.Background(), coord)
	coord.Close()
	os.Exit(code)
}
