// Command specsmith serves an HTTP API that turns a user story, project
// summary, and optional UI screenshot into a UI data model, Gherkin stories,
// test cases, and an automation feature file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/specsmith/specsmith/cmd/specsmith/internal/httpd"
	"github.com/specsmith/specsmith/pkg/engine"
)

func main() {
	// Handle subcommands before flag parsing.
	if len(os.Args) > 1 && os.Args[1] == "fetch-models" {
		fetchCmd := flag.NewFlagSet("fetch-models", flag.ExitOnError)
		fetchCmd.Usage = func() {
			fmt.Fprintf(os.Stderr, "Usage: specsmith fetch-models [flags]\n\nDownload the OCR recognition models for the configured languages.\n\nFlags:\n")
			fetchCmd.PrintDefaults()
		}
		configPath := fetchCmd.String("config", "", "path to configuration file")
		envFile := fetchCmd.String("env", ".env", "path to .env file (ignored if missing)")
		_ = fetchCmd.Parse(os.Args[2:])

		if err := runFetchModels(*configPath, *envFile); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		return
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: specsmith [flags]\n       specsmith fetch-models [flags]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n  fetch-models  Download the OCR recognition models for the configured languages\n")
	}

	configPath := flag.String("config", "", "path to configuration file (default: specsmith.yaml if present)")
	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	verbose := flag.Bool("verbose", false, "log at debug level")
	flag.Parse()

	if err := runServe(*configPath, *envFile, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// loadConfig resolves the config: explicit flag, specsmith.yaml if present,
// otherwise pure defaults plus environment overrides.
func loadConfig(configPath string) (engine.Config, error) {
	var (
		cfg engine.Config
		err error
	)

	switch {
	case configPath != "":
		cfg, err = engine.LoadConfig(configPath)
	default:
		if _, statErr := os.Stat("specsmith.yaml"); statErr == nil {
			cfg, err = engine.LoadConfig("specsmith.yaml")
		} else {
			cfg = engine.DefaultConfig()
		}
	}
	if err != nil {
		return engine.Config{}, err
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return engine.Config{}, err
	}

	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func runServe(configPath, envFile string, verbose bool) error {
	if err := loadDotEnv(envFile); err != nil {
		return err
	}

	logger := newLogger(verbose)
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("fetching recognition models", "languages", cfg.OCR.Languages, "dir", eng.Models().Root())
	if err := eng.EnsureModels(ctx); err != nil {
		return err
	}

	srv := httpd.New(eng, logger)
	logger.Info("starting server", "addr", cfg.Server.Addr(), "tls", cfg.Server.TLS(), "model", cfg.Provider.Model)

	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.Info("server stopped")
	return nil
}

func runFetchModels(configPath, envFile string) error {
	if err := loadDotEnv(envFile); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	// Model downloads need no provider key.
	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = "unused"
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Fetching models for %v into %s\n", cfg.OCR.Languages, eng.Models().Root())
	if err := eng.EnsureModels(ctx); err != nil {
		return err
	}
	fmt.Println("Done")

	return nil
}
