package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/interview-agent/internal/config"
	"github.com/jonathan/interview-agent/internal/engine"
	"github.com/jonathan/interview-agent/internal/gateway"
	"github.com/jonathan/interview-agent/internal/llm"
	"github.com/jonathan/interview-agent/internal/logging"
	"github.com/jonathan/interview-agent/internal/promptcache"
	"github.com/jonathan/interview-agent/internal/server"
	"github.com/jonathan/interview-agent/internal/store"
)

var (
	servePort       int
	serveConfigPath string
	serveDemo       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes REST endpoints for running interviews.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to JSON config file")
	serveCmd.Flags().BoolVar(&serveDemo, "demo", false, "Run shortened demo interviews by default")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	cfg := config.Defaults()
	if serveConfigPath != "" {
		loaded, err := config.LoadConfig(serveConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded.MergeWithDefaults(cfg)
	}
	cfg.ApplyEnv()
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveDemo {
		cfg.Demo = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	logger, err := logging.New(cfg.JSONLogs, cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	client, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	defer client.Close()

	gw := gateway.New(client, gateway.Options{
		Timeout: cfg.RequestTimeout(),
		Retries: cfg.Retries,
	}, logger)

	var archive *store.Store
	if cfg.DatabaseURL != "" {
		archive, err = store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to archive database: %w", err)
		}
		if err := archive.InitSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize archive schema: %w", err)
		}
		logger.Info("interview archive enabled")
	} else {
		logger.Info("no DATABASE_URL set, interview archive disabled")
	}

	deps := engine.Deps{
		Gateway: gw,
		Cache:   promptcache.New(),
		Logger:  logger,
	}

	srv := server.New(server.Config{
		Port:                cfg.Port,
		SessionTTL:          cfg.SessionTTL(),
		Demo:                cfg.Demo,
		FollowUpBudget:      cfg.FollowUpBudget,
		SimilarityThreshold: cfg.SimilarityThreshold,
	}, deps, archive, logger)

	return srv.Start()
}
