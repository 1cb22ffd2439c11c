package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/julianbeese/bds_crawler/internal/antidetect"
	"github.com/julianbeese/bds_crawler/internal/config"
	"github.com/julianbeese/bds_crawler/internal/scraper/batdongsan"
	"github.com/julianbeese/bds_crawler/internal/solver"
)

func main() {
	// Load .env file if present (ignores error if not found)
	_ = godotenv.Load()                   // .env in current directory
	_ = godotenv.Load("deployments/.env") // fallback to deployments/.env

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "bdscrawler",
		Short:         "Crawl real-estate listings from batdongsan.com.vn",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "configs/config.yaml", "Path to configuration file")

	root.AddCommand(newShowCmd(a), newCrawlCmd(a), newHistoryCmd(a), newListingCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	a.logger = newLogger(cfg)
	slog.SetDefault(a.logger)

	a.logger.Debug("configuration loaded",
		"solver", cfg.Solver.Endpoint(),
		"session", cfg.Solver.Session,
		"database", cfg.DatabasePath,
		"telegram_enabled", cfg.Telegram.Enabled,
	)
	return nil
}

// newEngine bootstraps the solver session and extracts the search options.
// It is expensive and must be called once per command.
func (a *app) newEngine(ctx context.Context) (*batdongsan.Engine, error) {
	sc := solver.NewClient(a.cfg.Solver.Endpoint(), a.cfg.Solver.Session, a.cfg.Solver.MaxTimeout, a.logger)
	return batdongsan.New(ctx, sc, batdongsan.Config{
		BaseURL:     a.cfg.Target.BaseURL,
		SearchPath:  a.cfg.Target.SearchPath,
		ImagePrefix: a.cfg.Target.ImagePrefix,
		RateLimiter: antidetect.NewRateLimiter(
			a.cfg.Crawl.MaxRequestsPerMinute,
			a.cfg.Crawl.MinDelay,
			a.cfg.Crawl.MaxDelay,
		),
	}, a.logger)
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	case "text":
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
		})
	}
	return slog.New(handler)
}
