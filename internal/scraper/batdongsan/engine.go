package batdongsan

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/julianbeese/bds_crawler/internal/antidetect"
	"github.com/julianbeese/bds_crawler/internal/domain"
	"github.com/julianbeese/bds_crawler/internal/solver"
)

const (
	DefaultBaseURL     = "https://batdongsan.com.vn"
	DefaultSearchPath  = "/microservice-architecture-router/Product/ProductSearch"
	DefaultImagePrefix = "https://file4.batdongsan.com.vn/"
)

// Config holds the target site locations and request pacing
type Config struct {
	BaseURL     string
	SearchPath  string
	ImagePrefix string

	// RateLimiter paces page requests; nil disables pacing
	RateLimiter *antidetect.RateLimiter
	// ImageClient downloads images; defaults to a client without timeout
	ImageClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.SearchPath == "" {
		c.SearchPath = DefaultSearchPath
	}
	if c.ImagePrefix == "" {
		c.ImagePrefix = DefaultImagePrefix
	}
	if c.ImageClient == nil {
		c.ImageClient = &http.Client{}
	}
}

// Engine is a bootstrapped crawler for batdongsan.com.vn. It owns the solved
// session and the option taxonomies discovered at construction.
type Engine struct {
	cfg        Config
	solver     *solver.Client
	session    *domain.ChallengeSession
	httpClient *http.Client
	options    *domain.Options
	images     *imageDownloader
	logger     *slog.Logger
}

// New clears the challenge through the solver, builds the direct session
// client and extracts the search options from the landing page.
func New(ctx context.Context, sc *solver.Client, cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	session, err := sc.Bootstrap(ctx, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap session: %w", err)
	}

	httpClient, err := solver.NewHTTPClient(session, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("build session client: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(session.LandingHTML))
	if err != nil {
		return nil, fmt.Errorf("parse landing page: %w", err)
	}
	form := doc.Find(selSearchForm).First()
	if form.Length() == 0 {
		return nil, missing(selSearchForm)
	}

	options, err := ExtractOptions(form)
	if err != nil {
		return nil, fmt.Errorf("extract options: %w", err)
	}
	logger.Debug("product type ids", "sell", options.ProductIDs.Sell, "rent", options.ProductIDs.Rent)
	logger.Debug("options extracted",
		"directions", len(options.Directions),
		"cities", len(options.Cities),
		"price_sell", len(options.PriceSell),
		"price_rent", len(options.PriceRent),
		"areas", len(options.Areas),
	)

	return &Engine{
		cfg:        cfg,
		solver:     sc,
		session:    session,
		httpClient: httpClient,
		options:    options,
		images:     &imageDownloader{client: cfg.ImageClient, prefix: cfg.ImagePrefix, logger: logger},
		logger:     logger,
	}, nil
}

// Options returns the taxonomies discovered at construction.
// Callers must not modify the maps.
func (e *Engine) Options() *domain.Options {
	return e.options
}

// Session returns the challenge session the engine was bootstrapped with
func (e *Engine) Session() *domain.ChallengeSession {
	return e.session
}
