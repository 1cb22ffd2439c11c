package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/julianbeese/bds_crawler/internal/domain"
	"github.com/julianbeese/bds_crawler/internal/export"
	"github.com/julianbeese/bds_crawler/internal/notifier/telegram"
	"github.com/julianbeese/bds_crawler/internal/repository/sqlite"
)

type crawlFlags struct {
	minPrice        int
	maxPrice        int
	priceSellOption int
	priceRentOption int
	minArea         int
	maxArea         int
	areaOption      int
	city            string
	directions      []int
	rooms           []int
	maxResult       int
	startPage       int
	outputPath      string
	debug           bool
	noUseRequest    bool
}

func newCrawlCmd(a *app) *cobra.Command {
	f := &crawlFlags{}

	cmd := &cobra.Command{
		Use:       "crawl <sell|rent>",
		Short:     "Search listings and write them to a CSV file",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(domain.ProductSell), string(domain.ProductRent)},
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := f.filter(cmd.Flags(), domain.ProductType(args[0]))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.crawl(ctx, filter, f.outputPath)
		},
	}

	f.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("output-path")

	return cmd
}

func (f *crawlFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&f.minPrice, "min-price", 0, "Minimum price (in million VND)")
	fs.IntVar(&f.maxPrice, "max-price", 0, "Maximum price (in million VND)")
	fs.IntVar(&f.priceSellOption, "price-sell-option", 0, "Predefined sell price bracket, see `show price-sell`. Ignored when renting")
	fs.IntVar(&f.priceRentOption, "price-rent-option", 0, "Predefined rent price bracket, see `show price-rent`. Ignored when buying")
	fs.IntVar(&f.minArea, "min-area", 0, "Minimum area (in m²)")
	fs.IntVar(&f.maxArea, "max-area", 0, "Maximum area (in m²)")
	fs.IntVar(&f.areaOption, "area-option", 0, "Predefined area bracket, see `show area`")
	fs.StringVar(&f.city, "city", "", "City code, see `show city`")
	fs.IntSliceVar(&f.directions, "directions", nil, "Direction codes, see `show direction`")
	fs.IntSliceVar(&f.rooms, "n-rooms", nil, "Number of rooms (5 for 5 or more)")
	fs.IntVar(&f.maxResult, "max-result", 100, "Maximum number of results, 0 for no limit")
	fs.IntVar(&f.startPage, "start-page", 1, "Continue searching from this page instead of the first one")
	fs.StringVar(&f.outputPath, "output-path", "", "Result CSV path; images are saved next to it")
	fs.BoolVar(&f.debug, "debug", false, "Save every result page's HTML next to the CSV")
	fs.BoolVar(&f.noUseRequest, "no-use-request", false, "Relay every request through the solver (slower, but gets past 403s)")
}

// filter turns the parsed flags into a search filter. Numeric flags the user
// did not set stay nil.
func (f *crawlFlags) filter(fs *pflag.FlagSet, mode domain.ProductType) (domain.SearchFilter, error) {
	if f.maxResult < 0 {
		return domain.SearchFilter{}, fmt.Errorf("--max-result must not be negative")
	}
	if f.startPage < 1 {
		return domain.SearchFilter{}, fmt.Errorf("--start-page must be at least 1")
	}

	optional := func(name string, v int) *int {
		if !fs.Changed(name) {
			return nil
		}
		return &v
	}

	filter := domain.SearchFilter{
		ProductType: mode,
		CityCode:    f.city,
		MinPrice:    optional("min-price", f.minPrice),
		MaxPrice:    optional("max-price", f.maxPrice),
		MinArea:     optional("min-area", f.minArea),
		MaxArea:     optional("max-area", f.maxArea),
		AreaOption:  optional("area-option", f.areaOption),
		Rooms:       f.rooms,
		Directions:  f.directions,
		MaxResult:   f.maxResult,
		StartPage:   f.startPage,
		Strategy:    domain.FetchDirect,
		Debug:       f.debug,
		OutputDir:   filepath.Dir(f.outputPath),
	}
	if mode == domain.ProductRent {
		filter.PriceOption = optional("price-rent-option", f.priceRentOption)
	} else {
		filter.PriceOption = optional("price-sell-option", f.priceSellOption)
	}
	if f.noUseRequest {
		filter.Strategy = domain.FetchRelayed
	}
	return filter, nil
}

func (a *app) crawl(ctx context.Context, filter domain.SearchFilter, outputPath string) error {
	if err := os.MkdirAll(filter.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	notifier, err := telegram.NewNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Telegram.Enabled, a.cfg.Target.BaseURL)
	if err != nil {
		return err
	}
	a.logger.Debug("notifier ready", "enabled", notifier.IsEnabled())

	rec, err := openRecorder(a.cfg.DatabasePath, a.logger)
	if err != nil {
		return err
	}
	defer rec.close()

	engine, err := a.newEngine(ctx)
	if err != nil {
		a.notifyError(ctx, notifier, err)
		return err
	}
	rec.sessionSolved(ctx, engine.Session())

	filterJSON, _ := json.Marshal(filter)
	run := &domain.CrawlRun{ProductType: filter.ProductType, Filter: string(filterJSON)}
	rec.startRun(ctx, run)

	listings, err := engine.Crawl(ctx, filter)
	if err != nil {
		return a.failRun(ctx, rec, notifier, run, fmt.Errorf("crawl: %w", err))
	}
	return a.completeRun(ctx, rec, notifier, run, listings, outputPath)
}

// completeRun writes the results, stores them and reports the finished run.
func (a *app) completeRun(ctx context.Context, rec *recorder, notifier *telegram.Notifier, run *domain.CrawlRun, listings []domain.Listing, outputPath string) error {
	if err := export.WriteCSVFile(outputPath, listings); err != nil {
		return a.failRun(ctx, rec, notifier, run, fmt.Errorf("write csv: %w", err))
	}
	a.logger.Info("results written", "path", outputPath, "count", len(listings))

	fresh := rec.saveListings(ctx, run.ID, listings)
	run.Status = domain.RunStatusDone
	run.ResultCount = len(listings)
	run.NewCount = len(fresh)
	rec.finishRun(ctx, run)

	if err := notifier.NotifyCrawlComplete(ctx, run, fresh); err != nil {
		a.logger.Warn("failed to send crawl notification", "error", err)
	}
	return nil
}

// failRun marks the run failed, sends an alert and returns err.
func (a *app) failRun(ctx context.Context, rec *recorder, notifier *telegram.Notifier, run *domain.CrawlRun, err error) error {
	run.Status = domain.RunStatusFailed
	run.ErrorMsg = err.Error()
	rec.finishRun(ctx, run)
	a.notifyError(ctx, notifier, err)
	return err
}

func (a *app) notifyError(ctx context.Context, n *telegram.Notifier, err error) {
	if nerr := n.NotifyError(ctx, err.Error()); nerr != nil {
		a.logger.Warn("failed to send error notification", "error", nerr)
	}
}

// recorder keeps the crawl history in sqlite when a database is configured.
// Storage failures are logged and never abort a crawl.
type recorder struct {
	repo   *sqlite.Repository
	logger *slog.Logger
}

func openRecorder(dbPath string, logger *slog.Logger) (*recorder, error) {
	rec := &recorder{logger: logger}
	if dbPath == "" {
		return rec, nil
	}
	repo, err := sqlite.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Debug("database initialized", "path", dbPath)
	rec.repo = repo
	return rec, nil
}

func (r *recorder) close() {
	if r.repo != nil {
		r.repo.Close()
	}
}

func (r *recorder) sessionSolved(ctx context.Context, s *domain.ChallengeSession) {
	if r.repo == nil {
		return
	}
	prev, err := r.repo.GetSolverSession(ctx, s.Name)
	if err != nil {
		r.logger.Warn("failed to load previous solver session", "error", err)
	}
	if prev != nil && prev.UserAgent != s.UserAgent {
		r.logger.Info("solver user agent changed", "previous", prev.UserAgent, "current", s.UserAgent)
	}
	if err := r.repo.SaveSolverSession(ctx, s); err != nil {
		r.logger.Warn("failed to store solver session", "error", err)
	}
	r.log(ctx, &domain.ActivityLog{
		Action:     domain.ActionBootstrap,
		EntityType: "solver_session",
		EntityID:   s.Name,
		Details:    fmt.Sprintf("%d cookies", len(s.Cookies)),
	})
}

func (r *recorder) startRun(ctx context.Context, run *domain.CrawlRun) {
	if r.repo == nil {
		return
	}
	if err := r.repo.StartRun(ctx, run); err != nil {
		r.logger.Warn("failed to record crawl run", "error", err)
		return
	}
	r.log(ctx, &domain.ActivityLog{
		Action:     domain.ActionSearch,
		EntityType: "crawl_run",
		EntityID:   run.ID,
		Details:    run.Filter,
	})
}

func (r *recorder) finishRun(ctx context.Context, run *domain.CrawlRun) {
	if r.repo == nil || run.ID == "" {
		return
	}
	// the crawl context may already be canceled
	ctx = context.WithoutCancel(ctx)
	if err := r.repo.FinishRun(ctx, run); err != nil {
		r.logger.Warn("failed to finish crawl run", "run", run.ID, "error", err)
	}
	if run.Status == domain.RunStatusFailed {
		r.log(ctx, &domain.ActivityLog{
			Action:     domain.ActionError,
			EntityType: "crawl_run",
			EntityID:   run.ID,
			ErrorMsg:   run.ErrorMsg,
		})
	}
}

// saveListings stores the listings and returns the ones never seen before.
// Without a database every listing counts as new.
func (r *recorder) saveListings(ctx context.Context, runID string, listings []domain.Listing) []domain.Listing {
	if r.repo == nil || runID == "" {
		return listings
	}
	fresh, err := r.repo.SaveListings(ctx, runID, listings)
	if err != nil {
		r.logger.Warn("failed to store listings", "error", err)
		return listings
	}
	for _, l := range fresh {
		r.log(ctx, &domain.ActivityLog{
			Action:     domain.ActionListingFound,
			EntityType: "listing",
			EntityID:   l.ID,
			Details:    l.Title,
		})
	}
	return fresh
}

func (r *recorder) log(ctx context.Context, entry *domain.ActivityLog) {
	if err := r.repo.LogActivity(ctx, entry); err != nil {
		r.logger.Warn("failed to log activity", "action", entry.Action, "error", err)
	}
}
