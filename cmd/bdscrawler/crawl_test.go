package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianbeese/bds_crawler/internal/domain"
	"github.com/julianbeese/bds_crawler/internal/notifier/telegram"
)

func parseCrawlFlags(t *testing.T, args ...string) (*crawlFlags, *pflag.FlagSet) {
	t.Helper()
	f := &crawlFlags{}
	fs := pflag.NewFlagSet("crawl", pflag.ContinueOnError)
	f.register(fs)
	require.NoError(t, fs.Parse(args))
	return f, fs
}

func TestFilterDefaults(t *testing.T) {
	f, fs := parseCrawlFlags(t, "--output-path", "out/result.csv")

	filter, err := f.filter(fs, domain.ProductSell)
	require.NoError(t, err)

	assert.Equal(t, domain.ProductSell, filter.ProductType)
	assert.Nil(t, filter.MinPrice)
	assert.Nil(t, filter.MaxPrice)
	assert.Nil(t, filter.PriceOption)
	assert.Nil(t, filter.AreaOption)
	assert.Equal(t, 100, filter.MaxResult)
	assert.Equal(t, 1, filter.StartPage)
	assert.Equal(t, domain.FetchDirect, filter.Strategy)
	assert.Equal(t, "out", filter.OutputDir)
}

func TestFilterFromFlags(t *testing.T) {
	f, fs := parseCrawlFlags(t,
		"--min-price", "0", "--max-price", "800",
		"--price-sell-option", "3", "--price-rent-option", "7",
		"--area-option", "2",
		"--city", "SG",
		"--directions", "3,1",
		"--n-rooms", "2", "--n-rooms", "5",
		"--max-result", "0", "--start-page", "3",
		"--output-path", "/tmp/x/r.csv",
		"--debug", "--no-use-request",
	)

	sell, err := f.filter(fs, domain.ProductSell)
	require.NoError(t, err)
	require.NotNil(t, sell.MinPrice)
	assert.Equal(t, 0, *sell.MinPrice)
	assert.Equal(t, 800, *sell.MaxPrice)
	assert.Equal(t, 3, *sell.PriceOption)
	assert.Equal(t, 2, *sell.AreaOption)
	assert.Equal(t, "SG", sell.CityCode)
	assert.Equal(t, []int{3, 1}, sell.Directions)
	assert.Equal(t, []int{2, 5}, sell.Rooms)
	assert.Equal(t, 0, sell.MaxResult)
	assert.Equal(t, 3, sell.StartPage)
	assert.True(t, sell.Debug)
	assert.Equal(t, domain.FetchRelayed, sell.Strategy)
	assert.Equal(t, "/tmp/x", sell.OutputDir)

	rent, err := f.filter(fs, domain.ProductRent)
	require.NoError(t, err)
	assert.Equal(t, 7, *rent.PriceOption)
}

func TestFilterRejectsBadPaging(t *testing.T) {
	f, fs := parseCrawlFlags(t, "--start-page", "0")
	_, err := f.filter(fs, domain.ProductSell)
	assert.Error(t, err)

	f, fs = parseCrawlFlags(t, "--max-result", "-1")
	_, err = f.filter(fs, domain.ProductSell)
	assert.Error(t, err)
}

func TestRecorderWithoutDatabase(t *testing.T) {
	rec, err := openRecorder("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer rec.close()

	ctx := context.Background()
	run := &domain.CrawlRun{ProductType: domain.ProductSell}
	rec.sessionSolved(ctx, &domain.ChallengeSession{Name: "s"})
	rec.startRun(ctx, run)
	assert.Empty(t, run.ID)

	listings := []domain.Listing{{ID: "1"}, {ID: "2"}}
	assert.Equal(t, listings, rec.saveListings(ctx, run.ID, listings))
	rec.finishRun(ctx, run)
}

func TestRecorderTracksNewListings(t *testing.T) {
	rec, err := openRecorder(filepath.Join(t.TempDir(), "crawl.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer rec.close()

	ctx := context.Background()
	rec.sessionSolved(ctx, &domain.ChallengeSession{Name: "s", UserAgent: "ua"})

	first := &domain.CrawlRun{ProductType: domain.ProductSell}
	rec.startRun(ctx, first)
	require.NotEmpty(t, first.ID)
	fresh := rec.saveListings(ctx, first.ID, []domain.Listing{{ID: "1"}, {ID: "2"}})
	assert.Len(t, fresh, 2)
	first.Status = domain.RunStatusDone
	rec.finishRun(ctx, first)

	second := &domain.CrawlRun{ProductType: domain.ProductSell}
	rec.startRun(ctx, second)
	fresh = rec.saveListings(ctx, second.ID, []domain.Listing{{ID: "2"}, {ID: "3"}})
	require.Len(t, fresh, 1)
	assert.Equal(t, "3", fresh[0].ID)

	got, err := rec.repo.GetRun(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusDone, got.Status)

	stored, err := rec.repo.GetSolverSession(ctx, "s")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "ua", stored.UserAgent)
}

func TestCompleteRunWritesResults(t *testing.T) {
	dir := t.TempDir()
	a := &app{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	rec, err := openRecorder(filepath.Join(dir, "crawl.db"), a.logger)
	require.NoError(t, err)
	defer rec.close()
	notifier, err := telegram.NewNotifier("", 0, false, "")
	require.NoError(t, err)

	ctx := context.Background()
	run := &domain.CrawlRun{ProductType: domain.ProductRent}
	rec.startRun(ctx, run)

	out := filepath.Join(dir, "result.csv")
	require.NoError(t, a.completeRun(ctx, rec, notifier, run, []domain.Listing{{ID: "1", Title: "Phòng"}}, out))
	_, err = os.Stat(out)
	require.NoError(t, err)

	got, err := rec.repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusDone, got.Status)
	assert.Equal(t, 1, got.ResultCount)
	assert.Equal(t, 1, got.NewCount)
}

func TestCompleteRunMarksCSVFailure(t *testing.T) {
	dir := t.TempDir()
	a := &app{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	rec, err := openRecorder(filepath.Join(dir, "crawl.db"), a.logger)
	require.NoError(t, err)
	defer rec.close()
	notifier, err := telegram.NewNotifier("", 0, false, "")
	require.NoError(t, err)

	ctx := context.Background()
	run := &domain.CrawlRun{ProductType: domain.ProductSell}
	rec.startRun(ctx, run)

	// the output path is a directory, so the CSV cannot be created
	err = a.completeRun(ctx, rec, notifier, run, []domain.Listing{{ID: "1"}}, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write csv")

	got, err := rec.repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMsg, "write csv")
	assert.False(t, got.FinishedAt.IsZero())

	n, err := rec.repo.CountListings(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
