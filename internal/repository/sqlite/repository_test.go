package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianbeese/bds_crawler/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func intp(v int) *int { return &v }

func TestRunLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	run := &domain.CrawlRun{ProductType: domain.ProductSell, Filter: `{"city_code":"SG"}`}
	require.NoError(t, repo.StartRun(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, domain.RunStatusRunning, run.Status)

	run.Status = domain.RunStatusDone
	run.ResultCount = 3
	run.NewCount = 2
	require.NoError(t, repo.FinishRun(ctx, run))

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.ProductSell, got.ProductType)
	assert.Equal(t, domain.RunStatusDone, got.Status)
	assert.Equal(t, 3, got.ResultCount)
	assert.Equal(t, 2, got.NewCount)
	assert.False(t, got.FinishedAt.IsZero())

	missing, err := repo.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveListingsReportsNewOnes(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := &domain.CrawlRun{ProductType: domain.ProductSell}
	require.NoError(t, repo.StartRun(ctx, first))

	listings := []domain.Listing{
		{
			ID: "101", Title: "Nhà phố", URL: "/pr101", Price: "5 tỷ", AreaM2: 72.5,
			Rooms: intp(3), District: "Quận 1", City: "Hồ Chí Minh",
			PublishedAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
			Images:      []string{"101-1.jpg", "101-2.png"},
		},
		{ID: "102", Title: "Căn hộ", URL: "/pr102", AreaM2: 40, District: "Cầu Giấy", City: "Hà Nội"},
	}

	fresh, err := repo.SaveListings(ctx, first.ID, listings)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)

	second := &domain.CrawlRun{ProductType: domain.ProductSell}
	require.NoError(t, repo.StartRun(ctx, second))

	listings[0].Price = "4,8 tỷ"
	listings = append(listings, domain.Listing{ID: "103", Title: "Đất nền", URL: "/pr103", District: "Thủ Đức", City: "Hồ Chí Minh"})
	fresh, err = repo.SaveListings(ctx, second.ID, listings)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "103", fresh[0].ID)

	n, err := repo.CountListings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := repo.GetListing(ctx, "101")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "4,8 tỷ", got.Price)
	require.NotNil(t, got.Rooms)
	assert.Equal(t, 3, *got.Rooms)
	assert.Nil(t, got.Bathrooms)
	assert.Equal(t, []string{"101-1.jpg", "101-2.png"}, got.Images)
	assert.True(t, got.PublishedAt.Equal(listings[0].PublishedAt))

	other, err := repo.GetListing(ctx, "102")
	require.NoError(t, err)
	assert.True(t, other.PublishedAt.IsZero())

	unknown, err := repo.GetListing(ctx, "999")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestSolverSessionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	none, err := repo.GetSolverSession(ctx, "batdongsan.com.vn_solver")
	require.NoError(t, err)
	assert.Nil(t, none)

	s := &domain.ChallengeSession{
		Name:      "batdongsan.com.vn_solver",
		UserAgent: "Mozilla/5.0",
		Cookies:   []domain.Cookie{{Name: "cf_clearance", Value: "abc", Domain: ".batdongsan.com.vn", HTTPOnly: true}},
	}
	require.NoError(t, repo.SaveSolverSession(ctx, s))

	s.UserAgent = "Mozilla/6.0"
	require.NoError(t, repo.SaveSolverSession(ctx, s))

	got, err := repo.GetSolverSession(ctx, s.Name)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Mozilla/6.0", got.UserAgent)
	require.Len(t, got.Cookies, 1)
	assert.Equal(t, "cf_clearance", got.Cookies[0].Name)
	assert.True(t, got.Cookies[0].HTTPOnly)
}

func TestLogActivity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.LogActivity(ctx, &domain.ActivityLog{Action: domain.ActionBootstrap, Details: "session reused"}))
	entry := &domain.ActivityLog{Action: domain.ActionError, EntityType: "crawl_run", EntityID: "r1", ErrorMsg: "boom"}
	require.NoError(t, repo.LogActivity(ctx, entry))
	assert.NotZero(t, entry.ID)

	logs, err := repo.RecentActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.ActionError, logs[0].Action)
	assert.Equal(t, "boom", logs[0].ErrorMsg)
	assert.Equal(t, domain.ActionBootstrap, logs[1].Action)
}
