package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/julianbeese/bds_crawler/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Repository provides database access for all entities
type Repository struct {
	db *sql.DB
}

// New creates a new SQLite repository and runs migrations
func New(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	// Enable foreign keys and WAL mode
	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	migration, err := migrationsFS.ReadFile("migrations/001_initial.sql")
	if err != nil {
		return err
	}
	_, err = r.db.Exec(string(migration))
	return err
}

// CrawlRun methods

// StartRun records a new running crawl and fills in its id and start time
func (r *Repository) StartRun(ctx context.Context, run *domain.CrawlRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.Status = domain.RunStatusRunning
	run.StartedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO crawl_runs (id, product_type, filter, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, string(run.ProductType), run.Filter, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert crawl run: %w", err)
	}
	return nil
}

// FinishRun stores the final status, counts and error of a run
func (r *Repository) FinishRun(ctx context.Context, run *domain.CrawlRun) error {
	run.FinishedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE crawl_runs
		SET status = ?, result_count = ?, new_count = ?, error_msg = ?, finished_at = ?
		WHERE id = ?
	`, run.Status, run.ResultCount, run.NewCount, run.ErrorMsg, run.FinishedAt, run.ID)
	if err != nil {
		return fmt.Errorf("update crawl run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a crawl run by id. It returns nil when the run is unknown.
func (r *Repository) GetRun(ctx context.Context, id string) (*domain.CrawlRun, error) {
	var run domain.CrawlRun
	var productType string
	var finishedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		SELECT id, product_type, filter, status, result_count, new_count,
			error_msg, started_at, finished_at
		FROM crawl_runs WHERE id = ?
	`, id).Scan(
		&run.ID, &productType, &run.Filter, &run.Status, &run.ResultCount,
		&run.NewCount, &run.ErrorMsg, &run.StartedAt, &finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.ProductType = domain.ProductType(productType)
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return &run, nil
}

// Listing methods

// SaveListings upserts the listings of a run and returns the ones that were
// not stored before.
func (r *Repository) SaveListings(ctx context.Context, runID string, listings []domain.Listing) ([]domain.Listing, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var fresh []domain.Listing
	for _, l := range listings {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM listings WHERE id = ?`, l.ID).Scan(&exists)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lookup listing %s: %w", l.ID, err)
		}

		images, _ := json.Marshal(l.Images)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO listings (
				id, title, href, price, area_m2, n_room, n_wc, district, city,
				published_at, images, last_run_id, first_seen_at, last_seen_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				href = excluded.href,
				price = excluded.price,
				area_m2 = excluded.area_m2,
				n_room = excluded.n_room,
				n_wc = excluded.n_wc,
				district = excluded.district,
				city = excluded.city,
				published_at = excluded.published_at,
				images = excluded.images,
				last_run_id = excluded.last_run_id,
				last_seen_at = excluded.last_seen_at
		`,
			l.ID, l.Title, l.URL, l.Price, l.AreaM2,
			nullableInt(l.Rooms), nullableInt(l.Bathrooms),
			l.District, l.City, nullableTime(l.PublishedAt), string(images),
			runID, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("upsert listing %s: %w", l.ID, err)
		}
		if exists == 0 {
			fresh = append(fresh, l)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return fresh, nil
}

// GetListing retrieves a stored listing by its product id. It returns nil
// when the listing is unknown.
func (r *Repository) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	var l domain.Listing
	var rooms, bathrooms sql.NullInt64
	var publishedAt sql.NullTime
	var images string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, href, price, area_m2, n_room, n_wc, district, city,
			published_at, images
		FROM listings WHERE id = ?
	`, id).Scan(
		&l.ID, &l.Title, &l.URL, &l.Price, &l.AreaM2, &rooms, &bathrooms,
		&l.District, &l.City, &publishedAt, &images,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	l.Rooms = nullIntPtr(rooms)
	l.Bathrooms = nullIntPtr(bathrooms)
	if publishedAt.Valid {
		l.PublishedAt = publishedAt.Time
	}
	if err := json.Unmarshal([]byte(images), &l.Images); err != nil {
		return nil, fmt.Errorf("decode images of listing %s: %w", id, err)
	}
	return &l, nil
}

// CountListings returns the number of stored listings
func (r *Repository) CountListings(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n)
	return n, err
}

// Solver session methods

// SaveSolverSession stores the user agent and cookies of a solved session
func (r *Repository) SaveSolverSession(ctx context.Context, s *domain.ChallengeSession) error {
	cookies, err := json.Marshal(s.Cookies)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO solver_sessions (name, user_agent, cookies, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			user_agent = excluded.user_agent,
			cookies = excluded.cookies,
			updated_at = excluded.updated_at
	`, s.Name, s.UserAgent, string(cookies), time.Now().UTC())
	return err
}

// GetSolverSession returns the last stored session with the given name, or
// nil when there is none. The landing page is not stored.
func (r *Repository) GetSolverSession(ctx context.Context, name string) (*domain.ChallengeSession, error) {
	s := domain.ChallengeSession{Name: name}
	var cookies string

	err := r.db.QueryRowContext(ctx, `
		SELECT user_agent, cookies FROM solver_sessions WHERE name = ?
	`, name).Scan(&s.UserAgent, &cookies)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(cookies), &s.Cookies); err != nil {
		return nil, fmt.Errorf("decode cookies of session %s: %w", name, err)
	}
	return &s, nil
}

// ActivityLog methods

// LogActivity records an activity
func (r *Repository) LogActivity(ctx context.Context, log *domain.ActivityLog) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_log (action, entity_type, entity_id, details, error_msg)
		VALUES (?, ?, ?, ?, ?)
	`, log.Action, log.EntityType, log.EntityID, log.Details, log.ErrorMsg)
	if err != nil {
		return err
	}

	id, _ := result.LastInsertId()
	log.ID = id
	log.CreatedAt = time.Now()
	return nil
}

// RecentActivity returns the latest activity entries, newest first
func (r *Repository) RecentActivity(ctx context.Context, limit int) ([]domain.ActivityLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, action, entity_type, entity_id, details, error_msg, created_at
		FROM activity_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.ActivityLog
	for rows.Next() {
		var a domain.ActivityLog
		if err := rows.Scan(&a.ID, &a.Action, &a.EntityType, &a.EntityID, &a.Details, &a.ErrorMsg, &a.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, a)
	}
	return logs, rows.Err()
}

// Helper functions

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
