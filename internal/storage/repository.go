package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"winterstorm/internal/core"

	_ "modernc.org/sqlite"
)

// Export job states.
const (
	StatusPending = "pending"
	StatusSynced  = "synced"
	StatusError   = "error"
)

// DefaultMaxAttempts is how many failed exports a job gets before the
// pending sweep stops retrying it.
const DefaultMaxAttempts = 5

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrJobNotFound is returned when an export job id is unknown.
var ErrJobNotFound = errors.New("export job not found")

// ExportJob is a computed timeline waiting to be written to Google Sheets.
type ExportJob struct {
	ID        string
	Timeline  core.Timeline
	Status    string
	SheetRef  string
	LastError string
	Attempts  int
	Version   int64
	CreatedAt time.Time
	SyncedAt  *time.Time
}

// PendingExportJob represents minimal data needed for queue messages.
type PendingExportJob struct {
	ID        string
	Version   int64
	CreatedAt time.Time
}

type SQLiteRepository struct {
	db          *sql.DB
	maxAttempts int
	now         func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; the worker and web process share the file.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:          db,
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateExportJob stores the timeline as a pending export.
func (r *SQLiteRepository) CreateExportJob(ctx context.Context, t core.Timeline) (*ExportJob, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	rows, err := json.Marshal(t.Rows)
	if err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}
	job := &ExportJob{
		ID:        uuid.NewString(),
		Timeline:  t,
		Status:    StatusPending,
		Version:   1,
		CreatedAt: r.now(),
	}
	job.Timeline.SheetName = t.Sheet()

	_, err = r.db.ExecContext(ctx, createExportJob,
		job.ID,
		t.Title,
		job.Timeline.SheetName,
		string(t.Strategy),
		string(rows),
		t.TotalInterestPaid.String(),
		t.TotalMonths,
		job.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("create export job: %w", err)
	}

	slog.InfoContext(ctx, "Export job saved to SQLite",
		"job_id", job.ID,
		"sheet", job.Timeline.SheetName,
		"months", t.TotalMonths)
	return job, nil
}

// GetExportJob retrieves a single job by ID.
func (r *SQLiteRepository) GetExportJob(ctx context.Context, id string) (*ExportJob, error) {
	var (
		job                          ExportJob
		strategy, rowsJSON, interest string
		createdAt                    string
		syncedAt                     sql.NullString
	)
	err := r.db.QueryRowContext(ctx, getExportJob, id).Scan(
		&job.ID,
		&job.Timeline.Title,
		&job.Timeline.SheetName,
		&strategy,
		&rowsJSON,
		&interest,
		&job.Timeline.TotalMonths,
		&job.Status,
		&job.SheetRef,
		&job.LastError,
		&job.Attempts,
		&job.Version,
		&createdAt,
		&syncedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get export job: %w", err)
	}

	job.Timeline.Strategy = core.ParseStrategy(strategy)
	if err := json.Unmarshal([]byte(rowsJSON), &job.Timeline.Rows); err != nil {
		return nil, fmt.Errorf("decode rows for job %s: %w", id, err)
	}
	if job.Timeline.TotalInterestPaid, err = decimal.NewFromString(interest); err != nil {
		return nil, fmt.Errorf("decode interest for job %s: %w", id, err)
	}
	if job.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at for job %s: %w", id, err)
	}
	if syncedAt.Valid {
		ts, err := time.Parse(timeLayout, syncedAt.String)
		if err != nil {
			return nil, fmt.Errorf("decode synced_at for job %s: %w", id, err)
		}
		job.SyncedAt = &ts
	}
	return &job, nil
}

// GetPendingExportJobs returns jobs that still need exporting, oldest first.
// Failed jobs are retried until they reach the attempt limit.
func (r *SQLiteRepository) GetPendingExportJobs(ctx context.Context, limit int) ([]PendingExportJob, error) {
	rows, err := r.db.QueryContext(ctx, getPendingExportJobs, r.maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending export jobs: %w", err)
	}
	defer rows.Close()

	var out []PendingExportJob
	for rows.Next() {
		var (
			p         PendingExportJob
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending export job: %w", err)
		}
		if p.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("decode created_at for job %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced marks a job as successfully exported.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id, sheetRef string) error {
	if err := r.update(ctx, markExportJobSynced, sheetRef, r.now().Format(timeLayout), id); err != nil {
		return fmt.Errorf("mark export job synced: %w", err)
	}
	slog.InfoContext(ctx, "Export job marked as synced", "job_id", id, "sheet_ref", sheetRef)
	return nil
}

// MarkSyncError records a failed export attempt.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.update(ctx, markExportJobError, msg, id); err != nil {
		return fmt.Errorf("mark export job sync error: %w", err)
	}
	slog.WarnContext(ctx, "Export job marked with sync error", "job_id", id, "error", msg)
	return nil
}

// CleanupSyncedJobs deletes jobs exported before cutoff and returns how many
// were removed. Pending and failed jobs are kept.
func (r *SQLiteRepository) CleanupSyncedJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteSyncedExportJobs, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("cleanup synced export jobs: %w", err)
	}
	return res.RowsAffected()
}

// CountByStatus returns the number of jobs per status.
func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, countExportJobsByStatus)
	if err != nil {
		return nil, fmt.Errorf("count export jobs: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{StatusPending: 0, StatusSynced: 0, StatusError: 0}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan export job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *SQLiteRepository) update(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}
