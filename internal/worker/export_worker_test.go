package worker

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"winterstorm/internal/amqp"
	"winterstorm/internal/core"
	applog "winterstorm/internal/log"
	"winterstorm/internal/metrics"
	"winterstorm/internal/sheets/memory"
	"winterstorm/internal/storage"
)

type flakyExporter struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *flakyExporter) ExportTimeline(context.Context, core.Timeline) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "'Debt Timeline'!A1:B2", nil
}

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "worker.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newJob(t *testing.T, repo *storage.SQLiteRepository, title string) *storage.ExportJob {
	t.Helper()
	job, err := repo.CreateExportJob(context.Background(), core.Timeline{
		Title:             title,
		Strategy:          core.Avalanche,
		Rows:              [][]string{{"Month", "A"}, {"Month 1", "0.00"}},
		TotalInterestPaid: decimal.Zero,
		TotalMonths:       1,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Output: &bytes.Buffer{}})
}

func TestHandleExportMessage(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	store := memory.New()
	w := NewExportWorker(repo, store, "memory", 10, metrics.New(), quietLogger())

	job := newJob(t, repo, "plan")
	if err := w.HandleExportMessage(ctx, amqp.NewExportMessage(job.ID, job.Version)); err != nil {
		t.Fatalf("HandleExportMessage failed: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one export, got %d", store.Len())
	}
	got, err := repo.GetExportJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != storage.StatusSynced || got.SheetRef != "mem:1" {
		t.Fatalf("expected synced with ref mem:1, got %s / %q", got.Status, got.SheetRef)
	}

	// Redelivery of the same message is a no-op.
	if err := w.HandleExportMessage(ctx, amqp.NewExportMessage(job.ID, job.Version)); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("synced job exported twice")
	}
}

func TestHandleExportMessageUnknownJob(t *testing.T) {
	repo := newRepo(t)
	store := memory.New()
	w := NewExportWorker(repo, store, "memory", 10, nil, quietLogger())

	if err := w.HandleExportMessage(context.Background(), amqp.NewExportMessage("missing", 1)); err != nil {
		t.Fatalf("unknown job should be acknowledged, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatal("nothing should be exported")
	}
}

func TestHandleExportMessageFailureThenStale(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	exp := &flakyExporter{err: errors.New("quota exceeded")}
	w := NewExportWorker(repo, exp, "sheets", 10, nil, quietLogger())

	job := newJob(t, repo, "plan")
	msg := amqp.NewExportMessage(job.ID, job.Version)
	if err := w.HandleExportMessage(ctx, msg); err == nil {
		t.Fatal("expected export error")
	}
	got, _ := repo.GetExportJob(ctx, job.ID)
	if got.Status != storage.StatusError || got.Attempts != 1 || got.LastError != "quota exceeded" {
		t.Fatalf("unexpected job after failure: %+v", got)
	}

	// The requeued message now predates the job and is skipped.
	if err := w.HandleExportMessage(ctx, msg); err != nil {
		t.Fatalf("stale message should be acknowledged, got %v", err)
	}
	if exp.calls != 1 {
		t.Fatalf("stale message should not export, calls=%d", exp.calls)
	}
}

func TestProcessPendingJobs(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	store := memory.New()
	m := metrics.New()
	w := NewExportWorker(repo, store, "memory", 2, m, quietLogger())

	for _, title := range []string{"one", "two", "three"} {
		newJob(t, repo, title)
	}

	if err := w.ProcessPendingJobs(ctx); err != nil {
		t.Fatalf("ProcessPendingJobs failed: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected one batch of 2 exports, got %d", store.Len())
	}
	counts, _ := repo.CountByStatus(ctx)
	if counts[storage.StatusPending] != 1 || counts[storage.StatusSynced] != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	items, _ := store.ListTimelines(ctx)
	if items[0].Title != "one" || items[1].Title != "two" {
		t.Fatalf("expected oldest jobs first, got %q, %q", items[0].Title, items[1].Title)
	}
}

func TestStartupSyncCheck(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	store := memory.New()
	var buf bytes.Buffer
	w := NewExportWorker(repo, store, "memory", 1, nil, applog.New(applog.Config{Output: &buf}))

	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No pending export jobs") {
		t.Fatalf("expected empty startup log, got %q", buf.String())
	}

	for i := 0; i < 3; i++ {
		newJob(t, repo, "job")
	}
	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 3 {
		t.Fatalf("startup check should sweep 5x the batch, got %d exports", store.Len())
	}
}

func TestProcessPendingJobsRetriesUntilLimit(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	exp := &flakyExporter{err: errors.New("backend down")}
	w := NewExportWorker(repo, exp, "sheets", 10, nil, quietLogger())
	newJob(t, repo, "plan")

	for i := 0; i < storage.DefaultMaxAttempts+2; i++ {
		if err := w.ProcessPendingJobs(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if exp.calls != storage.DefaultMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", storage.DefaultMaxAttempts, exp.calls)
	}
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	repo := newRepo(t)
	store := memory.New()
	w := NewExportWorker(repo, store, "memory", 10, nil, quietLogger())
	newJob(t, repo, "plan")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.RunSweeper(ctx, 10*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunSweeper returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RunSweeper did not stop")
	}
	if store.Len() != 1 {
		t.Fatalf("expected the pending job to be swept, got %d", store.Len())
	}
}

func TestCleanupSynced(t *testing.T) {
	repo := newRepo(t)
	store := memory.New()
	w := NewExportWorker(repo, store, "memory", 10, nil, quietLogger())
	ctx := context.Background()

	synced := newJob(t, repo, "done")
	if err := w.HandleExportMessage(ctx, amqp.NewExportMessage(synced.ID, synced.Version)); err != nil {
		t.Fatal(err)
	}
	pending := newJob(t, repo, "waiting")

	if err := w.CleanupSynced(ctx, time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetExportJob(ctx, synced.ID); err != nil {
		t.Fatalf("recent job should be kept: %v", err)
	}

	if err := w.CleanupSynced(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetExportJob(ctx, synced.ID); !errors.Is(err, storage.ErrJobNotFound) {
		t.Fatalf("synced job should be removed, got %v", err)
	}
	if _, err := repo.GetExportJob(ctx, pending.ID); err != nil {
		t.Fatalf("pending job must survive cleanup: %v", err)
	}
}
