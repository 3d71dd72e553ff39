// Package worker drains the export outbox into the configured spreadsheet
// backend, driven by AMQP messages and a periodic sweep.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"winterstorm/internal/amqp"
	applog "winterstorm/internal/log"
	"winterstorm/internal/metrics"
	"winterstorm/internal/sheets"
	"winterstorm/internal/storage"
)

// JobRepository is the slice of the outbox the worker needs.
type JobRepository interface {
	GetExportJob(ctx context.Context, id string) (*storage.ExportJob, error)
	GetPendingExportJobs(ctx context.Context, limit int) ([]storage.PendingExportJob, error)
	MarkSynced(ctx context.Context, id, sheetRef string) error
	MarkSyncError(ctx context.Context, id string, cause error) error
	CountByStatus(ctx context.Context) (map[string]int, error)
	CleanupSyncedJobs(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExportWorker writes queued timelines to the spreadsheet backend.
type ExportWorker struct {
	repo      JobRepository
	exporter  sheets.TimelineExporter
	backend   string
	batchSize int
	metrics   *metrics.Metrics
	logger    *applog.Logger
}

func NewExportWorker(repo JobRepository, exporter sheets.TimelineExporter, backend string, batchSize int, m *metrics.Metrics, logger *applog.Logger) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ExportWorker{
		repo:      repo,
		exporter:  exporter,
		backend:   backend,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleExportMessage processes one export request from AMQP. Unknown jobs,
// jobs already synced and messages older than the job are acknowledged
// without work.
func (w *ExportWorker) HandleExportMessage(ctx context.Context, msg *amqp.ExportMessage) error {
	w.logger.InfoContext(ctx, "Processing export message",
		applog.FieldJobID, msg.JobID,
		"version", msg.Version)

	job, err := w.repo.GetExportJob(ctx, msg.JobID)
	if errors.Is(err, storage.ErrJobNotFound) {
		w.logger.WarnContext(ctx, "Export job not found, dropping message", applog.FieldJobID, msg.JobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get export job: %w", err)
	}

	switch {
	case job.Status == storage.StatusSynced:
		w.logger.DebugContext(ctx, "Export job already synced", applog.FieldJobID, job.ID)
		return nil
	case msg.Version < job.Version:
		w.logger.DebugContext(ctx, "Stale export message",
			applog.FieldJobID, job.ID,
			"message_version", msg.Version,
			"job_version", job.Version)
		return nil
	}

	err = w.exportJob(ctx, job)
	w.refreshGauge(ctx)
	return err
}

// ProcessPendingJobs exports up to one batch of jobs that are still pending
// or failed below the retry limit. It backs up lost AMQP messages.
func (w *ExportWorker) ProcessPendingJobs(ctx context.Context) error {
	synced, failed, err := w.sweep(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending export jobs: %w", err)
	}
	if synced+failed > 0 {
		w.logger.InfoContext(ctx, "Processed pending export jobs",
			"synced", synced,
			"errors", failed)
	}
	return nil
}

// StartupSyncCheck sweeps a larger batch when the worker boots.
func (w *ExportWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.sweep(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending export jobs for startup check: %w", err)
	}
	if synced+failed == 0 {
		w.logger.InfoContext(ctx, "No pending export jobs found on startup")
		return nil
	}
	w.logger.InfoContext(ctx, "Startup sync completed",
		"total", synced+failed,
		"synced", synced,
		"errors", failed)
	return nil
}

// RunSweeper calls ProcessPendingJobs every interval until ctx is done.
func (w *ExportWorker) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.ProcessPendingJobs(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Pending export sweep failed", applog.FieldError, err.Error())
			}
		}
	}
}

// CleanupSynced removes exported jobs older than retention.
func (w *ExportWorker) CleanupSynced(ctx context.Context, retention time.Duration) error {
	n, err := w.repo.CleanupSyncedJobs(ctx, time.Now().Add(-retention))
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.InfoContext(ctx, "Cleaned up synced export jobs", "removed", n, "retention", retention)
		w.refreshGauge(ctx)
	}
	return nil
}

// RunCleanup calls CleanupSynced every interval until ctx is done.
func (w *ExportWorker) RunCleanup(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.CleanupSynced(ctx, retention); err != nil {
				w.logger.ErrorContext(ctx, "Export job cleanup failed", applog.FieldError, err.Error())
			}
		}
	}
}

func (w *ExportWorker) sweep(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.repo.GetPendingExportJobs(ctx, limit)
	if err != nil {
		return 0, 0, err
	}
	defer w.refreshGauge(ctx)

	for _, p := range pending {
		if ctx.Err() != nil {
			break
		}
		job, err := w.repo.GetExportJob(ctx, p.ID)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to get export job", applog.FieldJobID, p.ID, applog.FieldError, err.Error())
			failed++
			continue
		}
		if err := w.exportJob(ctx, job); err != nil {
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

func (w *ExportWorker) exportJob(ctx context.Context, job *storage.ExportJob) error {
	ref, err := w.exporter.ExportTimeline(ctx, job.Timeline)
	w.metrics.ObserveExport(w.backend, err)
	if err != nil {
		if markErr := w.repo.MarkSyncError(ctx, job.ID, err); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error", applog.FieldJobID, job.ID, applog.FieldError, markErr.Error())
		}
		w.logger.ErrorContext(ctx, "Failed to export timeline",
			applog.FieldJobID, job.ID,
			"attempt", job.Attempts+1,
			applog.FieldError, err.Error())
		return fmt.Errorf("export job %s: %w", job.ID, err)
	}

	if err := w.repo.MarkSynced(ctx, job.ID, ref); err != nil {
		// The sheet was written; a retry would only rewrite the same tab.
		w.logger.ErrorContext(ctx, "Failed to mark as synced", applog.FieldJobID, job.ID, applog.FieldError, err.Error())
	}

	w.logger.InfoContext(ctx, "Successfully exported timeline",
		applog.FieldJobID, job.ID,
		applog.FieldExportRef, ref,
		applog.FieldTotalMonths, job.Timeline.TotalMonths)
	return nil
}

func (w *ExportWorker) refreshGauge(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	counts, err := w.repo.CountByStatus(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "Failed to count export jobs", applog.FieldError, err.Error())
		return
	}
	w.metrics.SetExportJobs(counts)
}
