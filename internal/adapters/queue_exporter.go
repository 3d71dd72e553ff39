// Package adapters bridges the outbox and the message queue to the export
// port so HTTP handlers stay unaware of deferred delivery.
package adapters

import (
	"context"
	"errors"
	"fmt"

	"winterstorm/internal/core"
	applog "winterstorm/internal/log"
	"winterstorm/internal/sheets"
	"winterstorm/internal/storage"
)

var _ sheets.TimelineExporter = (*QueueExporter)(nil)

// QueuedRefPrefix prefixes references returned for deferred exports.
const QueuedRefPrefix = "queued:"

type (
	// JobStore persists timelines waiting for export.
	JobStore interface {
		CreateExportJob(ctx context.Context, t core.Timeline) (*storage.ExportJob, error)
	}

	// Publisher announces a new export job to the worker.
	Publisher interface {
		PublishExportRequested(ctx context.Context, jobID string, version int64) error
	}
)

// QueueExporter saves a timeline in the SQLite outbox and notifies the worker
// over AMQP. A failed publish is logged and left to the worker's pending sweep.
type QueueExporter struct {
	store     JobStore
	publisher Publisher
	logger    *applog.Logger
}

// NewQueueExporter builds an exporter. publisher may be nil when the broker
// is unavailable; jobs are then picked up by the sweep alone.
func NewQueueExporter(store JobStore, publisher Publisher, logger *applog.Logger) *QueueExporter {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &QueueExporter{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(applog.ComponentBackend),
	}
}

func (q *QueueExporter) ExportTimeline(ctx context.Context, t core.Timeline) (string, error) {
	if q.store == nil {
		return "", errors.New("queue exporter has no job store")
	}
	job, err := q.store.CreateExportJob(ctx, t)
	if err != nil {
		return "", fmt.Errorf("save export job: %w", err)
	}

	if q.publisher == nil {
		q.logger.WarnContext(ctx, "AMQP client not available, job left for pending sweep",
			applog.FieldJobID, job.ID)
	} else if err := q.publisher.PublishExportRequested(ctx, job.ID, job.Version); err != nil {
		q.logger.ErrorContext(ctx, "Failed to publish export message",
			applog.FieldJobID, job.ID,
			applog.FieldError, err.Error())
	}

	return QueuedRefPrefix + job.ID, nil
}
