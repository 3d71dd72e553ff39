package backend

import (
	"context"

	"winterstorm/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// ReadyFunc reports whether the backend's dependencies are reachable.
type ReadyFunc func(ctx context.Context) error

// BackendResult contains the exporter and its lifecycle hooks. Cleanup and
// Ready may be nil.
type BackendResult struct {
	Exporter sheets.TimelineExporter
	Type     BackendType
	Cleanup  CleanupFunc
	Ready    ReadyFunc
}

// Close runs Cleanup when set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// xlsx
	ExportDir      string
	ExportFileName string

	// queue
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleOAuthClientJSON    string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenJSON     string
	GoogleOAuthTokenFile     string
}

// BackendType represents the type of export backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	XLSXBackend   BackendType = "xlsx"
	SheetsBackend BackendType = "sheets"
	QueueBackend  BackendType = "queue"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, XLSXBackend, SheetsBackend, QueueBackend:
		return true
	default:
		return false
	}
}
