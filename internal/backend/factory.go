package backend

import (
	"context"
	"fmt"

	goption "google.golang.org/api/option"

	"winterstorm/internal/adapters"
	"winterstorm/internal/amqp"
	applog "winterstorm/internal/log"
	gsheet "winterstorm/internal/sheets/google"
	"winterstorm/internal/sheets/memory"
	"winterstorm/internal/sheets/xlsx"
	"winterstorm/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend()
	case XLSXBackend:
		return f.createXLSXBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case QueueBackend:
		return f.createQueueBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Info("Initialized memory backend")
	return &BackendResult{Exporter: memory.New(), Type: MemoryBackend}, nil
}

func (f *DefaultFactory) createXLSXBackend(config Config) (*BackendResult, error) {
	w := xlsx.New(config.ExportDir, config.ExportFileName)
	if err := w.Validate(); err != nil {
		return nil, err
	}
	f.logger.Info("Initialized xlsx backend", "export_dir", w.Dir, "file_name", w.FileName)
	return &BackendResult{Exporter: w, Type: XLSXBackend}, nil
}

// CreateSheetsClient builds a Google Sheets client from config, preferring
// service account credentials over an OAuth user token. The worker uses it
// directly as its export target.
func CreateSheetsClient(ctx context.Context, config Config) (*gsheet.Client, error) {
	var auth goption.ClientOption
	if config.hasServiceAccount() || !config.hasOAuth() {
		creds, err := gsheet.CredentialsFromFiles(config.GoogleServiceAccountJSON, config.GoogleServiceAccountFile)
		if err != nil {
			return nil, err
		}
		auth = goption.WithCredentialsJSON(creds)
	} else {
		var err error
		auth, err = gsheet.OAuthOption(ctx,
			config.GoogleOAuthClientJSON, config.GoogleOAuthClientFile,
			config.GoogleOAuthTokenJSON, config.GoogleOAuthTokenFile)
		if err != nil {
			return nil, err
		}
	}
	cli, err := gsheet.New(ctx, config.GoogleSpreadsheetID, config.GoogleSheetName, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	return cli, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := CreateSheetsClient(ctx, config)
	if err != nil {
		return nil, err
	}
	f.logger.Info("Initialized Google Sheets backend", "sheet", config.GoogleSheetName)
	return &BackendResult{Exporter: cli, Type: SheetsBackend}, nil
}

func (f *DefaultFactory) createQueueBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// AMQP is optional: without it jobs wait for the worker's sweep.
	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without publish", applog.FieldError, err.Error())
			amqpClient = nil
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	var exporter *adapters.QueueExporter
	if amqpClient != nil {
		exporter = adapters.NewQueueExporter(repo, amqpClient, f.logger)
	} else {
		exporter = adapters.NewQueueExporter(repo, nil, f.logger)
	}

	f.logger.InfoContext(ctx, "Initialized queue backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", amqpClient != nil)

	return &BackendResult{
		Exporter: exporter,
		Type:     QueueBackend,
		Cleanup: func() error {
			var errs []error
			if amqpClient != nil {
				if err := amqpClient.Close(); err != nil {
					errs = append(errs, fmt.Errorf("amqp: %w", err))
				}
			}
			if err := repo.Close(); err != nil {
				errs = append(errs, fmt.Errorf("storage: %w", err))
			}
			if len(errs) > 0 {
				return fmt.Errorf("close queue backend: %v", errs)
			}
			return nil
		},
		Ready: repo.Ping,
	}, nil
}
