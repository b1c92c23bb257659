package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/store"
	"tally/internal/store/gsheets"
	"tally/internal/store/memory"
	"tally/internal/store/mongo"
	"tally/internal/store/sqlite"
	"tally/internal/store/xlsx"
)

const connectTimeout = 10 * time.Second

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens the configured store and, when AMQP_URL is set, a
// change publisher. A broker that cannot be reached is logged and skipped.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case MemoryBackend:
		result, err = f.createMemoryBackend(config)
	case XLSXBackend:
		result, err = f.createXLSXBackend(config)
	case SheetsBackend:
		result, err = f.createSheetsBackend(ctx, config)
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case MongoBackend:
		result, err = f.createMongoBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without sync", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.Publisher = client
			storeCleanup := result.Cleanup
			result.Cleanup = func() error {
				var errs []error
				if err := client.Close(); err != nil {
					errs = append(errs, fmt.Errorf("amqp: %w", err))
				}
				if storeCleanup != nil {
					if err := storeCleanup(); err != nil {
						errs = append(errs, fmt.Errorf("store: %w", err))
					}
				}
				if len(errs) > 0 {
					return fmt.Errorf("close backend: %v", errs)
				}
				return nil
			}
		}
	}

	return result, nil
}

// CreateMirror opens the Google Sheet the sync worker writes to.
func (f *DefaultFactory) CreateMirror(ctx context.Context, config Config) (store.SnapshotStore, error) {
	cli, err := gsheets.New(ctx, sheetsOptions(config))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets mirror: %w", err)
	}
	f.logger.Info("Initialized Google Sheets mirror", "spreadsheet_id", config.GoogleSpreadsheetID)
	return cli, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	s := memory.NewFromFiles(config.DataDirectory)

	f.logger.Info("Initialized memory backend", "data_directory", config.DataDirectory)

	return &BackendResult{
		Backend: &Backend{Type: MemoryBackend, Entries: s, Taxonomy: s},
	}, nil
}

func (f *DefaultFactory) createXLSXBackend(config Config) (*BackendResult, error) {
	wb := xlsx.New(config.XLSXPath)

	f.logger.Info("Initialized xlsx backend", "path", config.XLSXPath)

	return &BackendResult{
		Backend: &Backend{
			Type:      XLSXBackend,
			Snapshots: wb,
			Taxonomy:  memory.NewFromFiles(config.DataDirectory),
		},
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := gsheets.New(ctx, sheetsOptions(config))
	if err != nil {
		return nil, core.Unavailable("gsheets", fmt.Errorf("failed to initialize Google Sheets client: %w", err))
	}

	f.logger.Info("Initialized Google Sheets backend", "spreadsheet_id", config.GoogleSpreadsheetID)

	return &BackendResult{
		Backend: &Backend{
			Type:      SheetsBackend,
			Snapshots: cli,
			Taxonomy:  memory.NewFromFiles(config.DataDirectory),
		},
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := sqlite.NewRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Backend: &Backend{Type: SQLiteBackend, Entries: repo, Taxonomy: repo},
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMongoBackend(ctx context.Context, config Config) (*BackendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.ConnectToMongoDB(ctx, config.MongoURI)
	if err != nil {
		return nil, core.Unavailable("mongo", err)
	}
	provider := mongo.NewMongoProvider(client, config.MongoDatabase)
	repo := mongo.NewRepository(provider, memory.ReadSeedFile(config.DataDirectory))

	f.logger.Info("Initialized MongoDB backend", "database", config.MongoDatabase)

	return &BackendResult{
		Backend: &Backend{Type: MongoBackend, Entries: repo, Taxonomy: repo},
		Cleanup: provider.Close,
	}, nil
}

func sheetsOptions(config Config) gsheets.Options {
	return gsheets.Options{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
		ExpensesSheet:   config.GoogleExpensesSheet,
		IncomeSheet:     config.GoogleIncomeSheet,
		YearPrefix:      config.GoogleSheetYearPrefix,
	}
}
