package backend

import (
	"context"
	"fmt"
	"io"

	"finex/internal/amqp"
	"finex/internal/log"
	"finex/internal/memory"
	"finex/internal/rpc"
	"finex/internal/services"
	"finex/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Nop()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend builds the configured backend. Local backends publish ledger
// events when AMQP is configured; a broker that cannot be reached only
// disables publishing.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case RemoteBackend:
		return f.createRemoteBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, storage.WithSeedCategories(config.SeedDefaultCategories))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return f.withLedgerEvents(ctx, config, repo), nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store := memory.New(memory.WithSeedCategories(config.SeedDefaultCategories))

	f.logger.Info("Initialized memory backend", "seed_categories", config.SeedDefaultCategories)
	return f.withLedgerEvents(ctx, config, store), nil
}

func (f *DefaultFactory) createRemoteBackend(config Config) (*BackendResult, error) {
	client := rpc.NewClient(config.BackendURL, config.RPCToken, nil)

	f.logger.Info("Initialized remote backend", "backend_url", config.BackendURL, "token_set", config.RPCToken != "")
	return &BackendResult{Backend: client}, nil
}

// withLedgerEvents wraps b in a LedgerService. Without a broker the service
// still logs and counts mutations.
func (f *DefaultFactory) withLedgerEvents(ctx context.Context, config Config, b Backend) *BackendResult {
	var publisher services.Publisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(ctx, config.AMQPURL, config.AMQPExchange, "", f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without ledger events", log.FieldError, err)
		} else {
			publisher = client
			f.logger.Info("Initialized AMQP publisher", "exchange", config.AMQPExchange)
		}
	}

	svc := services.NewLedgerService(b, publisher, f.logger)
	return &BackendResult{Backend: svc, Cleanup: svc.Close}
}

// Close runs the cleanup function when there is one.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

var _ io.Closer = (*BackendResult)(nil)
