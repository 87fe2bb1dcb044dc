package backend

import (
	"context"
	"fmt"
	"log/slog"

	"efinance/internal/credentials/memory"
	credredis "efinance/internal/credentials/redis"
	"efinance/internal/log"
	"efinance/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new store factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(log.FieldComponent, log.ComponentBackend),
	}
}

// CreateStore implements Factory.CreateStore
func (f *DefaultFactory) CreateStore(ctx context.Context, config Config) (*StoreResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		f.logger.Debug("Initialized memory credential store")
		return &StoreResult{Storage: memory.New()}, nil
	case FileBackend:
		return f.createFileStore(config)
	case SQLiteBackend:
		return f.createSQLiteStore(config)
	case RedisBackend:
		return f.createRedisStore(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createFileStore(config Config) (*StoreResult, error) {
	store, err := memory.NewFile(config.CredentialFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential file: %w", err)
	}
	f.logger.Debug("Initialized file credential store", "path", store.Path())
	return &StoreResult{Storage: store}, nil
}

func (f *DefaultFactory) createSQLiteStore(config Config) (*StoreResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Debug("Initialized SQLite credential store", "db_path", config.SQLiteDBPath)
	return &StoreResult{Storage: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createRedisStore(ctx context.Context, config Config) (*StoreResult, error) {
	rdb, err := credredis.Connect(ctx, config.RedisAddr, config.RedisPassword, config.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	f.logger.Debug("Initialized Redis credential store", "addr", config.RedisAddr, "key", config.RedisKey)
	return &StoreResult{
		Storage: credredis.New(rdb, config.RedisKey),
		Cleanup: rdb.Close,
	}, nil
}
