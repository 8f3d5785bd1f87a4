package backend

import (
	"context"
	"fmt"

	applog "khorcha/internal/log"
	"khorcha/internal/mongo"
	"khorcha/internal/storage"
	"khorcha/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Default(applog.ComponentBackend)
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MongoBackend:
		return f.createMongoBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Repository: repo,
		Ready:      repo.Ping,
		Cleanup:    repo.Close,
	}, nil
}

func (f *DefaultFactory) createMongoBackend(ctx context.Context, config Config) (*BackendResult, error) {
	client, err := mongo.NewClient(ctx, mongo.Config{URI: config.MongoURI, Database: config.MongoDatabase})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MongoDB client: %w", err)
	}

	repo := mongo.NewExpenseRepository(client)
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to create MongoDB indexes: %w", err)
	}

	f.logger.Info("Initialized MongoDB backend", "database", config.MongoDatabase)

	return &BackendResult{
		Repository: repo,
		Ready:      client.Ping,
		Cleanup:    repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store := memory.New()

	if config.SeedFile != "" {
		n, err := store.SeedFile(ctx, config.SeedUserID, config.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to seed memory backend: %w", err)
		}
		f.logger.Info("Seeded memory backend", "file", config.SeedFile, "user_id", config.SeedUserID, "records", n)
	}

	f.logger.Info("Initialized memory backend")

	return &BackendResult{
		Repository: store,
		Ready:      func(context.Context) error { return nil },
		Cleanup:    store.Close,
	}, nil
}
