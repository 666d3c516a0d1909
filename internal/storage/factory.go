package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/signalsfoundry/impact-simulator/internal/config"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/internal/storage/gormstore"
	"github.com/signalsfoundry/impact-simulator/internal/storage/memory"
	"github.com/signalsfoundry/impact-simulator/internal/storage/postgres"
	"github.com/signalsfoundry/impact-simulator/internal/storage/sqlite"
)

// NewBackend creates and initialises a storage backend based on configuration.
func NewBackend(ctx context.Context, cfg config.StorageConfig, log logging.Logger) (Backend, error) {
	if log == nil {
		log = logging.Noop()
	}

	var backend Backend
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		backend = memory.New(0)
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		backend = gormstore.New(db)
	case "postgres":
		db, err := postgres.Open(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		backend = gormstore.New(db)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Type)
	}

	if err := backend.Init(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("init %s storage: %w", cfg.Type, err)
	}
	log.Info(ctx, "impact history storage ready", logging.String("type", cfg.Type))
	return backend, nil
}
