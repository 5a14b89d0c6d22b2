// internal/storage/store.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"libranexus/internal/config"
)

var (
	ErrNotFound   = errors.New("snapshot not found")
	ErrInvalidKey = errors.New("invalid snapshot key")
)

// Store keeps encoded snapshots under string keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// Open returns the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Storage, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "storage", "driver", cfg.Driver)

	switch cfg.Driver {
	case "file":
		return NewFileStore(cfg.Path)
	case "bolt":
		if err := ensureParent(cfg.Path); err != nil {
			return nil, err
		}
		return OpenBolt(cfg.Path)
	case "postgres", "pgx":
		return OpenSQL(ctx, cfg.Driver, cfg.DSN, logger)
	case "sqlite3":
		if err := ensureParent(cfg.Path); err != nil {
			return nil, err
		}
		return OpenSQL(ctx, cfg.Driver, cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	return nil
}
