// internal/storage/sql.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var schemas = map[string]string{
	"postgres": `
		CREATE TABLE IF NOT EXISTS snapshots (
			name TEXT PRIMARY KEY,
			data BYTEA NOT NULL,
			saved_at TIMESTAMPTZ NOT NULL
		)`,
	"sqlite3": `
		CREATE TABLE IF NOT EXISTS snapshots (
			name TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			saved_at TIMESTAMP NOT NULL
		)`,
}

// SQLStore keeps snapshots in a snapshots table. One code path serves
// postgres (lib/pq or pgx) and sqlite3; sqlx rebinds placeholders per driver.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	tracer trace.Tracer
	logger *slog.Logger
}

// OpenSQL connects with driver and ensures the snapshots table exists.
func OpenSQL(ctx context.Context, driver, dsn string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	dialect := driver
	if driver == "pgx" {
		dialect = "postgres"
	}
	schema, ok := schemas[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if driver == "sqlite3" {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}

	logger.DebugContext(ctx, "snapshot table ready")
	return &SQLStore{
		db:     db,
		driver: driver,
		tracer: otel.Tracer("libranexus/storage"),
		logger: logger,
	}, nil
}

// Put upserts the snapshot for key.
func (s *SQLStore) Put(ctx context.Context, key string, data []byte) error {
	ctx, span := s.tracer.Start(ctx, "storage.put",
		trace.WithAttributes(
			attribute.String("db.driver", s.driver),
			attribute.String("snapshot.key", key),
			attribute.Int("snapshot.bytes", len(data)),
		),
	)
	defer span.End()

	if key == "" {
		return ErrInvalidKey
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO snapshots (name, data, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE
		SET data = EXCLUDED.data,
		    saved_at = EXCLUDED.saved_at
	`), key, data, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("save snapshot: %w", err)
	}

	s.logger.DebugContext(ctx, "snapshot stored", "key", key, "bytes", len(data))
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "storage.get",
		trace.WithAttributes(
			attribute.String("db.driver", s.driver),
			attribute.String("snapshot.key", key),
		),
	)
	defer span.End()

	if key == "" {
		return nil, ErrInvalidKey
	}

	var data []byte
	err := s.db.GetContext(ctx, &data, s.db.Rebind(`SELECT data FROM snapshots WHERE name = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	span.SetAttributes(attribute.Int("snapshot.bytes", len(data)))
	return data, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
