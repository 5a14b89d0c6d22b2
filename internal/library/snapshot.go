// internal/library/snapshot.go
package library

import (
	"context"
	"encoding/hex"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/blake2b"

	"libranexus/internal/catalog"
	"libranexus/internal/circulation"
	"libranexus/internal/domain"
	"libranexus/internal/membership"
	"libranexus/internal/review"
)

// SnapshotVersion is the envelope format written by EncodeSnapshot.
const SnapshotVersion = 1

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Snapshot holds the contents of all four collections as plain records.
type Snapshot struct {
	Books        []catalog.Book            `json:"books"`
	Users        []membership.User         `json:"users"`
	Reviews      []review.Review           `json:"reviews"`
	Transactions []circulation.Transaction `json:"transactions"`
}

type envelope struct {
	Version  int                 `json:"version"`
	Checksum string              `json:"checksum"`
	Payload  jsoniter.RawMessage `json:"payload"`
}

// EncodeSnapshot serializes s into a versioned envelope carrying a
// blake2b-256 checksum of the payload.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	sum := blake2b.Sum256(payload)

	data, err := json.Marshal(envelope{
		Version:  SnapshotVersion,
		Checksum: hex.EncodeToString(sum[:]),
		Payload:  payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses data written by EncodeSnapshot. Every failure unwraps
// to domain.ErrDeserialization.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Snapshot{}, domain.Deserialization("snapshot envelope", err)
	}
	if env.Version != SnapshotVersion {
		return Snapshot{}, domain.Deserialization(fmt.Sprintf("unsupported snapshot version %d", env.Version), nil)
	}
	if len(env.Payload) == 0 {
		return Snapshot{}, domain.Deserialization("snapshot payload missing", nil)
	}

	sum := blake2b.Sum256(env.Payload)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		return Snapshot{}, domain.Deserialization("snapshot checksum mismatch", nil)
	}

	var s Snapshot
	if err := json.Unmarshal(env.Payload, &s); err != nil {
		return Snapshot{}, domain.Deserialization("snapshot payload", err)
	}
	return s, nil
}

// Snapshot copies the current contents of every collection.
func (l *Library) Snapshot() Snapshot {
	return Snapshot{
		Books:        l.catalog.Books(),
		Users:        l.members.Users(),
		Reviews:      l.reviews.Reviews(),
		Transactions: l.circulation.Transactions(),
	}
}

// Restore replaces every collection with the snapshot contents. The snapshot
// is first loaded into a scratch library so a bad record leaves l untouched.
func (l *Library) Restore(ctx context.Context, s Snapshot) error {
	ctx, span := l.tracer.Start(ctx, "library.restore",
		trace.WithAttributes(
			attribute.Int("books", len(s.Books)),
			attribute.Int("users", len(s.Users)),
			attribute.Int("reviews", len(s.Reviews)),
			attribute.Int("transactions", len(s.Transactions)),
		),
	)
	defer span.End()

	if err := build(l.opts).restore(ctx, s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid snapshot")
		return err
	}
	if err := l.restore(ctx, s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "restore")
		return err
	}
	return nil
}

func (l *Library) restore(ctx context.Context, s Snapshot) error {
	if err := l.catalog.Restore(s.Books); err != nil {
		return err
	}
	if err := l.members.Restore(s.Users); err != nil {
		return err
	}
	if err := l.reviews.Restore(s.Reviews); err != nil {
		return err
	}
	return l.circulation.Restore(ctx, s.Transactions)
}

// SnapshotStore moves encoded snapshots to and from a byte store.
type SnapshotStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Save encodes the library and writes it to store under key.
func (l *Library) Save(ctx context.Context, store SnapshotStore, key string) error {
	ctx, span := l.tracer.Start(ctx, "library.save", trace.WithAttributes(attribute.String("snapshot.key", key)))
	defer span.End()

	data, err := EncodeSnapshot(l.Snapshot())
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := store.Put(ctx, key, data); err != nil {
		span.RecordError(err)
		return fmt.Errorf("save snapshot %q: %w", key, err)
	}

	span.SetAttributes(attribute.Int("snapshot.bytes", len(data)))
	l.opts.logger.InfoContext(ctx, "snapshot saved", "key", key, "bytes", len(data))
	return nil
}

// Load reads the snapshot stored under key and restores it.
func (l *Library) Load(ctx context.Context, store SnapshotStore, key string) error {
	ctx, span := l.tracer.Start(ctx, "library.load", trace.WithAttributes(attribute.String("snapshot.key", key)))
	defer span.End()

	data, err := store.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load snapshot %q: %w", key, err)
	}
	s, err := DecodeSnapshot(data)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := l.Restore(ctx, s); err != nil {
		return err
	}

	l.opts.logger.InfoContext(ctx, "snapshot loaded", "key", key,
		"books", len(s.Books), "transactions", len(s.Transactions))
	return nil
}
