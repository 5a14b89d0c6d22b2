// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"libranexus/internal/collection"
	"libranexus/internal/domain"
)

const instrumentationName = "libranexus/circulation"

// service implements the Service interface.
type service struct {
	// mu makes validate-then-append atomic.
	mu   sync.Mutex
	log  *collection.Unique[Transaction]
	last time.Time

	books   BookDirectory
	members MemberDirectory
	ids     domain.IDGenerator
	clock   domain.Clock
	policy  Policy

	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	appended       metric.Int64Counter
	rejected       metric.Int64Counter
}

// Option configures the circulation ledger.
type Option func(*service)

// WithPolicy overrides the borrowing rules. Non-positive fields keep their defaults.
func WithPolicy(p Policy) Option {
	return func(s *service) {
		if p.MaxCheckouts > 0 {
			s.policy.MaxCheckouts = p.MaxCheckouts
		}
		if p.DueInterval > 0 {
			s.policy.DueInterval = p.DueInterval
		}
	}
}

// WithClock sets the time source used for timestamps and overdue checks.
func WithClock(clock domain.Clock) Option {
	return func(s *service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger used for accepted and rejected transactions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracerProvider sets the tracer provider. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *service) {
		if tp != nil {
			s.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets the meter provider. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *service) {
		if mp != nil {
			s.meterProvider = mp
		}
	}
}

// NewService creates an empty circulation ledger.
func NewService(books BookDirectory, members MemberDirectory, ids domain.IDGenerator, opts ...Option) Service {
	s := &service{
		log:            collection.NewUnique("transaction", func(t Transaction) string { return t.ID }),
		books:          books,
		members:        members,
		ids:            ids,
		clock:          domain.SystemClock,
		policy:         DefaultPolicy(),
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	meter := s.meterProvider.Meter(instrumentationName)

	var err error
	s.appended, err = meter.Int64Counter("circulation.transactions",
		metric.WithDescription("Transactions appended to the circulation log"))
	if err != nil {
		s.logger.Warn("circulation.transactions counter unavailable", "error", err)
		s.appended = noop.Int64Counter{}
	}
	s.rejected, err = meter.Int64Counter("circulation.rejections",
		metric.WithDescription("Checkout and return requests refused by the ledger"))
	if err != nil {
		s.logger.Warn("circulation.rejections counter unavailable", "error", err)
		s.rejected = noop.Int64Counter{}
	}
	return s
}

// CheckOut lends a book to a user if the borrowing policy allows it.
func (s *service) CheckOut(ctx context.Context, isbn, userID string) (Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.checkout",
		trace.WithAttributes(
			attribute.String("book.isbn", isbn),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	isbn, userID, err := s.validateParties(isbn, userID)
	if err != nil {
		return s.reject(ctx, span, KindCheckout, err)
	}

	if last, ok := s.lastFor(isbn); ok && last.Kind == KindCheckout {
		return s.reject(ctx, span, KindCheckout, domain.InvalidState("book", isbn, "already checked out"))
	}

	count := s.CheckoutCount(isbn)
	span.SetAttributes(attribute.Int("book.checkouts", count))
	if count >= s.policy.MaxCheckouts {
		return s.reject(ctx, span, KindCheckout,
			domain.PolicyViolation("book", isbn, fmt.Sprintf("checkout limit of %d reached", s.policy.MaxCheckouts)))
	}

	return s.append(ctx, span, KindCheckout, isbn, userID)
}

// Return takes a book back from the user holding it.
func (s *service) Return(ctx context.Context, isbn, userID string) (Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return",
		trace.WithAttributes(
			attribute.String("book.isbn", isbn),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	isbn, userID, err := s.validateParties(isbn, userID)
	if err != nil {
		return s.reject(ctx, span, KindReturn, err)
	}

	last, ok := s.lastFor(isbn)
	if !ok || last.Kind != KindCheckout {
		return s.reject(ctx, span, KindReturn, domain.InvalidState("book", isbn, "not checked out"))
	}
	if last.UserID != userID {
		return s.reject(ctx, span, KindReturn, domain.InvalidState("book", isbn, "checked out by another user"))
	}

	return s.append(ctx, span, KindReturn, isbn, userID)
}

func (s *service) validateParties(isbn, userID string) (string, string, error) {
	isbn, err := domain.RequireNonEmpty("isbn", isbn)
	if err != nil {
		return "", "", err
	}
	userID, err = domain.RequireNonEmpty("user id", userID)
	if err != nil {
		return "", "", err
	}
	if !s.books.Exists(isbn) {
		return "", "", domain.NotFound("book", isbn)
	}
	if !s.members.Exists(userID) {
		return "", "", domain.NotFound("user", userID)
	}
	return isbn, userID, nil
}

// append records a validated transaction. Callers hold mu.
func (s *service) append(ctx context.Context, span trace.Span, kind Kind, isbn, userID string) (Transaction, error) {
	id, err := s.ids.NewID()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate transaction id")
		s.rejected.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", kind.String()),
			attribute.String("reason", "id_generator"),
		))
		return Transaction{}, err
	}

	// timestamps never run backwards along the log
	now := s.clock().UTC().Round(0)
	if now.Before(s.last) {
		now = s.last
	}

	tx := Transaction{ID: id, Kind: kind, BookISBN: isbn, UserID: userID, Timestamp: now}
	if err := s.log.Add(tx); err != nil {
		return s.reject(ctx, span, kind, err)
	}
	s.last = now

	s.appended.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind.String())))
	span.SetAttributes(attribute.String("transaction.id", id))
	s.logger.InfoContext(ctx, "transaction recorded",
		"transaction_id", id,
		"kind", kind,
		"isbn", isbn,
		"user_id", userID,
	)
	return tx, nil
}

func (s *service) reject(ctx context.Context, span trace.Span, kind Kind, err error) (Transaction, error) {
	reason := reasonOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	s.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind.String()),
		attribute.String("reason", reason),
	))
	s.logger.WarnContext(ctx, "transaction rejected", "kind", kind, "reason", reason, "error", err)
	return Transaction{}, err
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrPolicyViolation):
		return "policy_violation"
	case errors.Is(err, domain.ErrDuplicateKey):
		return "duplicate_key"
	default:
		return "internal"
	}
}

func (s *service) lastFor(isbn string) (Transaction, bool) {
	return s.log.Last(func(t Transaction) bool { return t.BookISBN == isbn })
}

// Status is the kind of the book's latest transaction; KindReturn when it never circulated.
func (s *service) Status(isbn string) Kind {
	last, ok := s.lastFor(strings.TrimSpace(isbn))
	if !ok {
		return KindReturn
	}
	return last.Kind
}

// CheckoutCount counts every checkout ever recorded for the book.
func (s *service) CheckoutCount(isbn string) int {
	isbn = strings.TrimSpace(isbn)
	return s.log.Count(func(t Transaction) bool {
		return t.BookISBN == isbn && t.Kind == KindCheckout
	})
}

// DueDate is defined only while the book is checked out.
func (s *service) DueDate(isbn string) (time.Time, bool) {
	last, ok := s.lastFor(strings.TrimSpace(isbn))
	if !ok || last.Kind != KindCheckout {
		return time.Time{}, false
	}
	return last.Timestamp.Add(s.policy.DueInterval), true
}

// IsOverdue reports whether the due date lies strictly before now.
func (s *service) IsOverdue(isbn string) bool {
	due, ok := s.DueDate(isbn)
	return ok && due.Before(s.clock())
}

// Overdue lists each overdue book once, in the order its current loan was recorded.
func (s *service) Overdue() []OverdueBook {
	txs := s.log.Items()
	now := s.clock()

	latest := make(map[string]int, len(txs))
	for i, t := range txs {
		latest[t.BookISBN] = i
	}

	var overdue []OverdueBook
	for i, t := range txs {
		if latest[t.BookISBN] != i || t.Kind != KindCheckout {
			continue
		}
		due := t.Timestamp.Add(s.policy.DueInterval)
		if due.Before(now) {
			overdue = append(overdue, OverdueBook{
				BookISBN:     t.BookISBN,
				UserID:       t.UserID,
				CheckedOutAt: t.Timestamp,
				DueDate:      due,
			})
		}
	}
	return overdue
}

func (s *service) History(isbn string) []Transaction {
	isbn = strings.TrimSpace(isbn)
	return s.log.Filter(func(t Transaction) bool { return t.BookISBN == isbn })
}

func (s *service) Transaction(id string) (Transaction, error) {
	id, err := domain.RequireNonEmpty("transaction id", id)
	if err != nil {
		return Transaction{}, err
	}
	tx, ok := s.log.Find(id)
	if !ok {
		return Transaction{}, domain.NotFound("transaction", id)
	}
	return tx, nil
}

func (s *service) Transactions() []Transaction {
	return s.log.Items()
}

func (s *service) Policy() Policy {
	return s.policy
}

// Restore replaces the log with persisted transactions. The records bypassed
// the checkout guards, so the log shape is verified before anything changes.
func (s *service) Restore(ctx context.Context, txs []Transaction) error {
	_, span := s.tracer.Start(ctx, "circulation.restore",
		trace.WithAttributes(attribute.Int("transaction.count", len(txs))),
	)
	defer span.End()

	valid, err := verifyLog(txs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid log")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.log.Reset(valid); err != nil {
		err = domain.Deserialization("transactions", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid log")
		return err
	}
	s.last = time.Time{}
	if n := len(valid); n > 0 {
		s.last = valid[n-1].Timestamp
	}
	return nil
}

func verifyLog(txs []Transaction) ([]Transaction, error) {
	valid := make([]Transaction, 0, len(txs))
	holder := make(map[string]string)
	var prev time.Time

	for i, t := range txs {
		where := fmt.Sprintf("transaction %d", i)
		if !t.Kind.Valid() {
			return nil, domain.Deserialization(where, domain.InvalidArgument("kind", fmt.Sprintf("unknown %q", t.Kind)))
		}
		for _, f := range [...][2]string{{"id", t.ID}, {"isbn", t.BookISBN}, {"user id", t.UserID}} {
			if _, err := domain.RequireNonEmpty(f[0], f[1]); err != nil {
				return nil, domain.Deserialization(where, err)
			}
		}
		if t.Timestamp.IsZero() {
			return nil, domain.Deserialization(where, domain.InvalidArgument("timestamp", "missing"))
		}
		if t.Timestamp.Before(prev) {
			return nil, domain.Deserialization(where, domain.InvalidArgument("timestamp", "earlier than the previous transaction"))
		}
		prev = t.Timestamp

		held, out := holder[t.BookISBN]
		switch {
		case t.Kind == KindCheckout && out:
			return nil, domain.Deserialization(where, domain.InvalidState("book", t.BookISBN, "checked out twice"))
		case t.Kind == KindReturn && !out:
			return nil, domain.Deserialization(where, domain.InvalidState("book", t.BookISBN, "returned while not checked out"))
		case t.Kind == KindReturn && held != t.UserID:
			return nil, domain.Deserialization(where, domain.InvalidState("book", t.BookISBN, "returned by a user who does not hold it"))
		case t.Kind == KindCheckout:
			holder[t.BookISBN] = t.UserID
		default:
			delete(holder, t.BookISBN)
		}

		t.Timestamp = t.Timestamp.UTC().Round(0)
		valid = append(valid, t)
	}
	return valid, nil
}
