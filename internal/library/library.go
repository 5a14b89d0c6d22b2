// internal/library/library.go
package library

import (
	"context"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	"libranexus/internal/catalog"
	"libranexus/internal/circulation"
	"libranexus/internal/domain"
	"libranexus/internal/membership"
	"libranexus/internal/review"
)

// Library owns one instance of each collection and wires the circulation
// ledger to the catalog and the membership registry.
type Library struct {
	catalog     catalog.Service
	members     membership.Service
	reviews     review.Service
	circulation circulation.Service

	opts   options
	tracer trace.Tracer
}

type options struct {
	ids                 domain.IDGenerator
	clock               domain.Clock
	policy              circulation.Policy
	lang                language.Tag
	registrationsPerMin int
	registrationBurst   int
	logger              *slog.Logger
	tracerProvider      trace.TracerProvider
	meterProvider       metric.MeterProvider
}

// Option configures a Library.
type Option func(*options)

// WithIDGenerator sets the generator used for user and transaction ids.
func WithIDGenerator(ids domain.IDGenerator) Option {
	return func(o *options) {
		if ids != nil {
			o.ids = ids
		}
	}
}

// WithClock sets the time source of the circulation ledger.
func WithClock(clock domain.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithPolicy overrides the borrowing rules.
func WithPolicy(p circulation.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithLanguage sets the collation language used when sorting the catalog.
func WithLanguage(tag language.Tag) Option {
	return func(o *options) { o.lang = tag }
}

// WithRegistrationLimit caps user registrations per minute.
func WithRegistrationLimit(perMinute, burst int) Option {
	return func(o *options) {
		o.registrationsPerMin = perMinute
		o.registrationBurst = burst
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// New creates an empty library.
func New(opts ...Option) *Library {
	o := options{
		ids:            domain.UUIDGenerator{},
		clock:          domain.SystemClock,
		policy:         circulation.DefaultPolicy(),
		lang:           language.English,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return build(o)
}

func build(o options) *Library {
	books := catalog.NewService(o.lang)
	members := membership.NewService(o.ids,
		membership.WithRegistrationLimit(o.registrationsPerMin, o.registrationBurst),
		membership.WithLogger(o.logger.With("component", "membership")),
	)

	return &Library{
		catalog: books,
		members: members,
		reviews: review.NewService(books, members),
		circulation: circulation.NewService(books, members, o.ids,
			circulation.WithPolicy(o.policy),
			circulation.WithClock(o.clock),
			circulation.WithLogger(o.logger.With("component", "circulation")),
			circulation.WithTracerProvider(o.tracerProvider),
			circulation.WithMeterProvider(o.meterProvider),
		),
		opts:   o,
		tracer: o.tracerProvider.Tracer("libranexus/library"),
	}
}

func (l *Library) Catalog() catalog.Service         { return l.catalog }
func (l *Library) Members() membership.Service      { return l.members }
func (l *Library) Reviews() review.Service          { return l.reviews }
func (l *Library) Circulation() circulation.Service { return l.circulation }

// AddBook adds a book to the catalog.
func (l *Library) AddBook(title, author, isbn string) (catalog.Book, error) {
	return l.catalog.AddBook(title, author, isbn)
}

// RegisterUser registers a new member.
func (l *Library) RegisterUser(ctx context.Context, name string) (membership.User, error) {
	return l.members.Register(ctx, name)
}

// CheckOut lends a book to a user.
func (l *Library) CheckOut(ctx context.Context, isbn, userID string) (circulation.Transaction, error) {
	return l.circulation.CheckOut(ctx, isbn, userID)
}

// Return takes a book back from the user holding it.
func (l *Library) Return(ctx context.Context, isbn, userID string) (circulation.Transaction, error) {
	return l.circulation.Return(ctx, isbn, userID)
}

// AddReview records a user's review of a book.
func (l *Library) AddReview(userID, isbn string, rating float64, comment string) (review.Review, error) {
	return l.reviews.Add(userID, isbn, rating, comment)
}

// Overdue lists the books whose current loan is past due.
func (l *Library) Overdue() []circulation.OverdueBook {
	return l.circulation.Overdue()
}

// BookStatus summarizes the derived circulation state of one book.
type BookStatus struct {
	Book          catalog.Book
	CheckedOut    bool
	Holder        string
	CheckoutCount int
	DueDate       time.Time
	Overdue       bool
	AverageRating float64
	Rated         bool
}

// Status looks a book up and derives its circulation state from the log.
func (l *Library) Status(isbn string) (BookStatus, error) {
	book, err := l.catalog.GetByISBN(isbn)
	if err != nil {
		return BookStatus{}, err
	}

	st := BookStatus{
		Book:          book,
		CheckedOut:    l.circulation.Status(book.ISBN) == circulation.KindCheckout,
		CheckoutCount: l.circulation.CheckoutCount(book.ISBN),
		Overdue:       l.circulation.IsOverdue(book.ISBN),
	}
	if st.CheckedOut {
		st.DueDate, _ = l.circulation.DueDate(book.ISBN)
		if history := l.circulation.History(book.ISBN); len(history) > 0 {
			st.Holder = history[len(history)-1].UserID
		}
	}
	st.AverageRating, st.Rated = l.reviews.AverageRating(book.ISBN)
	return st, nil
}
