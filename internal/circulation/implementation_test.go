package circulation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"libranexus/internal/circulation"
	"libranexus/internal/domain"
)

var epoch = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

type directory map[string]bool

func (d directory) Exists(key string) bool { return d[key] }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func sequentialIDs() domain.IDGenerator {
	var mu sync.Mutex
	n := 0
	return domain.IDGeneratorFunc(func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("tx-%d", n), nil
	})
}

type fixture struct {
	ledger circulation.Service
	clock  *fakeClock
}

func newFixture(opts ...circulation.Option) fixture {
	clock := &fakeClock{now: epoch}
	books := directory{"isbn1": true, "isbn2": true}
	members := directory{"user1": true, "user2": true}
	opts = append([]circulation.Option{circulation.WithClock(clock.Now)}, opts...)
	return fixture{
		ledger: circulation.NewService(books, members, sequentialIDs(), opts...),
		clock:  clock,
	}
}

func TestStatus_AvailableBeforeAnyTransaction(t *testing.T) {
	f := newFixture()

	assert.Equal(t, circulation.KindReturn, f.ledger.Status("isbn1"))
	assert.Zero(t, f.ledger.CheckoutCount("isbn1"))
	_, ok := f.ledger.DueDate("isbn1")
	assert.False(t, ok)
	assert.False(t, f.ledger.IsOverdue("isbn1"))
}

func TestScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.ledger.CheckOut(ctx, "isbn1", "user1")
	require.NoError(t, err)
	assert.Equal(t, circulation.KindCheckout, f.ledger.Status("isbn1"))
	assert.Equal(t, 1, f.ledger.CheckoutCount("isbn1"))

	_, err = f.ledger.Return(ctx, "isbn1", "user1")
	require.NoError(t, err)
	assert.Equal(t, circulation.KindReturn, f.ledger.Status("isbn1"))

	_, err = f.ledger.CheckOut(ctx, "isbn1", "user1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.ledger.CheckoutCount("isbn1"))

	_, err = f.ledger.Return(ctx, "isbn1", "user2")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, circulation.KindCheckout, f.ledger.Status("isbn1"))
	assert.Len(t, f.ledger.Transactions(), 3)
}

func TestCheckOut_LimitReached(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	for i := 0; i < circulation.DefaultMaxCheckouts; i++ {
		_, err := f.ledger.CheckOut(ctx, "isbn1", "user1")
		require.NoError(t, err)
		_, err = f.ledger.Return(ctx, "isbn1", "user1")
		require.NoError(t, err)
	}

	_, err := f.ledger.CheckOut(ctx, "isbn1", "user2")

	assert.ErrorIs(t, err, domain.ErrPolicyViolation)
	assert.Equal(t, 3, f.ledger.CheckoutCount("isbn1"))
	assert.Equal(t, circulation.KindReturn, f.ledger.Status("isbn1"))
}

func TestCheckOut_CustomPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(circulation.WithPolicy(circulation.Policy{MaxCheckouts: 1}))

	_, err := f.ledger.CheckOut(ctx, "isbn1", "user1")
	require.NoError(t, err)
	_, err = f.ledger.Return(ctx, "isbn1", "user1")
	require.NoError(t, err)
	_, err = f.ledger.CheckOut(ctx, "isbn1", "user1")

	assert.ErrorIs(t, err, domain.ErrPolicyViolation)
	assert.Equal(t, circulation.DefaultDueInterval, f.ledger.Policy().DueInterval)
}

func TestCheckOut_AlreadyCheckedOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.ledger.CheckOut(ctx, "isbn1", "user1")
	require.NoError(t, err)
	_, err = f.ledger.CheckOut(ctx, "isbn1", "user2")

	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Len(t, f.ledger.Transactions(), 1)
}

func TestCheckOutAndReturn_ValidationOrder(t *testing.T) {
	tests := []struct {
		name         string
		isbn, userID string
		want         error
		entity       string
	}{
		{"blank isbn", " ", "user1", domain.ErrInvalidArgument, "isbn"},
		{"blank user", "isbn1", "", domain.ErrInvalidArgument, "user id"},
		{"unknown book and user", "nope", "nobody", domain.ErrNotFound, "book"},
		{"unknown user", "isbn1", "nobody", domain.ErrNotFound, "user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			_, err := f.ledger.CheckOut(context.Background(), tt.isbn, tt.userID)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.entity)

			_, err = f.ledger.Return(context.Background(), tt.isbn, tt.userID)
			assert.ErrorIs(t, err, tt.want)

			assert.Empty(t, f.ledger.Transactions())
		})
	}
}

func TestReturn_NotCheckedOut(t *testing.T) {
	f := newFixture()

	_, err := f.ledger.Return(context.Background(), "isbn1", "user1")

	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Empty(t, f.ledger.Transactions())
}

func TestCheckOut_GeneratorFailureLeavesLogUntouched(t *testing.T) {
	boom := errors.New("no entropy")
	ledger := circulation.NewService(directory{"isbn1": true}, directory{"user1": true},
		domain.IDGeneratorFunc(func() (string, error) { return "", boom }))

	_, err := ledger.CheckOut(context.Background(), "isbn1", "user1")

	assert.Same(t, boom, err)
	assert.Empty(t, ledger.Transactions())
}

func TestDueDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	tx, err := f.ledger.CheckOut(ctx, "isbn1", "user1")
	require.NoError(t, err)
	assert.Equal(t, epoch, tx.Timestamp)

	due, ok := f.ledger.DueDate("isbn1")
	require.True(t, ok)
	assert.Equal(t, epoch.Add(7*24*time.Hour), due)

	_, err = f.ledger.Return(ctx, "isbn1", "user1")
	require.NoError(t, err)
	_, ok = f.ledger.DueDate("isbn1")
	assert.False(t, ok)
}

func TestIsOverdue_StrictBoundary(t *testing.T) {
	f := newFixture()
	_, err := f.ledger.CheckOut(context.Background(), "isbn1", "user1")
	require.NoError(t, err)

	assert.False(t, f.ledger.IsOverdue("isbn1"))

	week := 7 * 86400 * 1000 * time.Millisecond
	f.clock.Set(epoch.Add(week))
	assert.False(t, f.ledger.IsOverdue("isbn1"))

	f.clock.Set(epoch.Add(week + time.Millisecond))
	assert.True(t, f.ledger.IsOverdue("isbn1"))
}

func TestIsOverdue_ArbitraryClock(t *testing.T) {
	week := int64(7 * 86400 * 1000)

	rapid.Check(t, func(t *rapid.T) {
		f := newFixture()
		if _, err := f.ledger.CheckOut(context.Background(), "isbn1", "user1"); err != nil {
			t.Fatalf("checkout: %v", err)
		}

		offset := rapid.Int64Range(0, 3*week).Draw(t, "offset_ms")
		f.clock.Set(epoch.Add(time.Duration(offset) * time.Millisecond))

		if got, want := f.ledger.IsOverdue("isbn1"), offset > week; got != want {
			t.Fatalf("overdue at +%dms = %v, want %v", offset, got, want)
		}
	})
}

func TestOverdue_OneEntryPerBook(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.ledger.CheckOut(ctx, "isbn2", "user2")
	require.NoError(t, err)
	f.clock.Set(epoch.Add(time.Hour))
	_, err = f.ledger.CheckOut(ctx, "isbn1", "user1")
	require.NoError(t, err)
	_, err = f.ledger.Return(ctx, "isbn1", "user1")
	require.NoError(t, err)
	_, err = f.ledger.CheckOut(ctx, "isbn1", "user1")
	require.NoError(t, err)

	assert.Empty(t, f.ledger.Overdue())

	f.clock.Set(epoch.Add(30 * 24 * time.Hour))
	overdue := f.ledger.Overdue()

	assert.Equal(t, []circulation.OverdueBook{
		{BookISBN: "isbn2", UserID: "user2", CheckedOutAt: epoch, DueDate: epoch.Add(circulation.DefaultDueInterval)},
		{BookISBN: "isbn1", UserID: "user1", CheckedOutAt: epoch.Add(time.Hour), DueDate: epoch.Add(time.Hour + circulation.DefaultDueInterval)},
	}, overdue)
}

func TestTimestamps_NeverRunBackwards(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	first, err := f.ledger.CheckOut(ctx, "isbn1", "user1")
	require.NoError(t, err)

	f.clock.Set(epoch.Add(-time.Hour))
	second, err := f.ledger.Return(ctx, "isbn1", "user1")
	require.NoError(t, err)

	assert.Equal(t, first.Timestamp, second.Timestamp)
}

func TestTransactionLookup(t *testing.T) {
	f := newFixture()
	tx, err := f.ledger.CheckOut(context.Background(), "isbn1", "user1")
	require.NoError(t, err)

	got, err := f.ledger.Transaction(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx, got)

	_, err = f.ledger.Transaction("tx-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, []circulation.Transaction{tx}, f.ledger.History("isbn1"))
	assert.Empty(t, f.ledger.History("isbn2"))
}

// Concurrent checkouts of one book race on the ledger lock; exactly one may win.
func TestCheckOut_ConcurrentRace(t *testing.T) {
	const workers = 32

	members := directory{}
	for i := 0; i < workers; i++ {
		members[fmt.Sprintf("user%d", i)] = true
	}
	ledger := circulation.NewService(directory{"isbn1": true}, members, sequentialIDs())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			<-start
			_, err := ledger.CheckOut(context.Background(), "isbn1", user)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrInvalidState):
				conflicts++
			}
		}(fmt.Sprintf("user%d", i))
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	assert.Len(t, ledger.Transactions(), 1)
}

func TestHistory_AlternatesUnderRandomOperations(t *testing.T) {
	isbns := []string{"isbn1", "isbn2"}
	users := []string{"user1", "user2"}

	rapid.Check(t, func(t *rapid.T) {
		f := newFixture()
		ops := rapid.SliceOfN(rapid.IntRange(0, 7), 0, 40).Draw(t, "ops")

		for i, op := range ops {
			f.clock.Set(epoch.Add(time.Duration(i) * time.Minute))
			isbn, user := isbns[op&1], users[(op>>1)&1]
			if op&4 == 0 {
				_, _ = f.ledger.CheckOut(context.Background(), isbn, user)
			} else {
				_, _ = f.ledger.Return(context.Background(), isbn, user)
			}
		}

		for _, isbn := range isbns {
			history := f.ledger.History(isbn)
			holder := ""
			for i, tx := range history {
				want := circulation.KindCheckout
				if i%2 == 1 {
					want = circulation.KindReturn
				}
				if tx.Kind != want {
					t.Fatalf("%s: transaction %d is %s, want %s", isbn, i, tx.Kind, want)
				}
				if tx.Kind == circulation.KindReturn && tx.UserID != holder {
					t.Fatalf("%s: returned by %s while held by %s", isbn, tx.UserID, holder)
				}
				holder = tx.UserID
			}
			if n := f.ledger.CheckoutCount(isbn); n > circulation.DefaultMaxCheckouts {
				t.Fatalf("%s: %d checkouts", isbn, n)
			}
		}

		// the log accepted by the guards must restore cleanly
		if err := f.ledger.Restore(context.Background(), f.ledger.Transactions()); err != nil {
			t.Fatalf("restore own log: %v", err)
		}
	})
}

func TestRestore(t *testing.T) {
	at := func(minutes int) time.Time { return epoch.Add(time.Duration(minutes) * time.Minute) }
	checkout := func(id, isbn, user string, minute int) circulation.Transaction {
		return circulation.Transaction{ID: id, Kind: circulation.KindCheckout, BookISBN: isbn, UserID: user, Timestamp: at(minute)}
	}
	giveBack := func(id, isbn, user string, minute int) circulation.Transaction {
		return circulation.Transaction{ID: id, Kind: circulation.KindReturn, BookISBN: isbn, UserID: user, Timestamp: at(minute)}
	}

	invalid := []struct {
		name string
		txs  []circulation.Transaction
	}{
		{"unknown kind", []circulation.Transaction{{ID: "a", Kind: "lost", BookISBN: "isbn1", UserID: "user1", Timestamp: at(0)}}},
		{"blank id", []circulation.Transaction{checkout("", "isbn1", "user1", 0)}},
		{"blank isbn", []circulation.Transaction{checkout("a", " ", "user1", 0)}},
		{"missing timestamp", []circulation.Transaction{{ID: "a", Kind: circulation.KindCheckout, BookISBN: "isbn1", UserID: "user1"}}},
		{"duplicate id", []circulation.Transaction{checkout("a", "isbn1", "user1", 0), giveBack("a", "isbn1", "user1", 1)}},
		{"time runs backwards", []circulation.Transaction{checkout("a", "isbn1", "user1", 5), checkout("b", "isbn2", "user1", 1)}},
		{"double checkout", []circulation.Transaction{checkout("a", "isbn1", "user1", 0), checkout("b", "isbn1", "user2", 1)}},
		{"return first", []circulation.Transaction{giveBack("a", "isbn1", "user1", 0)}},
		{"wrong holder return", []circulation.Transaction{checkout("a", "isbn1", "user1", 0), giveBack("b", "isbn1", "user2", 1)}},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			kept, err := f.ledger.CheckOut(context.Background(), "isbn1", "user1")
			require.NoError(t, err)

			err = f.ledger.Restore(context.Background(), tt.txs)

			assert.ErrorIs(t, err, domain.ErrDeserialization)
			assert.Equal(t, []circulation.Transaction{kept}, f.ledger.Transactions())
		})
	}

	t.Run("blank fields reported in order", func(t *testing.T) {
		f := newFixture()

		err := f.ledger.Restore(context.Background(), []circulation.Transaction{checkout("", "", "", 0)})

		assert.ErrorIs(t, err, domain.ErrDeserialization)
		assert.ErrorContains(t, err, "invalid argument: id: must not be empty")
	})

	t.Run("valid log", func(t *testing.T) {
		f := newFixture()
		log := []circulation.Transaction{
			checkout("a", "isbn1", "user1", 0),
			giveBack("b", "isbn1", "user1", 10),
			checkout("c", "isbn1", "user2", 20),
		}

		require.NoError(t, f.ledger.Restore(context.Background(), log))

		assert.Equal(t, log, f.ledger.Transactions())
		assert.Equal(t, circulation.KindCheckout, f.ledger.Status("isbn1"))
		assert.Equal(t, 2, f.ledger.CheckoutCount("isbn1"))
		due, ok := f.ledger.DueDate("isbn1")
		require.True(t, ok)
		assert.Equal(t, at(20).Add(circulation.DefaultDueInterval), due)

		// appends continue after the restored tail
		next, err := f.ledger.Return(context.Background(), "isbn1", "user2")
		require.NoError(t, err)
		assert.Equal(t, at(20), next.Timestamp)
	})
}

func TestTelemetry_SpansAndCounters(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	f := newFixture(circulation.WithTracerProvider(tp), circulation.WithMeterProvider(mp))

	_, err := f.ledger.CheckOut(ctx, "isbn1", "user1")
	require.NoError(t, err)
	_, err = f.ledger.CheckOut(ctx, "isbn1", "user2")
	require.Error(t, err)
	_, err = f.ledger.Return(ctx, "isbn1", "user1")
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "circulation.checkout", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "invalid_state", spans[1].Status().Description)
	assert.Equal(t, "circulation.return", spans[2].Name())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	appended := counterValues(t, rm, "circulation.transactions", "kind")
	assert.Equal(t, map[string]int64{"checkout": 1, "return": 1}, appended)

	rejected := counterValues(t, rm, "circulation.rejections", "reason")
	assert.Equal(t, map[string]int64{"invalid_state": 1}, rejected)
}

func counterValues(t *testing.T, rm metricdata.ResourceMetrics, name string, key attribute.Key) map[string]int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)

			values := make(map[string]int64)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(key)
				values[v.AsString()] += dp.Value
			}
			return values
		}
	}
	t.Fatalf("metric %s not collected", name)
	return nil
}
