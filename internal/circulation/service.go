// internal/circulation/service.go
package circulation

import (
	"context"
	"time"
)

// Service defines the interface for the circulation ledger.
type Service interface {
	CheckOut(ctx context.Context, isbn, userID string) (Transaction, error)
	Return(ctx context.Context, isbn, userID string) (Transaction, error)

	Status(isbn string) Kind
	CheckoutCount(isbn string) int
	DueDate(isbn string) (time.Time, bool)
	IsOverdue(isbn string) bool
	Overdue() []OverdueBook

	History(isbn string) []Transaction
	Transaction(id string) (Transaction, error)
	Transactions() []Transaction
	Policy() Policy

	Restore(ctx context.Context, txs []Transaction) error
}
