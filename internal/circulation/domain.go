// internal/circulation/domain.go
package circulation

import (
	"time"
)

// Kind is the type of a circulation transaction.
type Kind string

const (
	KindCheckout Kind = "checkout"
	KindReturn   Kind = "return"
)

// Valid reports whether k is a known transaction kind.
func (k Kind) Valid() bool {
	return k == KindCheckout || k == KindReturn
}

func (k Kind) String() string {
	return string(k)
}

// Transaction is one immutable entry of the circulation log.
type Transaction struct {
	ID        string    `json:"transactionId"`
	Kind      Kind      `json:"transactionType"`
	BookISBN  string    `json:"bookId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"date"`
}

// Policy holds the borrowing rules enforced on checkout.
type Policy struct {
	MaxCheckouts int
	DueInterval  time.Duration
}

const (
	DefaultMaxCheckouts = 3
	DefaultDueInterval  = 7 * 24 * time.Hour
)

// DefaultPolicy returns the library's standard borrowing rules.
func DefaultPolicy() Policy {
	return Policy{
		MaxCheckouts: DefaultMaxCheckouts,
		DueInterval:  DefaultDueInterval,
	}
}

// OverdueBook describes a book whose current loan is past its due date.
type OverdueBook struct {
	BookISBN     string    `json:"bookId"`
	UserID       string    `json:"userId"`
	CheckedOutAt time.Time `json:"checkedOutAt"`
	DueDate      time.Time `json:"dueDate"`
}

// BookDirectory answers whether a book is in the catalog.
type BookDirectory interface {
	Exists(isbn string) bool
}

// MemberDirectory answers whether a user is registered.
type MemberDirectory interface {
	Exists(id string) bool
}
