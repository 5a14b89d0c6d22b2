// internal/review/service.go
package review

// Service defines the interface for the review ledger.
type Service interface {
	Add(userID, isbn string, rating float64, comment string) (Review, error)
	Edit(userID, isbn string, rating float64, comment string) (Review, error)
	Delete(userID, isbn string) (Review, error)
	Find(filter Filter) []Review
	AverageRating(isbn string) (float64, bool)
	Reviews() []Review
	Restore(reviews []Review) error
}

// BookDirectory answers whether a book is in the catalog.
type BookDirectory interface {
	Exists(isbn string) bool
}

// MemberDirectory answers whether a user is registered.
type MemberDirectory interface {
	Exists(id string) bool
}
