// internal/review/domain.go
package review

import (
	"math"

	"libranexus/internal/domain"
)

const (
	MinRating = 0.0
	MaxRating = 5.0
)

// Review is one user's opinion of one book.
type Review struct {
	Author   string  `json:"author"`
	BookISBN string  `json:"bookIsbn"`
	Rating   float64 `json:"rating"`
	Comment  string  `json:"comment,omitempty"`
}

// Key identifies a review: at most one per (author, book).
func (r Review) Key() string {
	return Key(r.Author, r.BookISBN)
}

func (r Review) HasComment() bool {
	return r.Comment != ""
}

// Key builds the composite review key.
func Key(author, isbn string) string {
	return author + "\x00" + isbn
}

// NewReview validates the identity, coerces the rating into range and drops a blank comment.
func NewReview(author, isbn string, rating float64, comment string) (Review, error) {
	author, err := domain.RequireNonEmpty("author", author)
	if err != nil {
		return Review{}, err
	}
	isbn, err = domain.RequireNonEmpty("isbn", isbn)
	if err != nil {
		return Review{}, err
	}
	if math.IsNaN(rating) {
		return Review{}, domain.InvalidArgument("rating", "must be a number")
	}
	comment, _ = domain.NonEmpty(comment)

	return Review{
		Author:   author,
		BookISBN: isbn,
		Rating:   domain.Clamp(rating, MinRating, MaxRating),
		Comment:  comment,
	}, nil
}

// Filter narrows Find. Zero fields match everything.
type Filter struct {
	BookISBN string
	UserID   string
	Rating   *float64
	Text     string
}
