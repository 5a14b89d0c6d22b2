// internal/review/implementation.go
package review

import (
	"fmt"
	"strings"

	"libranexus/internal/collection"
	"libranexus/internal/domain"
)

// service implements the Service interface.
type service struct {
	reviews *collection.Unique[Review]
	books   BookDirectory
	members MemberDirectory
}

// NewService creates an empty review ledger validating references against books and members.
func NewService(books BookDirectory, members MemberDirectory) Service {
	return &service{
		reviews: collection.NewUnique("review", Review.Key),
		books:   books,
		members: members,
	}
}

// Add records a new review; a user may review each book once.
func (s *service) Add(userID, isbn string, rating float64, comment string) (Review, error) {
	r, err := NewReview(userID, isbn, rating, comment)
	if err != nil {
		return Review{}, err
	}
	if !s.books.Exists(r.BookISBN) {
		return Review{}, domain.NotFound("book", r.BookISBN)
	}
	if !s.members.Exists(r.Author) {
		return Review{}, domain.NotFound("user", r.Author)
	}
	if err := s.reviews.Add(r); err != nil {
		return Review{}, err
	}
	return r, nil
}

// Edit overwrites rating and comment of an existing review.
func (s *service) Edit(userID, isbn string, rating float64, comment string) (Review, error) {
	r, err := NewReview(userID, isbn, rating, comment)
	if err != nil {
		return Review{}, err
	}
	if err := s.reviews.Replace(r); err != nil {
		return Review{}, err
	}
	return r, nil
}

func (s *service) Delete(userID, isbn string) (Review, error) {
	userID = strings.TrimSpace(userID)
	isbn = strings.TrimSpace(isbn)
	removed, err := s.reviews.Remove(Key(userID, isbn))
	if err != nil {
		return Review{}, domain.NotFound("review", userID+"/"+isbn)
	}
	return removed, nil
}

// Find returns reviews matching every set field of filter, in the order they were written.
func (s *service) Find(filter Filter) []Review {
	isbn, byBook := domain.NonEmpty(filter.BookISBN)
	user, byUser := domain.NonEmpty(filter.UserID)
	text, byText := domain.NonEmpty(filter.Text)

	return s.reviews.Filter(func(r Review) bool {
		switch {
		case byBook && r.BookISBN != isbn:
			return false
		case byUser && r.Author != user:
			return false
		case filter.Rating != nil && r.Rating != *filter.Rating:
			return false
		case byText && !strings.Contains(r.Comment, text):
			return false
		}
		return true
	})
}

// AverageRating is the mean rating of a book; false when nobody reviewed it.
func (s *service) AverageRating(isbn string) (float64, bool) {
	isbn = strings.TrimSpace(isbn)
	reviews := s.reviews.Filter(func(r Review) bool { return r.BookISBN == isbn })
	if len(reviews) == 0 {
		return 0, false
	}

	var sum float64
	for _, r := range reviews {
		sum += r.Rating
	}
	return sum / float64(len(reviews)), true
}

func (s *service) Reviews() []Review {
	return s.reviews.Items()
}

// Restore replaces the ledger with persisted reviews. References are not
// re-checked; books and users may have been removed since.
func (s *service) Restore(reviews []Review) error {
	valid := make([]Review, 0, len(reviews))
	for i, r := range reviews {
		if r.Rating < MinRating || r.Rating > MaxRating {
			return domain.Deserialization(fmt.Sprintf("review %d", i), domain.InvalidArgument("rating", "out of range"))
		}
		review, err := NewReview(r.Author, r.BookISBN, r.Rating, r.Comment)
		if err != nil {
			return domain.Deserialization(fmt.Sprintf("review %d", i), err)
		}
		valid = append(valid, review)
	}
	if err := s.reviews.Reset(valid); err != nil {
		return domain.Deserialization("reviews", err)
	}
	return nil
}
