// internal/catalog/implementation.go
package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"libranexus/internal/collection"
	"libranexus/internal/domain"
)

// service implements the Service interface.
type service struct {
	books *collection.Unique[Book]
	lang  language.Tag
}

// NewService creates an empty catalog. Sorting collates for lang.
func NewService(lang language.Tag) Service {
	return &service{
		books: collection.NewUnique("book", func(b Book) string { return b.ISBN }),
		lang:  lang,
	}
}

// AddBook validates the fields and adds a new book keyed by its ISBN.
func (s *service) AddBook(title, author, isbn string) (Book, error) {
	book, err := NewBook(title, author, isbn)
	if err != nil {
		return Book{}, err
	}
	if err := s.books.Add(book); err != nil {
		return Book{}, err
	}
	return book, nil
}

// GetByISBN retrieves a book, failing if it is not in the catalog.
func (s *service) GetByISBN(isbn string) (Book, error) {
	isbn, err := domain.RequireNonEmpty("isbn", isbn)
	if err != nil {
		return Book{}, err
	}
	book, ok := s.books.Find(isbn)
	if !ok {
		return Book{}, domain.NotFound("book", isbn)
	}
	return book, nil
}

func (s *service) FindByISBN(isbn string) (Book, bool) {
	return s.books.Find(strings.TrimSpace(isbn))
}

func (s *service) Exists(isbn string) bool {
	_, ok := s.FindByISBN(isbn)
	return ok
}

// RemoveBook retires a book from the catalog. Its circulation history stays.
func (s *service) RemoveBook(isbn string) (Book, error) {
	isbn, err := domain.RequireNonEmpty("isbn", isbn)
	if err != nil {
		return Book{}, err
	}
	return s.books.Remove(isbn)
}

// SearchByAuthor finds books whose author contains query, ignoring case.
func (s *service) SearchByAuthor(query string) ([]Book, error) {
	q, err := domain.RequireNonEmpty("author", query)
	if err != nil {
		return nil, err
	}
	q = strings.ToLower(q)

	return s.books.Filter(func(b Book) bool {
		return strings.Contains(strings.ToLower(b.Author), q)
	}), nil
}

// SearchByTitleOrAuthor finds books whose title or author contains query, ignoring case.
func (s *service) SearchByTitleOrAuthor(query string) ([]Book, error) {
	q, err := domain.RequireNonEmpty("query", query)
	if err != nil {
		return nil, err
	}
	q = strings.ToLower(q)

	return s.books.Filter(func(b Book) bool {
		return strings.Contains(strings.ToLower(b.Author), q) ||
			strings.Contains(strings.ToLower(b.Title), q)
	}), nil
}

// Sort returns the books ordered by key. The catalog itself keeps insertion order.
func (s *service) Sort(key SortKey, descending bool) ([]Book, error) {
	var field func(Book) string
	switch key {
	case SortByAuthor:
		field = func(b Book) string { return b.Author }
	case SortByTitle:
		field = func(b Book) string { return b.Title }
	default:
		return nil, domain.InvalidArgument("sort key", fmt.Sprintf("unknown key %q", key))
	}

	// collators keep internal buffers and are not safe to share
	c := collate.New(s.lang, collate.IgnoreCase)
	order := 1
	if descending {
		order = -1
	}

	return s.books.Sorted(func(a, b Book) int {
		return order * c.CompareString(field(a), field(b))
	}), nil
}

func (s *service) Books() []Book {
	return s.books.Items()
}

// Restore replaces the catalog contents with previously persisted books.
func (s *service) Restore(books []Book) error {
	valid := make([]Book, 0, len(books))
	for i, b := range books {
		book, err := NewBook(b.Title, b.Author, b.ISBN)
		if err != nil {
			return domain.Deserialization(fmt.Sprintf("book %d", i), err)
		}
		valid = append(valid, book)
	}
	if err := s.books.Reset(valid); err != nil {
		return domain.Deserialization("books", err)
	}
	return nil
}
