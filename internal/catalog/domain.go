// internal/catalog/domain.go
package catalog

import (
	"libranexus/internal/domain"
)

// Book is a catalog entry. Circulation state is never stored here; it is
// derived from the circulation ledger.
type Book struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	ISBN   string `json:"isbn"`
}

// NewBook validates and trims the three identity fields.
func NewBook(title, author, isbn string) (Book, error) {
	title, err := domain.RequireNonEmpty("title", title)
	if err != nil {
		return Book{}, err
	}
	author, err = domain.RequireNonEmpty("author", author)
	if err != nil {
		return Book{}, err
	}
	isbn, err = domain.RequireNonEmpty("isbn", isbn)
	if err != nil {
		return Book{}, err
	}

	return Book{Title: title, Author: author, ISBN: isbn}, nil
}

// SortKey selects the field Sort orders by.
type SortKey string

const (
	SortByAuthor SortKey = "author"
	SortByTitle  SortKey = "title"
)
