// internal/catalog/service.go
package catalog

// Service defines the interface for the book catalog.
type Service interface {
	AddBook(title, author, isbn string) (Book, error)
	GetByISBN(isbn string) (Book, error)
	FindByISBN(isbn string) (Book, bool)
	Exists(isbn string) bool
	RemoveBook(isbn string) (Book, error)
	SearchByAuthor(query string) ([]Book, error)
	SearchByTitleOrAuthor(query string) ([]Book, error)
	Sort(key SortKey, descending bool) ([]Book, error)
	Books() []Book
	Restore(books []Book) error
}
