// internal/membership/service.go
package membership

import (
	"context"
)

// Service defines the interface for the membership registry.
type Service interface {
	Register(ctx context.Context, name string) (User, error)
	Get(id string) (User, error)
	Exists(id string) bool
	Remove(id string) (User, error)
	Users() []User
	Restore(users []User) error
}
