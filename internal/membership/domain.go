// internal/membership/domain.go
package membership

import (
	"libranexus/internal/domain"
)

// User is a registered library member.
type User struct {
	ID   string `json:"uuid"`
	Name string `json:"name"`
}

// NewUser validates the name and binds it to a generator-issued id.
func NewUser(id, name string) (User, error) {
	id, err := domain.RequireNonEmpty("user id", id)
	if err != nil {
		return User{}, err
	}
	name, err = domain.RequireNonEmpty("name", name)
	if err != nil {
		return User{}, err
	}
	return User{ID: id, Name: name}, nil
}
