// internal/membership/implementation.go
package membership

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"libranexus/internal/collection"
	"libranexus/internal/domain"
)

// service implements the Service interface.
type service struct {
	users       *collection.Unique[User]
	ids         domain.IDGenerator
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// Option configures the membership service.
type Option func(*service)

// WithRegistrationLimit caps registrations to perMinute with the given burst.
// A non-positive perMinute leaves registration unlimited.
func WithRegistrationLimit(perMinute, burst int) Option {
	return func(s *service) {
		if perMinute <= 0 {
			s.rateLimiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		s.rateLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
	}
}

// WithLogger sets the logger used for registration events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new membership service instance.
func NewService(ids domain.IDGenerator, opts ...Option) Service {
	s := &service{
		users:  collection.NewUnique("user", func(u User) string { return u.ID }),
		ids:    ids,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a new user with a fresh id.
func (s *service) Register(ctx context.Context, name string) (User, error) {
	name, err := domain.RequireNonEmpty("name", name)
	if err != nil {
		return User{}, err
	}

	if s.rateLimiter != nil && !s.rateLimiter.Allow() {
		return User{}, domain.PolicyViolation("user", "", "registration rate limit exceeded")
	}

	id, err := s.ids.NewID()
	if err != nil {
		return User{}, err
	}

	user, err := NewUser(id, name)
	if err != nil {
		return User{}, err
	}
	if err := s.users.Add(user); err != nil {
		return User{}, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Get retrieves a user by id.
func (s *service) Get(id string) (User, error) {
	id, err := domain.RequireNonEmpty("user id", id)
	if err != nil {
		return User{}, err
	}
	user, ok := s.users.Find(id)
	if !ok {
		return User{}, domain.NotFound("user", id)
	}
	return user, nil
}

func (s *service) Exists(id string) bool {
	return s.users.Has(strings.TrimSpace(id))
}

// Remove deletes a user. Past circulation records keep referring to the id.
func (s *service) Remove(id string) (User, error) {
	id, err := domain.RequireNonEmpty("user id", id)
	if err != nil {
		return User{}, err
	}
	return s.users.Remove(id)
}

func (s *service) Users() []User {
	return s.users.Items()
}

// Restore replaces the registry contents with previously persisted users.
func (s *service) Restore(users []User) error {
	valid := make([]User, 0, len(users))
	for i, u := range users {
		user, err := NewUser(u.ID, u.Name)
		if err != nil {
			return domain.Deserialization(fmt.Sprintf("user %d", i), err)
		}
		valid = append(valid, user)
	}
	if err := s.users.Reset(valid); err != nil {
		return domain.Deserialization("users", err)
	}
	return nil
}
