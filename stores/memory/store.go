// Package memory is an in-process authkit.UserStore for tests, demos and
// single instance deployments that can afford to lose users on restart.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panyam/authkit"
)

// Store keeps users in a map guarded by a RWMutex. Returned users are copies.
type Store struct {
	mu    sync.RWMutex
	users map[string]*authkit.User

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{users: make(map[string]*authkit.User)}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*authkit.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return u.Clone(), nil
	}
	return nil, fmt.Errorf("user %q: %w", id, authkit.ErrNotFound)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*authkit.User, error) {
	email = authkit.NormalizeEmail(email)
	return s.find(func(u *authkit.User) bool { return u.Email == email })
}

func (s *Store) FindUserByProviderID(ctx context.Context, provider, providerID string) (*authkit.User, error) {
	if providerID == "" {
		return nil, authkit.ErrNotFound
	}
	return s.find(func(u *authkit.User) bool {
		return u.Provider == provider && u.ProviderID == providerID
	})
}

func (s *Store) FindUserByResetToken(ctx context.Context, tokenHash string) (*authkit.User, error) {
	if tokenHash == "" {
		return nil, authkit.ErrNotFound
	}
	return s.find(func(u *authkit.User) bool { return u.ResetPasswordToken == tokenHash })
}

func (s *Store) CreateUser(ctx context.Context, user *authkit.User) (*authkit.User, error) {
	u := user.Clone()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	authkit.PrepareNewUser(u, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return nil, fmt.Errorf("user id %q: %w", u.ID, authkit.ErrDuplicate)
	}
	if err := s.checkUnique(u); err != nil {
		return nil, err
	}
	s.users[u.ID] = u
	return u.Clone(), nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, update authkit.UserUpdate) (*authkit.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", id, authkit.ErrNotFound)
	}
	u := existing.Clone()
	update.Apply(u, s.now())
	if err := s.checkUnique(u); err != nil {
		return nil, err
	}
	s.users[id] = u
	return u.Clone(), nil
}

// Len returns the number of stored users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func (s *Store) find(match func(*authkit.User) bool) (*authkit.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return nil, authkit.ErrNotFound
}

// checkUnique must be called with the write lock held.
func (s *Store) checkUnique(u *authkit.User) error {
	for id, other := range s.users {
		if id == u.ID {
			continue
		}
		if other.Email == u.Email {
			return fmt.Errorf("email %q: %w", u.Email, authkit.ErrDuplicate)
		}
		if u.ProviderID != "" && other.Provider == u.Provider && other.ProviderID == u.ProviderID {
			return fmt.Errorf("%s account %q: %w", u.Provider, u.ProviderID, authkit.ErrDuplicate)
		}
	}
	return nil
}
