package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/panyam/authkit"
)

// fsUser is the on-disk form of a user. It differs from authkit.User only in
// that secrets are serialized.
type fsUser struct {
	ID                   string     `json:"id"`
	Email                string     `json:"email"`
	Password             string     `json:"password,omitempty"`
	Name                 string     `json:"name,omitempty"`
	Role                 string     `json:"role"`
	Provider             string     `json:"provider"`
	ProviderID           string     `json:"provider_id,omitempty"`
	ResetPasswordToken   string     `json:"reset_password_token,omitempty"`
	ResetPasswordExpires *time.Time `json:"reset_password_expires,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func fromUser(u *authkit.User) *fsUser {
	return &fsUser{
		ID:                   u.ID,
		Email:                u.Email,
		Password:             u.Password,
		Name:                 u.Name,
		Role:                 u.Role,
		Provider:             u.Provider,
		ProviderID:           u.ProviderID,
		ResetPasswordToken:   u.ResetPasswordToken,
		ResetPasswordExpires: u.ResetPasswordExpires,
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
}

func (f *fsUser) toUser() *authkit.User {
	return &authkit.User{
		ID:                   f.ID,
		Email:                f.Email,
		Password:             f.Password,
		Name:                 f.Name,
		Role:                 f.Role,
		Provider:             f.Provider,
		ProviderID:           f.ProviderID,
		ResetPasswordToken:   f.ResetPasswordToken,
		ResetPasswordExpires: f.ResetPasswordExpires,
		CreatedAt:            f.CreatedAt,
		UpdatedAt:            f.UpdatedAt,
	}
}

// FSUserStore stores users as JSON files, one per user, under
// <StoragePath>/users. Lookups other than by id scan the directory, which is
// fine for development and small single-node installs.
type FSUserStore struct {
	StoragePath string
	mu          sync.RWMutex
}

func NewFSUserStore(storagePath string) *FSUserStore {
	return &FSUserStore{StoragePath: storagePath}
}

func (s *FSUserStore) usersDir() string {
	return filepath.Join(s.StoragePath, "users")
}

func (s *FSUserStore) getUserPath(userId string) string {
	// filepath.Base prevents path traversal through crafted ids
	return filepath.Join(s.usersDir(), filepath.Base(userId)+".json")
}

func (s *FSUserStore) FindUserByID(ctx context.Context, id string) (*authkit.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return u.toUser(), nil
}

func (s *FSUserStore) FindUserByEmail(ctx context.Context, email string) (*authkit.User, error) {
	email = authkit.NormalizeEmail(email)
	return s.find(func(u *fsUser) bool { return u.Email == email })
}

func (s *FSUserStore) FindUserByProviderID(ctx context.Context, provider, providerID string) (*authkit.User, error) {
	if providerID == "" {
		return nil, authkit.ErrNotFound
	}
	return s.find(func(u *fsUser) bool { return u.Provider == provider && u.ProviderID == providerID })
}

func (s *FSUserStore) FindUserByResetToken(ctx context.Context, tokenHash string) (*authkit.User, error) {
	if tokenHash == "" {
		return nil, authkit.ErrNotFound
	}
	return s.find(func(u *fsUser) bool { return u.ResetPasswordToken == tokenHash })
}

func (s *FSUserStore) CreateUser(ctx context.Context, user *authkit.User) (*authkit.User, error) {
	u := user.Clone()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	authkit.PrepareNewUser(u, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.getUserPath(u.ID)); err == nil {
		return nil, fmt.Errorf("user id %q: %w", u.ID, authkit.ErrDuplicate)
	}
	if err := s.checkUnique(u); err != nil {
		return nil, err
	}
	if err := s.save(fromUser(u)); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *FSUserStore) UpdateUser(ctx context.Context, id string, update authkit.UserUpdate) (*authkit.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.load(id)
	if err != nil {
		return nil, err
	}
	u := existing.toUser()
	update.Apply(u, time.Now())
	if err := s.checkUnique(u); err != nil {
		return nil, err
	}
	if err := s.save(fromUser(u)); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *FSUserStore) load(id string) (*fsUser, error) {
	data, err := os.ReadFile(s.getUserPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("user %q: %w", id, authkit.ErrNotFound)
		}
		return nil, err
	}
	var u fsUser
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode user %q: %w", id, err)
	}
	return &u, nil
}

func (s *FSUserStore) save(u *fsUser) error {
	path := s.getUserPath(u.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

func (s *FSUserStore) find(match func(*fsUser) bool) (*authkit.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *fsUser
	err := s.each(func(u *fsUser) bool {
		if match(u) {
			found = u
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, authkit.ErrNotFound
	}
	return found.toUser(), nil
}

// each calls fn for every stored user until fn returns false.
func (s *FSUserStore) each(fn func(*fsUser) bool) error {
	entries, err := os.ReadDir(s.usersDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		u, err := s.load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return err
		}
		if !fn(u) {
			return nil
		}
	}
	return nil
}

// checkUnique must be called with the write lock held.
func (s *FSUserStore) checkUnique(u *authkit.User) error {
	var conflict error
	err := s.each(func(other *fsUser) bool {
		if other.ID == u.ID {
			return true
		}
		if other.Email == u.Email {
			conflict = fmt.Errorf("email %q: %w", u.Email, authkit.ErrDuplicate)
			return false
		}
		if u.ProviderID != "" && other.Provider == u.Provider && other.ProviderID == u.ProviderID {
			conflict = fmt.Errorf("%s account %q: %w", u.Provider, u.ProviderID, authkit.ErrDuplicate)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return conflict
}
