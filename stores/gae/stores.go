//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/panyam/authkit"
)

// Kind constants for Datastore entities
const (
	KindUser         = "User"
	KindUserEmail    = "UserEmail"
	KindUserProvider = "UserProvider"
)

// UserStore implements authkit.UserStore using Google Cloud Datastore
type UserStore struct {
	client    *datastore.Client
	namespace string
}

// NewUserStore creates a new Datastore-backed UserStore
func NewUserStore(client *datastore.Client, namespace string) *UserStore {
	return &UserStore{
		client:    client,
		namespace: namespace,
	}
}

func (s *UserStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *UserStore) emailKey(email string) *datastore.Key {
	return s.namespacedKey(KindUserEmail, email)
}

func (s *UserStore) providerKey(provider, providerID string) *datastore.Key {
	if providerID == "" {
		return nil
	}
	return s.namespacedKey(KindUserProvider, provider+":"+providerID)
}

func (s *UserStore) FindUserByID(ctx context.Context, id string) (*authkit.User, error) {
	var entity UserEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindUser, id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, fmt.Errorf("user %q: %w", id, authkit.ErrNotFound)
		}
		return nil, err
	}
	return entity.ToUser(), nil
}

func (s *UserStore) FindUserByEmail(ctx context.Context, email string) (*authkit.User, error) {
	return s.findByMarker(ctx, s.emailKey(authkit.NormalizeEmail(email)))
}

func (s *UserStore) FindUserByProviderID(ctx context.Context, provider, providerID string) (*authkit.User, error) {
	key := s.providerKey(provider, providerID)
	if key == nil {
		return nil, authkit.ErrNotFound
	}
	return s.findByMarker(ctx, key)
}

func (s *UserStore) FindUserByResetToken(ctx context.Context, tokenHash string) (*authkit.User, error) {
	if tokenHash == "" {
		return nil, authkit.ErrNotFound
	}
	query := datastore.NewQuery(KindUser).
		FilterField("reset_password_token", "=", tokenHash).
		Limit(1)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	it := s.client.Run(ctx, query)
	var entity UserEntity
	_, err := it.Next(&entity)
	if err == iterator.Done {
		return nil, authkit.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entity.ToUser(), nil
}

func (s *UserStore) CreateUser(ctx context.Context, user *authkit.User) (*authkit.User, error) {
	u := user.Clone()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	authkit.PrepareNewUser(u, time.Now())
	key := s.namespacedKey(KindUser, u.ID)

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing UserEntity
		if err := tx.Get(key, &existing); err == nil {
			return fmt.Errorf("user id %q: %w", u.ID, authkit.ErrDuplicate)
		} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if err := s.reserve(tx, s.emailKey(u.Email), u.ID); err != nil {
			return err
		}
		if pk := s.providerKey(u.Provider, u.ProviderID); pk != nil {
			if err := s.reserve(tx, pk, u.ID); err != nil {
				return err
			}
		}
		_, err := tx.Put(key, UserToEntity(u, key, 1))
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserStore) UpdateUser(ctx context.Context, id string, update authkit.UserUpdate) (*authkit.User, error) {
	key := s.namespacedKey(KindUser, id)
	var out *authkit.User

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return fmt.Errorf("user %q: %w", id, authkit.ErrNotFound)
			}
			return err
		}
		before := entity.ToUser()
		u := before.Clone()
		update.Apply(u, time.Now())

		if u.Email != before.Email {
			if err := s.reserve(tx, s.emailKey(u.Email), id); err != nil {
				return err
			}
			if err := tx.Delete(s.emailKey(before.Email)); err != nil {
				return err
			}
		}
		oldPK := s.providerKey(before.Provider, before.ProviderID)
		newPK := s.providerKey(u.Provider, u.ProviderID)
		if !sameKey(oldPK, newPK) {
			if newPK != nil {
				if err := s.reserve(tx, newPK, id); err != nil {
					return err
				}
			}
			if oldPK != nil {
				if err := tx.Delete(oldPK); err != nil {
					return err
				}
			}
		}

		if _, err := tx.Put(key, UserToEntity(u, key, entity.Version+1)); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *UserStore) findByMarker(ctx context.Context, key *datastore.Key) (*authkit.User, error) {
	var marker MarkerEntity
	if err := s.client.Get(ctx, key, &marker); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, authkit.ErrNotFound
		}
		return nil, err
	}
	return s.FindUserByID(ctx, marker.UserID)
}

// reserve claims a marker for userID, failing with ErrDuplicate when another
// user holds it.
func (s *UserStore) reserve(tx *datastore.Transaction, key *datastore.Key, userID string) error {
	var marker MarkerEntity
	err := tx.Get(key, &marker)
	switch {
	case err == nil && marker.UserID != userID:
		return fmt.Errorf("%s %q: %w", key.Kind, key.Name, authkit.ErrDuplicate)
	case err == nil:
		return nil
	case !errors.Is(err, datastore.ErrNoSuchEntity):
		return err
	}
	_, err = tx.Put(key, &MarkerEntity{UserID: userID, CreatedAt: time.Now()})
	return err
}

func sameKey(a, b *datastore.Key) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(b)
}
