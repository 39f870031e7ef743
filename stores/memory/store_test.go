package memory_test

import (
	"context"
	"testing"

	"github.com/panyam/authkit"
	"github.com/panyam/authkit/stores/memory"
	"github.com/panyam/authkit/stores/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) authkit.UserStore {
		return memory.New()
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	u, err := s.CreateUser(ctx, &authkit.User{Email: "copy@example.com", Name: "Original"})
	require.NoError(t, err)

	u.Name = "Mutated"
	again, err := s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", again.Name)
	assert.Equal(t, 1, s.Len())
}
