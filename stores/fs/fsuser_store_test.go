package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/authkit"
	"github.com/panyam/authkit/stores/fs"
	"github.com/panyam/authkit/stores/storetest"
)

func setupTestDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "authkit-fs-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestFSUserStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) authkit.UserStore {
		return fs.NewFSUserStore(setupTestDir(t))
	})
}

func TestFSUserStorePersistsAcrossInstances(t *testing.T) {
	dir := setupTestDir(t)
	ctx := context.Background()

	first := fs.NewFSUserStore(dir)
	created, err := first.CreateUser(ctx, &authkit.User{Email: "persist@example.com", Password: "hash"})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "users", created.ID+".json"))
	require.NoError(t, err)

	second := fs.NewFSUserStore(dir)
	found, err := second.FindUserByEmail(ctx, "persist@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "hash", found.Password)
}

func TestFSUserStoreRejectsPathTraversal(t *testing.T) {
	s := fs.NewFSUserStore(setupTestDir(t))
	_, err := s.FindUserByID(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, authkit.ErrNotFound)
}
