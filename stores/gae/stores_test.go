//go:build !wasm
// +build !wasm

package gae_test

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/panyam/authkit"
	"github.com/panyam/authkit/stores/gae"
	"github.com/panyam/authkit/stores/storetest"
)

// These tests need the Datastore emulator:
//
//	gcloud beta emulators datastore start
//	export DATASTORE_EMULATOR_HOST=localhost:8081
func TestDatastoreUserStore(t *testing.T) {
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("DATASTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	client, err := datastore.NewClient(ctx, "authkit-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	storetest.Run(t, func(t *testing.T) authkit.UserStore {
		// A fresh namespace per subtest isolates them from each other.
		return gae.NewUserStore(client, "t"+uuid.NewString()[:8])
	})
}
