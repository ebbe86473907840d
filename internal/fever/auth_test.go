package fever

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKey(t *testing.T) {
	assert.Equal(t, "6f622058968bb90757e6c6ed79e5df81", APIKey("alice", "secret"))
}

func TestAuthenticate(t *testing.T) {
	store := newMemStore()
	alice := store.addUser(t, "alice", "secret")
	bob := store.addUser(t, "bob", "hunter2")
	store.users = append(store.users, store.users[0])
	store.users[2].ID = 99
	gate := NewAuthGate(store)

	user, err := gate.Authenticate(APIKey("bob", "hunter2"))
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, bob.ID, user.ID)

	// The first matching user wins.
	user, err = gate.Authenticate(APIKey("alice", "secret"))
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, alice.ID, user.ID)

	for _, key := range []string{"", "wrong", APIKey("alice", "hunter2")} {
		user, err = gate.Authenticate(key)
		assert.NoError(t, err)
		assert.Nil(t, user, key)
	}
}

func TestAuthenticateStorageFailure(t *testing.T) {
	store := newMemStore()
	store.fail["GetAPIUsers"] = true

	_, err := NewAuthGate(store).Authenticate("key")
	assert.ErrorIs(t, err, errStorage)
}
