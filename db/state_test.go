package db

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_State_RoundTrip(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	_, found, err := s.State(ctx, "floraStateTopic")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveState(ctx, "floraStateTopic", "0.0.5005"))
	value, found, err := s.State(ctx, "floraStateTopic")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0.0.5005", value)

	require.NoError(t, s.SaveState(ctx, "floraStateTopic", "0.0.6006"))
	value, found, err = s.State(ctx, "floraStateTopic")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0.0.6006", value)
}

func TestStore_SecretState_WrapsAtRest(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSecretState(ctx, "operatorKey", "302e0201...dead"))

	raw, found, err := s.State(ctx, "operatorKey")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, strings.HasPrefix(raw, secretPrefix), "stored value %q is not wrapped", raw)
	assert.NotContains(t, raw, "302e0201...dead")

	plain, found, err := s.SecretState(ctx, "operatorKey")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "302e0201...dead", plain)
}

func TestStore_SecretState_PlainValuePassesThrough(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	// State written before wrapping was enabled has no envelope prefix.
	require.NoError(t, s.SaveState(ctx, "operatorKey", "plain-key-material"))
	plain, found, err := s.SecretState(ctx, "operatorKey")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "plain-key-material", plain)
}

func TestStore_ClearDB(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	require.NoError(t, s.SaveState(ctx, "key", "value"))
	require.NoError(t, s.ClearDB())

	_, err := os.Stat(s.DatabasePath())
	assert.True(t, os.IsNotExist(err), "database file should be removed")
}
