package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	store := NewContextStore(filepath.Join(t.TempDir(), "context.yaml"))

	ctx := &Context{}
	ctx.SetThread("driver-7", "Marcus (van 12)")
	require.NoError(t, store.Save(ctx))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "driver-7", loaded.ThreadID)
	require.Equal(t, "Marcus (van 12)", loaded.ThreadLabel)
	require.False(t, loaded.IsEmpty())
}

func TestLoadMissingContextIsEmpty(t *testing.T) {
	store := NewContextStore(filepath.Join(t.TempDir(), "context.yaml"))

	ctx, err := store.Load()
	require.NoError(t, err)
	require.True(t, ctx.IsEmpty())
}

func TestClearRemovesContextFile(t *testing.T) {
	store := NewContextStore(filepath.Join(t.TempDir(), "context.yaml"))

	ctx := &Context{}
	ctx.SetThread("driver-7", "")
	require.NoError(t, store.Save(ctx))

	require.NoError(t, store.Clear())
	// Clearing twice is fine.
	require.NoError(t, store.Clear())

	loaded, err := store.Load()
	require.NoError(t, err)
	require.True(t, loaded.IsEmpty())
}

func TestContextString(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "(no context set)", ctx.String())

	ctx.SetThread("driver-7", "")
	require.Equal(t, "thread:driver-7", ctx.String())

	ctx.SetThread("driver-7", "Marcus")
	require.Equal(t, "thread:Marcus", ctx.String())
}
