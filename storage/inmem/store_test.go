package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/quizboard/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, NewStore())
}

func TestStore_Remove_dropsEmptySessions(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Set(ctx, "s", "token", "t"))
	require.NoError(t, store.Set(ctx, "s", "user", "u"))
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.Remove(ctx, "s", "token"))
	assert.Equal(t, 1, store.Len())
	require.NoError(t, store.Remove(ctx, "s", "user"))
	assert.Zero(t, store.Len())
}
