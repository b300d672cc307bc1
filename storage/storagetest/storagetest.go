// Package storagetest checks session.Storage implementations.
package storagetest

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/quizboard/session"
)

// Run exercises `store`, which must be empty.
func Run(t *testing.T, store session.Storage) {
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		v, ok, err := store.Get(ctx, "nope", session.KeyToken)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("set get overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "s1", session.KeyToken, "abc"))
		require.NoError(t, store.Set(ctx, "s1", session.KeyToken, "def"))
		v, ok, err := store.Get(ctx, "s1", session.KeyToken)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "def", v)
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "s2", session.KeyToken, "other"))
		v, _, err := store.Get(ctx, "s1", session.KeyToken)
		require.NoError(t, err)
		assert.Equal(t, "def", v)
	})

	t.Run("remove several keys", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "s3", session.KeyToken, "tok"))
		require.NoError(t, store.Set(ctx, "s3", session.KeyUser, `{"id":1}`))
		require.NoError(t, store.Remove(ctx, "s3", session.KeyToken, session.KeyUser))
		for _, key := range []string{session.KeyToken, session.KeyUser} {
			_, ok, err := store.Get(ctx, "s3", key)
			require.NoError(t, err)
			assert.False(t, ok, key)
		}
		// removing again is a no-op
		require.NoError(t, store.Remove(ctx, "s3", session.KeyToken, session.KeyUser))
	})

	t.Run("concurrent writers", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sid := "c" + strconv.Itoa(i)
				assert.NoError(t, store.Set(ctx, sid, session.KeyToken, sid))
			}(i)
		}
		wg.Wait()
		for i := 0; i < 20; i++ {
			sid := "c" + strconv.Itoa(i)
			v, ok, err := store.Get(ctx, sid, session.KeyToken)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, sid, v)
		}
	})
}
