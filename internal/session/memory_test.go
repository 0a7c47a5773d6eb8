package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec := Record{UserID: uuid.New(), CreatedAt: time.Now()}

	require.NoError(t, store.Set(ctx, "session:abc", rec, time.Minute))

	got, err := store.Get(ctx, "session:abc")
	require.NoError(t, err)
	assert.Equal(t, rec.UserID, got.UserID)

	_, err = store.Get(ctx, "session:missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, "session:abc"))
	_, err = store.Get(ctx, "session:abc")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is not an error
	assert.NoError(t, store.Delete(ctx, "session:abc"))
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec := Record{UserID: uuid.New(), CreatedAt: time.Now()}

	require.NoError(t, store.Set(ctx, "session:abc", rec, -time.Second))

	_, err := store.Get(ctx, "session:abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Refresh(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec := Record{UserID: uuid.New(), CreatedAt: time.Now()}

	require.NoError(t, store.Set(ctx, "remember:abc", rec, time.Minute))
	assert.NoError(t, store.Refresh(ctx, "remember:abc", time.Hour))

	assert.ErrorIs(t, store.Refresh(ctx, "remember:missing", time.Hour), ErrNotFound)

	// An already-expired entry cannot be refreshed back to life
	require.NoError(t, store.Set(ctx, "remember:old", rec, -time.Second))
	assert.ErrorIs(t, store.Refresh(ctx, "remember:old", time.Hour), ErrNotFound)
}
