package session

import (
	"context"
	"testing"

	"biogenie-go/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryBackend(capacity int) *MemoryBackend {
	backend := NewMemoryBackend(capacity)
	backend.now = newStepClock().Now
	return backend
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) (Store, Store) {
		backend := newTestMemoryBackend(0)
		return backend.ForGuest("guest-a"), backend.ForGuest("guest-b")
	})
}

func TestMemoryStore_EvictsLeastRecentlyUpdated(t *testing.T) {
	backend := newTestMemoryBackend(2)
	store := backend.ForGuest("guest-a")
	ctx := context.Background()

	first, err := store.CreateSession(ctx, "notes", "first")
	require.NoError(t, err)
	second, err := store.CreateSession(ctx, "notes", "second")
	require.NoError(t, err)

	u, a := exchange("q", "a")
	_, err = store.AppendExchange(ctx, first.ID, u, a)
	require.NoError(t, err)

	_, err = store.CreateSession(ctx, "notes", "third")
	require.NoError(t, err)

	assert.Equal(t, 2, backend.Len())
	_, err = store.LoadSession(ctx, second.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = store.LoadSession(ctx, first.ID)
	assert.NoError(t, err)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	backend := newTestMemoryBackend(0)
	store := backend.ForGuest("guest-a")
	ctx := context.Background()

	u, a := exchange("q", "a", "Cloning (ch1.pdf)")
	sess, err := store.OpenSession(ctx, "notes", "q", u, a)
	require.NoError(t, err)
	sess.Title = "mutated"
	sess.Messages[1].Sources[0] = "mutated"

	loaded, err := store.LoadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "q", loaded.Title)
	assert.Equal(t, []string{"Cloning (ch1.pdf)"}, loaded.Messages[1].Sources)
}
