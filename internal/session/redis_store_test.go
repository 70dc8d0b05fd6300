package session

import (
	"context"
	"testing"
	"time"

	"biogenie-go/internal/apperr"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisBackend(t *testing.T, ttl time.Duration) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backend := NewRedisBackend(client, ttl)
	backend.now = newStepClock().Now
	return backend, mr
}

func TestRedisStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) (Store, Store) {
		backend, _ := newTestRedisBackend(t, time.Hour)
		return backend.ForGuest("guest-a"), backend.ForGuest("guest-b")
	})
}

func TestRedisStore_SessionExpires(t *testing.T) {
	backend, mr := newTestRedisBackend(t, time.Hour)
	store := backend.ForGuest("guest-a")
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "notes", "short lived")
	require.NoError(t, err)
	assert.True(t, mr.Exists("session:"+sess.ID))

	mr.FastForward(2 * time.Hour)

	_, err = store.LoadSession(ctx, sess.ID)
	assert.Error(t, err)
	list, err := store.ListSessions(ctx, "notes")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRedisStore_ListPrunesExpiredEntries(t *testing.T) {
	backend, mr := newTestRedisBackend(t, time.Hour)
	store := backend.ForGuest("guest-a")
	ctx := context.Background()

	stale, err := store.CreateSession(ctx, "notes", "stale")
	require.NoError(t, err)
	mr.FastForward(40 * time.Minute)
	fresh, err := store.CreateSession(ctx, "notes", "fresh")
	require.NoError(t, err)
	mr.FastForward(30 * time.Minute)

	list, err := store.ListSessions(ctx, "notes")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, fresh.ID, list[0].ID)

	members, err := mr.ZMembers("guest:guest-a:sessions:notes")
	require.NoError(t, err)
	assert.NotContains(t, members, stale.ID)
}

func TestRedisStore_UnavailableIsReported(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisBackend(client, time.Hour).ForGuest("guest-a")
	ctx := context.Background()

	_, err := store.ListSessions(ctx, "notes")
	assert.ErrorIs(t, err, apperr.ErrTransient)

	_, err = store.CreateSession(ctx, "notes", "t")
	assert.ErrorIs(t, err, apperr.ErrPersistence)
}
