package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telehealth-scheduling/internal/config"
)

func newLocker(t *testing.T) (Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSlotLocker(client, 5*time.Second), mr
}

func testKey() SlotKey {
	return SlotKey{
		TherapistID: uuid.MustParse("7d0b8b4e-6f1c-4d55-a3ef-0b7c1b7f6c11"),
		Weekday:     "Monday",
		Start:       "09:00",
		Date:        time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestSlotKeyString(t *testing.T) {
	assert.Equal(t, "lock:slot:7d0b8b4e-6f1c-4d55-a3ef-0b7c1b7f6c11:Monday:09:00:2025-03-10", testKey().String())
}

func TestWithSlotLockReleasesAfterRun(t *testing.T) {
	locker, mr := newLocker(t)
	key := testKey()

	ran := false
	err := locker.WithSlotLock(context.Background(), key, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists(key.String()))
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists(key.String()))
}

func TestWithSlotLockRejectsConcurrentHolder(t *testing.T) {
	locker, _ := newLocker(t)
	key := testKey()

	err := locker.WithSlotLock(context.Background(), key, func(ctx context.Context) error {
		inner := locker.WithSlotLock(ctx, key, func(context.Context) error {
			t.Fatal("nested holder must not run")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)
}

func TestWithSlotLockPropagatesError(t *testing.T) {
	locker, mr := newLocker(t)
	key := testKey()
	boom := errors.New("boom")

	err := locker.WithSlotLock(context.Background(), key, func(context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(key.String()))
}

func TestReleaseKeepsForeignToken(t *testing.T) {
	locker, mr := newLocker(t)
	key := testKey()

	err := locker.WithSlotLock(context.Background(), key, func(context.Context) error {
		// Simulate TTL expiry and takeover by another process.
		require.NoError(t, mr.Set(key.String(), "someone-else"))
		return nil
	})
	require.NoError(t, err)

	got, err := mr.Get(key.String())
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestNewRedisClientPings(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewRedisClient(context.Background(), config.Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer rdb.Close()

	mr.Close()
	_, err = NewRedisClient(context.Background(), config.Config{RedisAddr: mr.Addr()})
	assert.Error(t, err)
}
