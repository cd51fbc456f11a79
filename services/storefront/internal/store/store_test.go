package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBackend(t *testing.T, ttl time.Duration) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	backend, err := NewRedisBackend(client, "test:slot", ttl)
	require.NoError(t, err)
	return backend, mr
}

func TestSlotRoundTrip(t *testing.T) {
	redisBackend, _ := newRedisBackend(t, time.Hour)
	backends := map[string]Backend{
		"redis":  redisBackend,
		"memory": NewMemoryBackend(time.Hour),
	}
	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			slot := NewSlot(backend, "slot-1")

			token, err := slot.Token(ctx)
			require.NoError(t, err)
			assert.Empty(t, token)

			require.NoError(t, slot.SetToken(ctx, "tok"))
			token, err = slot.Token(ctx)
			require.NoError(t, err)
			assert.Equal(t, "tok", token)

			other := NewSlot(backend, "slot-2")
			token, err = other.Token(ctx)
			require.NoError(t, err)
			assert.Empty(t, token, "slots must not share tokens")

			require.NoError(t, slot.ClearToken(ctx))
			token, err = slot.Token(ctx)
			require.NoError(t, err)
			assert.Empty(t, token)
		})
	}
}

func TestSlotWithoutID(t *testing.T) {
	slot := NewSlot(NewMemoryBackend(time.Hour), " ")
	token, err := slot.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.ErrorIs(t, slot.SetToken(context.Background(), "tok"), ErrNoSlot)
	assert.NoError(t, slot.ClearToken(context.Background()))
}

func TestRedisBackendExpires(t *testing.T) {
	backend, mr := newRedisBackend(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, "s", "tok"))
	assert.True(t, mr.Exists("test:slot:s"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := backend.Get(ctx, "s")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisBackendReadRefreshesTTL(t *testing.T) {
	backend, mr := newRedisBackend(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, "s", "tok"))

	mr.FastForward(40 * time.Second)
	_, ok, err := backend.Get(ctx, "s")
	require.NoError(t, err)
	require.True(t, ok)
	mr.FastForward(40 * time.Second)

	token, ok, err := backend.Get(ctx, "s")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", token)
}

func TestRedisBackendSurfacesErrors(t *testing.T) {
	backend, mr := newRedisBackend(t, time.Minute)
	mr.Close()
	_, _, err := backend.Get(context.Background(), "s")
	assert.Error(t, err)
}

func TestMemoryBackendExpires(t *testing.T) {
	backend := NewMemoryBackend(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "s", "tok"))
	now = now.Add(2 * time.Minute)
	_, ok, err := backend.Get(ctx, "s")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, backend.Len())
}

func TestMemoryBackendSweepDropsAbandonedSlots(t *testing.T) {
	backend := NewMemoryBackend(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "old", "tok-1"))
	now = now.Add(45 * time.Second)
	require.NoError(t, backend.Set(ctx, "fresh", "tok-2"))
	now = now.Add(30 * time.Second)

	assert.Equal(t, 1, backend.Sweep())
	assert.Equal(t, 1, backend.Len())
	token, ok, err := backend.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-2", token)
}

func TestCookieSignerRoundTrip(t *testing.T) {
	signer, err := NewCookieSigner("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)

	raw, err := signer.Sign("slot-1")
	require.NoError(t, err)
	id, expires, err := signer.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "slot-1", id)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 2*time.Second)
}

func TestCookieSignerRenewsPastHalfLife(t *testing.T) {
	signer, err := NewCookieSigner("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	issued := time.Now()
	signer.now = func() time.Time { return issued }
	raw, err := signer.Sign("slot-1")
	require.NoError(t, err)

	signer.now = func() time.Time { return issued.Add(10 * time.Minute) }
	_, expires, err := signer.Verify(raw)
	require.NoError(t, err)
	assert.False(t, signer.Renew(expires))

	signer.now = func() time.Time { return issued.Add(40 * time.Minute) }
	_, expires, err = signer.Verify(raw)
	require.NoError(t, err)
	assert.True(t, signer.Renew(expires))
}

func TestCookieSignerRejectsTamperedOrForeign(t *testing.T) {
	signer, err := NewCookieSigner("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	other, err := NewCookieSigner("ffffffffffffffffffffffffffffffff", time.Hour)
	require.NoError(t, err)

	raw, err := signer.Sign("slot-1")
	require.NoError(t, err)
	foreign, err := other.Sign("slot-1")
	require.NoError(t, err)

	_, _, err = signer.Verify(raw + "x")
	assert.Error(t, err)
	_, _, err = signer.Verify(foreign)
	assert.Error(t, err)
	_, _, err = signer.Verify("")
	assert.Error(t, err)
}

func TestCookieSignerRejectsExpired(t *testing.T) {
	signer, err := NewCookieSigner("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	issued := time.Now()
	signer.now = func() time.Time { return issued }
	raw, err := signer.Sign("slot-1")
	require.NoError(t, err)

	signer.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, _, err = signer.Verify(raw)
	assert.Error(t, err)
}

func TestCookieSignerRequiresLongSecret(t *testing.T) {
	_, err := NewCookieSigner("short", time.Hour)
	assert.Error(t, err)
}
