package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/terminal-planner/pkg/errors"
)

func newMiniClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestMutex_LockUnlock(t *testing.T) {
	mr, client := newMiniClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())
	ctx := context.Background()

	lock := factory.NewMutex("scenario-a", WithLockTTL(time.Second))
	require.NoError(t, lock.Lock(ctx))
	assert.True(t, mr.Exists("tplanner:lock:mutex:scenario-a"))

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, mr.Exists("tplanner:lock:mutex:scenario-a"))
}

func TestMutex_Contention(t *testing.T) {
	_, client := newMiniClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())
	ctx := context.Background()

	first := factory.NewMutex("scenario-a", WithRetryCount(1), WithRetryDelay(10*time.Millisecond))
	second := factory.NewMutex("scenario-a", WithRetryCount(2), WithRetryDelay(10*time.Millisecond))

	require.NoError(t, first.Lock(ctx))
	err := second.Lock(ctx)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeConflict))

	ok, err := second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Unlock(ctx))
	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Unlock(ctx))
}

func TestMutex_UnlockNotHeld(t *testing.T) {
	_, client := newMiniClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())

	lock := factory.NewMutex("scenario-a")
	err := lock.Unlock(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeConflict))
}

func TestMutex_ExtendAndTTL(t *testing.T) {
	mr, client := newMiniClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())
	ctx := context.Background()

	lock := factory.NewMutex("scenario-a", WithLockTTL(time.Second))
	require.NoError(t, lock.Lock(ctx))

	ok, err := lock.Extend(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Second, mr.TTL("tplanner:lock:mutex:scenario-a"))

	ttl, err := lock.TTL(ctx)
	require.NoError(t, err)
	assert.Greater(t, ttl, 5*time.Second)
}

func TestMutex_ContextCancelledWhileWaiting(t *testing.T) {
	_, client := newMiniClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())

	holder := factory.NewMutex("scenario-a")
	require.NoError(t, holder.Lock(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	waiter := factory.NewMutex("scenario-a", WithRetryCount(100), WithRetryDelay(10*time.Millisecond))
	assert.ErrorIs(t, waiter.Lock(ctx), context.DeadlineExceeded)
}

func TestMutex_WatchdogStartsAndStops(t *testing.T) {
	mr, client := newMiniClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())
	ctx := context.Background()

	lock := factory.NewMutex("scenario-a", WithLockTTL(time.Second), WithWatchdog(true), WithWatchdogInterval(10*time.Millisecond))
	require.NoError(t, lock.Lock(ctx))
	m := lock.(*redisMutex)
	m.mu.Lock()
	running := m.watchdogCancel != nil
	m.mu.Unlock()
	assert.True(t, running)

	require.NoError(t, lock.Unlock(ctx))
	assert.Nil(t, m.watchdogCancel)
	assert.False(t, mr.Exists("tplanner:lock:mutex:scenario-a"))
}

func TestRunLocker_Acquire(t *testing.T) {
	mr, client := newMiniClient(t)
	locker := NewRunLocker(NewLockFactory(client, logging.NewNopLogger()),
		WithRetryCount(1), WithRetryDelay(5*time.Millisecond))
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "fp-123")
	require.NoError(t, err)
	assert.True(t, mr.Exists("tplanner:lock:mutex:run:fp-123"))

	_, err = locker.Acquire(ctx, "fp-123")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeConflict))

	other, err := locker.Acquire(ctx, "fp-456")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("tplanner:lock:mutex:run:fp-123"))
}
