package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*RedisLocker, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	locker := NewRedisLocker(db)
	locker.newToken = func() string { return "token-1" }
	return locker, mock
}

func TestRedisLockerAcquireAndRelease(t *testing.T) {
	locker, mock := newTestLocker(t)
	ctx := context.Background()

	mock.ExpectSetNX("refundsaga:lock:refund:r1", "token-1", 30*time.Second).SetVal(true)
	mock.ExpectEval(luaReleaseLock, []string{"refundsaga:lock:refund:r1"}, "token-1").SetVal(int64(1))

	unlock, err := locker.TryLock(ctx, "refundsaga:lock:refund:r1", 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLockerBusy(t *testing.T) {
	locker, mock := newTestLocker(t)

	mock.ExpectSetNX("k", "token-1", time.Second).SetVal(false)

	_, err := locker.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLockerErrors(t *testing.T) {
	locker, mock := newTestLocker(t)
	ctx := context.Background()

	mock.ExpectSetNX("k", "token-1", time.Second).SetErr(errors.New("connection refused"))
	_, err := locker.TryLock(ctx, "k", time.Second)
	assert.ErrorContains(t, err, "connection refused")
	assert.NotErrorIs(t, err, ErrNotAcquired)

	mock.ExpectSetNX("k", "token-1", time.Second).SetVal(true)
	mock.ExpectEval(luaReleaseLock, []string{"k"}, "token-1").SetVal(int64(0))
	unlock, err := locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.ErrorContains(t, unlock(ctx), "expired")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	locker := NewLocalLocker()
	locker.now = func() time.Time { return clock }

	unlock, err := locker.TryLock(ctx, "a", time.Minute)
	require.NoError(t, err)

	_, err = locker.TryLock(ctx, "a", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	_, err = locker.TryLock(ctx, "b", time.Minute)
	assert.NoError(t, err, "different keys do not contend")

	require.NoError(t, unlock(ctx))
	_, err = locker.TryLock(ctx, "a", time.Minute)
	assert.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	_, err = locker.TryLock(ctx, "b", time.Minute)
	assert.NoError(t, err, "expired leases can be taken over")
}
