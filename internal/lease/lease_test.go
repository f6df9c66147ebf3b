package lease

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/urgentsync/pkg/cerr"
	"github.com/kazz187/urgentsync/pkg/storage"
)

func newStorage(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestTryAcquireExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newStorage(t), "C0CHAN", time.Minute)

	l, err := m.TryAcquire(ctx, "resync")
	require.NoError(t, err)

	_, err = m.TryAcquire(ctx, "backfill")
	assert.ErrorIs(t, err, ErrHeld)

	rec, err := m.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, l.Holder(), rec.Holder)
	assert.Equal(t, "resync", rec.Owner)

	require.NoError(t, l.Release(ctx))
	rec, err = m.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	l2, err := m.TryAcquire(ctx, "backfill")
	require.NoError(t, err)
	assert.NotEqual(t, l.Holder(), l2.Holder())
	require.NoError(t, l2.Release(ctx))
}

func TestStoredLeaseExcludesOtherProcess(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	a := NewManager(s, "C0CHAN", time.Minute)
	b := NewManager(s, "C0CHAN", time.Minute)

	l, err := a.TryAcquire(ctx, "resync")
	require.NoError(t, err)

	_, err = b.TryAcquire(ctx, "resync")
	assert.ErrorIs(t, err, ErrHeld)

	require.NoError(t, l.Release(ctx))
	l, err = b.TryAcquire(ctx, "resync")
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))
}

func TestExpiredLeaseIsTakenOver(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	a := NewManager(s, "C0CHAN", time.Minute, WithClock(clock))
	b := NewManager(s, "C0CHAN", time.Minute, WithClock(clock))

	stale, err := a.TryAcquire(ctx, "crashed")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	fresh, err := b.TryAcquire(ctx, "resync")
	require.NoError(t, err)

	// Releasing the stale lease must not remove the new holder's record.
	require.NoError(t, stale.Release(ctx))
	rec, err := b.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, fresh.Holder(), rec.Holder)
	require.NoError(t, fresh.Release(ctx))
}

func TestAcquireWaitsForRelease(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newStorage(t), "C0CHAN", time.Minute, WithPollInterval(5*time.Millisecond))

	l, err := m.TryAcquire(ctx, "first")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		assert.NoError(t, l.Release(ctx))
	}()

	l2, err := m.Acquire(ctx, "second", time.Second)
	require.NoError(t, err)
	require.NoError(t, l2.Release(ctx))
	wg.Wait()
}

func TestAcquireTimesOutAsAborted(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newStorage(t), "C0CHAN", time.Minute, WithPollInterval(5*time.Millisecond))

	l, err := m.TryAcquire(ctx, "first")
	require.NoError(t, err)
	defer func() { _ = l.Release(ctx) }()

	_, err = m.Acquire(ctx, "second", 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.Aborted))
	assert.True(t, errors.Is(err, ErrHeld))
}

type brokenStorage struct{ storage.Storage }

func (brokenStorage) Read(context.Context, string) ([]byte, error) {
	return nil, errors.New("bucket unreachable")
}

func TestStorageFailureIsUnavailable(t *testing.T) {
	ctx := context.Background()
	m := NewManager(brokenStorage{}, "C0CHAN", time.Minute)

	_, err := m.TryAcquire(ctx, "resync")
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.Unavailable))
	assert.NotErrorIs(t, err, ErrHeld)

	// The in-process slot must be free again after a failed claim.
	_, err = m.TryAcquire(ctx, "resync")
	assert.True(t, cerr.IsCode(err, cerr.Unavailable))
}

func TestExtendKeepsLeasePastOriginalExpiry(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	now := start
	clock := func() time.Time { return now }
	a := NewManager(s, "C0CHAN", time.Minute, WithClock(clock))
	b := NewManager(s, "C0CHAN", time.Minute, WithClock(clock))

	l, err := a.TryAcquire(ctx, "resync")
	require.NoError(t, err)

	now = start.Add(50 * time.Second)
	require.NoError(t, l.Extend(ctx))

	now = start.Add(100 * time.Second)
	_, err = b.TryAcquire(ctx, "cleanup")
	assert.ErrorIs(t, err, ErrHeld)

	rec, err := a.Current(ctx)
	require.NoError(t, err)
	assert.True(t, rec.ExpiresAt.Equal(start.Add(50*time.Second+time.Minute)))
	assert.True(t, rec.AcquiredAt.Equal(start))
	require.NoError(t, l.Release(ctx))
}

func TestKeepAliveCancelsRunWhenTakenOver(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	a := NewManager(s, "C0CHAN", time.Minute, WithRenewInterval(50*time.Millisecond))
	// b lives two minutes ahead, so a's record already looks expired to it.
	b := NewManager(s, "C0CHAN", time.Minute,
		WithClock(func() time.Time { return time.Now().Add(2 * time.Minute) }),
		WithPollInterval(time.Millisecond),
	)

	l, err := a.TryAcquire(ctx, "resync")
	require.NoError(t, err)
	runCtx := l.KeepAlive(ctx)

	// The takeover lands before a's first renewal.
	other, err := b.Acquire(ctx, "resync", time.Second)
	require.NoError(t, err)

	select {
	case <-runCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("run was not cancelled after takeover")
	}
	cause := context.Cause(runCtx)
	assert.ErrorIs(t, cause, ErrLost)
	assert.True(t, cerr.IsCode(cause, cerr.Aborted))

	require.NoError(t, l.Release(ctx))
	rec, err := b.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, other.Holder(), rec.Holder)
	require.NoError(t, other.Release(ctx))
}

func TestReleaseStopsKeepAlive(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newStorage(t), "C0CHAN", time.Minute, WithRenewInterval(time.Millisecond))

	l, err := m.TryAcquire(ctx, "resync")
	require.NoError(t, err)
	runCtx := l.KeepAlive(ctx)
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, l.Release(ctx))

	// No renewal may write the record back after it was removed.
	time.Sleep(10 * time.Millisecond)
	rec, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NotErrorIs(t, context.Cause(runCtx), ErrLost)
	assert.Error(t, runCtx.Err())
}
