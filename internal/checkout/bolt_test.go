package checkout

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "checkout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func pendingDescriptor(key string) *Descriptor {
	items := []LineItem{
		{Name: "A", UnitPrice: 1000, Quantity: 2},
		{Name: "B", UnitPrice: 500, Quantity: 1},
	}
	return &Descriptor{
		Key:      key,
		UserID:   7,
		Items:    items,
		Total:    Total(items),
		Currency: "vnd",
	}
}

func TestBoltStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestBoltStore(t)

	require.NoError(t, s.Save(ctx, pendingDescriptor("key-1")))

	got, err := s.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, int64(2500), got.Total)
	assert.Len(t, got.Items, 2)

	err = s.Save(ctx, pendingDescriptor("key-1"))
	assert.ErrorIs(t, err, ErrDuplicateKey)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoltStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestBoltStore(t)
	require.NoError(t, s.Save(ctx, pendingDescriptor("key-1")))
	require.NoError(t, s.AttachSession(ctx, "key-1", "cs_test_1"))

	claimed, err := s.Claim(ctx, "key-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, claimed.Status)
	assert.Equal(t, "cs_test_1", claimed.SessionID)
	require.NotNil(t, claimed.ClaimedAt)

	_, err = s.Claim(ctx, "key-1", time.Minute)
	assert.ErrorIs(t, err, ErrNotPending)

	require.NoError(t, s.Release(ctx, "key-1", *claimed.ClaimedAt))
	got, err := s.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.ClaimedAt)

	claimed, err = s.Claim(ctx, "key-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Fulfill(ctx, "key-1", *claimed.ClaimedAt, 42))

	got, err = s.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFulfilled, got.Status)
	require.NotNil(t, got.OrderID)
	assert.Equal(t, uint(42), *got.OrderID)

	_, err = s.Claim(ctx, "key-1", time.Minute)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.ErrorIs(t, s.Expire(ctx, "key-1"), ErrNotPending)
}

func TestBoltStore_LeaseTakeover(t *testing.T) {
	ctx := context.Background()

	t.Run("Stale release keeps the new claim", func(t *testing.T) {
		s := newTestBoltStore(t)
		require.NoError(t, s.Save(ctx, pendingDescriptor("key-1")))

		first, err := s.Claim(ctx, "key-1", 5*time.Millisecond)
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
		second, err := s.Claim(ctx, "key-1", 5*time.Millisecond)
		require.NoError(t, err)

		err = s.Release(ctx, "key-1", *first.ClaimedAt)
		assert.ErrorIs(t, err, ErrClaimLost)

		require.NoError(t, s.Fulfill(ctx, "key-1", *second.ClaimedAt, 42))

		got, err := s.Get(ctx, "key-1")
		require.NoError(t, err)
		assert.Equal(t, StatusFulfilled, got.Status)
		require.NotNil(t, got.OrderID)
		assert.Equal(t, uint(42), *got.OrderID)
	})

	t.Run("Stale fulfill is rejected", func(t *testing.T) {
		s := newTestBoltStore(t)
		require.NoError(t, s.Save(ctx, pendingDescriptor("key-1")))

		first, err := s.Claim(ctx, "key-1", 5*time.Millisecond)
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
		second, err := s.Claim(ctx, "key-1", time.Minute)
		require.NoError(t, err)

		err = s.Fulfill(ctx, "key-1", *first.ClaimedAt, 41)
		assert.ErrorIs(t, err, ErrClaimLost)

		got, err := s.Get(ctx, "key-1")
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, got.Status)
		assert.Nil(t, got.OrderID)
		assert.True(t, got.ClaimedAt.Equal(*second.ClaimedAt))
	})

	t.Run("Release after fulfill", func(t *testing.T) {
		s := newTestBoltStore(t)
		require.NoError(t, s.Save(ctx, pendingDescriptor("key-1")))

		claimed, err := s.Claim(ctx, "key-1", time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.Fulfill(ctx, "key-1", *claimed.ClaimedAt, 42))

		assert.ErrorIs(t, s.Release(ctx, "key-1", *claimed.ClaimedAt), ErrClaimLost)
		assert.ErrorIs(t, s.Release(ctx, "missing", *claimed.ClaimedAt), ErrNotFound)
	})
}

func TestBoltStore_ConcurrentClaim(t *testing.T) {
	ctx := context.Background()
	s := newTestBoltStore(t)
	require.NoError(t, s.Save(ctx, pendingDescriptor("key-1")))

	const workers = 16
	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Claim(ctx, "key-1", time.Minute)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrNotPending):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(workers-1), conflicts.Load())
}

func TestBoltStore_Expire(t *testing.T) {
	ctx := context.Background()
	s := newTestBoltStore(t)

	require.NoError(t, s.Save(ctx, pendingDescriptor("key-1")))
	require.NoError(t, s.Expire(ctx, "key-1"))

	_, err := s.Claim(ctx, "key-1", time.Minute)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.ErrorIs(t, s.Expire(ctx, "missing"), ErrNotFound)
}

func TestBoltStore_ExpirePending(t *testing.T) {
	ctx := context.Background()
	s := newTestBoltStore(t)
	old := time.Now().UTC().Add(-48 * time.Hour)

	stale := pendingDescriptor("stale")
	stale.CreatedAt = old
	require.NoError(t, s.Save(ctx, stale))

	claimed := pendingDescriptor("claimed")
	claimed.CreatedAt = old
	require.NoError(t, s.Save(ctx, claimed))
	_, err := s.Claim(ctx, "claimed", time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, pendingDescriptor("fresh")))

	n, err := s.ExpirePending(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	for key, want := range map[string]Status{
		"stale":   StatusExpired,
		"claimed": StatusProcessing,
		"fresh":   StatusPending,
	} {
		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, key)
	}
}

func TestBoltStore_CanceledContext(t *testing.T) {
	s := newTestBoltStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Save(ctx, pendingDescriptor("key-1")), context.Canceled)
	_, err := s.Claim(ctx, "key-1", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
