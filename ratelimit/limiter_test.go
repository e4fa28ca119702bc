package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func nanoTick(t time.Time) int64 { return t.UnixNano() }

func TestTryAcquireWithinCapacitySucceeds(t *testing.T) {
	l := New(map[string]Rule{"create_link": {Capacity: 3, Window: time.Minute}}, nanoTick)
	now := time.Now()

	for i := uint64(1); i <= 3; i++ {
		res, err := l.TryAcquire("alice", "create_link", now, 1)
		require.NoError(t, err)
		require.Equal(t, i, res.Count)
	}

	_, err := l.TryAcquire("alice", "create_link", now, 1)
	require.Error(t, err)
	denied, ok := err.(*DeniedError)
	require.True(t, ok)
	require.Equal(t, InsufficientCapacity, denied.Kind)
}

func TestTryAcquireBeyondCapacityRejectsImmediately(t *testing.T) {
	l := New(map[string]Rule{"create_link": {Capacity: 3, Window: time.Minute}}, nanoTick)
	_, err := l.TryAcquire("alice", "create_link", time.Now(), 10)
	denied, ok := err.(*DeniedError)
	require.True(t, ok)
	require.Equal(t, BeyondCapacity, denied.Kind)
}

func TestWindowResetsAfterExpiry(t *testing.T) {
	l := New(map[string]Rule{"create_link": {Capacity: 1, Window: time.Minute}}, nanoTick)
	// Windows are aligned to multiples of the window length, so start at
	// a window boundary: base+30s is then still inside the first window.
	base := time.Now().Truncate(time.Minute)

	_, err := l.TryAcquire("alice", "create_link", base, 1)
	require.NoError(t, err)

	_, err = l.TryAcquire("alice", "create_link", base.Add(30*time.Second), 1)
	require.Error(t, err)

	res, err := l.TryAcquire("alice", "create_link", base.Add(61*time.Second), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.Count)
}

func TestDifferentIdentifiersDoNotShareQuota(t *testing.T) {
	l := New(map[string]Rule{"create_link": {Capacity: 1, Window: time.Minute}}, nanoTick)
	now := time.Now()

	_, err := l.TryAcquire("alice", "create_link", now, 1)
	require.NoError(t, err)
	_, err = l.TryAcquire("bob", "create_link", now, 1)
	require.NoError(t, err)
}

func TestUnconfiguredMethodHasNoQuota(t *testing.T) {
	l := New(map[string]Rule{}, nanoTick)
	res, err := l.TryAcquire("alice", "unknown_method", time.Now(), 100)
	require.NoError(t, err)
	require.Equal(t, uint64(0), res.Capacity)
}

func TestCleanupKeepsRecentlyTouchedEntry(t *testing.T) {
	l := New(map[string]Rule{"create_link": {Capacity: 1, Window: time.Second}}, nanoTick,
		WithDeleteThreshold[int64](time.Minute))
	now := time.Now()
	_, err := l.TryAcquire("alice", "create_link", now, 1)
	require.NoError(t, err)

	require.Len(t, l.entries, 1)
	l.cleanup()
	require.Len(t, l.entries, 1, "entry touched just now should survive a cleanup pass")
}
