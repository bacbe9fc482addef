package ttlmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBucket_GetOrInsert_InsertsThenRefreshesOnHit(t *testing.T) {
	t.Parallel()

	var b Bucket[int, int]

	valuePtr, status := b.GetOrInsert(0xDEAD, 1, 100, 30, 0)
	require.Equal(t, StatusInserted, status.Code())
	require.Equal(t, 1, *valuePtr)
	b.Unlock()

	v, status := b.LookupCopy(0xDEAD, 120, 0)
	require.Equal(t, StatusFound, status.Code())
	require.Equal(t, 1, v)

	valuePtr, status = b.GetOrInsert(0xDEAD, 2, 125, 30, 0)
	require.Equal(t, StatusFound, status.Code())
	require.Equal(t, 2, *valuePtr)
	b.Unlock()

	_, status = b.LookupCopy(0xDEAD, 156, 0)
	require.Equal(t, StatusFailed, status.Code(), "deadline 155 must be expired strictly at t=156")
}

func TestBucket_DeadlineEqualToNow_IsExpired(t *testing.T) {
	t.Parallel()

	var b Bucket[int, int]

	_, status := b.GetOrInsert(7, 1, 0, 10, 0)
	require.Equal(t, StatusInserted, status.Code())
	b.Unlock()

	_, status = b.LookupCopy(7, 10, 0)
	require.Equal(t, StatusFailed, status.Code(), "deadline == now must be treated as expired")

	_, status = b.LookupCopy(7, 9, 0)
	require.Equal(t, StatusFound, status.Code())
}

func TestBucket_Overflow_SeventeenthDistinctKeyFails(t *testing.T) {
	t.Parallel()

	var b Bucket[int, int]

	for i := range bucketSlots {
		_, status := b.GetOrInsert(i, i, 0, 1000, 0)
		require.Equal(t, StatusInserted, status.Code())
		b.Unlock()
	}

	_, status := b.GetOrInsert(bucketSlots, 999, 0, 1000, 0)
	require.Equal(t, StatusFailed, status, "17th distinct key must fail when all slots are live")

	// Advancing past every slot's deadline makes room again; the
	// previously-failed key is now either INSERTED (if the reclaimed
	// slot was still at deadline 0, which cannot happen here since all
	// were written) or REPLACED.
	_, status = b.GetOrInsert(bucketSlots, 999, 2000, 1000, 0)
	require.Equal(t, StatusReplaced, status.Code())
	b.Unlock()
}

func TestBucket_Iterate_VisitsOnlyLiveSlots(t *testing.T) {
	t.Parallel()

	var b Bucket[int, int]

	_, s1 := b.GetOrInsert(1, 10, 0, 100, 0)
	require.Equal(t, StatusInserted, s1.Code())
	b.Unlock()

	_, s2 := b.GetOrInsert(2, 20, 0, 1, 0)
	require.Equal(t, StatusInserted, s2.Code())
	b.Unlock()

	seen := map[int]int{}
	stopped := b.Iterate(5, func(key, value int, _ uint32) bool {
		seen[key] = value
		return true
	})

	require.False(t, stopped)
	require.Equal(t, map[int]int{1: 10}, seen, "key 2 expired at t=5 and must not be visited")
}

func TestBucket_Iterate_StopsEarly(t *testing.T) {
	t.Parallel()

	var b Bucket[int, int]

	for i := range 4 {
		_, status := b.GetOrInsert(i, i, 0, 100, 0)
		require.Equal(t, StatusInserted, status.Code())
		b.Unlock()
	}

	visited := 0
	stopped := b.Iterate(0, func(key, value int, _ uint32) bool {
		visited++
		return false
	})

	require.True(t, stopped)
	require.Equal(t, 1, visited)
}

func TestBucket_InvalidateByValuePtr_RemovesEntry(t *testing.T) {
	t.Parallel()

	var b Bucket[int, int]

	valuePtr, status := b.GetOrInsert(9, 42, 0, 100, 0)
	require.Equal(t, StatusInserted, status.Code())
	b.InvalidateByValuePtr(valuePtr)
	b.Unlock()

	_, status = b.LookupCopy(9, 0, 0)
	require.Equal(t, StatusFailed, status, "invalidated entry must not be found")
}

func TestBucket_HintRotatesProbeOrigin(t *testing.T) {
	t.Parallel()

	var b Bucket[int, int]

	_, status := b.GetOrInsert(1, 1, 0, 100, 5)
	require.Equal(t, StatusInserted, status.Code())
	require.Equal(t, 5, status.Slot(), "first reclaimable slot with hint 5 must be slot 5")
	b.Unlock()
}
