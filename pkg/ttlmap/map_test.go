package ttlmap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lbflow/sessioncore/pkg/allocator"
)

func newTestMap(t *testing.T, initialEntries uint64) *TTLMap[int, int] {
	t.Helper()

	m, err := New[int, int](allocator.NewHeap(0), Config{InitialEntries: initialEntries})
	require.NoError(t, err)
	t.Cleanup(m.Free)

	return m
}

func TestTTLMap_BasicInsertAndRefresh(t *testing.T) {
	t.Parallel()

	m := newTestMap(t, 256)

	status := m.Upsert(0xDEAD, 1, 100, 30)
	require.Equal(t, StatusInserted, status.Code())

	v, status := m.Lookup(0xDEAD, 120)
	require.Equal(t, StatusFound, status.Code())
	require.Equal(t, 1, v)

	status = m.Upsert(0xDEAD, 2, 125, 30)
	require.Equal(t, StatusFound, status.Code())

	v, status = m.Lookup(0xDEAD, 154)
	require.Equal(t, StatusFound, status.Code())
	require.Equal(t, 2, v)

	_, status = m.Lookup(0xDEAD, 156)
	require.Equal(t, StatusFailed, status, "deadline 155 must be strictly expired at t=156")
}

func TestTTLMap_CollisionProbing(t *testing.T) {
	t.Parallel()

	m := newTestMap(t, 16) // -> 1 bucket of 16 slots; every key below collides on it

	status1 := m.Upsert(1, 11, 0, 1000)
	status2 := m.Upsert(2, 22, 0, 1000)
	require.Equal(t, StatusInserted, status1.Code())
	require.Equal(t, StatusInserted, status2.Code())

	v1, s1 := m.Lookup(1, 0)
	v2, s2 := m.Lookup(2, 0)
	require.Equal(t, StatusFound, s1.Code())
	require.Equal(t, StatusFound, s2.Code())
	require.Equal(t, 11, v1)
	require.Equal(t, 22, v2)

	require.True(t, m.Delete(1, 0))

	_, s1 = m.Lookup(1, 0)
	require.Equal(t, StatusFailed, s1)

	v2, s2 = m.Lookup(2, 0)
	require.Equal(t, StatusFound, s2.Code())
	require.Equal(t, 22, v2)
}

func TestTTLMap_BucketOverflowAndReclaim(t *testing.T) {
	t.Parallel()

	// One bucket's worth of capacity: every key below collides on the
	// same (and only) bucket by construction.
	m := newTestMap(t, bucketSlots)

	for i := range bucketSlots {
		status := m.Upsert(i, i, 0, 1000)
		require.Equal(t, StatusInserted, status.Code())
	}

	status := m.Upsert(bucketSlots, 999, 0, 1000)
	require.Equal(t, StatusFailed, status)

	status = m.Upsert(bucketSlots, 999, 2000, 1000)
	require.Equal(t, StatusReplaced, status.Code())
}

func TestTTLMap_Capacity(t *testing.T) {
	t.Parallel()

	m := newTestMap(t, 256)
	require.Equal(t, uint64(256), m.Capacity())

	m.Free()
	require.Zero(t, m.Capacity())
}

func TestTTLMap_EmptySentinel_AfterAllocationFailure(t *testing.T) {
	t.Parallel()

	tiny := allocator.NewHeap(1) // smaller than a single Bucket[int,int]

	m, err := New[int, int](tiny, Config{InitialEntries: 4096 * bucketSlots})
	require.Error(t, err)
	require.Zero(t, m.Capacity())

	_, status := m.Lookup(1, 0)
	require.Equal(t, StatusFailed, status)
}

func TestTTLMap_Iterate_VisitsOnlyLiveEntries(t *testing.T) {
	t.Parallel()

	m := newTestMap(t, 256)

	for i := range 10 {
		timeout := uint32(100)
		if i%2 == 0 {
			timeout = 1
		}

		status := m.Upsert(i, i*10, 0, timeout)
		require.Equal(t, StatusInserted, status.Code())
	}

	seen := map[int]int{}
	m.Iterate(5, func(key, value int) bool {
		seen[key] = value
		return true
	})

	require.Len(t, seen, 5, "only the odd keys (timeout 100) should still be live at t=5")

	for key, value := range seen {
		require.Equal(t, 1, key%2)
		require.Equal(t, key*10, value)
	}
}
