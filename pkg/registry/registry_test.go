package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lbflow/sessioncore/pkg/allocator"
	"github.com/lbflow/sessioncore/pkg/registry"
)

type serviceIdentifier struct {
	vip  [4]byte
	port uint16
}

type service struct {
	id     serviceIdentifier
	weight uint32
}

func serviceID(s *service) serviceIdentifier { return s.id }

func newTestTable(t *testing.T) *registry.Table[serviceIdentifier, service] {
	t.Helper()
	return registry.New[serviceIdentifier, service](allocator.NewHeap(0), serviceID)
}

func TestTable_FindOrInsert_Idempotent(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)

	id := serviceIdentifier{vip: [4]byte{10, 0, 0, 1}, port: 80}

	rec1, idx1, err := tbl.FindOrInsert(id, func(s *service, id serviceIdentifier) {
		s.id = id
		s.weight = 5
	})
	require.NoError(t, err)

	rec2, idx2, err := tbl.FindOrInsert(id, func(s *service, id serviceIdentifier) {
		s.id = id
		s.weight = 999 // must be ignored: id already present
	})
	require.NoError(t, err)

	require.Equal(t, idx1, idx2)
	require.Same(t, rec1, rec2)
	require.Equal(t, uint32(5), rec2.weight, "a second FindOrInsert for the same id must not overwrite the existing record")
}

func TestTable_FindOrInsert_NDistinctInserts(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)

	const n = 300 // forces at least one rehash past the 3/4 load factor on a 16-bucket table

	ids := make([]serviceIdentifier, n)

	for i := range n {
		id := serviceIdentifier{vip: [4]byte{10, 0, byte(i >> 8), byte(i)}, port: uint16(i)}
		ids[i] = id

		_, idx, err := tbl.FindOrInsert(id, func(s *service, id serviceIdentifier) {
			s.id = id
			s.weight = uint32(i)
		})
		require.NoError(t, err)
		require.Equal(t, i, idx)
	}

	require.Equal(t, n, tbl.Size())

	for i, id := range ids {
		idx := tbl.LookupByID(id)
		require.Equal(t, i, idx)
		require.Equal(t, uint32(i), tbl.At(idx).weight)
	}
}

func TestTable_Lookup_AbsentIdentifier(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)

	require.Equal(t, -1, tbl.Lookup(serviceIdentifier{port: 1}))
}
