package store_test

import (
	"encoding/binary"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/store"
)

func openRW(t *testing.T, path string, header int) *store.Store {
	t.Helper()
	s, err := store.Open(path, store.ReadWrite, header)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestOpenFresh(t *testing.T) {
	s := openRW(t, filepath.Join(t.TempDir(), "samples"), 0)

	require.Equal(t, store.DefaultCapacity, s.Capacity())
	require.Equal(t, 0, s.Len())
	require.NoError(t, s.Check())
	require.Empty(t, s.Pairs())
}

func TestInsertAccumulates(t *testing.T) {
	type op struct {
		key   store.Key
		value store.Value
	}
	ops := []op{{0x1000, 1}, {0x2000, 3}, {0x1000, 4}, {0x3000, 1}, {0x2000, 2}}

	dir := t.TempDir()
	a := openRW(t, filepath.Join(dir, "a"), 0)
	b := openRW(t, filepath.Join(dir, "b"), 0)

	for _, o := range ops {
		require.NoError(t, a.Insert(o.key, o.value))
	}
	for i := len(ops) - 1; i >= 0; i-- {
		require.NoError(t, b.Insert(ops[i].key, ops[i].value))
	}

	want := map[store.Key]store.Value{0x1000: 5, 0x2000: 5, 0x3000: 1}
	require.Equal(t, want, a.Pairs())
	require.Equal(t, want, b.Pairs())
	require.Equal(t, 3, a.Len())

	v, ok := a.Lookup(0x2000)
	require.True(t, ok)
	require.Equal(t, store.Value(5), v)
	_, ok = a.Lookup(0x4000)
	require.False(t, ok)
}

func TestGrowPreservesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples")
	s, err := store.Open(path, store.ReadWrite, 0)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	want := make(map[store.Key]store.Value)
	for i := 0; i < 5000; i++ {
		k := store.Key(rng.Intn(1500) + 1)
		require.NoError(t, s.Insert(k, 1))
		want[k]++
	}

	require.GreaterOrEqual(t, int(s.Capacity()), len(want)+1)
	require.Equal(t, len(want), s.Len())
	require.NoError(t, s.Check())
	require.Equal(t, want, s.Pairs())
	require.NoError(t, s.Sync())
	require.NoError(t, s.Close())

	r, err := store.Open(path, store.ReadOnly, 0)
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Check())
	require.Equal(t, want, r.Pairs())
}

func TestInsertSaturates(t *testing.T) {
	s := openRW(t, filepath.Join(t.TempDir(), "samples"), 0)

	require.NoError(t, s.Insert(42, math.MaxUint32-1))
	require.NoError(t, s.Insert(42, 5))

	v, ok := s.Lookup(42)
	require.True(t, ok)
	require.Equal(t, store.Value(math.MaxUint32), v)
	require.Equal(t, uint64(1), s.Saturated())
}

func TestHeaderSurvivesGrowth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples")
	s, err := store.Open(path, store.ReadWrite, 64)
	require.NoError(t, err)

	copy(s.Header(), []byte("header bytes"))
	for k := store.Key(1); k <= 300; k++ {
		require.NoError(t, s.Insert(k, 2))
	}
	require.Equal(t, store.NodeIndex(512), s.Capacity())
	require.NoError(t, s.Close())

	r, err := store.Open(path, store.ReadOnly, 64)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, []byte("header bytes"), r.Header()[:12])
	require.Equal(t, 300, r.Len())
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	_, err := store.Open(empty, store.ReadOnly, 0)
	require.True(t, fault.Is(err, fault.Corruption))
	require.ErrorIs(t, err, store.ErrEmptyFile)

	_, err = store.Open(filepath.Join(dir, "missing"), store.ReadOnly, 0)
	require.True(t, fault.Is(err, fault.Resource))

	short := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(short, make([]byte, 10), 0o644))
	_, err = store.Open(short, store.ReadOnly, 64)
	require.ErrorIs(t, err, store.ErrShortFile)

	// one extra node's worth of bytes makes the descriptor disagree.
	mismatch := filepath.Join(dir, "mismatch")
	s, err := store.Open(mismatch, store.ReadWrite, 0)
	require.NoError(t, err)
	require.NoError(t, s.Insert(1, 1))
	require.NoError(t, s.Close())

	f, err := os.OpenFile(mismatch, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write(make([]byte, 20))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = store.Open(mismatch, store.ReadOnly, 0)
	require.True(t, fault.Is(err, fault.Corruption))
	require.ErrorIs(t, err, store.ErrSizeMismatch)
}

func TestReaderFollowsGrowth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples")
	w := openRW(t, path, 0)
	for k := store.Key(1); k < 100; k++ {
		require.NoError(t, w.Insert(k, 1))
	}

	r, err := store.Open(path, store.ReadOnly, 0)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, store.DefaultCapacity, r.Capacity())

	for k := store.Key(100); k < 1000; k++ {
		require.NoError(t, w.Insert(k, 1))
	}
	require.Greater(t, w.Capacity(), store.DefaultCapacity)

	pairs := r.Pairs()
	require.Len(t, pairs, 999)
	require.Equal(t, w.Capacity(), r.Capacity())

	v, ok := r.Lookup(500)
	require.True(t, ok)
	require.Equal(t, store.Value(1), v)
	require.NoError(t, r.Check())
}

func TestOpenRejectsBadSize(t *testing.T) {
	tests := []struct {
		name string
		size uint32
	}{
		{name: "zero", size: 0},
		{name: "beyond capacity", size: 100000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "samples")
			s, err := store.Open(path, store.ReadWrite, 16)
			require.NoError(t, err)
			require.NoError(t, s.Insert(7, 1))
			require.NoError(t, s.Close())

			f, err := os.OpenFile(path, os.O_WRONLY, 0)
			require.NoError(t, err)
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], tt.size)
			// current size follows the capacity in the descriptor.
			_, err = f.WriteAt(b[:], 16+4)
			require.NoError(t, err)
			require.NoError(t, f.Close())

			for _, mode := range []store.Mode{store.ReadOnly, store.ReadWrite} {
				_, err = store.Open(path, mode, 16)
				require.True(t, fault.Is(err, fault.Corruption))
				require.ErrorIs(t, err, store.ErrBadSize)
			}
		})
	}
}

func TestInsertRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples")
	s := openRW(t, path, 0)
	require.NoError(t, s.Insert(7, 1))

	err := s.Insert(0, 1)
	require.True(t, fault.Is(err, fault.Usage))
	require.ErrorIs(t, err, store.ErrZeroKey)

	r, err := store.Open(path, store.ReadOnly, 0)
	require.NoError(t, err)
	defer r.Close()
	err = r.Insert(7, 1)
	require.ErrorIs(t, err, store.ErrReadOnly)
	require.NoError(t, r.Err())
}

func TestEdgeKey(t *testing.T) {
	k := store.EdgeKey(0xdeadbeef, 0x1234)
	require.Equal(t, store.Key(0xdeadbeef00001234), k)

	from, to := store.SplitEdgeKey(k)
	require.Equal(t, uint32(0xdeadbeef), from)
	require.Equal(t, uint32(0x1234), to)
}
