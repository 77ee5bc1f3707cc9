package bptree

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dacapoday/glass"
	"github.com/dacapoday/glass/block"
	"github.com/dacapoday/glass/mem"
)

type storeOption struct{}

func (storeOption) MagicCode() [4]byte       { return [4]byte{'b', 't', 'r', 'e'} }
func (storeOption) ReadOnly() bool           { return false }
func (storeOption) RetainCheckpoints() uint8 { return 0 }
func (storeOption) BlockSize() int           { return 2048 }

func newStore(t testing.TB) *block.Store[*mem.File] {
	t.Helper()
	store := new(block.Store[*mem.File])
	_, ckpt, err := store.Load(new(mem.File), storeOption{})
	require.NoError(t, err)
	ckpt.Release()
	t.Cleanup(func() { store.Close() })
	return store
}

func key(i int) []byte {
	return fmt.Appendf(nil, "key-%06d", i)
}

func value(i int) []byte {
	// every 97th value spills to overflow pages
	if i%97 == 0 {
		return bytes.Repeat([]byte{byte(i)}, 3000+i%500)
	}
	return fmt.Appendf(nil, "val-%d", i)
}

func puts(ids []int) []Change {
	slices.Sort(ids)
	changes := make([]Change, 0, len(ids))
	for _, i := range ids {
		changes = append(changes, Change{Key: key(i), Val: value(i)})
	}
	return changes
}

func collect[B ReadOnly](t *testing.T, block B, root Root) (keys [][]byte) {
	t.Helper()
	var reader Reader[B]
	reader.Load(block, root)
	defer reader.Close()
	for reader.Next() {
		keys = append(keys, slices.Clone(reader.Key()))
	}
	require.NoError(t, reader.Error())
	require.True(t, reader.Exhausted())
	return
}

func TestWriteIterate(t *testing.T) {
	store := newStore(t)

	ids := rand.Perm(3000)
	var root Root
	total := 0
	for batch := range slices.Chunk(ids, 700) {
		var delta int
		var err error
		root, delta, err = Write(store, root, puts(slices.Clone(batch)))
		require.NoError(t, err)
		total += delta
	}
	require.Equal(t, 3000, total)
	require.Greater(t, root.High, uint8(0))

	keys := collect(t, store, root)
	require.Len(t, keys, 3000)
	for i, k := range keys {
		require.Equal(t, key(i), k)
	}

	count, err := Check(context.Background(), store, root)
	require.NoError(t, err)
	require.EqualValues(t, 3000, count)

	for _, i := range []int{0, 1, 97, 1500, 2999} {
		val, found, err := Get(store, root, nil, key(i))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, value(i), val)
	}
	_, found, err := Get(store, root, nil, []byte("missing"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestReverse(t *testing.T) {
	store := newStore(t)
	root, _, err := Write(store, Root{}, puts(rand.Perm(1000)))
	require.NoError(t, err)

	var reader Reader[*block.Store[*mem.File]]
	reader.Load(store, root)
	defer reader.Close()

	require.True(t, reader.SeekLast())
	for i := 999; i >= 0; i-- {
		require.True(t, reader.Valid())
		require.Equal(t, key(i), reader.Key())
		require.Equal(t, value(i), reader.Val())
		reader.Prev()
	}
	require.False(t, reader.Valid())
	require.NoError(t, reader.Error())

	// before the first entry Next starts over
	require.True(t, reader.Next())
	require.Equal(t, key(0), reader.Key())
}

func TestSeek(t *testing.T) {
	store := newStore(t)
	changes := []Change{
		{Key: []byte("b"), Val: []byte("1")},
		{Key: []byte("d"), Val: []byte("2")},
		{Key: []byte("f"), Val: []byte("3")},
	}
	root, _, err := Write(store, Root{}, changes)
	require.NoError(t, err)

	var reader Reader[*block.Store[*mem.File]]
	reader.Load(store, root)
	defer reader.Close()

	require.True(t, reader.Seek([]byte("a")))
	require.Equal(t, "b", string(reader.Key()))
	require.True(t, reader.Seek([]byte("d")))
	require.Equal(t, "d", string(reader.Key()))
	require.True(t, reader.Seek([]byte("e")))
	require.Equal(t, "f", string(reader.Key()))
	require.False(t, reader.Seek([]byte("g")))
	require.True(t, reader.Exhausted())
	require.False(t, reader.Next())

	reader.Rewind()
	require.True(t, reader.Next())
	require.Equal(t, "b", string(reader.Key()))
}

func TestSeekDeep(t *testing.T) {
	store := newStore(t)
	ids := make([]int, 0, 2000)
	for i := range 2000 {
		ids = append(ids, 2*i)
	}
	root, _, err := Write(store, Root{}, puts(ids))
	require.NoError(t, err)

	var reader Reader[*block.Store[*mem.File]]
	reader.Load(store, root)
	defer reader.Close()

	for _, i := range []int{1, 2, 301, 1999, 3997} {
		require.True(t, reader.Seek(key(i)))
		want := i
		if i%2 == 1 {
			want = i + 1
		}
		require.Equal(t, key(want), reader.Key())
	}
	require.False(t, reader.Seek(key(3999)))

	// clones move independently
	require.True(t, reader.Seek(key(100)))
	var clone Reader[*block.Store[*mem.File]]
	clone.LoadFrom(&reader)
	defer clone.Close()
	require.True(t, reader.Next())
	require.Equal(t, key(102), reader.Key())
	require.Equal(t, key(100), clone.Key())
	require.True(t, clone.Prev())
	require.Equal(t, key(98), clone.Key())
}

func TestDelete(t *testing.T) {
	store := newStore(t)
	root, _, err := Write(store, Root{}, puts(rand.Perm(2000)))
	require.NoError(t, err)

	var deletes []Change
	for i := 0; i < 2000; i += 2 {
		deletes = append(deletes, Change{Key: key(i), Delete: true})
	}
	deletes = append(deletes, Change{Key: []byte("zzz"), Delete: true})
	root, delta, err := Write(store, root, deletes)
	require.NoError(t, err)
	require.Equal(t, -1000, delta)

	keys := collect(t, store, root)
	require.Len(t, keys, 1000)
	for i, k := range keys {
		require.Equal(t, key(2*i+1), k)
	}
	count, err := Check(context.Background(), store, root)
	require.NoError(t, err)
	require.EqualValues(t, 1000, count)

	deletes = deletes[:0]
	for _, k := range keys {
		deletes = append(deletes, Change{Key: k, Delete: true})
	}
	root, delta, err = Write(store, root, deletes)
	require.NoError(t, err)
	require.Equal(t, -1000, delta)
	require.True(t, root.Empty())
	require.Empty(t, collect(t, store, root))
}

func TestOverwrite(t *testing.T) {
	store := newStore(t)
	root, _, err := Write(store, Root{}, puts([]int{1, 2, 3}))
	require.NoError(t, err)

	root2, delta, err := Write(store, root, []Change{
		{Key: key(2), Val: bytes.Repeat([]byte("x"), 5000)},
		{Key: key(3), Val: []byte{}},
	})
	require.NoError(t, err)
	require.Zero(t, delta)

	val, found, err := Get(store, root2, nil, key(2))
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, val, 5000)

	val, found, err = Get(store, root2, nil, key(3))
	require.NoError(t, err)
	require.True(t, found)
	require.Empty(t, val)
	require.NotNil(t, val)

	// the old revision is untouched until its blocks are reused
	val, _, err = Get(store, root, nil, key(2))
	require.NoError(t, err)
	require.Equal(t, value(2), val)
}

func TestBlockReuse(t *testing.T) {
	store := newStore(t)
	root, _, err := Write(store, Root{}, puts(rand.Perm(500)))
	require.NoError(t, err)
	ckpt, err := store.Commit(nil)
	require.NoError(t, err)
	ckpt.Release()
	blocks := store.BlockCount()

	for round := range 10 {
		changes := make([]Change, 0, 500)
		for i := range 500 {
			changes = append(changes, Change{Key: key(i), Val: fmt.Appendf(nil, "round-%d", round)})
		}
		root, _, err = Write(store, root, changes)
		require.NoError(t, err)
		ckpt, err := store.Commit(nil)
		require.NoError(t, err)
		ckpt.Release()
	}
	require.Less(t, store.BlockCount(), 3*blocks)

	count, err := Check(context.Background(), store, root)
	require.NoError(t, err)
	require.EqualValues(t, 500, count)
}

func TestWriteErrors(t *testing.T) {
	store := newStore(t)

	_, _, err := Write(store, Root{}, []Change{{Key: []byte("b")}, {Key: []byte("a")}})
	require.ErrorIs(t, err, ErrUnsorted)
	require.ErrorIs(t, err, glass.ErrInvalidOperation)

	_, _, err = Write(store, Root{}, []Change{{Key: bytes.Repeat([]byte("k"), MaxKeySize+1)}})
	require.ErrorIs(t, err, glass.ErrKeyTooLarge)

	_, _, err = Write(store, Root{}, []Change{{Key: nil}})
	require.ErrorIs(t, err, glass.ErrInvalidOperation)

	root, _, err := Write(store, Root{}, []Change{{Key: bytes.Repeat([]byte("k"), MaxKeySize), Val: []byte("max")}})
	require.NoError(t, err)
	val, found, err := Get(store, root, nil, bytes.Repeat([]byte("k"), MaxKeySize))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "max", string(val))
}

func TestCorruptTree(t *testing.T) {
	file := new(mem.File)
	store := new(block.Store[*mem.File])
	_, ckpt, err := store.Load(file, storeOption{})
	require.NoError(t, err)
	ckpt.Release()
	defer store.Close()

	root, _, err := Write(store, Root{}, puts(rand.Perm(1000)))
	require.NoError(t, err)
	require.Greater(t, root.High, uint8(0))

	// damage the last leaf
	var reader Reader[*block.Store[*mem.File]]
	reader.Load(store, root)
	require.True(t, reader.SeekLast())
	leaf := reader.leafID()
	reader.Close()
	_, err = file.WriteAt([]byte("garbage"), int64(leaf)*2048+20)
	require.NoError(t, err)

	_, err = Check(context.Background(), store, root)
	require.ErrorIs(t, err, glass.ErrCorruption)

	reader.Load(store, root)
	defer reader.Close()
	require.False(t, reader.SeekLast())
	require.ErrorIs(t, reader.Error(), glass.ErrCorruption)
}

func TestPaginate(t *testing.T) {
	runs := paginate(10, func(int) int { return 30 }, 100)
	require.Equal(t, [][2]int{{0, 3}, {3, 5}, {5, 8}, {8, 10}}, runs)

	runs = paginate(1, func(int) int { return 30 }, 100)
	require.Equal(t, [][2]int{{0, 1}}, runs)
}

func ExampleWrite() {
	store := new(block.Store[*mem.File])
	_, ckpt, _ := store.Load(new(mem.File), storeOption{})
	defer store.Close()
	defer ckpt.Release()

	root, _, _ := Write(store, Root{}, []Change{
		{Key: []byte("apple"), Val: []byte("red")},
		{Key: []byte("banana"), Val: []byte("yellow")},
	})

	var reader Reader[*block.Store[*mem.File]]
	reader.Load(store, root)
	defer reader.Close()
	for reader.Next() {
		fmt.Printf("%s=%s\n", reader.Key(), reader.Val())
	}
	// Output:
	// apple=red
	// banana=yellow
}
