package atom

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type testCheckpoint struct {
	ref atomic.Int32
}

func (c *testCheckpoint) Acquire() { c.ref.Add(1) }
func (c *testCheckpoint) Release() { c.ref.Add(-1) }

func newCheckpoint() *testCheckpoint {
	c := new(testCheckpoint)
	c.ref.Store(1)
	return c
}

func TestAcquireSwap(t *testing.T) {
	var a Atom[string, *testCheckpoint]
	first := newCheckpoint()
	a.Load("one", first)

	val, ckpt := a.Acquire()
	require.Equal(t, "one", val)
	require.Same(t, first, ckpt)
	require.EqualValues(t, 2, first.ref.Load())

	second := newCheckpoint()
	require.NoError(t, a.Swap(func(old string) (string, *testCheckpoint, error) {
		require.Equal(t, "one", old)
		return "two", second, nil
	}))

	// the reader still pins the first revision
	require.EqualValues(t, 1, first.ref.Load())
	ckpt.Release()
	require.Zero(t, first.ref.Load())

	cur, ok := a.Value()
	require.True(t, ok)
	require.Equal(t, "two", cur)

	a.Close()
	require.Zero(t, second.ref.Load())
	val, ckpt = a.Acquire()
	require.Empty(t, val)
	require.Nil(t, ckpt)
	_, ok = a.Value()
	require.False(t, ok)
}

func TestSwapError(t *testing.T) {
	var a Atom[int, *testCheckpoint]
	require.ErrorIs(t, a.Swap(func(int) (int, *testCheckpoint, error) { return 0, nil, nil }), ErrClosed)

	c := newCheckpoint()
	a.Load(1, c)
	boom := errors.New("boom")
	require.ErrorIs(t, a.Swap(func(int) (int, *testCheckpoint, error) { return 2, newCheckpoint(), boom }), boom)
	val, _ := a.Value()
	require.Equal(t, 1, val)
	require.EqualValues(t, 1, c.ref.Load())
}

func TestConcurrentAcquire(t *testing.T) {
	var a Atom[int, *testCheckpoint]
	a.Load(0, newCheckpoint())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				val, ckpt := a.Acquire()
				if val < 0 || ckpt == nil {
					t.Error("acquired a closed revision")
					return
				}
				ckpt.Release()
			}
		}()
	}
	for i := 1; i <= 100; i++ {
		require.NoError(t, a.Swap(func(int) (int, *testCheckpoint, error) { return i, newCheckpoint(), nil }))
	}
	wg.Wait()
	a.Close()
}
