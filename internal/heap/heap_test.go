package heap

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dacapoday/glass/mem"
)

// helper to create heap with mem.File
func newTestHeap(t *testing.T, file *mem.File, opt testOption) (*Heap[*mem.File], Checkpoint) {
	t.Helper()
	var heap Heap[*mem.File]
	_, ckpt, err := heap.Load(file, opt)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return &heap, ckpt
}

var defaultOpt = testOption{
	magicCode: [4]byte{'t', 'e', 's', 't'},
}

func allocateAndWrite(t *testing.T, heap *Heap[*mem.File], data string) BlockID {
	t.Helper()
	blockID, err := heap.Allocate()
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if _, err = heap.WriteAt([]byte(data), blockID); err != nil {
		t.Fatalf("WriteAt(%d) failed: %v", blockID, err)
	}
	return blockID
}

func TestHeapLoadClose(t *testing.T) {
	heap, ckpt := newTestHeap(t, new(mem.File), defaultOpt)

	if heap.Error() != nil {
		t.Errorf("expected no error, got %v", heap.Error())
	}
	if heap.BlockSize() != MinBlockSize || heap.BlockCount() != 2 {
		t.Errorf("unexpected geometry %d/%d", heap.BlockSize(), heap.BlockCount())
	}
	if ckpt.Revision() != 0 {
		t.Errorf("expected revision 0, got %d", ckpt.Revision())
	}

	if heap.AllCheckpointReleased() {
		t.Error("caller still holds the checkpoint")
	}
	ckpt.Release()
	if !heap.AllCheckpointReleased() {
		t.Error("checkpoint should be released")
	}

	heap.Close()
	if heap.Error() != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", heap.Error())
	}
}

func TestHeapInvalidBlockSize(t *testing.T) {
	var heap Heap[*mem.File]
	opt := defaultOpt
	opt.blockSize = 3000
	_, _, err := heap.Load(new(mem.File), opt)
	if !errors.Is(err, ErrInvalidBlockSize) {
		t.Fatalf("expected ErrInvalidBlockSize, got %v", err)
	}
}

func TestHeapCommitReload(t *testing.T) {
	file := new(mem.File)
	heap, ckpt := newTestHeap(t, file, defaultOpt)
	ckpt.Release()

	blockID := allocateAndWrite(t, heap, "block-data")
	entry := []byte("test-entry")
	ckpt, err := heap.Commit(entry)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if ckpt.Revision() != 1 {
		t.Errorf("expected revision 1, got %d", ckpt.Revision())
	}
	ckpt.Release()
	heap.Close()

	var heap2 Heap[*mem.File]
	meta, ckpt, err := heap2.Load(file, defaultOpt)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	defer heap2.Close()
	defer ckpt.Release()

	if !bytes.Equal(meta.Entry, entry) {
		t.Errorf("entry after reload mismatch: %q", meta.Entry)
	}
	if meta.Ckp != 1 || meta.BlockCount != 3 {
		t.Errorf("unexpected meta %+v", meta)
	}

	buffer := make([]byte, heap2.BlockSize())
	if _, err = heap2.ReadAt(buffer, blockID); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if !bytes.HasPrefix(buffer, []byte("block-data")) {
		t.Errorf("block content mismatch")
	}
	if _, err = heap2.ReadAt(buffer, 3); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestHeapDeferredReuse(t *testing.T) {
	heap, ckpt := newTestHeap(t, new(mem.File), defaultOpt)
	defer heap.Close()
	ckpt.Release()

	a := allocateAndWrite(t, heap, "a")
	b := allocateAndWrite(t, heap, "b")
	if a != 2 || b != 3 {
		t.Fatalf("expected blocks 2,3 got %d,%d", a, b)
	}
	reader, err := heap.Commit(nil)
	if err != nil {
		t.Fatal(err)
	}

	heap.Recycle(b)
	ckpt, err = heap.Commit(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ckpt.Release()

	// block b is still visible to reader
	c := allocateAndWrite(t, heap, "c")
	if c != 4 {
		t.Fatalf("expected fresh block 4, got %d", c)
	}

	reader.Release()
	d := allocateAndWrite(t, heap, "d")
	if d != b {
		t.Fatalf("expected reuse of block %d, got %d", b, d)
	}
}

func TestHeapRollback(t *testing.T) {
	heap, ckpt := newTestHeap(t, new(mem.File), defaultOpt)
	defer heap.Close()
	ckpt.Release()

	a := allocateAndWrite(t, heap, "a")
	allocateAndWrite(t, heap, "b")
	ckpt, err := heap.Commit(nil)
	if err != nil {
		t.Fatal(err)
	}
	ckpt.Release()

	heap.Recycle(a)
	ckpt, err = heap.Commit(nil)
	if err != nil {
		t.Fatal(err)
	}
	ckpt.Release()

	reused := allocateAndWrite(t, heap, "x")
	if reused != a {
		t.Fatalf("expected reuse of %d, got %d", a, reused)
	}
	allocateAndWrite(t, heap, "y")
	if heap.BlockCount() != 5 {
		t.Fatalf("expected 5 blocks, got %d", heap.BlockCount())
	}

	if err = heap.Rollback(); err != nil {
		t.Fatal(err)
	}
	if heap.BlockCount() != 4 {
		t.Errorf("expected 4 blocks after rollback, got %d", heap.BlockCount())
	}
	if again := allocateAndWrite(t, heap, "z"); again != a {
		t.Errorf("expected %d back on the free list, got %d", a, again)
	}
}

func TestHeapReloadFreelist(t *testing.T) {
	file := new(mem.File)
	heap, ckpt := newTestHeap(t, file, defaultOpt)
	ckpt.Release()

	allocateAndWrite(t, heap, "a")
	b := allocateAndWrite(t, heap, "b")
	ckpt, err := heap.Commit(nil)
	if err != nil {
		t.Fatal(err)
	}
	ckpt.Release()
	heap.Recycle(b)
	ckpt, err = heap.Commit(nil)
	if err != nil {
		t.Fatal(err)
	}
	ckpt.Release()
	heap.Close()

	t.Run("reuse", func(t *testing.T) {
		heap, ckpt := newTestHeap(t, file, defaultOpt)
		defer heap.Close()
		ckpt.Release()
		if got := allocateAndWrite(t, heap, "x"); got != b {
			t.Errorf("expected %d, got %d", b, got)
		}
		if err := heap.Rollback(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("retain", func(t *testing.T) {
		opt := defaultOpt
		opt.retainCheckpoints = 1
		heap, ckpt := newTestHeap(t, file, opt)
		defer heap.Close()
		ckpt.Release()

		fresh := allocateAndWrite(t, heap, "x")
		if fresh == b {
			t.Fatalf("block %d released by the last commit must stay pinned", b)
		}
		ckpt, err := heap.Commit(nil)
		if err != nil {
			t.Fatal(err)
		}
		ckpt.Release()
		if got := allocateAndWrite(t, heap, "y"); got != b {
			t.Errorf("expected %d after the retained revision expired, got %d", b, got)
		}
	})
}

func TestHeapSpilledFreelist(t *testing.T) {
	file := new(mem.File)
	heap, ckpt := newTestHeap(t, file, defaultOpt)
	ckpt.Release()

	const n = 3000
	blocks := make([]BlockID, 0, n)
	for range n {
		blocks = append(blocks, allocateAndWrite(t, heap, "x"))
	}
	ckpt, err := heap.Commit(nil)
	if err != nil {
		t.Fatal(err)
	}
	ckpt.Release()

	for _, blockID := range blocks {
		heap.Recycle(blockID)
	}
	ckpt, err = heap.Commit([]byte("spilled"))
	if err != nil {
		t.Fatal(err)
	}
	ckpt.Release()
	heap.Close()

	var heap2 Heap[*mem.File]
	meta, ckpt, err := heap2.Load(file, defaultOpt)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	defer heap2.Close()
	ckpt.Release()

	if meta.FreelistID == 0 {
		t.Fatal("expected free list spilled to a chain")
	}
	if string(meta.Entry) != "spilled" {
		t.Errorf("entry mismatch: %q", meta.Entry)
	}
	if got := heap2.FreeCount(); got != n {
		t.Errorf("expected %d free blocks, got %d", n, got)
	}

	// the chain itself is released by the next commit
	ckpt, err = heap2.Commit(nil)
	if err != nil {
		t.Fatal(err)
	}
	ckpt.Release()
	if got := heap2.FreeCount(); got <= n {
		t.Errorf("expected chain blocks freed, got %d", got)
	}
}

func TestHeapTornMeta(t *testing.T) {
	file := new(mem.File)
	heap, ckpt := newTestHeap(t, file, defaultOpt)
	ckpt.Release()

	for _, entry := range []string{"one", "two"} {
		ckpt, err := heap.Commit([]byte(entry))
		if err != nil {
			t.Fatal(err)
		}
		ckpt.Release()
	}
	heap.Close()

	// revision 2 lives in slot 0
	if _, err := file.WriteAt([]byte{0xff, 0xff}, 8); err != nil {
		t.Fatal(err)
	}

	var heap2 Heap[*mem.File]
	meta, ckpt, err := heap2.Load(file, defaultOpt)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	defer heap2.Close()
	defer ckpt.Release()
	if meta.Ckp != 1 || string(meta.Entry) != "one" {
		t.Errorf("expected fallback to revision 1, got %d %q", meta.Ckp, meta.Entry)
	}
}

func TestHeapLoadErrors(t *testing.T) {
	file := new(mem.File)
	heap, ckpt := newTestHeap(t, file, defaultOpt)
	ckpt.Release()
	allocateAndWrite(t, heap, "a")
	allocateAndWrite(t, heap, "b")
	ckpt, err := heap.Commit(nil)
	if err != nil {
		t.Fatal(err)
	}
	ckpt.Release()
	heap.Close()

	t.Run("magic", func(t *testing.T) {
		opt := defaultOpt
		opt.magicCode = [4]byte{'n', 'o', 'p', 'e'}
		var heap Heap[*mem.File]
		if _, _, err := heap.Load(file, opt); !errors.Is(err, ErrUnknownMagicCode) {
			t.Errorf("expected ErrUnknownMagicCode, got %v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		opt := defaultOpt
		opt.readOnly = true
		var heap Heap[*mem.File]
		if _, _, err := heap.Load(new(mem.File), opt); !errors.Is(err, ErrFileEmpty) {
			t.Errorf("expected ErrFileEmpty, got %v", err)
		}
	})

	t.Run("readonly", func(t *testing.T) {
		opt := defaultOpt
		opt.readOnly = true
		heap, ckpt := newTestHeap(t, file, opt)
		defer heap.Close()
		defer ckpt.Release()
		if _, err := heap.Allocate(); !errors.Is(err, ErrReadOnly) {
			t.Errorf("expected ErrReadOnly, got %v", err)
		}
		if _, err := heap.Commit(nil); !errors.Is(err, ErrReadOnly) {
			t.Errorf("expected ErrReadOnly, got %v", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		if err := file.Truncate(3 * MinBlockSize); err != nil {
			t.Fatal(err)
		}
		var heap Heap[*mem.File]
		if _, _, err := heap.Load(file, defaultOpt); !errors.Is(err, ErrFileTruncated) {
			t.Errorf("expected ErrFileTruncated, got %v", err)
		}
	})
}

func TestHeapWriteFailure(t *testing.T) {
	file := new(mem.File)
	heap, ckpt := newTestHeap(t, file, defaultOpt)
	defer heap.Close()
	ckpt.Release()

	blockID, err := heap.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	file.FailWrites(true)
	if _, err = heap.WriteAt([]byte("x"), blockID); !errors.Is(err, mem.ErrInjected) {
		t.Fatalf("expected injected fault, got %v", err)
	}
	if !errors.Is(heap.Error(), mem.ErrInjected) {
		t.Errorf("heap should be poisoned, got %v", heap.Error())
	}
	if _, err = heap.Commit(nil); err == nil {
		t.Error("commit must fail after a write error")
	}
}
