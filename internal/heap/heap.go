// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package heap manages fixed-size blocks inside one file: allocation,
// deferred reuse through a checkpoint chain, and the double-slot header that
// publishes a revision atomically.
package heap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dacapoday/glass"
)

type BlockID = glass.BlockID
type File = glass.File

type Heap[F File] struct {
	file F
	free
	head, tail *checkpoint
	retained   []*checkpoint
	retain     int
	chain      []BlockID // freelist blocks of the committed meta

	phase atomic.Pointer[phase]
	mutex sync.Mutex

	count     atomic.Uint32
	committed uint32
	size      int
	ckp       uint32
	updated   int64
	magic     [4]byte
	noSync    bool
}

type phase struct{ error }

var readwrite = &phase{errors.New("readwrite")}
var readonly = &phase{errors.New("readonly")}

var _ glass.Checkpoint = (*checkpoint)(nil)

func (heap *Heap[F]) BlockSize() int {
	return heap.size
}

func (heap *Heap[F]) BlockCount() uint32 {
	return heap.count.Load()
}

// Revision returns the checkpoint number and commit time of the current revision.
func (heap *Heap[F]) Revision() (ckp uint32, updated time.Time) {
	heap.mutex.Lock()
	ckp = heap.ckp
	updated = time.UnixMilli(heap.updated)
	heap.mutex.Unlock()
	return
}

func (heap *Heap[F]) FreeCount() int {
	heap.mutex.Lock()
	defer heap.mutex.Unlock()
	n := len(heap.avail)
	for cur := heap.head; cur != nil; cur = cur.next {
		n += len(cur.freed)
	}
	return n
}

// Load opens file, initializing it when empty. The returned checkpoint pins
// the loaded revision on behalf of the caller.
func (heap *Heap[F]) Load(file F, opt Option) (meta *Meta, ckpt Checkpoint, err error) {
	heap.mutex.Lock()
	defer heap.mutex.Unlock()

	if heap.phase.Load() != nil {
		panic("heap.Load: already open")
	}

	heap.file = file
	heap.magic = opt.MagicCode()
	heap.noSync = getNoSync(opt)
	heap.retain = int(opt.RetainCheckpoints())

	if meta, err = heap.load(opt); err != nil {
		meta = nil
		err = fmt.Errorf("heap.Load: %w", err)
		heap.phase.Store(&phase{err})
		return
	}

	heap.size = int(meta.BlockSize)
	heap.ckp = meta.Ckp
	heap.updated = meta.UpdateTime
	heap.committed = meta.BlockCount
	heap.count.Store(meta.BlockCount)

	ckpt = &checkpoint{ckp: meta.Ckp}
	ckpt.ref.Store(2)
	heap.head, heap.tail = ckpt, ckpt

	if opt.ReadOnly() {
		heap.phase.Store(readonly)
		return
	}

	if err = heap.restore(meta); err != nil {
		meta, ckpt = nil, nil
		err = fmt.Errorf("heap.Load: %w", err)
		heap.phase.Store(&phase{err})
		return
	}
	heap.phase.Store(readwrite)
	return
}

func (heap *Heap[F]) load(opt Option) (meta *Meta, err error) {
	buffer := make([]byte, MaxBlockSize)
	n, err := heap.file.ReadAt(buffer, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return
	}
	err = nil

	if n == 0 {
		if opt.ReadOnly() {
			err = ErrFileEmpty
			return
		}
		return heap.init(getBlockSize(opt))
	}

	a, errA := heap.parseMeta(buffer[:n])
	if errA == nil && !ValidBlockSize(int(a.BlockSize)) {
		a, errA = nil, fmt.Errorf("%w: block size %d", ErrInvalidMeta, a.BlockSize)
	}

	var b *Meta
	if a != nil {
		if b, _ = heap.readSlot(buffer, int(a.BlockSize)); b != nil && b.BlockSize != a.BlockSize {
			b = nil
		}
	} else {
		for size := MinBlockSize; size <= MaxBlockSize; size <<= 1 {
			if b, _ = heap.readSlot(buffer, size); b != nil && int(b.BlockSize) == size {
				break
			}
			b = nil
		}
	}

	switch {
	case a != nil && b != nil:
		if meta = a; int32(b.Ckp-a.Ckp) > 0 {
			meta = b
		}
	case a != nil:
		meta = a
	case b != nil:
		meta = b
	default:
		err = errA
		return
	}

	if meta.BlockCount < 2 {
		err = fmt.Errorf("%w: block count %d", ErrInvalidMeta, meta.BlockCount)
		return
	}

	var last [1]byte
	end := int64(meta.BlockCount) * int64(meta.BlockSize)
	if _, err = heap.file.ReadAt(last[:], end-1); err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: want %d bytes", ErrFileTruncated, end)
		}
		return
	}
	return
}

func (heap *Heap[F]) init(size int) (meta *Meta, err error) {
	if !ValidBlockSize(size) {
		err = fmt.Errorf("%w: %d", ErrInvalidBlockSize, size)
		return
	}
	heap.size = size

	meta = &Meta{
		Version:    1,
		BlockSize:  uint32(size),
		BlockCount: 2,
		UpdateTime: time.Now().UnixMilli(),
	}
	if err = heap.file.Truncate(int64(2 * size)); err != nil {
		return
	}
	if err = heap.writeMeta(meta); err != nil {
		return
	}
	err = heap.sync()
	return
}

func (heap *Heap[F]) readSlot(buffer []byte, offset int) (meta *Meta, err error) {
	n, err := heap.file.ReadAt(buffer[:offset], int64(offset))
	if err != nil && !errors.Is(err, io.EOF) {
		return
	}
	return heap.parseMeta(buffer[:n])
}

func (heap *Heap[F]) parseMeta(data []byte) (meta *Meta, err error) {
	if len(data) < 4 {
		err = fmt.Errorf("%w: short slot", ErrInvalidMeta)
		return
	}
	if !bytes.Equal(data[:4], heap.magic[:]) {
		if bytes.Equal(data[:4], []byte{0, 0, 0, 0}) {
			err = fmt.Errorf("%w: empty slot", ErrInvalidMeta)
		} else {
			err = fmt.Errorf("%w: %q", ErrUnknownMagicCode, data[:4])
		}
		return
	}

	meta = new(Meta)
	if err = decodeMeta(bytes.NewReader(data[4:]), meta); err != nil {
		if !errors.Is(err, ErrInvalidMeta) {
			err = fmt.Errorf("%w: %w", ErrInvalidMeta, err)
		}
		meta = nil
	}
	return
}

func (heap *Heap[F]) writeMeta(meta *Meta) (err error) {
	var buf bytes.Buffer
	buf.Grow(sizeMeta(meta))
	buf.Write(heap.magic[:])
	if err = encodeMeta(&buf, meta); err != nil {
		return
	}
	if buf.Len() > heap.size {
		err = fmt.Errorf("%w: meta %d > %d", ErrEntryTooLarge, buf.Len(), heap.size)
		return
	}
	_, err = heap.file.WriteAt(buf.Bytes(), int64(meta.Ckp%2)*int64(heap.size))
	return
}

// restore rebuilds the free list. Blocks released by the last commit stay
// pinned behind a retained checkpoint when checkpoints are retained.
func (heap *Heap[F]) restore(meta *Meta) (err error) {
	data := meta.Freelist
	if meta.FreelistID != 0 {
		if data, heap.chain, err = heap.readChain(meta.FreelistID, meta.BlockCount); err != nil {
			return
		}
	}

	list, err := decodeFreelist(data, meta.FreeCount, meta.BlockCount)
	if err != nil {
		return
	}

	recent := min(int(meta.FreeRecent), len(list))
	if heap.retain == 0 || recent == 0 {
		heap.avail = list
		return
	}

	older := len(list) - recent
	heap.avail = list[:older:older]
	prev := &checkpoint{next: heap.tail, freed: list[older:], ckp: meta.Ckp - 1}
	prev.ref.Store(1)
	heap.head = prev
	heap.retained = append(heap.retained, prev)
	return
}

func (heap *Heap[F]) readChain(blockID BlockID, blockCount uint32) (data []byte, chain []BlockID, err error) {
	buffer := make([]byte, heap.size)
	for blockID != 0 {
		if blockID < 2 || blockID >= blockCount || uint32(len(chain)) >= blockCount {
			err = fmt.Errorf("%w: chain block %d", ErrInvalidFreelist, blockID)
			return
		}
		n, rerr := heap.file.ReadAt(buffer, int64(blockID)*int64(heap.size))
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			err = rerr
			return
		}
		next, payload, derr := decodeChainBlock(buffer[:n])
		if derr != nil {
			err = derr
			return
		}
		data = append(data, payload...)
		chain = append(chain, blockID)
		blockID = next
	}
	return
}

// writeChain spills an encoded free list into blocks appended past the end,
// so the list it describes is not changed by its own storage.
func (heap *Heap[F]) writeChain(data []byte) (chain []BlockID, err error) {
	capacity := chainCapacity(heap.size)
	n := (len(data) + capacity - 1) / capacity
	first := heap.count.Add(uint32(n)) - uint32(n)
	buffer := make([]byte, heap.size)
	for i := range n {
		blockID := first + BlockID(i)
		var next BlockID
		if i+1 < n {
			next = blockID + 1
		}
		part := data[i*capacity : min((i+1)*capacity, len(data))]
		if _, err = heap.file.WriteAt(encodeChainBlock(buffer, next, part), int64(blockID)*int64(heap.size)); err != nil {
			return
		}
		chain = append(chain, blockID)
	}
	return
}

func (heap *Heap[F]) sync() error {
	if heap.noSync {
		return nil
	}
	return heap.file.Sync()
}

// AllCheckpointReleased reports whether only the heap itself still pins
// checkpoints.
func (heap *Heap[F]) AllCheckpointReleased() bool {
	if phase := heap.phase.Load(); phase == nil {
		return true
	}

	heap.mutex.Lock()
	defer heap.mutex.Unlock()

	for cur := heap.head; cur != nil; cur = cur.next {
		ref := int32(0)
		if cur == heap.tail || slices.Contains(heap.retained, cur) {
			ref = 1
		}
		if cur.ref.Load() > ref {
			return false
		}
	}
	return true
}

func (heap *Heap[F]) Close() error {
	phase := heap.phase.Swap(nil)
	if phase == nil {
		return nil
	}

	heap.mutex.Lock()
	defer heap.mutex.Unlock()

	for cur := heap.head; cur != nil; cur = cur.next {
		cur.ref.Store(0)
	}
	heap.head, heap.tail, heap.retained = nil, nil, nil
	heap.free = free{}
	heap.chain = nil
	return heap.file.Close()
}

// Allocate returns a block no pinned revision references, reusing released
// blocks before growing the file.
func (heap *Heap[F]) Allocate() (blockID BlockID, err error) {
	heap.mutex.Lock()
	defer heap.mutex.Unlock()

	if err = heap.writable(); err != nil {
		return
	}

	heap.reclaim()
	if id, ok := heap.pop(); ok {
		blockID = id
		return
	}
	blockID = heap.count.Add(1) - 1
	return
}

func (heap *Heap[F]) reclaim() {
	for heap.head != heap.tail && heap.head.released() {
		heap.avail = append(heap.avail, heap.head.freed...)
		heap.head.freed = nil
		heap.head = heap.head.next
	}
}

func (heap *Heap[F]) Recycle(blockID BlockID) {
	assertBlockID("heap.Recycle", blockID, heap.count.Load())
	heap.mutex.Lock()
	if heap.phase.Load() == readwrite {
		heap.recycled = append(heap.recycled, blockID)
	}
	heap.mutex.Unlock()
}

// ReadAt reads block blockID into buffer. Bytes past the end of the file
// read as zero.
func (heap *Heap[F]) ReadAt(buffer []byte, blockID BlockID) (n int, err error) {
	if phase := heap.phase.Load(); phase != readwrite && phase != readonly {
		if phase == nil {
			err = ErrClosed
			return
		}
		err = phase.error
		return
	}

	if blockID >= heap.count.Load() || len(buffer) > heap.size {
		err = fmt.Errorf("heap.ReadAt(%d): %w", blockID, ErrOutOfRange)
		return
	}

	n, err = heap.file.ReadAt(buffer, int64(blockID)*int64(heap.size))
	if errors.Is(err, io.EOF) {
		clear(buffer[n:])
		n, err = len(buffer), nil
	}
	return
}

func (heap *Heap[F]) WriteAt(buffer []byte, blockID BlockID) (n int, err error) {
	assertBlockID("heap.WriteAt", blockID, heap.count.Load())
	if err = heap.writable(); err != nil {
		return
	}

	if blockID < 2 || blockID >= heap.count.Load() || len(buffer) > heap.size {
		err = fmt.Errorf("heap.WriteAt(%d): %w", blockID, ErrOutOfRange)
		return
	}

	if n, err = heap.file.WriteAt(buffer, int64(blockID)*int64(heap.size)); err != nil {
		err = fmt.Errorf("heap.WriteAt(%d): %w", blockID, err)
		heap.phase.CompareAndSwap(readwrite, &phase{err})
	}
	return
}

func (heap *Heap[F]) writable() (err error) {
	if phase := heap.phase.Load(); phase != readwrite {
		if phase == readonly {
			err = ErrReadOnly
			return
		}
		if phase == nil {
			err = ErrClosed
			return
		}
		err = phase.error
	}
	return
}

func (heap *Heap[F]) Error() (err error) {
	phase := heap.phase.Load()
	if phase == readwrite {
		return
	}
	if phase == readonly {
		err = ErrReadOnly
		return
	}
	if phase == nil {
		err = ErrClosed
		return
	}
	err = phase.error
	return
}

// Rollback forgets every allocation and recycle since the last commit.
func (heap *Heap[F]) Rollback() (err error) {
	heap.mutex.Lock()
	defer heap.mutex.Unlock()

	if phase := heap.phase.Load(); phase != readwrite {
		if phase == readonly {
			return
		}
		if phase == nil {
			err = ErrClosed
			return
		}
		err = phase.error
		return
	}

	heap.free.rollback()
	heap.count.Store(heap.committed)
	return
}

// Commit publishes entry as the root of a new revision. The returned
// checkpoint pins the new revision on behalf of the caller.
func (heap *Heap[F]) Commit(entry []byte) (ckpt Checkpoint, err error) {
	heap.mutex.Lock()
	defer heap.mutex.Unlock()

	if err = heap.writable(); err != nil {
		return
	}

	meta := &Meta{
		Version:    1,
		Entry:      entry,
		BlockSize:  uint32(heap.size),
		Ckp:        heap.ckp + 1,
		UpdateTime: time.Now().UnixMilli(),
	}

	older := slices.Clone(heap.avail)
	for cur := heap.head; cur != nil; cur = cur.next {
		older = append(older, cur.freed...)
	}
	older = append(older, heap.chain...)
	meta.FreeCount = uint32(len(older) + len(heap.recycled))
	meta.FreeRecent = uint32(len(heap.recycled))
	meta.Freelist = encodeFreelist(nil, older, heap.recycled)

	var chain []BlockID
	if sizeMeta(meta) > heap.size {
		data := meta.Freelist
		meta.Freelist = nil
		if size := sizeMeta(meta); size > heap.size {
			err = fmt.Errorf("heap.Commit: %w: meta %d > %d", ErrEntryTooLarge, size, heap.size)
			return
		}
		if chain, err = heap.writeChain(data); err != nil {
			err = fmt.Errorf("heap.Commit: save freelist failed: %w", err)
			heap.phase.CompareAndSwap(readwrite, &phase{err})
			return
		}
		meta.FreelistID = chain[0]
	}
	meta.BlockCount = heap.count.Load()

	if meta.BlockCount > heap.committed {
		if err = heap.file.Truncate(int64(meta.BlockCount) * int64(heap.size)); err != nil {
			err = fmt.Errorf("heap.Commit: extend file failed: %w", err)
			heap.phase.CompareAndSwap(readwrite, &phase{err})
			return
		}
	}
	if err = heap.sync(); err != nil {
		err = fmt.Errorf("heap.Commit: sync failed: %w", err)
		heap.phase.CompareAndSwap(readwrite, &phase{err})
		return
	}
	if err = heap.writeMeta(meta); err != nil {
		err = fmt.Errorf("heap.Commit: save meta(%d) failed: %w", meta.Ckp%2, err)
		heap.phase.CompareAndSwap(readwrite, &phase{err})
		return
	}
	if err = heap.sync(); err != nil {
		err = fmt.Errorf("heap.Commit: sync failed: %w", err)
		heap.phase.CompareAndSwap(readwrite, &phase{err})
		return
	}

	prev := heap.tail
	prev.freed = append(slices.Clone(heap.recycled), heap.chain...)
	heap.chain = chain

	ckpt = &checkpoint{ckp: meta.Ckp}
	ckpt.ref.Store(2)
	prev.next = ckpt
	heap.tail = ckpt

	heap.retained = append(heap.retained, prev)
	for len(heap.retained) > heap.retain {
		heap.retained[0].Release()
		heap.retained = heap.retained[1:]
	}

	heap.ckp = meta.Ckp
	heap.updated = meta.UpdateTime
	heap.committed = meta.BlockCount
	heap.reused = heap.reused[:0]
	heap.recycled = heap.recycled[:0]
	return
}
