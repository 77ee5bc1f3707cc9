// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package block

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dacapoday/glass"
	"github.com/dacapoday/glass/compress"
	"github.com/dacapoday/glass/internal/heap"
	"github.com/dacapoday/glass/internal/metrics"
)

// Store implements glass.ReadWrite over a heap.Heap.
type Store[F File] struct {
	pages  sync.Pool
	frames sync.Pool
	heap   heap.Heap[F]
	size   int

	strategy compress.Strategy
	name     string
	metrics  *metrics.Metrics
}

// Instrument names the store in errors and metrics. Call it before Load.
func (store *Store[F]) Instrument(name string, m *metrics.Metrics) {
	store.name = name
	store.metrics = m
}

// SetStrategy selects the compression applied to blocks written from now on.
// Blocks already written keep their own method.
func (store *Store[F]) SetStrategy(strategy compress.Strategy) {
	store.strategy = strategy
}

func (store *Store[F]) Strategy() compress.Strategy {
	return store.strategy
}

func (store *Store[F]) Load(file F, opt Option) (entry []byte, ckpt Checkpoint, err error) {
	meta, ckpt, err := store.heap.Load(file, opt)
	if err != nil {
		err = store.wrap("load", 0, err)
		return
	}

	blockSize := int(meta.BlockSize)
	pageSize := blockSize - HeadSize
	store.frames.New = func() any { return make([]byte, blockSize) }
	store.pages.New = func() any { return make([]byte, pageSize) }
	store.size = pageSize
	entry = meta.Entry
	return
}

// Close closes the file. Buffers stay allocatable; reads after Close fail
// with ErrClosed.
func (store *Store[F]) Close() error {
	return store.heap.Close()
}

func (store *Store[F]) Commit(entry []byte) (ckpt Checkpoint, err error) {
	if ckpt, err = store.heap.Commit(entry); err != nil {
		err = store.wrap("commit", 0, err)
	}
	return
}

func (store *Store[F]) Rollback() error {
	return store.heap.Rollback()
}

func (store *Store[F]) Error() error {
	return store.heap.Error()
}

func (store *Store[F]) BlockSize() int {
	return store.heap.BlockSize()
}

func (store *Store[F]) BlockCount() uint32 {
	return store.heap.BlockCount()
}

func (store *Store[F]) FreeCount() int {
	return store.heap.FreeCount()
}

func (store *Store[F]) Revision() (uint32, time.Time) {
	return store.heap.Revision()
}

func (store *Store[F]) AllCheckpointReleased() bool {
	return store.heap.AllCheckpointReleased()
}

func (store *Store[F]) PageSize() int {
	return store.size
}

func (store *Store[F]) AllocateBuffer() []byte {
	return store.pages.Get().([]byte)
}

func (store *Store[F]) RecycleBuffer(buffer []byte) {
	if cap(buffer) >= store.size && store.size > 0 {
		store.pages.Put(buffer[:store.size])
	}
}

func (store *Store[F]) AllocateBlock() (blockID BlockID, err error) {
	if blockID, err = store.heap.Allocate(); err != nil {
		err = store.wrap("allocate", 0, err)
	}
	return
}

func (store *Store[F]) RecycleBlock(blockID BlockID) {
	store.heap.Recycle(blockID)
}

// LoadBlock reads blockID into a pooled buffer. The caller returns it with
// RecycleBuffer.
func (store *Store[F]) LoadBlock(blockID BlockID) (buffer []byte, err error) {
	buffer = store.AllocateBuffer()
	if err = store.ReadBlock(blockID, buffer); err != nil {
		store.RecycleBuffer(buffer)
		buffer = nil
	}
	return
}

func (store *Store[F]) ReadBlock(blockID BlockID, page []byte) (err error) {
	if blockID < 2 {
		return store.corrupt("read", blockID, fmt.Errorf("reserved block"))
	}
	frame := store.frames.Get().([]byte)
	defer store.frames.Put(frame)

	if _, err = store.heap.ReadAt(frame, blockID); err != nil {
		if errors.Is(err, heap.ErrOutOfRange) {
			return store.corrupt("read", blockID, err)
		}
		return store.wrap("read", blockID, err)
	}

	sum := binary.LittleEndian.Uint32(frame[0:4])
	method := compress.Strategy(frame[4])
	stored := int(binary.LittleEndian.Uint16(frame[5:7]))
	raw := int(binary.LittleEndian.Uint16(frame[7:9]))
	if stored > len(frame)-HeadSize || raw > store.size || raw > len(page) {
		return store.corrupt("read", blockID, fmt.Errorf("frame %d/%d out of bounds", stored, raw))
	}
	if sum != checksum(frame[4:HeadSize+stored]) {
		return store.corrupt("read", blockID, fmt.Errorf("checksum mismatch"))
	}

	payload := frame[HeadSize : HeadSize+stored]
	if method == compress.None {
		if stored != raw {
			return store.corrupt("read", blockID, fmt.Errorf("raw length %d, stored %d", raw, stored))
		}
		copy(page, payload)
	} else {
		out, derr := compress.Decode(method, page[:0], payload, raw)
		if derr != nil {
			return store.corrupt("read", blockID, derr)
		}
		if raw > 0 && &out[0] != &page[0] {
			copy(page, out)
		}
	}
	clear(page[raw:])

	store.metrics.BlockRead(store.name, HeadSize+stored)
	return
}

func (store *Store[F]) WriteBlock(blockID BlockID, page []byte) (err error) {
	if len(page) > store.size {
		return store.wrap("write", blockID, fmt.Errorf("page %d > %d", len(page), store.size))
	}
	frame := store.frames.Get().([]byte)
	defer store.frames.Put(frame)

	method := compress.None
	payload := page
	if store.strategy != compress.None && len(page) >= minCompress {
		out, ok, cerr := compress.Encode(store.strategy, frame[HeadSize:HeadSize], page)
		if cerr != nil {
			return store.wrap("write", blockID, cerr)
		}
		if ok {
			method, payload = store.strategy, out
		}
	}

	n := HeadSize + len(payload)
	if len(payload) > 0 && &payload[0] != &frame[HeadSize] {
		copy(frame[HeadSize:], payload)
	}
	frame[4] = byte(method)
	binary.LittleEndian.PutUint16(frame[5:7], uint16(len(payload)))
	binary.LittleEndian.PutUint16(frame[7:9], uint16(len(page)))
	binary.LittleEndian.PutUint32(frame[0:4], checksum(frame[4:n]))

	if _, err = store.heap.WriteAt(frame[:n], blockID); err != nil {
		return store.wrap("write", blockID, err)
	}
	store.metrics.BlockWrite(store.name, n)
	return
}

func (store *Store[F]) corrupt(op string, blockID BlockID, err error) error {
	store.metrics.Corruption(store.name)
	return &glass.Error{Kind: glass.ErrCorruption, Op: op, Table: store.name, BlockID: blockID, Err: err}
}

// wrap classifies heap errors: lifecycle errors keep their own kind,
// corruption stays corruption, everything else is an I/O failure.
func (store *Store[F]) wrap(op string, blockID BlockID, err error) error {
	kind := glass.ErrStorageIO
	for _, k := range []error{glass.ErrCorruption, glass.ErrClosed, glass.ErrReadOnly, glass.ErrUnknownMagicCode, glass.ErrInvalidBlockSize, glass.ErrFileTruncated} {
		if errors.Is(err, k) {
			kind = k
			break
		}
	}
	if kind == glass.ErrCorruption || kind == glass.ErrFileTruncated {
		store.metrics.Corruption(store.name)
	}
	return &glass.Error{Kind: kind, Op: op, Table: store.name, BlockID: blockID, Err: err}
}
