// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package table implements a sorted key/value table stored in a single file.
//
// Writes are staged in memory and published by Commit as a new revision. A
// revision is copy-on-write: readers holding a Cursor keep seeing the
// revision they opened until they close it, while the writer commits new
// ones.
//
// A lazy table (NewLazy) may be opened before its file exists and then
// behaves as an empty table until CreateAndOpen materializes it.
package table

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dacapoday/glass"
	"github.com/dacapoday/glass/block"
	"github.com/dacapoday/glass/bptree"
	"github.com/dacapoday/glass/compress"
	"github.com/dacapoday/glass/internal/atom"
	"github.com/dacapoday/glass/internal/heap"
	"github.com/dacapoday/glass/internal/logger"
	"github.com/zhangyunhao116/skipmap"
)

// Store is the block store a table file is read through.
type Store = block.Store[glass.File]

const (
	stateClosed uint32 = iota
	stateAbsent
	stateOpen
)

// Table is a handle on one table file. All methods may be called from
// multiple goroutines, but only one goroutine may write at a time.
type Table struct {
	name string
	path string
	lazy bool
	opts Options
	log  *slog.Logger

	state  atomic.Uint32
	staged atomic.Pointer[stage]
	rev    atom.Atom[revision, heap.Checkpoint]

	mutex     sync.Mutex
	store     *Store
	flags     Flags
	blockSize int
}

// New returns a closed handle on the table stored at path.
func New(name, path string, opts Options) *Table {
	if opts.FS == nil {
		opts.FS = glass.OS
	}
	return &Table{
		name:      name,
		path:      path,
		opts:      opts,
		flags:     opts.Flags,
		blockSize: opts.BlockSize,
		log:       logger.Or(opts.Logger, "table").With("table", name),
	}
}

// NewLazy returns a closed handle on a table whose file may not exist yet.
func NewLazy(name, path string, opts Options) *Table {
	t := New(name, path, opts)
	t.lazy = true
	return t
}

func (t *Table) Name() string   { return t.name }
func (t *Table) Path() string   { return t.path }
func (t *Table) IsLazy() bool   { return t.lazy }
func (t *Table) ReadOnly() bool { return t.opts.ReadOnly }

// IsOpen reports whether Open or Create succeeded and Close was not called.
func (t *Table) IsOpen() bool { return t.state.Load() != stateClosed }

// Materialized reports whether the table is open on an existing file.
func (t *Table) Materialized() bool { return t.state.Load() == stateOpen }

// Exists reports whether the table file is present.
func (t *Table) Exists() (bool, error) {
	ok, err := t.opts.FS.Exists(t.path)
	if err != nil {
		return false, t.ioError("exists", err)
	}
	return ok, nil
}

// Open opens the table file. An eager table fails with ErrTableNotFound when
// the file is absent; a lazy one opens as an empty table.
func (t *Table) Open() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.state.Load() != stateClosed {
		return nil
	}
	ok, err := t.opts.FS.Exists(t.path)
	if err != nil {
		return t.ioError("open", err)
	}
	if !ok {
		if !t.lazy {
			return &glass.Error{Kind: glass.ErrTableNotFound, Op: "open", Table: t.name, Err: &fs.PathError{Op: "open", Path: t.path, Err: fs.ErrNotExist}}
		}
		t.staged.Store(newStage())
		t.state.Store(stateAbsent)
		t.log.Debug("opened absent lazy table", "path", t.path)
		return nil
	}
	return t.load("open", false)
}

// Create truncates the table file, or creates it, and opens it empty.
func (t *Table) Create() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.opts.ReadOnly {
		return &glass.Error{Kind: glass.ErrReadOnly, Op: "create", Table: t.name}
	}
	t.unload()
	if err := t.opts.FS.Remove(t.path); err != nil {
		return t.ioError("create", err)
	}
	return t.load("create", true)
}

// CreateAndOpen erases any existing table data, applies flags and block
// size, and creates the table.
func (t *Table) CreateAndOpen(flags Flags, blockSize int) error {
	if err := t.EraseTable(); err != nil {
		return err
	}
	if err := t.SetFlags(flags); err != nil {
		return err
	}
	if err := t.SetBlockSize(blockSize); err != nil {
		return err
	}
	return t.Create()
}

// SetFlags sets the flags the table will be created with.
func (t *Table) SetFlags(flags Flags) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.store != nil {
		return &glass.Error{Kind: glass.ErrInvalidOperation, Op: "set flags", Table: t.name, Err: errors.New("table already created")}
	}
	t.flags = flags
	return nil
}

// SetBlockSize sets the block size the table will be created with.
// 0 selects the default.
func (t *Table) SetBlockSize(size int) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.store != nil {
		return &glass.Error{Kind: glass.ErrInvalidOperation, Op: "set block size", Table: t.name, Err: errors.New("table already created")}
	}
	if size != 0 && !heap.ValidBlockSize(size) {
		return &glass.Error{Kind: glass.ErrInvalidBlockSize, Op: "set block size", Table: t.name, Err: fmt.Errorf("%d", size)}
	}
	t.blockSize = size
	return nil
}

// EraseTable removes the table file and discards staged changes. The handle
// stays usable as an absent table.
func (t *Table) EraseTable() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.opts.ReadOnly {
		return &glass.Error{Kind: glass.ErrReadOnly, Op: "erase", Table: t.name}
	}
	t.unload()
	if err := t.opts.FS.Remove(t.path); err != nil {
		return t.ioError("erase", err)
	}
	t.staged.Store(newStage())
	t.state.Store(stateAbsent)
	t.log.Debug("erased table", "path", t.path)
	return nil
}

// Close releases the file. Staged changes are discarded. Cursors still open
// fail with ErrClosed on their next block read.
func (t *Table) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.state.Swap(stateClosed) == stateClosed {
		return nil
	}
	if staged := t.staged.Swap(nil); staged != nil && staged.Len() > 0 {
		t.log.Debug("discarded staged changes", "count", staged.Len())
	}
	return t.unload()
}

func (t *Table) load(op string, create bool) (err error) {
	readOnly := t.opts.ReadOnly && !create
	file, err := t.opts.FS.Open(t.path, readOnly, create)
	if err != nil {
		return t.ioError(op, err)
	}

	blockSize := t.blockSize
	if blockSize == 0 {
		blockSize = heap.DefaultBlockSize
	}
	opt := storeOption{
		readOnly:  readOnly,
		blockSize: blockSize,
		retain:    t.opts.RetainRevisions,
		noSync:    t.flags&FlagNoSync != 0,
	}

	store := new(Store)
	store.Instrument(t.name, t.opts.Metrics)
	entry, ckpt, err := store.Load(file, opt)
	if err != nil {
		store.Close()
		return glass.WithTable(err, t.name)
	}

	var rev revision
	switch {
	case len(entry) != 0:
		if rev, err = decodeEntry(entry); err != nil {
			err = &glass.Error{Kind: glass.ErrCorruption, Op: op, Table: t.name, Err: err}
		}
	case create:
		rev = revision{flags: t.flags, strategy: t.opts.Strategy}
		var next heap.Checkpoint
		if next, err = store.Commit(encodeEntry(rev)); err == nil {
			ckpt.Release()
			ckpt = next
		}
	default:
		// A file whose first commit never completed holds no entries.
		rev = revision{flags: t.flags, strategy: t.opts.Strategy}
	}
	if err != nil {
		ckpt.Release()
		store.Close()
		return glass.WithTable(err, t.name)
	}

	strategy := rev.strategy
	if rev.flags&FlagNoCompress != 0 {
		strategy = compress.None
	}
	store.SetStrategy(strategy)

	rev.store = store
	rev.number = ckpt.Revision()
	t.rev.Load(rev, ckpt)
	t.store = store
	t.flags = rev.flags
	t.blockSize = store.BlockSize()
	if s := t.staged.Load(); s == nil || create {
		t.staged.Store(newStage())
	}
	t.state.Store(stateOpen)

	t.log.Debug("opened table",
		"path", t.path,
		"revision", rev.number,
		"entries", rev.count,
		"blocks", store.BlockCount(),
		"block_size", t.blockSize,
		"strategy", strategy)
	return nil
}

func (t *Table) unload() (err error) {
	t.rev.Close()
	if t.store != nil {
		if !t.store.AllCheckpointReleased() {
			t.log.Warn("closing table with open cursors")
		}
		err = glass.WithTable(t.store.Close(), t.name)
		t.store = nil
	}
	return
}

func (t *Table) ioError(op string, err error) error {
	return &glass.Error{Kind: glass.ErrStorageIO, Op: op, Table: t.name, Err: err}
}

func (t *Table) current() (rev revision, ok bool) {
	return t.rev.Value()
}

// Revision returns the number of the committed revision, 0 if the table is
// absent.
func (t *Table) Revision() uint32 {
	rev, _ := t.current()
	return rev.number
}

// Label returns the label given to the last Commit.
func (t *Table) Label() string {
	rev, _ := t.current()
	return rev.label
}

// EntryCount returns the number of committed entries.
func (t *Table) EntryCount() uint64 {
	rev, _ := t.current()
	return rev.count
}

func (t *Table) Flags() Flags {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.flags
}

// BlockSize returns the block size of the table file, or the size it will
// be created with.
func (t *Table) BlockSize() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.blockSize == 0 {
		return heap.DefaultBlockSize
	}
	return t.blockSize
}

func (t *Table) Strategy() compress.Strategy {
	if rev, ok := t.current(); ok {
		return rev.strategy
	}
	return t.opts.Strategy
}

// Check verifies the structure of the committed revision and that it holds
// as many entries as its header claims.
func (t *Table) Check(ctx context.Context) error {
	rev, ckpt := t.rev.Acquire()
	if ckpt == nil {
		if t.state.Load() == stateClosed {
			return &glass.Error{Kind: glass.ErrClosed, Op: "check", Table: t.name}
		}
		return nil
	}
	defer ckpt.Release()

	count, err := bptree.Check(ctx, rev.store, rev.root)
	if err != nil {
		return glass.WithTable(err, t.name)
	}
	if count != rev.count {
		return &glass.Error{Kind: glass.ErrCorruption, Op: "check", Table: t.name, Err: fmt.Errorf("header counts %d entries, tree holds %d", rev.count, count)}
	}
	return nil
}

// Stats describes the table file.
type Stats struct {
	Revision   uint32
	Entries    uint64
	BlockSize  int
	BlockCount uint32
	FreeCount  int
	Height     uint8
}

func (t *Table) Stats() (stats Stats) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	rev, ok := t.current()
	if !ok || t.store == nil {
		return
	}
	return Stats{
		Revision:   rev.number,
		Entries:    rev.count,
		BlockSize:  t.store.BlockSize(),
		BlockCount: t.store.BlockCount(),
		FreeCount:  t.store.FreeCount(),
		Height:     rev.root.High,
	}
}

type staged struct {
	val     []byte
	deleted bool
}

type stage = skipmap.FuncMap[[]byte, staged]

func newStage() *stage {
	return skipmap.NewFunc[[]byte, staged](func(a, b []byte) bool {
		return string(a) < string(b)
	})
}
