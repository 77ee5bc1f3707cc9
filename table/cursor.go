// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package table

import (
	"bytes"

	"github.com/dacapoday/glass"
	"github.com/dacapoday/glass/bptree"
	"github.com/dacapoday/glass/internal/heap"
	"github.com/dacapoday/glass/internal/metrics"
)

// Cursor iterates over the committed revision that was current when it was
// opened. It never sees staged changes. A Cursor is not safe for concurrent
// use; Clone it instead.
type Cursor struct {
	name    string
	metrics *metrics.Metrics
	rev     revision
	ckpt    heap.Checkpoint
	reader  bptree.Reader[*Store]
	closed  bool
}

// Cursor opens a cursor positioned before the first entry. The cursor pins
// its revision until Close.
func (t *Table) Cursor() (*Cursor, error) {
	rev, ckpt := t.rev.Acquire()
	if ckpt == nil && t.state.Load() == stateClosed {
		return nil, &glass.Error{Kind: glass.ErrClosed, Op: "cursor", Table: t.name}
	}
	c := &Cursor{name: t.name, metrics: t.opts.Metrics, rev: rev, ckpt: ckpt}
	c.reader.Load(rev.store, rev.root)
	c.metrics.CursorOpened(c.name)
	return c, nil
}

// Revision returns the revision the cursor reads.
func (c *Cursor) Revision() uint32 { return c.rev.number }

// Valid reports whether the cursor is on an entry.
func (c *Cursor) Valid() bool { return c.reader.Valid() }

// Next moves to the next entry, or to the first one from before the start.
// It reports false once the cursor moves past the last entry.
func (c *Cursor) Next() bool { return c.reader.Next() }

// Prev moves to the previous entry. Moving before the first entry returns
// the cursor to its starting position.
func (c *Cursor) Prev() bool { return c.reader.Prev() }

// Rewind moves the cursor before the first entry.
func (c *Cursor) Rewind() { c.reader.Rewind() }

// SeekLast moves the cursor to the last entry.
func (c *Cursor) SeekLast() bool { return c.reader.SeekLast() }

// FindEntryGE positions the cursor at the first entry whose key is >= key
// and reports whether that key equals key exactly.
func (c *Cursor) FindEntryGE(key []byte) bool {
	if !c.reader.Seek(key) {
		return false
	}
	return bytes.Equal(c.reader.Key(), key)
}

// Key returns the current key, nil when the cursor is not on an entry.
// The slice is valid until the cursor moves.
func (c *Cursor) Key() []byte { return c.reader.Key() }

// Value returns the current value, nil when the cursor is not on an entry.
// The slice is valid until the cursor moves.
func (c *Cursor) Value() []byte { return c.reader.Val() }

// ValueSize returns the length of the current value without reading it.
func (c *Cursor) ValueSize() int { return c.reader.ValSize() }

// Err returns the error that stopped the cursor, if any.
func (c *Cursor) Err() error {
	return glass.WithTable(c.reader.Error(), c.name)
}

// Clone returns an independent cursor at the same position.
func (c *Cursor) Clone() *Cursor {
	dst := &Cursor{name: c.name, metrics: c.metrics, rev: c.rev, ckpt: c.ckpt}
	if dst.ckpt != nil {
		dst.ckpt.Acquire()
	}
	dst.reader.LoadFrom(&c.reader)
	dst.metrics.CursorOpened(dst.name)
	return dst
}

// Close releases the revision. Close is idempotent.
func (c *Cursor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.reader.Close()
	if c.ckpt != nil {
		c.ckpt.Release()
		c.ckpt = nil
	}
	c.rev = revision{}
	c.metrics.CursorClosed(c.name)
}
