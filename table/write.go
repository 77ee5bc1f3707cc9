// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package table

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/dacapoday/glass"
	"github.com/dacapoday/glass/bptree"
	"github.com/dacapoday/glass/internal/heap"
)

func (t *Table) checkKey(op string, key []byte) error {
	switch {
	case len(key) == 0:
		return &glass.Error{Kind: glass.ErrInvalidOperation, Op: op, Table: t.name, Err: errors.New("empty key")}
	case len(key) > bptree.MaxKeySize:
		return &glass.Error{Kind: glass.ErrKeyTooLarge, Op: op, Table: t.name, Key: bytes.Clone(key),
			Err: fmt.Errorf("%d > %d", len(key), bptree.MaxKeySize)}
	}
	return nil
}

func (t *Table) writable(op string) error {
	if t.state.Load() == stateClosed {
		return &glass.Error{Kind: glass.ErrClosed, Op: op, Table: t.name}
	}
	if t.opts.ReadOnly {
		return &glass.Error{Kind: glass.ErrReadOnly, Op: op, Table: t.name}
	}
	return nil
}

// Get returns the value stored under key. Changes staged by Put and Erase
// are visible to Get before they are committed.
func (t *Table) Get(key []byte) (val []byte, found bool, err error) {
	if err = t.checkKey("get", key); err != nil {
		return
	}
	if staged := t.staged.Load(); staged != nil {
		if s, ok := staged.Load(key); ok {
			if s.deleted {
				return
			}
			return bytes.Clone(s.val), true, nil
		}
	}

	rev, ckpt := t.rev.Acquire()
	if ckpt == nil {
		if t.state.Load() == stateClosed {
			err = &glass.Error{Kind: glass.ErrClosed, Op: "get", Table: t.name}
		}
		return
	}
	defer ckpt.Release()

	if val, found, err = bptree.Get(rev.store, rev.root, nil, key); err != nil {
		err = glass.WithKey(glass.WithTable(err, t.name), key)
	}
	return
}

// Put stages val under key, replacing any previous value.
func (t *Table) Put(key, val []byte) error {
	if err := t.writable("put"); err != nil {
		return err
	}
	if err := t.checkKey("put", key); err != nil {
		return err
	}
	if val == nil {
		val = []byte{}
	}
	t.staged.Load().Store(bytes.Clone(key), staged{val: bytes.Clone(val)})
	return nil
}

// Erase stages the removal of key. Erasing a missing key is not an error.
func (t *Table) Erase(key []byte) error {
	if err := t.writable("erase"); err != nil {
		return err
	}
	if err := t.checkKey("erase", key); err != nil {
		return err
	}
	t.staged.Load().Store(bytes.Clone(key), staged{deleted: true})
	return nil
}

// Pending returns the number of staged changes.
func (t *Table) Pending() int {
	if staged := t.staged.Load(); staged != nil {
		return staged.Len()
	}
	return 0
}

// Cancel discards staged changes.
func (t *Table) Cancel() {
	if t.state.Load() != stateClosed {
		t.staged.Store(newStage())
	}
}

// Commit applies staged changes as a new revision labeled with label. On
// failure the committed revision is unchanged.
func (t *Table) Commit(label string) (err error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if err = t.writable("commit"); err != nil {
		return
	}
	if len(label) > maxLabel {
		return &glass.Error{Kind: glass.ErrInvalidOperation, Op: "commit", Table: t.name, Err: fmt.Errorf("label length %d > %d", len(label), maxLabel)}
	}
	pending := t.staged.Load()
	if t.store == nil {
		if pending.Len() > 0 {
			return &glass.Error{Kind: glass.ErrInvalidOperation, Op: "commit", Table: t.name, Err: errors.New("table not created")}
		}
		return
	}

	start := time.Now()
	defer func() { t.opts.Metrics.Commit(t.name, start, err) }()

	changes := make([]bptree.Change, 0, pending.Len())
	pending.Range(func(key []byte, s staged) bool {
		changes = append(changes, bptree.Change{Key: key, Val: s.val, Delete: s.deleted})
		return true
	})

	var next revision
	err = t.rev.Swap(func(cur revision) (rev revision, ckpt heap.Checkpoint, err error) {
		rev = cur
		root, delta, err := bptree.Write(t.store, cur.root, changes)
		if err != nil {
			t.store.Rollback()
			return
		}
		rev.root = root
		rev.count = uint64(int64(cur.count) + int64(delta))
		rev.label = label
		if ckpt, err = t.store.Commit(encodeEntry(rev)); err != nil {
			t.store.Rollback()
			return
		}
		rev.number = ckpt.Revision()
		next = rev
		return
	})
	if err != nil {
		t.log.Debug("commit failed", "error", err)
		return glass.WithTable(err, t.name)
	}
	t.staged.CompareAndSwap(pending, newStage())

	t.log.Debug("committed",
		"revision", next.number,
		"label", label,
		"changes", len(changes),
		"entries", next.count,
		"blocks", t.store.BlockCount(),
		"elapsed", time.Since(start))
	return
}
