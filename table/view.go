// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package table

import (
	"bytes"
	"slices"
)

// View iterates over the committed revision with the changes staged at the
// time it was opened laid over it. Staged values take precedence over
// committed ones under the same key, and erased keys are skipped. A View
// moves forward only.
type View struct {
	over  []overEntry
	index int
	base  *Cursor
	on    bool // base is positioned
	cover bool // the current entry comes from over
	valid bool
	moved bool
}

type overEntry struct {
	key []byte
	staged
}

// View opens a view positioned before the first entry.
func (t *Table) View() (*View, error) {
	base, err := t.Cursor()
	if err != nil {
		return nil, err
	}
	v := &View{base: base}
	if pending := t.staged.Load(); pending != nil {
		pending.Range(func(key []byte, s staged) bool {
			v.over = append(v.over, overEntry{key, s})
			return true
		})
	}
	return v, nil
}

func (v *View) Valid() bool { return v.valid }

// Err returns the error of the committed side, if any.
func (v *View) Err() error { return v.base.Err() }

func (v *View) Key() []byte {
	switch {
	case !v.valid:
		return nil
	case v.cover:
		return v.over[v.index].key
	}
	return v.base.Key()
}

func (v *View) Value() []byte {
	switch {
	case !v.valid:
		return nil
	case v.cover:
		return v.over[v.index].val
	}
	return v.base.Value()
}

// SeekFirst moves to the first entry.
func (v *View) SeekFirst() bool {
	v.index = 0
	v.base.Rewind()
	v.on = v.base.Next()
	return v.settle()
}

// Seek moves to the first entry whose key is >= key.
func (v *View) Seek(key []byte) bool {
	v.index, _ = slices.BinarySearchFunc(v.over, key, func(e overEntry, key []byte) int {
		return bytes.Compare(e.key, key)
	})
	v.base.FindEntryGE(key)
	v.on = v.base.Valid()
	return v.settle()
}

// Next moves to the following entry. Before the first entry it moves to
// the first one.
func (v *View) Next() bool {
	if !v.valid {
		if !v.moved {
			return v.SeekFirst()
		}
		return false
	}
	if v.cover {
		if v.on && bytes.Equal(v.base.Key(), v.over[v.index].key) {
			v.on = v.base.Next()
		}
		v.index++
	} else {
		v.on = v.base.Next()
	}
	return v.settle()
}

// settle picks the smaller of the two sides, skipping erased keys along
// with the committed entries they shadow.
func (v *View) settle() bool {
	v.moved = true
	for {
		more := v.index < len(v.over)
		if !more && !v.on {
			v.valid = false
			return false
		}
		if !more || (v.on && bytes.Compare(v.base.Key(), v.over[v.index].key) < 0) {
			v.cover, v.valid = false, true
			return true
		}
		if !v.over[v.index].deleted {
			v.cover, v.valid = true, true
			return true
		}
		if v.on && bytes.Equal(v.base.Key(), v.over[v.index].key) {
			v.on = v.base.Next()
		}
		v.index++
	}
}

// Close releases the committed revision.
func (v *View) Close() {
	v.base.Close()
	v.over = nil
	v.valid = false
}
