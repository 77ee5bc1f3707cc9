// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package bptree

import (
	"bytes"
)

// Reader provides cursor-based traversal of one revision of a tree.
//
// A Reader starts unpositioned, before the first entry. Next from there
// moves to the first entry; Next past the last entry exhausts the reader,
// after which only a seek repositions it.
type Reader[B ReadOnly] struct {
	block B
	root  Root
	err   error
	level Level
	pages []Page // pages[d] holds the page at depth d, pages[root.High] is the leaf
	page  Page
	count uint16
	index uint16
	val   []byte // overflow buffer
	ready bool   // val holds the current overflow value
}

func (reader *Reader[B]) Block() B {
	return reader.block
}

func (reader *Reader[B]) Root() Root {
	return reader.root
}

// Load initializes the reader with block and root.
// Positions reader before the first entry.
func (reader *Reader[B]) Load(block B, root Root) {
	reader.release()
	reader.block = block
	reader.root = root
	reader.err = unpositioned
	reader.level = make(Level, 0, root.High)
	reader.count = 0
	reader.index = 0
}

// LoadFrom initializes the reader by copying state from src.
// Creates independent copy at the same position.
func (dst *Reader[B]) LoadFrom(src *Reader[B]) {
	dst.Load(src.block, src.root)
	dst.err = src.err
	if src.err != null {
		return
	}
	dst.level = append(dst.level, src.level...)
	for _, page := range src.pages {
		if page == nil {
			dst.pages = append(dst.pages, nil)
			continue
		}
		buffer := dst.block.AllocateBuffer()
		copy(buffer, page)
		dst.pages = append(dst.pages, Page(buffer))
	}
	dst.page = dst.pages[dst.root.High]
	dst.count = src.count
	dst.index = src.index
}

func (reader *Reader[B]) release() {
	for _, page := range reader.pages {
		if page != nil {
			reader.block.RecycleBuffer(page)
		}
	}
	reader.pages = nil
	reader.page = nil
	reader.val = nil
	reader.ready = false
}

// Close releases resources and resets the reader.
func (reader *Reader[B]) Close() {
	reader.release()
	reader.err = nil
	reader.level = nil
	reader.root = Root{}
	reader.count = 0
	reader.index = 0

	var nilBlock B
	reader.block = nilBlock
}

// Valid reports whether the reader is positioned on an entry.
func (reader *Reader[B]) Valid() bool {
	return reader.err == null
}

// Exhausted reports whether the reader moved past the last entry.
func (reader *Reader[B]) Exhausted() bool {
	return reader.err == exhausted
}

// Error returns the error that stopped the reader, if any.
func (reader *Reader[B]) Error() error {
	switch reader.err {
	case null, exhausted, unpositioned:
		return nil
	}
	return reader.err
}

// Rewind moves the reader before the first entry.
func (reader *Reader[B]) Rewind() {
	if reader.err == nil {
		return
	}
	reader.err = unpositioned
	reader.ready = false
}

func (reader *Reader[B]) SeekFirst() bool {
	return reader.descend(reader.root.ID, 0, first)
}

func (reader *Reader[B]) SeekLast() bool {
	return reader.descend(reader.root.ID, 0, last)
}

// Seek positions the reader at the first entry whose key is >= key.
func (reader *Reader[B]) Seek(key []byte) bool {
	return reader.descend(reader.root.ID, 0, func(page Page) uint16 {
		if page.IsLeaf() {
			return page.leafIndex(key)
		}
		return page.branchIndex(key)
	})
}

// Next moves to the following entry. From the unpositioned state it moves
// to the first entry.
func (reader *Reader[B]) Next() bool {
	switch reader.err {
	case null:
	case unpositioned:
		return reader.SeekFirst()
	default:
		return false
	}
	reader.ready = false
	if reader.index+1 < reader.count {
		reader.index++
		return true
	}
	return reader.step(true)
}

// Prev moves to the preceding entry. Moving before the first entry leaves
// the reader unpositioned.
func (reader *Reader[B]) Prev() bool {
	if reader.err != null {
		return false
	}
	reader.ready = false
	if reader.index > 0 {
		reader.index--
		return true
	}
	if !reader.step(false) && reader.err == exhausted {
		reader.err = unpositioned
	}
	return reader.err == null
}

func first(page Page) uint16 {
	return 0
}

func last(page Page) uint16 {
	return page.Count() - 1
}

func (reader *Reader[B]) buffer(depth int) Page {
	for len(reader.pages) <= depth {
		reader.pages = append(reader.pages, nil)
	}
	if reader.pages[depth] == nil {
		reader.pages[depth] = Page(reader.block.AllocateBuffer())
	}
	return reader.pages[depth]
}

func (reader *Reader[B]) read(blockID BlockID, depth int) (page Page, err error) {
	page = reader.buffer(depth)
	if err = reader.block.ReadBlock(blockID, page); err != nil {
		return
	}
	if err = page.validate(); err != nil {
		err = corrupt(blockID, "%v", err)
		return
	}
	if page.IsLeaf() != (depth == int(reader.root.High)) {
		err = corrupt(blockID, "page at depth %d of tree with height %d", depth, reader.root.High)
	}
	return
}

// descend reads pages from blockID at depth down to a leaf, choosing the
// child or item at each page with pick. A leaf index equal to the count
// moves on to the next leaf.
func (reader *Reader[B]) descend(blockID BlockID, depth int, pick func(Page) uint16) bool {
	reader.ready = false
	if reader.err == nil {
		return false
	}
	if blockID == 0 {
		reader.err = exhausted
		return false
	}
	reader.level = reader.level[:depth]
	for {
		page, err := reader.read(blockID, depth)
		if err != nil {
			reader.err = err
			return false
		}
		index := pick(page)
		if page.IsLeaf() {
			reader.page = page
			reader.count = page.Count()
			reader.index = index
			reader.err = null
			if index >= reader.count {
				return reader.step(true)
			}
			return true
		}
		reader.level = append(reader.level, level{
			BlockID: blockID,
			Count:   page.Count(),
			Index:   index,
		})
		blockID = page.BranchID(index)
		depth++
	}
}

// step moves to the first entry of the next leaf, or the last entry of the
// previous one.
func (reader *Reader[B]) step(forward bool) bool {
	for d := len(reader.level) - 1; d >= 0; d-- {
		l := &reader.level[d]
		if forward && l.Index+1 < l.Count {
			l.Index++
		} else if !forward && l.Index > 0 {
			l.Index--
		} else {
			continue
		}
		pick := first
		if !forward {
			pick = last
		}
		return reader.descend(reader.pages[d].BranchID(l.Index), d+1, pick)
	}
	reader.err = exhausted
	return false
}

// Key returns the current key. The slice is valid until the reader moves.
func (reader *Reader[B]) Key() []byte {
	if reader.err != null {
		return nil
	}
	return reader.page.LeafKey(reader.index)
}

// Val returns the current value, reading overflow pages when needed.
// The slice is valid until the reader moves.
func (reader *Reader[B]) Val() []byte {
	if reader.err != null {
		return nil
	}
	inline, id, size, ok := decodeValue(reader.page.LeafVal(reader.index))
	if !ok {
		reader.err = corrupt(reader.leafID(), "malformed value at index %d", reader.index)
		return nil
	}
	if id == 0 {
		return inline
	}
	if !reader.ready {
		val, err := readOverflow(reader.block, reader.val, id, size)
		if err != nil {
			reader.err = err
			return nil
		}
		reader.val = val
		reader.ready = true
	}
	return reader.val
}

// ValCopy appends the current value to buf[:0].
func (reader *Reader[B]) ValCopy(buf []byte) (val []byte) {
	v := reader.Val()
	if reader.err != null {
		return
	}
	if val = append(buf[:0], v...); val == nil {
		val = []byte{}
	}
	return
}

// ValSize returns the length of the current value without reading overflow pages.
func (reader *Reader[B]) ValSize() int {
	if reader.err != null {
		return 0
	}
	_, _, size, _ := decodeValue(reader.page.LeafVal(reader.index))
	return size
}

func (reader *Reader[B]) leafID() BlockID {
	if len(reader.level) == 0 {
		return reader.root.ID
	}
	l := reader.level[len(reader.level)-1]
	return reader.pages[len(reader.level)-1].BranchID(l.Index)
}

// Get returns the value stored under key in the tree at root.
func Get[B ReadOnly](block B, root Root, buf, key []byte) (val []byte, found bool, err error) {
	reader := new(Reader[B])
	reader.Load(block, root)
	defer reader.Close()

	if !reader.Seek(key) {
		err = reader.Error()
		return
	}
	if !bytes.Equal(reader.Key(), key) {
		return
	}
	if val = reader.ValCopy(buf); val == nil {
		err = reader.Error()
		return
	}
	found = true
	return
}
