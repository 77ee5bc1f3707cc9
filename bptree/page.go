// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package bptree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"iter"
)

// Page represents a B+ tree page.
// Use IsLeaf to distinguish branch and leaf pages, then call the respective
// methods (Branch or Leaf prefix). Incorrect calls are undefined behavior.
type Page []byte

// Page use LittleEndian encoding
// LeafPage is {byte[0:2]:Head, byte[2:4]:Size, byte[4:4+Count*2]:offset, byte[4+Count*2:4+Size]:LeafItem}
// LeafItem is {uvarint,Key,Tag,Val}, uvarint is key's length size
// Tag 0 stores Val inline, Tag 1 stores {OverflowID:4, uvarint total size}
// BranchPage is {byte[0:2]:Head, byte[2:4]:Size, byte[4:4+Count*2]:offset, byte[4+Count*2:4+Size]:BranchItem}
// BranchItem is {BlockID,Key}, Key is the lower bound of the child
// Head is MSB{bit0:reserved, bit1:IsBranch, bit[2:]:Count}LSB
// Items are packed from the end of the body in index order, so a page is
// exactly 4+Size bytes long.

const HeadSize = 4 // Head + Size

const (
	tagInline   = 0
	tagOverflow = 1
)

// Size returns the total size of the page in bytes.
func (page Page) Size() int {
	if len(page) < HeadSize {
		return len(page)
	}
	return int(binary.LittleEndian.Uint16(page[2:])) + HeadSize
}

// Count returns the number of items in the page.
func (page Page) Count() uint16 {
	if len(page) < HeadSize {
		return 0
	}
	return binary.LittleEndian.Uint16(page) & 0x3FFF
}

// IsLeaf reports whether the page is a leaf page.
func (page Page) IsLeaf() bool {
	if len(page) < HeadSize {
		return true
	}
	return page[1]&0x40 == 0
}

func (page Page) item(index uint16) []byte {
	offset := 2*index + HeadSize
	beg := binary.LittleEndian.Uint16(page[offset:]) + HeadSize
	end := binary.LittleEndian.Uint16(page[offset-2:]) + HeadSize
	return page[beg:end]
}

// validate checks the page structure so that item accessors cannot go out
// of bounds.
func (page Page) validate() error {
	if len(page) < HeadSize {
		return errors.New("page too short")
	}
	size := page.Size()
	count := page.Count()
	if size > len(page) {
		return errors.New("page size out of bounds")
	}
	if count == 0 {
		return errors.New("empty page")
	}
	if HeadSize+2*int(count) > size {
		return errors.New("offset table out of bounds")
	}
	end := size - HeadSize
	leaf := page.IsLeaf()
	for i := range count {
		beg := int(binary.LittleEndian.Uint16(page[HeadSize+2*i:]))
		if beg < 2*int(count) || beg > end {
			return errors.New("item offset out of bounds")
		}
		item := page[HeadSize+beg : HeadSize+end]
		if leaf {
			klen, n := binary.Uvarint(item)
			if n <= 0 || klen == 0 || uint64(n)+klen+1 > uint64(len(item)) {
				return errors.New("malformed leaf item")
			}
		} else if len(item) < 5 {
			return errors.New("malformed branch item")
		}
		end = beg
	}
	return nil
}

// LeafKey returns the key at the given index in a leaf page.
// Only call this method on leaf pages (when IsLeaf returns true).
func (page Page) LeafKey(index uint16) []byte {
	item := page.item(index)
	klen, klen_size := binary.Uvarint(item)
	if klen_size <= 0 {
		return nil
	}
	return item[klen_size : uint64(klen_size)+klen]
}

// LeafVal returns the tagged value at the given index in a leaf page.
// Only call this method on leaf pages (when IsLeaf returns true).
func (page Page) LeafVal(index uint16) []byte {
	item := page.item(index)
	klen, klen_size := binary.Uvarint(item)
	if klen_size <= 0 {
		return nil
	}
	return item[uint64(klen_size)+klen:]
}

// LeafItems iterates over the keys and tagged values of a leaf page.
func (page Page) LeafItems() iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		for i := range page.Count() {
			if !yield(page.LeafKey(i), page.LeafVal(i)) {
				return
			}
		}
	}
}

// BranchKey returns the key at the given index in a branch page.
// Only call this method on branch pages (when IsLeaf returns false).
func (page Page) BranchKey(index uint16) []byte {
	return page.item(index)[4:]
}

// BranchID returns the block ID at the given index in a branch page.
// Only call this method on branch pages (when IsLeaf returns false).
func (page Page) BranchID(index uint16) BlockID {
	return binary.LittleEndian.Uint32(page.item(index))
}

// BranchItems iterates over the keys and child block IDs of a branch page.
func (page Page) BranchItems() iter.Seq2[[]byte, BlockID] {
	return func(yield func([]byte, BlockID) bool) {
		for i := range page.Count() {
			if !yield(page.BranchKey(i), page.BranchID(i)) {
				return
			}
		}
	}
}

// branchIndex returns the child covering key: the last separator <= key,
// clamped to the first child.
func (page Page) branchIndex(key []byte) uint16 {
	index := search(page.Count(), func(i uint16) int {
		if bytes.Compare(page.BranchKey(i), key) <= 0 {
			return 1
		}
		return -1
	})
	if index > 0 {
		index--
	}
	return index
}

// leafIndex returns the first item whose key is >= key.
func (page Page) leafIndex(key []byte) uint16 {
	return search(page.Count(), func(i uint16) int {
		return bytes.Compare(key, page.LeafKey(i))
	})
}

type leafItem struct {
	key []byte
	val []byte // tagged
}

type branchItem struct {
	key []byte
	id  BlockID
}

func leafItemSize(klen, vlen int) int {
	// offset + klen_size + klen + vlen
	return 2 + sizeUvarint(klen) + klen + vlen
}

func branchItemSize(klen int) int {
	// offset + BlockID + klen
	return 2 + 4 + klen
}

func (item leafItem) size() int {
	return leafItemSize(len(item.key), len(item.val))
}

func (item branchItem) size() int {
	return branchItemSize(len(item.key))
}

func encodeLeafPage(buffer []byte, items []leafItem) Page {
	size := HeadSize
	for _, item := range items {
		size += item.size()
	}
	if len(items) == 0 || size > len(buffer) {
		panic(errors.New("leaf page does not fit"))
	}
	buffer = buffer[:size]

	end := size - HeadSize
	binary.LittleEndian.PutUint16(buffer[2:], uint16(end))
	body := buffer[HeadSize:]
	for i, item := range items {
		klen := len(item.key)
		beg := end - sizeUvarint(klen) - klen - len(item.val)
		binary.LittleEndian.PutUint16(body[2*i:], uint16(beg))
		p := body[beg:end]
		p = p[binary.PutUvarint(p, uint64(klen)):]
		copy(p, item.key)
		copy(p[klen:], item.val)
		end = beg
	}
	binary.LittleEndian.PutUint16(buffer, uint16(len(items))) // count
	return Page(buffer)
}

func encodeBranchPage(buffer []byte, items []branchItem) Page {
	size := HeadSize
	for _, item := range items {
		size += item.size()
	}
	if len(items) == 0 || size > len(buffer) {
		panic(errors.New("branch page does not fit"))
	}
	buffer = buffer[:size]

	end := size - HeadSize
	binary.LittleEndian.PutUint16(buffer[2:], uint16(end))
	body := buffer[HeadSize:]
	for i, item := range items {
		beg := end - 4 - len(item.key)
		binary.LittleEndian.PutUint16(body[2*i:], uint16(beg))
		binary.LittleEndian.PutUint32(body[beg:], item.id)
		copy(body[beg+4:end], item.key)
		end = beg
	}
	binary.LittleEndian.PutUint16(buffer, uint16(len(items))|0x4000) // count
	return Page(buffer)
}

// inlineValue encodes val as a tagged inline value.
func inlineValue(val []byte) []byte {
	return append([]byte{tagInline}, val...)
}

func overflowValue(id BlockID, size int) []byte {
	buf := make([]byte, 5, 5+sizeUvarint(size))
	buf[0] = tagOverflow
	binary.LittleEndian.PutUint32(buf[1:], id)
	return binary.AppendUvarint(buf, uint64(size))
}

// decodeValue splits a tagged value. For overflow values inline is nil.
func decodeValue(val []byte) (inline []byte, id BlockID, size int, ok bool) {
	if len(val) == 0 {
		return
	}
	switch val[0] {
	case tagInline:
		return val[1:], 0, len(val) - 1, true
	case tagOverflow:
		if len(val) < 6 {
			return
		}
		n, l := binary.Uvarint(val[5:])
		if l <= 0 {
			return
		}
		return nil, binary.LittleEndian.Uint32(val[1:]), int(n), true
	}
	return
}

// search returns the first index in [0, n) for which f is <= 0, or n.
func search(n uint16, f func(uint16) int) uint16 {
	var i, j uint16 = 0, n
	for i < j {
		h := (i + j) >> 1
		if f(h) > 0 {
			i = h + 1
		} else {
			j = h
		}
	}
	return i
}

// inlineLimit is the largest tagged value stored inside a leaf. It keeps
// every leaf item within a quarter of a page.
func inlineLimit(pageSize int) int {
	return (pageSize-HeadSize)/4 - leafItemSize(MaxKeySize, 0)
}

func sizeUvarint(x int) (size int) {
	switch {
	case x < 128: // 1<<7
		return 1
	case x < 16384: // 1<<14
		return 2
	case x < 2097152: // 1<<21
		return 3
	case x < 268435456: // 1<<28
		return 4
	case x < 34359738368: // 1<<35
		return 5
	case x < 4398046511104: // 1<<42
		return 6
	case x < 562949953421312: // 1<<49
		return 7
	case x < 72057594037927936: // 1<<56
		return 8
	default:
		return 9
	}
}
