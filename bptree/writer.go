// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package bptree

import (
	"bytes"
	"fmt"
	"slices"
)

// Change is one staged mutation of a tree.
type Change struct {
	Key    []byte
	Val    []byte
	Delete bool
}

// Write applies changes, sorted by ascending key without duplicates, to the
// tree at root. Only the pages on the paths to changed keys are rewritten;
// every replaced block is handed back through RecycleBlock. It returns the
// root of the new revision and the change in entry count.
func Write[B ReadWrite](block B, root Root, changes []Change) (newRoot Root, delta int, err error) {
	for i, change := range changes {
		if len(change.Key) == 0 {
			err = ErrEmptyKey
			return
		}
		if len(change.Key) > MaxKeySize {
			err = fmt.Errorf("%w: %d > %d", ErrKeyTooLarge, len(change.Key), MaxKeySize)
			return
		}
		if i > 0 && bytes.Compare(changes[i-1].Key, change.Key) >= 0 {
			err = ErrUnsorted
			return
		}
	}
	if len(changes) == 0 {
		newRoot = root
		return
	}

	w := writer[B]{
		block:    block,
		capacity: block.PageSize() - HeadSize,
		limit:    inlineLimit(block.PageSize()),
	}

	var items []branchItem
	high := root.High
	if root.ID == 0 {
		high = 0
		items, err = w.leaf(nil, changes)
	} else {
		items, err = w.rewrite(root.ID, root.High, changes)
	}
	if err != nil {
		return
	}

	for len(items) > 1 {
		if items, err = w.branch(items); err != nil {
			return
		}
		high++
	}
	delta = w.delta
	if len(items) == 0 {
		return
	}
	newRoot, err = w.collapse(Root{ID: items[0].id, High: high})
	return
}

type writer[B ReadWrite] struct {
	block    B
	capacity int
	limit    int
	delta    int
}

func (w *writer[B]) read(blockID BlockID, buffer []byte, high uint8) (page Page, err error) {
	if err = w.block.ReadBlock(blockID, buffer); err != nil {
		return
	}
	page = Page(buffer)
	if err = page.validate(); err != nil {
		err = corrupt(blockID, "%v", err)
		return
	}
	if page.IsLeaf() != (high == 0) {
		err = corrupt(blockID, "page height mismatch, want %d", high)
	}
	return
}

// rewrite replaces the subtree at blockID, of height high, with pages that
// include changes. It returns the pages now standing in for the subtree.
func (w *writer[B]) rewrite(blockID BlockID, high uint8, changes []Change) (out []branchItem, err error) {
	buffer := w.block.AllocateBuffer()
	page, err := w.read(blockID, buffer, high)
	if err != nil {
		w.block.RecycleBuffer(buffer)
		return
	}

	if high == 0 {
		existing := make([]leafItem, 0, page.Count())
		for key, val := range page.LeafItems() {
			existing = append(existing, leafItem{key: slices.Clone(key), val: slices.Clone(val)})
		}
		w.block.RecycleBuffer(buffer)
		w.block.RecycleBlock(blockID)
		return w.leaf(existing, changes)
	}

	children := make([]branchItem, 0, page.Count())
	for key, id := range page.BranchItems() {
		children = append(children, branchItem{key: slices.Clone(key), id: id})
	}
	w.block.RecycleBuffer(buffer)
	w.block.RecycleBlock(blockID)

	out = make([]branchItem, 0, len(children))
	i := 0
	for c, child := range children {
		j := len(changes)
		if c+1 < len(children) {
			next := children[c+1].key
			for j = i; j < len(changes) && bytes.Compare(changes[j].Key, next) < 0; j++ {
			}
		}
		if j == i {
			out = append(out, child)
			continue
		}

		var sub []branchItem
		if sub, err = w.rewrite(child.id, high-1, changes[i:j]); err != nil {
			return
		}
		if c > 0 && len(sub) > 0 {
			sub[0].key = child.key
		}
		out = append(out, sub...)
		i = j
	}
	return w.branch(out)
}

// leaf merges changes into the items of one leaf and writes the result.
func (w *writer[B]) leaf(existing []leafItem, changes []Change) (out []branchItem, err error) {
	merged := make([]leafItem, 0, len(existing)+len(changes))
	i := 0
	for _, change := range changes {
		for i < len(existing) && bytes.Compare(existing[i].key, change.Key) < 0 {
			merged = append(merged, existing[i])
			i++
		}
		found := i < len(existing) && bytes.Equal(existing[i].key, change.Key)
		if found {
			if err = recycleValue(w.block, existing[i].val); err != nil {
				return
			}
			i++
		}
		if change.Delete {
			if found {
				w.delta--
			}
			continue
		}
		if !found {
			w.delta++
		}
		var val []byte
		if val, err = w.value(change.Val); err != nil {
			return
		}
		merged = append(merged, leafItem{key: change.Key, val: val})
	}
	merged = append(merged, existing[i:]...)

	if len(merged) == 0 {
		return
	}
	buffer := w.block.AllocateBuffer()
	defer w.block.RecycleBuffer(buffer)
	for _, g := range paginate(len(merged), func(i int) int { return merged[i].size() }, w.capacity) {
		var id BlockID
		if id, err = w.block.AllocateBlock(); err != nil {
			return
		}
		page := encodeLeafPage(buffer, merged[g[0]:g[1]])
		if err = w.block.WriteBlock(id, page); err != nil {
			return
		}
		out = append(out, branchItem{key: slices.Clone(merged[g[0]].key), id: id})
	}
	return
}

// branch writes items into branch pages one level up.
func (w *writer[B]) branch(items []branchItem) (out []branchItem, err error) {
	if len(items) == 0 {
		return
	}
	buffer := w.block.AllocateBuffer()
	defer w.block.RecycleBuffer(buffer)
	for _, g := range paginate(len(items), func(i int) int { return items[i].size() }, w.capacity) {
		var id BlockID
		if id, err = w.block.AllocateBlock(); err != nil {
			return
		}
		page := encodeBranchPage(buffer, items[g[0]:g[1]])
		if err = w.block.WriteBlock(id, page); err != nil {
			return
		}
		out = append(out, branchItem{key: items[g[0]].key, id: id})
	}
	return
}

func (w *writer[B]) value(val []byte) ([]byte, error) {
	if 1+len(val) <= w.limit {
		return inlineValue(val), nil
	}
	id, err := writeOverflow(w.block, val)
	if err != nil {
		return nil, err
	}
	return overflowValue(id, len(val)), nil
}

// collapse drops branch roots that have a single child.
func (w *writer[B]) collapse(root Root) (Root, error) {
	if root.High == 0 {
		return root, nil
	}
	buffer := w.block.AllocateBuffer()
	defer w.block.RecycleBuffer(buffer)
	for root.High > 0 {
		page, err := w.read(root.ID, buffer, root.High)
		if err != nil {
			return root, err
		}
		if page.Count() != 1 {
			break
		}
		w.block.RecycleBlock(root.ID)
		root = Root{ID: page.BranchID(0), High: root.High - 1}
	}
	return root, nil
}

// paginate splits n items into runs that fit capacity. Runs are balanced
// against the page count a greedy fill would need, so the last page is not
// left nearly empty.
func paginate(n int, size func(int) int, capacity int) (runs [][2]int) {
	total, pages, cur := 0, 1, 0
	for i := range n {
		s := size(i)
		total += s
		if cur > 0 && cur+s > capacity {
			pages++
			cur = 0
		}
		cur += s
	}

	target := (total + pages - 1) / pages
	beg := 0
	cur = 0
	for i := range n {
		s := size(i)
		if cur > 0 && (cur+s > capacity || cur+s/2 > target) {
			runs = append(runs, [2]int{beg, i})
			total -= cur
			pages = max(pages-1, 1)
			target = (total + pages - 1) / pages
			beg, cur = i, 0
		}
		cur += s
	}
	runs = append(runs, [2]int{beg, n})
	return
}
