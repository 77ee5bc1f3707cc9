// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package bptree

import (
	"bytes"
	"context"
	"runtime"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Check verifies the structure of the tree at root: every page decodes,
// leaves sit at the same depth, keys ascend across the whole tree and lie
// within the bounds of their separators, and overflow chains hold the
// recorded length. Subtrees below the root are checked in parallel.
// It returns the number of entries.
func Check[B ReadOnly](ctx context.Context, block B, root Root) (count uint64, err error) {
	if root.ID == 0 {
		return
	}

	buffer := block.AllocateBuffer()
	defer block.RecycleBuffer(buffer)
	c := checker[B]{block: block}
	page, err := c.read(root.ID, buffer, root.High)
	if err != nil {
		return
	}
	if page.IsLeaf() {
		err = c.leaf(root.ID, page, nil, nil)
		count = c.count.Load()
		return
	}

	children := make([]branchItem, 0, page.Count())
	for key, id := range page.BranchItems() {
		children = append(children, branchItem{key: slices.Clone(key), id: id})
	}
	if err = c.order(root.ID, children, nil, nil); err != nil {
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, child := range children {
		lo, hi := bounds(children, i, nil, nil)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return c.subtree(child.id, root.High-1, lo, hi)
		})
	}
	err = g.Wait()
	count = c.count.Load()
	return
}

type checker[B ReadOnly] struct {
	block B
	count atomic.Uint64
}

func (c *checker[B]) read(blockID BlockID, buffer []byte, high uint8) (page Page, err error) {
	if err = c.block.ReadBlock(blockID, buffer); err != nil {
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

// bounds returns the key range of child i: its separator, unless it is the
// first child, up to the next separator.
func bounds(children []branchItem, i int, lo, hi []byte) ([]byte, []byte) {
	if i > 0 {
		lo = children[i].key
	}
	if i+1 < len(children) {
		hi = children[i+1].key
	}
	return lo, hi
}

func (c *checker[B]) order(blockID BlockID, children []branchItem, lo, hi []byte) error {
	for i, child := range children {
		if i > 0 && bytes.Compare(children[i-1].key, child.key) >= 0 {
			return corrupt(blockID, "separator %d out of order", i)
		}
		if i > 0 && lo != nil && bytes.Compare(child.key, lo) < 0 {
			return corrupt(blockID, "separator %d below lower bound", i)
		}
		if hi != nil && bytes.Compare(child.key, hi) >= 0 {
			return corrupt(blockID, "separator %d above upper bound", i)
		}
	}
	return nil
}

func (c *checker[B]) subtree(blockID BlockID, high uint8, lo, hi []byte) error {
	buffer := c.block.AllocateBuffer()
	defer c.block.RecycleBuffer(buffer)
	page, err := c.read(blockID, buffer, high)
	if err != nil {
		return err
	}
	if page.IsLeaf() {
		return c.leaf(blockID, page, lo, hi)
	}

	children := make([]branchItem, 0, page.Count())
	for key, id := range page.BranchItems() {
		children = append(children, branchItem{key: slices.Clone(key), id: id})
	}
	if err = c.order(blockID, children, lo, hi); err != nil {
		return err
	}
	for i, child := range children {
		clo, chi := bounds(children, i, lo, hi)
		if err = c.subtree(child.id, high-1, clo, chi); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker[B]) leaf(blockID BlockID, page Page, lo, hi []byte) error {
	var prev []byte
	for i := range page.Count() {
		key := page.LeafKey(i)
		if len(key) > MaxKeySize {
			return corrupt(blockID, "key %d too large", i)
		}
		if prev != nil && bytes.Compare(prev, key) >= 0 {
			return corrupt(blockID, "key %d out of order", i)
		}
		if lo != nil && bytes.Compare(key, lo) < 0 {
			return corrupt(blockID, "key %d below separator", i)
		}
		if hi != nil && bytes.Compare(key, hi) >= 0 {
			return corrupt(blockID, "key %d above separator", i)
		}
		prev = key

		_, id, size, ok := decodeValue(page.LeafVal(i))
		if !ok {
			return corrupt(blockID, "malformed value %d", i)
		}
		if id != 0 {
			if _, err := readOverflow(c.block, nil, id, size); err != nil {
				return err
			}
		}
	}
	c.count.Add(uint64(page.Count()))
	return nil
}
