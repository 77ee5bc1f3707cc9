// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package bptree implements a copy-on-write B+ tree over a glass block store.
//
// A tree is addressed by its Root. Committed pages are never modified:
// Write rebuilds the root-to-leaf paths touched by a batch of changes into
// freshly allocated blocks and recycles the blocks they replace, so readers
// holding an older Root keep a consistent view for as long as the store
// keeps that revision alive.
package bptree

import "github.com/dacapoday/glass"

type BlockID = glass.BlockID
type ReadOnly = glass.ReadOnly
type ReadWrite = glass.ReadWrite

// MaxKeySize is the largest key a tree accepts.
const MaxKeySize = 252

// Root identifies one revision of a tree. The zero Root is the empty tree.
type Root struct {
	ID   BlockID // root page, 0 when empty
	High uint8   // 0 when the root is a leaf
}

func (root Root) Empty() bool {
	return root.ID == 0
}
