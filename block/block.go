// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package block frames pages into checksummed, optionally compressed blocks
// on top of the heap allocator.
//
// Each block is laid out as
//
//	[crc32c:4][method:1][stored:2][raw:2][payload:stored]
//
// where the checksum covers everything after itself up to the end of the
// payload, method is the compress.Strategy of the payload, and raw is the
// length of the page the payload decodes to. Only the used prefix of a block
// is written.
package block

import (
	"hash/crc32"

	"github.com/dacapoday/glass"
	"github.com/dacapoday/glass/internal/heap"
)

type File = glass.File
type BlockID = glass.BlockID
type Checkpoint = heap.Checkpoint

// HeadSize is the framing overhead of every block.
const HeadSize = 9

// minCompress is the smallest page worth handing to a compressor.
const minCompress = 64

type Option interface {
	MagicCode() [4]byte
	ReadOnly() bool
	RetainCheckpoints() uint8
}

var castagnoliCrcTable = crc32.MakeTable(crc32.Castagnoli)

func checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliCrcTable)
}

var _ glass.ReadWrite = (*Store[File])(nil)
