// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package heap

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sync/atomic"
)

type Checkpoint = *checkpoint

// checkpoint pins one committed revision. Blocks released while building
// the next revision are parked in freed until this checkpoint and every
// older one have been released.
type checkpoint struct {
	next  *checkpoint
	freed []BlockID
	ref   atomic.Int32
	ckp   uint32
}

func (ckpt *checkpoint) Acquire() {
	ckpt.ref.Add(1)
}

func (ckpt *checkpoint) Release() {
	ckpt.ref.Add(-1)
}

// Revision returns the checkpoint number of the pinned revision.
func (ckpt *checkpoint) Revision() uint32 {
	return ckpt.ckp
}

func (ckpt *checkpoint) released() bool {
	return ckpt.ref.Load() <= 0
}

// free tracks allocatable blocks and the blocks touched by the
// uncommitted revision.
type free struct {
	avail    []BlockID // allocatable now
	reused   []BlockID // taken from avail since the last commit
	recycled []BlockID // released since the last commit
}

func (f *free) pop() (blockID BlockID, ok bool) {
	n := len(f.avail)
	if n == 0 {
		return
	}
	blockID = f.avail[n-1]
	f.avail = f.avail[:n-1]
	f.reused = append(f.reused, blockID)
	ok = true
	return
}

func (f *free) rollback() {
	f.avail = append(f.avail, f.reused...)
	f.reused = f.reused[:0]
	f.recycled = f.recycled[:0]
}

// encodeFreelist writes each group sorted and delta encoded as zigzag varints.
func encodeFreelist(dst []byte, groups ...[]BlockID) []byte {
	var prev int64
	for _, group := range groups {
		sorted := slices.Clone(group)
		slices.Sort(sorted)
		for _, id := range sorted {
			dst = binary.AppendVarint(dst, int64(id)-prev)
			prev = int64(id)
		}
	}
	return dst
}

func decodeFreelist(src []byte, count uint32, blockCount uint32) (list []BlockID, err error) {
	list = make([]BlockID, 0, count)
	var prev int64
	for range count {
		delta, n := binary.Varint(src)
		if n <= 0 {
			err = fmt.Errorf("%w: short", ErrInvalidFreelist)
			return
		}
		src = src[n:]
		prev += delta
		if prev < 2 || prev >= int64(blockCount) {
			err = fmt.Errorf("%w: block %d out of range", ErrInvalidFreelist, prev)
			return
		}
		list = append(list, BlockID(prev))
	}
	return
}

// freelist chain block: [crc32c:4][next:4][length:4][data]
const chainHeadSize = 12

func chainCapacity(blockSize int) int {
	return blockSize - chainHeadSize
}

func encodeChainBlock(buffer []byte, next BlockID, data []byte) []byte {
	buffer = buffer[:chainHeadSize+len(data)]
	binary.LittleEndian.PutUint32(buffer[4:8], next)
	binary.LittleEndian.PutUint32(buffer[8:12], uint32(len(data)))
	copy(buffer[chainHeadSize:], data)
	binary.LittleEndian.PutUint32(buffer[0:4], checksum(buffer[4:]))
	return buffer
}

func decodeChainBlock(buffer []byte) (next BlockID, data []byte, err error) {
	if len(buffer) < chainHeadSize {
		err = fmt.Errorf("%w: chain block too short", ErrInvalidFreelist)
		return
	}
	length := int(binary.LittleEndian.Uint32(buffer[8:12]))
	if length > len(buffer)-chainHeadSize {
		err = fmt.Errorf("%w: chain length %d", ErrInvalidFreelist, length)
		return
	}
	if checksum(buffer[4:chainHeadSize+length]) != binary.LittleEndian.Uint32(buffer[0:4]) {
		err = fmt.Errorf("%w: chain checksum", ErrInvalidFreelist)
		return
	}
	next = binary.LittleEndian.Uint32(buffer[4:8])
	data = buffer[chainHeadSize : chainHeadSize+length]
	return
}
