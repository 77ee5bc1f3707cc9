// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package bptree

import (
	"encoding/binary"
)

// Overflow pages hold values too large for a leaf:
// {byte[0:4]:NextID, byte[4:]:Data}, NextID is 0 on the last page.
const overflowHeadSize = 4

func writeOverflow[B ReadWrite](block B, val []byte) (first BlockID, err error) {
	capacity := block.PageSize() - overflowHeadSize
	n := (len(val) + capacity - 1) / capacity
	ids := make([]BlockID, n)
	for i := range ids {
		if ids[i], err = block.AllocateBlock(); err != nil {
			return
		}
	}

	buffer := block.AllocateBuffer()
	defer block.RecycleBuffer(buffer)
	for i, id := range ids {
		var next BlockID
		if i+1 < n {
			next = ids[i+1]
		}
		part := val[i*capacity : min((i+1)*capacity, len(val))]
		binary.LittleEndian.PutUint32(buffer, next)
		copy(buffer[overflowHeadSize:], part)
		if err = block.WriteBlock(id, buffer[:overflowHeadSize+len(part)]); err != nil {
			return
		}
	}
	first = ids[0]
	return
}

// readOverflow appends the size bytes stored in the chain starting at id to buf.
func readOverflow[B ReadOnly](block B, buf []byte, id BlockID, size int) (val []byte, err error) {
	capacity := block.PageSize() - overflowHeadSize
	buffer := block.AllocateBuffer()
	defer block.RecycleBuffer(buffer)

	val = buf[:0]
	for rest := size; rest > 0; rest -= capacity {
		if id == 0 {
			err = corrupt(id, "overflow chain short by %d bytes", rest)
			return
		}
		if err = block.ReadBlock(id, buffer); err != nil {
			return
		}
		val = append(val, buffer[overflowHeadSize:overflowHeadSize+min(rest, capacity)]...)
		id = binary.LittleEndian.Uint32(buffer)
	}
	if id != 0 {
		err = corrupt(id, "overflow chain longer than %d bytes", size)
		return
	}
	if val == nil {
		val = []byte{}
	}
	return
}

// overflowBlocks walks the chain starting at id.
func overflowBlocks[B ReadOnly](block B, id BlockID, size int, yield func(BlockID)) (err error) {
	capacity := block.PageSize() - overflowHeadSize
	buffer := block.AllocateBuffer()
	defer block.RecycleBuffer(buffer)

	for rest := size; rest > 0 && id != 0; rest -= capacity {
		yield(id)
		if err = block.ReadBlock(id, buffer); err != nil {
			return
		}
		id = binary.LittleEndian.Uint32(buffer)
	}
	return
}

// recycleValue releases the overflow chain of a tagged value, if any.
func recycleValue[B ReadWrite](block B, val []byte) error {
	_, id, size, ok := decodeValue(val)
	if !ok || id == 0 {
		return nil
	}
	return overflowBlocks(block, id, size, block.RecycleBlock)
}
