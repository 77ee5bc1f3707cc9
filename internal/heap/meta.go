// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package heap

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Meta is the table header stored in block 0 or block 1, TLV encoded after
// the magic code and sealed with a CRC32C.
type Meta struct {
	Entry    []byte // Opaque root entry of the owner (key: 16)
	Freelist []byte // Inline free list, uvarint deltas (key: 13)

	FreelistID BlockID // First block of a spilled free list (key: 15)
	FreeCount  uint32  // Number of free blocks (key: 12)
	FreeRecent uint32  // Trailing free blocks released by the last commit (key: 11)

	BlockCount uint32 // Total number of blocks (key: 8)
	BlockSize  uint32 // Size of each block in bytes (key: 7)

	UpdateTime int64  // Last commit, unix milliseconds (key: 6)
	Ckp        uint32 // Checkpoint number (key: 5)

	Version byte // Version (key: 1)
}

var castagnoliCrcTable = crc32.MakeTable(crc32.Castagnoli)

func checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliCrcTable)
}

func decodeMeta[R io.Reader](f R, meta *Meta) (err error) {
	c := crc32.New(castagnoliCrcTable)
	r := io.TeeReader(f, c)
	d := tlvDecoder{r}
	var key int64
	var val uint64
	for {
		key, err = d.readKey()
		if err != nil {
			return
		}
		switch key {
		case 0:
			var buf [4]byte
			if _, err = io.ReadFull(f, buf[:]); err != nil {
				return
			}
			if c.Sum32() != binary.LittleEndian.Uint32(buf[:]) {
				err = fmt.Errorf("%w checksum", ErrInvalidMeta)
			}
			return
		case -13, -16:
			if val, err = d.readVal(); err != nil {
				return
			}
			var b []byte
			if b, err = d.readBytes(val); err != nil {
				return
			}
			if key == -13 {
				meta.Freelist = b
			} else {
				meta.Entry = b
			}
			continue
		}

		if val, err = d.readVal(); err != nil {
			return
		}
		switch key {
		case 1:
			meta.Version = byte(val)
		case 5:
			meta.Ckp = uint32(val)
		case 6:
			meta.UpdateTime = int64(val)
		case 7:
			meta.BlockSize = uint32(val)
		case 8:
			meta.BlockCount = uint32(val)
		case 11:
			meta.FreeRecent = uint32(val)
		case 12:
			meta.FreeCount = uint32(val)
		case 15:
			meta.FreelistID = BlockID(val)
		default:
			if key < 0 {
				if _, err = d.readBytes(val); err != nil {
					return
				}
			}
		}
	}
}

func encodeMeta[W io.Writer](f W, meta *Meta) (err error) {
	c := crc32.New(castagnoliCrcTable)
	w := io.MultiWriter(f, c)
	e := tlvEncoder{w}
	if err = e.writeVal(1, uint64(meta.Version)); err != nil {
		return
	}
	if err = e.writeBytes(16, meta.Entry); err != nil {
		return
	}
	if err = e.writeBytes(13, meta.Freelist); err != nil {
		return
	}
	if err = e.writeVal(5, uint64(meta.Ckp)); err != nil {
		return
	}
	if err = e.writeVal(6, uint64(meta.UpdateTime)); err != nil {
		return
	}
	if err = e.writeVal(7, uint64(meta.BlockSize)); err != nil {
		return
	}
	if err = e.writeVal(8, uint64(meta.BlockCount)); err != nil {
		return
	}
	if err = e.writeVal(12, uint64(meta.FreeCount)); err != nil {
		return
	}
	if err = e.writeVal(11, uint64(meta.FreeRecent)); err != nil {
		return
	}
	if err = e.writeVal(15, uint64(meta.FreelistID)); err != nil {
		return
	}
	{
		var buf [4]byte
		if _, err = e.Write(buf[:1]); err != nil {
			return
		}
		binary.LittleEndian.PutUint32(buf[:], c.Sum32())
		_, err = f.Write(buf[:])
	}
	return
}

type tlvDecoder struct {
	io.Reader
}

func (d tlvDecoder) ReadByte() (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(d, buf[:])
	return buf[0], err
}

func (d tlvDecoder) readVal() (uint64, error) {
	return binary.ReadUvarint(d)
}

func (d tlvDecoder) readKey() (int64, error) {
	return binary.ReadVarint(d)
}

func (d tlvDecoder) readBytes(length uint64) (bytes []byte, err error) {
	if length >= 1<<16 {
		err = fmt.Errorf("%w bytes", ErrInvalidMeta)
		return
	}
	bytes = make([]byte, length)
	_, err = io.ReadFull(d, bytes)
	return
}

type tlvEncoder struct {
	io.Writer
}

func (e tlvEncoder) writeVal(key int64, val uint64) (err error) {
	if val == 0 {
		return
	}
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutVarint(buf[:], key)
	if _, err = e.Write(buf[:n]); err != nil {
		return
	}
	n = binary.PutUvarint(buf[:], val)
	_, err = e.Write(buf[:n])
	return
}

func (e tlvEncoder) writeBytes(key int64, val []byte) (err error) {
	if val == nil {
		return
	}
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutVarint(buf[:], -key)
	if _, err = e.Write(buf[:n]); err != nil {
		return
	}
	n = binary.PutUvarint(buf[:], uint64(len(val)))
	if _, err = e.Write(buf[:n]); err != nil {
		return
	}
	_, err = e.Write(val)
	return
}

// sizeMeta returns the encoded size of meta including magic and CRC.
func sizeMeta(meta *Meta) int {
	size := 4 // magic
	size += sizeBytes(16, meta.Entry)
	size += sizeBytes(13, meta.Freelist)
	size += sizeVal(1, uint64(meta.Version))
	size += sizeVal(5, uint64(meta.Ckp))
	size += sizeVal(6, uint64(meta.UpdateTime))
	size += sizeVal(7, uint64(meta.BlockSize))
	size += sizeVal(8, uint64(meta.BlockCount))
	size += sizeVal(12, uint64(meta.FreeCount))
	size += sizeVal(11, uint64(meta.FreeRecent))
	size += sizeVal(15, uint64(meta.FreelistID))
	size += 1 // terminator
	size += 4 // CRC32
	return size
}

func sizeVal(key int64, val uint64) int {
	if val == 0 {
		return 0
	}
	return sizeVarint(key) + sizeUvarint(val)
}

func sizeBytes(key int64, val []byte) int {
	if val == nil {
		return 0
	}
	return sizeVarint(-key) + sizeUvarint(uint64(len(val))) + len(val)
}

func sizeVarint(v int64) int {
	uv := uint64(v) << 1
	if v < 0 {
		uv = ^uv
	}
	return sizeUvarint(uv)
}

func sizeUvarint(v uint64) (size int) {
	for size = 1; v >= 0x80; size++ {
		v >>= 7
	}
	return
}
