// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package heap

type Option interface {
	MagicCode() [4]byte
	ReadOnly() bool
	RetainCheckpoints() uint8
}

// BlockSize is consulted only when a new file is initialized.
type BlockSize interface {
	BlockSize() int
}

type NoSync interface {
	NoSync() bool
}

const (
	MinBlockSize     = 2048
	MaxBlockSize     = 65536
	DefaultBlockSize = 8192
)

// ValidBlockSize reports whether size is a power of two in [MinBlockSize, MaxBlockSize].
func ValidBlockSize(size int) bool {
	return size >= MinBlockSize && size <= MaxBlockSize && size&(size-1) == 0
}

func getBlockSize(opt any) int {
	if o, ok := opt.(BlockSize); ok {
		if size := o.BlockSize(); size != 0 {
			return size
		}
	}
	return DefaultBlockSize
}

func getNoSync(opt any) bool {
	if o, ok := opt.(NoSync); ok {
		return o.NoSync()
	}
	return false
}

type testOption struct {
	magicCode         [4]byte
	readOnly          bool
	retainCheckpoints uint8
	blockSize         int
	noSync            bool
}

func (o testOption) MagicCode() [4]byte       { return o.magicCode }
func (o testOption) ReadOnly() bool           { return o.readOnly }
func (o testOption) RetainCheckpoints() uint8 { return o.retainCheckpoints }
func (o testOption) BlockSize() int {
	if o.blockSize == 0 {
		return MinBlockSize
	} else {
		return o.blockSize
	}
}
func (o testOption) NoSync() bool { return o.noSync }
