// Package glass defines the storage interfaces shared by the block store,
// the table engine and the iterators built on top of them.
package glass

import "io"

// File provides access to a storage backend for one table.
// The File interface is the minimum implementation required.
//
// The *os.File type satisfies this interface.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Truncate changes the size of the file.
	Truncate(size int64) error

	// Sync commits the current contents of the file to stable storage.
	Sync() error
}

// BlockID addresses a fixed-size block inside a table file.
// Blocks 0 and 1 hold the table header; 0 also means "no block".
type BlockID = uint32

// Checkpoint pins one committed revision.
// Blocks reachable from a pinned revision are never reused.
type Checkpoint interface {
	Acquire()
	Release()
}

// ReadOnly is the read half of a block store.
type ReadOnly interface {
	// PageSize returns the usable bytes of a block after framing.
	PageSize() int

	// AllocateBuffer returns a PageSize buffer from the store pool.
	AllocateBuffer() []byte

	// RecycleBuffer returns a buffer obtained from AllocateBuffer.
	RecycleBuffer(buffer []byte)

	// ReadBlock decodes block blockID into buffer.
	ReadBlock(blockID BlockID, buffer []byte) error
}

// ReadWrite is a block store that can stage a new revision.
type ReadWrite interface {
	ReadOnly

	// AllocateBlock returns a block that no live revision references.
	AllocateBlock() (BlockID, error)

	// RecycleBlock marks a block unreachable from the revision being built.
	// It is reused only after every revision that references it is released.
	RecycleBlock(blockID BlockID)

	// WriteBlock encodes page, which may be shorter than PageSize, into blockID.
	WriteBlock(blockID BlockID, page []byte) error
}
