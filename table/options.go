package table

import (
	"log/slog"
	"strings"

	"github.com/dacapoday/glass"
	"github.com/dacapoday/glass/compress"
	"github.com/dacapoday/glass/internal/heap"
	"github.com/dacapoday/glass/internal/metrics"
)

// Flags are feature bits fixed when a table is created.
type Flags uint32

const (
	// FlagNoSync skips fsync on commit. A crash may lose recent revisions
	// but never leaves a torn one.
	FlagNoSync Flags = 1 << iota
	// FlagNoCompress stores every block raw regardless of Strategy.
	FlagNoCompress
)

func (f Flags) String() string {
	var names []string
	if f&FlagNoSync != 0 {
		names = append(names, "nosync")
	}
	if f&FlagNoCompress != 0 {
		names = append(names, "nocompress")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Options configures a table handle.
type Options struct {
	ReadOnly bool

	// BlockSize applies when the table is created; 0 selects 8192.
	// An existing table keeps the block size it was created with.
	BlockSize int

	// Strategy applies when the table is created and is recorded in the
	// table header.
	Strategy compress.Strategy

	Flags Flags

	// RetainRevisions keeps that many superseded revisions readable for
	// handles that did not pin them.
	RetainRevisions uint8

	// FS defaults to glass.OS.
	FS glass.FS

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

var magicCode = [4]byte{'G', 'L', 'S', '1'}

type storeOption struct {
	readOnly  bool
	blockSize int
	retain    uint8
	noSync    bool
}

func (o storeOption) MagicCode() [4]byte       { return magicCode }
func (o storeOption) ReadOnly() bool           { return o.readOnly }
func (o storeOption) RetainCheckpoints() uint8 { return o.retain }
func (o storeOption) BlockSize() int           { return o.blockSize }
func (o storeOption) NoSync() bool             { return o.noSync }

var (
	_ heap.BlockSize = storeOption{}
	_ heap.NoSync    = storeOption{}
)
