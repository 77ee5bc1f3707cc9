package table

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dacapoday/glass/bptree"
	"github.com/dacapoday/glass/compress"
)

// maxLabel bounds the revision label stored in the table header.
const maxLabel = 255

const entryVersion = 1

// revision is one committed state of a table.
type revision struct {
	store    *Store
	root     bptree.Root
	count    uint64
	number   uint32
	label    string
	flags    Flags
	strategy compress.Strategy
}

// encodeEntry serializes the table header:
// {version:1, rootID:4, high:1, strategy:1, uvarint count, uvarint flags, uvarint len(label), label}
func encodeEntry(rev revision) []byte {
	buf := make([]byte, 7, 7+3*binary.MaxVarintLen64+len(rev.label))
	buf[0] = entryVersion
	binary.LittleEndian.PutUint32(buf[1:], rev.root.ID)
	buf[5] = rev.root.High
	buf[6] = byte(rev.strategy)
	buf = binary.AppendUvarint(buf, rev.count)
	buf = binary.AppendUvarint(buf, uint64(rev.flags))
	buf = binary.AppendUvarint(buf, uint64(len(rev.label)))
	return append(buf, rev.label...)
}

func decodeEntry(entry []byte) (rev revision, err error) {
	if len(entry) < 7 {
		err = errors.New("table header truncated")
		return
	}
	if entry[0] != entryVersion {
		err = fmt.Errorf("table header version %d", entry[0])
		return
	}
	rev.root.ID = binary.LittleEndian.Uint32(entry[1:])
	rev.root.High = entry[5]
	rev.strategy = compress.Strategy(entry[6])
	if !rev.strategy.Valid() {
		err = fmt.Errorf("table header strategy %d", entry[6])
		return
	}

	rest := entry[7:]
	var vals [3]uint64
	for i := range vals {
		n := 0
		if vals[i], n = binary.Uvarint(rest); n <= 0 {
			err = errors.New("table header truncated")
			return
		}
		rest = rest[n:]
	}
	if vals[2] != uint64(len(rest)) {
		err = errors.New("table header label length")
		return
	}
	rev.count = vals[0]
	rev.flags = Flags(vals[1])
	rev.label = string(rest)
	return
}
