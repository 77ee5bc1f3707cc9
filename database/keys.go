package database

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dacapoday/glass"
	"github.com/dacapoday/glass/bptree"
)

// MaxTermLength is the longest term whose posting keys fit a table key.
const MaxTermLength = bptree.MaxKeySize - 5

var statsKey = []byte("\x00stats")

// termKey is the postlist key holding the frequencies of term.
func termKey(term string) []byte {
	key := make([]byte, 0, len(term)+5)
	key = append(key, term...)
	return append(key, 0)
}

// postingKey is the postlist key of term in document id.
func postingKey(term string, id uint32) []byte {
	return binary.BigEndian.AppendUint32(termKey(term), id)
}

// docKey is the termlist key holding the length of document id; the keys
// of its terms extend it.
func docKey(id uint32) []byte {
	return binary.BigEndian.AppendUint32(make([]byte, 0, 4+MaxTermLength), id)
}

func docTermKey(id uint32, term string) []byte {
	return append(docKey(id), term...)
}

func validTerm(term string) error {
	switch {
	case term == "":
		return fmt.Errorf("%w: empty term", glass.ErrInvalidOperation)
	case len(term) > MaxTermLength:
		return fmt.Errorf("%w: term length %d > %d", glass.ErrKeyTooLarge, len(term), MaxTermLength)
	case bytes.IndexByte([]byte(term), 0) >= 0:
		return fmt.Errorf("%w: term %q contains a zero byte", glass.ErrInvalidOperation, term)
	}
	return nil
}

// termFreqs is the value under a termKey.
type termFreqs struct {
	termFreq uint32
	collFreq uint64
}

func (f termFreqs) encode() []byte {
	buf := binary.AppendUvarint(nil, uint64(f.termFreq))
	return binary.AppendUvarint(buf, f.collFreq)
}

func decodeTermFreqs(val []byte) (f termFreqs, err error) {
	tf, n := binary.Uvarint(val)
	if n <= 0 {
		return f, errMalformed("term frequencies")
	}
	cf, m := binary.Uvarint(val[n:])
	if m <= 0 {
		return f, errMalformed("term frequencies")
	}
	return termFreqs{termFreq: uint32(tf), collFreq: cf}, nil
}

// stats is the value under statsKey.
type stats struct {
	docCount    uint32
	lastDocID   uint32
	totalLength uint64
}

func (s stats) encode() []byte {
	buf := binary.AppendUvarint(nil, uint64(s.docCount))
	buf = binary.AppendUvarint(buf, uint64(s.lastDocID))
	return binary.AppendUvarint(buf, s.totalLength)
}

func decodeStats(val []byte) (s stats, err error) {
	var vals [3]uint64
	for i := range vals {
		n := 0
		if vals[i], n = binary.Uvarint(val); n <= 0 {
			return s, errMalformed("database statistics")
		}
		val = val[n:]
	}
	return stats{docCount: uint32(vals[0]), lastDocID: uint32(vals[1]), totalLength: vals[2]}, nil
}

// docInfo is the value under a docKey.
type docInfo struct {
	length uint64
	terms  uint32
}

func (d docInfo) encode() []byte {
	buf := binary.AppendUvarint(nil, d.length)
	return binary.AppendUvarint(buf, uint64(d.terms))
}

func decodeDocInfo(val []byte) (d docInfo, err error) {
	length, n := binary.Uvarint(val)
	if n <= 0 {
		return d, errMalformed("document entry")
	}
	terms, m := binary.Uvarint(val[n:])
	if m <= 0 {
		return d, errMalformed("document entry")
	}
	return docInfo{length: length, terms: uint32(terms)}, nil
}

func encodeWdf(wdf uint32) []byte {
	return binary.AppendUvarint(nil, uint64(wdf))
}

func decodeWdf(val []byte) (uint32, error) {
	wdf, n := binary.Uvarint(val)
	if n <= 0 {
		return 0, errMalformed("wdf")
	}
	return uint32(wdf), nil
}

// encodePositions stores the count followed by the gaps between ascending
// positions.
func encodePositions(positions []uint32) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen32*(len(positions)+1))
	buf = binary.AppendUvarint(buf, uint64(len(positions)))
	prev := uint32(0)
	for _, pos := range positions {
		buf = binary.AppendUvarint(buf, uint64(pos-prev))
		prev = pos
	}
	return buf
}

func positionCount(val []byte) (int, error) {
	count, n := binary.Uvarint(val)
	if n <= 0 {
		return 0, errMalformed("position list")
	}
	return int(count), nil
}

func decodePositions(val []byte) ([]uint32, error) {
	count, n := binary.Uvarint(val)
	if n <= 0 || count > uint64(len(val)) {
		return nil, errMalformed("position list")
	}
	val = val[n:]
	positions := make([]uint32, 0, count)
	pos := uint64(0)
	for range count {
		gap, n := binary.Uvarint(val)
		if n <= 0 || (len(positions) > 0 && gap == 0) {
			return nil, errMalformed("position list")
		}
		if pos += gap; pos > 1<<32-1 {
			return nil, errMalformed("position list")
		}
		positions = append(positions, uint32(pos))
		val = val[n:]
	}
	return positions, nil
}

func errMalformed(what string) error {
	return fmt.Errorf("%w: malformed %s", glass.ErrCorruption, what)
}
