// Package compress implements the block compression strategies a table can
// be created with. Compression only changes the stored form of a block,
// never the page it decodes to.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Strategy selects how blocks are compressed. Its value is stored in every
// block header, so the numbering is part of the file format.
type Strategy uint8

const (
	None    Strategy = iota // store pages as is
	Default                 // DEFLATE, default level
	Huffman                 // DEFLATE, Huffman coding only
	Zstd                    // Zstandard
	S2                      // S2 (Snappy compatible)
	LZ4                     // LZ4 block format
)

var ErrUnknownStrategy = errors.New("unknown compression strategy")

var names = [...]string{
	None:    "none",
	Default: "default",
	Huffman: "huffman",
	Zstd:    "zstd",
	S2:      "s2",
	LZ4:     "lz4",
}

func (s Strategy) String() string {
	if s.Valid() {
		return names[s]
	}
	return fmt.Sprintf("strategy(%d)", uint8(s))
}

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	return int(s) < len(names)
}

// ParseStrategy maps a case-insensitive name to its Strategy.
// The empty string selects None.
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return None, nil
	}
	for s, n := range names {
		if n == name {
			return Strategy(s), nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Encode appends the compressed form of src to dst.
// ok is false when compression does not shrink src; dst is then returned
// unchanged and the caller should store src raw.
func Encode(s Strategy, dst, src []byte) (out []byte, ok bool, err error) {
	start := len(dst)
	switch s {
	case None:
		return dst, false, nil
	case Default, Huffman:
		out, err = deflate(s, dst, src)
	case Zstd:
		var enc *zstd.Encoder
		if enc, err = zstdEncoder(); err == nil {
			out = enc.EncodeAll(src, dst)
		}
	case S2:
		out = append(dst, s2.Encode(nil, src)...)
	case LZ4:
		out, err = lz4Encode(dst, src)
	default:
		return dst, false, fmt.Errorf("%w: %d", ErrUnknownStrategy, s)
	}
	if err != nil || out == nil || len(out)-start >= len(src) {
		return dst[:start], false, err
	}
	return out, true, nil
}

// Decode decompresses src, produced by Encode with strategy s, into dst.
// size is the expected decoded length; a mismatch is reported as an error.
func Decode(s Strategy, dst, src []byte, size int) (out []byte, err error) {
	switch s {
	case None:
		out = append(dst[:0], src...)
	case Default, Huffman:
		out, err = inflate(dst, src, size)
	case Zstd:
		var dec *zstd.Decoder
		if dec, err = zstdDecoder(); err == nil {
			out, err = dec.DecodeAll(src, dst[:0])
		}
	case S2:
		var n int
		if n, err = s2.DecodedLen(src); err == nil {
			if n != size {
				return nil, fmt.Errorf("s2: decoded length %d, want %d", n, size)
			}
			out, err = s2.Decode(grow(dst, size), src)
		}
	case LZ4:
		buf := grow(dst, size)
		var n int
		if n, err = lz4.UncompressBlock(src, buf); err == nil {
			out = buf[:n]
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, s)
	}
	if err != nil {
		return nil, fmt.Errorf("%v decode: %w", s, err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%v decode: length %d, want %d", s, len(out), size)
	}
	return out, nil
}

func grow(dst []byte, size int) []byte {
	if cap(dst) < size {
		return make([]byte, size)
	}
	return dst[:size]
}

var flateWriters [Huffman + 1]sync.Pool

func deflate(s Strategy, dst, src []byte) ([]byte, error) {
	level := flate.DefaultCompression
	if s == Huffman {
		level = flate.HuffmanOnly
	}
	pool := &flateWriters[s]
	buf := bytes.NewBuffer(dst)
	w, _ := pool.Get().(*flate.Writer)
	if w == nil {
		var err error
		if w, err = flate.NewWriter(buf, level); err != nil {
			return nil, err
		}
	} else {
		w.Reset(buf)
	}
	defer pool.Put(w)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var flateReaders sync.Pool

func inflate(dst, src []byte, size int) ([]byte, error) {
	r, _ := flateReaders.Get().(io.ReadCloser)
	if r == nil {
		r = flate.NewReader(bytes.NewReader(src))
	} else if err := r.(flate.Resetter).Reset(bytes.NewReader(src), nil); err != nil {
		return nil, err
	}
	defer flateReaders.Put(r)
	out := grow(dst, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	var probe [1]byte
	if n, _ := r.Read(probe[:]); n != 0 {
		return nil, errors.New("trailing data")
	}
	return out, nil
}

var zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
	return zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
})

var zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
})

func lz4Encode(dst, src []byte) ([]byte, error) {
	start := len(dst)
	bound := lz4.CompressBlockBound(len(src))
	if cap(dst)-start < bound {
		grown := make([]byte, start, start+bound)
		copy(grown, dst)
		dst = grown
	}
	n, err := lz4.CompressBlock(src, dst[start:start+bound], nil)
	if err != nil || n == 0 {
		return nil, err
	}
	return dst[:start+n], nil
}
