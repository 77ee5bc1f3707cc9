package heap

import (
	"bytes"
	"errors"
	"slices"
	"testing"
)

func TestMetaChecksum(t *testing.T) {
	meta := &Meta{
		Version:    1,
		Entry:      []byte("root"),
		Freelist:   encodeFreelist(nil, []BlockID{9, 4}, []BlockID{7}),
		FreeCount:  3,
		FreeRecent: 1,
		BlockSize:  4096,
		BlockCount: 10,
		Ckp:        42,
	}

	var buf bytes.Buffer
	if err := encodeMeta(&buf, meta); err != nil {
		t.Fatal(err)
	}
	if buf.Len()+4 != sizeMeta(meta) {
		t.Errorf("sizeMeta %d, encoded %d", sizeMeta(meta), buf.Len()+4)
	}

	var got Meta
	if err := decodeMeta(bytes.NewReader(buf.Bytes()), &got); err != nil {
		t.Fatal(err)
	}
	list, err := decodeFreelist(got.Freelist, got.FreeCount, got.BlockCount)
	if err != nil {
		t.Fatal(err)
	}
	if want := []BlockID{4, 9, 7}; !slices.Equal(list, want) {
		t.Errorf("freelist %v, want %v", list, want)
	}

	data := buf.Bytes()
	data[4] ^= 0x01
	if err := decodeMeta(bytes.NewReader(data), &got); !errors.Is(err, ErrInvalidMeta) {
		t.Errorf("expected ErrInvalidMeta, got %v", err)
	}
}

func TestFreelistOutOfRange(t *testing.T) {
	data := encodeFreelist(nil, []BlockID{2, 30})
	if _, err := decodeFreelist(data, 2, 10); !errors.Is(err, ErrInvalidFreelist) {
		t.Errorf("expected ErrInvalidFreelist, got %v", err)
	}
	if _, err := decodeFreelist(data, 3, 100); !errors.Is(err, ErrInvalidFreelist) {
		t.Errorf("expected short list error, got %v", err)
	}
}

func TestChainBlock(t *testing.T) {
	buffer := make([]byte, MinBlockSize)
	block := encodeChainBlock(buffer, 7, []byte("payload"))
	next, data, err := decodeChainBlock(block)
	if err != nil {
		t.Fatal(err)
	}
	if next != 7 || string(data) != "payload" {
		t.Errorf("got %d %q", next, data)
	}

	block[chainHeadSize] ^= 0xff
	if _, _, err = decodeChainBlock(block); !errors.Is(err, ErrInvalidFreelist) {
		t.Errorf("expected checksum error, got %v", err)
	}
}
