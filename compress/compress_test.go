package compress

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

var strategies = []Strategy{None, Default, Huffman, Zstd, S2, LZ4}

func TestEncodeDecode(t *testing.T) {
	page := bytes.Repeat([]byte("posting list for term glass "), 200)

	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			out, ok, err := Encode(s, []byte("hdr"), page)
			require.NoError(t, err)
			require.Equal(t, "hdr", string(out[:3]))
			if s == None {
				require.False(t, ok)
				return
			}
			require.True(t, ok, "repetitive page must shrink")
			require.Less(t, len(out)-3, len(page))

			got, err := Decode(s, make([]byte, 0, 16), out[3:], len(page))
			require.NoError(t, err)
			require.Equal(t, page, got)
		})
	}
}

func TestEncodeIncompressible(t *testing.T) {
	page := make([]byte, 4096)
	rand.Read(page)

	for _, s := range strategies {
		out, ok, err := Encode(s, nil, page)
		require.NoError(t, err, s)
		require.False(t, ok, s)
		require.Empty(t, out, s)
	}
}

func TestDecodeLengthMismatch(t *testing.T) {
	page := bytes.Repeat([]byte{7}, 1024)
	for _, s := range strategies[1:] {
		out, ok, err := Encode(s, nil, page)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = Decode(s, nil, out, len(page)+1)
		require.Error(t, err, s)
	}
}

func TestDecodeGarbage(t *testing.T) {
	garbage := []byte{0xff, 0xfe, 0xfd, 0xfc, 0x01, 0x02}
	for _, s := range strategies[1:] {
		_, err := Decode(s, nil, garbage, 64)
		require.Error(t, err, s)
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range strategies {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		require.Equal(t, s, got)
	}

	got, err := ParseStrategy(" ZSTD ")
	require.NoError(t, err)
	require.Equal(t, Zstd, got)

	got, err = ParseStrategy("")
	require.NoError(t, err)
	require.Equal(t, None, got)

	_, err = ParseStrategy("brotli")
	require.ErrorIs(t, err, ErrUnknownStrategy)

	require.False(t, Strategy(42).Valid())
	require.Equal(t, "strategy(42)", Strategy(42).String())
}
