package image

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeRLE8(t *testing.T, data []byte) []byte {
	// Random data can come out larger than it went in.
	buffer := make([]byte, len(data)*2+3)
	n, err := EncodeRLE8(bytes.NewReader(data), bytewriter.New(buffer))
	require.NoError(t, err)
	return buffer[:n]
}

func decodeRLE8(t *testing.T, encoded []byte) []byte {
	var decoded bytes.Buffer
	n, err := DecodeRLE8(bytes.NewReader(encoded), &decoded)
	require.NoError(t, err)
	require.EqualValues(t, decoded.Len(), n, "returned size is wrong")
	return decoded.Bytes()
}

func TestRLE8Encode(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []byte
	}{
		{"empty", []byte{}, []byte{}},
		{"run of two", []byte{4, 4}, []byte{4, 4, 0}},
		{"no runs", []byte{0, 1, 2, 3, 4}, []byte{0, 1, 2, 3, 4}},
		{"two at end", []byte{6, 1, 3, 0, 0}, []byte{6, 1, 3, 0, 0, 0}},
		{"three at end", []byte{6, 1, 0, 0, 0}, []byte{6, 1, 0, 0, 1}},
		{"short run", []byte{9, 5, 5, 5, 5, 5, 3, 7}, []byte{9, 5, 5, 3, 3, 7}},
		{
			"adjacent runs",
			[]byte{9, 5, 5, 5, 5, 5, 5, 3, 3, 3, 3, 7, 2, 6},
			[]byte{9, 5, 5, 4, 3, 3, 2, 7, 2, 6},
		},
		{
			"erased page",
			bytes.Repeat([]byte{0xff}, 256),
			[]byte{0xff, 0xff, 254},
		},
		{"257", bytes.Repeat([]byte{8}, 257), []byte{8, 8, 255}},
		{"258", bytes.Repeat([]byte{8}, 258), []byte{8, 8, 255, 8}},
		{"259", bytes.Repeat([]byte{8}, 259), []byte{8, 8, 255, 8, 8, 0}},
		{"300", bytes.Repeat([]byte{0xaa}, 300), []byte{0xaa, 0xaa, 255, 0xaa, 0xaa, 41}},
		{
			"long run",
			bytes.Repeat([]byte{5}, 1024),
			[]byte{5, 5, 255, 5, 5, 255, 5, 5, 255, 5, 5, 251},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			encoded := encodeRLE8(t, test.input)
			assert.Equal(t, test.expected, encoded)
			assert.Equal(t, test.input, append([]byte{}, decodeRLE8(t, encoded)...))
		})
	}
}

func TestRLE8RoundTrip(t *testing.T) {
	random := make([]byte, 1852)
	_, err := rand.Read(random)
	require.NoError(t, err)

	mixed := append(bytes.Repeat([]byte{0xff}, 5000), random[:100]...)
	mixed = append(mixed, bytes.Repeat([]byte{0}, 700)...)

	for name, data := range map[string][]byte{
		"random": random,
		"nulls":  make([]byte, 571),
		"run":    bytes.Repeat([]byte{182}, 934),
		"mixed":  mixed,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, data, decodeRLE8(t, encodeRLE8(t, data)))
		})
	}
}

func TestRLE8Decode__MissingRepeatCount(t *testing.T) {
	var decoded bytes.Buffer
	n, err := DecodeRLE8(bytes.NewReader([]byte{9, 1, 4, 4}), &decoded)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.EqualValues(t, 3, n)
}

func TestRLE8Decode__OutputFull(t *testing.T) {
	encoded := encodeRLE8(t, bytes.Repeat([]byte{0xff}, 100))
	buffer := make([]byte, 40)

	n, err := DecodeRLE8(bytes.NewReader(encoded), bytewriter.New(buffer))
	assert.ErrorIs(t, err, bytewriter.SliceFull)
	assert.EqualValues(t, 40, n)
	assert.Equal(t, bytes.Repeat([]byte{0xff}, 40), buffer)
}
