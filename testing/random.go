package flashtest

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// RandomBytes returns `size` random bytes. It's guaranteed to either return a
// valid slice or fail the test and abort.
func RandomBytes(t *testing.T, size int) []byte {
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoErrorf(t, err, "failed to generate %d random bytes", size)
	return data
}

// RandomImage returns random data the size of `totalBlocks` blocks of
// `bytesPerBlock` bytes each.
func RandomImage(t *testing.T, bytesPerBlock, totalBlocks int64) []byte {
	return RandomBytes(t, int(bytesPerBlock*totalBlocks))
}
