package flashtest

import (
	"bytes"
	"testing"

	"github.com/dargueta/spiflash/image"
	"github.com/stretchr/testify/require"
)

// DumpImage returns a compressed image of the whole device.
func DumpImage(t *testing.T, dev image.Device) []byte {
	var buffer bytes.Buffer
	err := image.Dump(dev, &buffer)
	require.NoError(t, err, "failed to dump device image")
	return buffer.Bytes()
}

// LoadImage overwrites the device with a compressed image. The image must
// decode to exactly the device's size.
func LoadImage(t *testing.T, dev image.Device, compressedImage []byte) {
	require.Greater(t, len(compressedImage), 0, "compressed image is empty")
	err := image.Restore(dev, bytes.NewReader(compressedImage))
	require.NoError(t, err, "failed to load device image")
}
