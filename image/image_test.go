package image_test

import (
	"bytes"
	"testing"

	"github.com/dargueta/spiflash"
	"github.com/dargueta/spiflash/image"
	flashtest "github.com/dargueta/spiflash/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpRestore__RoundTrip(t *testing.T) {
	source, _ := flashtest.NewSmallDevice(t, 2)
	data := flashtest.RandomBytes(t, 3000)
	require.NoError(t, source.SetRange(flashtest.SmallChipBytes-1500, data))

	var dumped bytes.Buffer
	require.NoError(t, image.Dump(source, &dumped))
	assert.Less(t, dumped.Len(), 4096, "mostly erased device should compress well")

	target, _ := flashtest.NewSmallDevice(t, 2)
	flashtest.LoadImage(t, target, dumped.Bytes())

	readBack, err := target.GetRange(0, target.Len())
	require.NoError(t, err)
	expected, err := source.GetRange(0, source.Len())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(expected, readBack), "restored device doesn't match")
}

func TestDumpRestore__RandomContents(t *testing.T) {
	source, _ := flashtest.NewSmallDevice(t, 2)
	data := flashtest.RandomImage(t, source.BlockSize(), source.BlockCount())
	require.NoError(t, source.SetRange(0, data))

	target, _ := flashtest.NewSmallDevice(t, 2)
	flashtest.LoadImage(t, target, flashtest.DumpImage(t, source))

	readBack, err := target.GetRange(0, target.Len())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, readBack), "restored device doesn't match")
}

func TestRestore__SizeMismatch(t *testing.T) {
	small, _ := flashtest.NewSmallDevice(t, 1)
	large, largeBus := flashtest.NewSmallDevice(t, 2)

	var smallImage, largeImage bytes.Buffer
	require.NoError(t, image.Dump(small, &smallImage))
	require.NoError(t, image.Dump(large, &largeImage))

	transfers := largeBus.Transfers()
	err := image.Restore(large, bytes.NewReader(smallImage.Bytes()))
	assert.ErrorIs(t, err, spiflash.ErrInvalidArgument)
	assert.Equal(t, transfers, largeBus.Transfers(), "failed restore wrote to the device")

	err = image.Restore(small, bytes.NewReader(largeImage.Bytes()))
	assert.ErrorIs(t, err, spiflash.ErrInvalidArgument)
}

func TestRestore__NotAnImage(t *testing.T) {
	dev, _ := flashtest.NewSmallDevice(t, 1)
	err := image.Restore(dev, bytes.NewReader([]byte("definitely not gzip")))
	assert.ErrorIs(t, err, spiflash.ErrInvalidArgument)
}

func TestDecode(t *testing.T) {
	dev, _ := flashtest.NewSmallDevice(t, 1)
	require.NoError(t, dev.SetRange(10, []byte("hello")))

	var dumped bytes.Buffer
	require.NoError(t, image.Dump(dev, &dumped))

	contents, err := image.Decode(bytes.NewReader(dumped.Bytes()), dev.Len())
	require.NoError(t, err)
	require.Len(t, contents, int(dev.Len()))
	assert.Equal(t, "hello", string(contents[10:15]))
	assert.EqualValues(t, 0xff, contents[0])
}

func TestExpand(t *testing.T) {
	dev, _ := flashtest.NewSmallDevice(t, 1)
	require.NoError(t, dev.Set(dev.Len()-1, 0))

	var raw bytes.Buffer
	n, err := image.Expand(bytes.NewReader(flashtest.DumpImage(t, dev)), &raw)
	require.NoError(t, err)
	assert.Equal(t, dev.Len(), n)
	assert.EqualValues(t, 0, raw.Bytes()[dev.Len()-1])
}
