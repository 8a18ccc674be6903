package selftest_test

import (
	"crypto/rand"
	"errors"
	"testing"

	"github.com/dargueta/spiflash/selftest"
	flashtest "github.com/dargueta/spiflash/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stuckBit wraps a device and reads back bit 0 stuck low at one address.
type stuckBit struct {
	selftest.Device
	address int64
}

func (d stuckBit) Get(offset int64) (byte, error) {
	value, err := d.Device.Get(offset)
	if offset == d.address {
		value &^= 1
	}
	return value, err
}

func (d stuckBit) GetRange(offset, length int64) ([]byte, error) {
	data, err := d.Device.GetRange(offset, length)
	if err == nil && d.address >= offset && d.address < offset+length {
		data[d.address-offset] &^= 1
	}
	return data, err
}

func TestRun__TwoChips(t *testing.T) {
	dev, _ := flashtest.NewSmallDevice(t, 2)

	results := selftest.Run(dev, rand.Reader)
	require.Len(t, results, 4)
	for _, result := range results {
		assert.True(t, result.Passed(), result.String())
	}
	assert.False(t, selftest.Failed(results))
	assert.Equal(t, "chip boundary 131072: passed", results[3].String())
}

func TestRun__OneChipSkipsChipBoundary(t *testing.T) {
	dev, _ := flashtest.NewSmallDevice(t, 1)

	results := selftest.Run(dev, rand.Reader)
	require.Len(t, results, 4)
	assert.True(t, results[3].Skipped())
	assert.ErrorIs(t, selftest.ChipBoundary(dev), selftest.ErrSkipped)
	assert.False(t, selftest.Failed(results))
}

func TestByteAddressing__Failure(t *testing.T) {
	dev, _ := flashtest.NewSmallDevice(t, 1)

	err := selftest.ByteAddressing(stuckBit{dev, 1003}, 1000)
	var failure *selftest.Failure
	require.True(t, errors.As(err, &failure), "expected a Failure, got %v", err)
	assert.EqualValues(t, 1003, failure.Address)
	assert.Equal(t, []byte{3}, failure.Expected)
	assert.Equal(t, []byte{2}, failure.Actual)
}

func TestBoundary__Steps(t *testing.T) {
	dev, _ := flashtest.NewSmallDevice(t, 1)

	require.NoError(t, selftest.Boundary(dev, 256))
	data, err := dev.GetRange(250, 22)
	require.NoError(t, err)
	assert.Equal(t, "this ><is the boundary", string(data))

	// 'x' is 0x78, so a stuck low bit 0 is invisible until the third step
	// writes the odd 'i' of "is" there.
	err = selftest.Boundary(stuckBit{dev, 257}, 256)
	var failure *selftest.Failure
	require.True(t, errors.As(err, &failure), "expected a Failure, got %v", err)
	assert.Equal(t, 3, failure.Step)
	assert.EqualValues(t, 257, failure.Address)
}

func TestRun__ReportsFailures(t *testing.T) {
	dev, _ := flashtest.NewSmallDevice(t, 2)

	results := selftest.Run(stuckBit{dev, selftest.ByteAddressingStart + 1}, rand.Reader)
	assert.False(t, results[0].Passed())
	assert.False(t, results[0].Skipped())
	assert.True(t, results[1].Passed())
	assert.True(t, selftest.Failed(results))
	assert.Contains(t, results[0].String(), "FAILED")
}

func TestFullSweep(t *testing.T) {
	dev, _ := flashtest.NewSmallDevice(t, 2)

	calls := int64(0)
	err := selftest.FullSweep(dev, rand.Reader, func(block, total int64) {
		assert.Equal(t, calls, block)
		assert.Equal(t, dev.BlockCount(), total)
		calls++
	})
	require.NoError(t, err)
	assert.Equal(t, dev.BlockCount(), calls)
}

func TestFullSweep__StopsAtFirstFailure(t *testing.T) {
	dev, _ := flashtest.NewSmallDevice(t, 1)

	passed := int64(0)
	err := selftest.FullSweep(stuckBit{dev, 3*512 + 7}, ones{}, func(block, total int64) {
		passed++
	})
	var failure *selftest.Failure
	require.True(t, errors.As(err, &failure), "expected a Failure, got %v", err)
	assert.EqualValues(t, 3*512+7, failure.Address)
	assert.EqualValues(t, 3, passed)
}

// ones is a random source that isn't.
type ones struct{}

func (ones) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0x01
	}
	return len(p), nil
}
