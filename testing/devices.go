// Package flashtest holds fixtures shared by the driver's tests, mostly
// simulated devices.
package flashtest

import (
	"testing"

	"github.com/dargueta/spiflash/device"
	"github.com/dargueta/spiflash/sim"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// SmallChipBytes is the capacity of chips created with sim.SmallID.
const SmallChipBytes = 128 * 1024

// NewSimBus creates a bus with `count` identical simulated chips.
func NewSimBus(t *testing.T, count int, config sim.Config) *sim.Bus {
	bus, err := sim.NewUniformBus(count, config)
	require.NoError(t, err, "failed to create simulated bus")
	return bus
}

// NewSimDevice creates a device over `count` simulated chips of the given
// configuration, probed through the real chip driver. Log output goes to the
// test's log.
func NewSimDevice(
	t *testing.T, count int, chipConfig sim.Config, config device.Config,
) (*device.Device, *sim.Bus) {
	bus := NewSimBus(t, count, chipConfig)
	dev, err := device.Open(bus, config, device.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err, "failed to open simulated device")
	return dev, bus
}

// NewSmallDevice creates a device over `count` 128 KiB simulated chips with
// the default block size.
func NewSmallDevice(t *testing.T, count int) (*device.Device, *sim.Bus) {
	return NewSimDevice(t, count, sim.Config{ID: sim.SmallID}, device.Config{})
}
