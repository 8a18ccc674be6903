//go:build linux

package transport

import (
	"fmt"

	"github.com/dargueta/spiflash"
	rpio "github.com/stianeikeland/go-rpio/v4"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"
)

// Rpio is a transport over a Raspberry Pi's SPI0 controller using go-rpio's
// direct register access. Chip selects are BCM GPIO numbers.
type Rpio struct {
	chipSelects []rpio.Pin
	selected    int
	logger      *zap.Logger
}

var _ spiflash.Transport = (*Rpio)(nil)

// RpioConfig describes the Pi's wiring.
type RpioConfig struct {
	// ChipSelects are BCM GPIO numbers, in chip order.
	ChipSelects []int
	// Hertz is the SPI clock. Zero means DefaultFrequency.
	Hertz  int
	Logger *zap.Logger
}

// OpenRpio maps the Pi's peripheral registers and starts the SPI0 controller.
// It needs access to /dev/gpiomem or /dev/mem.
func OpenRpio(config RpioConfig) (*Rpio, error) {
	if len(config.ChipSelects) == 0 {
		return nil, spiflash.ErrInvalidConfiguration.WithMessage("no chip select pins given")
	}
	if config.Hertz == 0 {
		config.Hertz = int(DefaultFrequency / physic.Hertz)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	err := rpio.Open()
	if err != nil {
		return nil, spiflash.ErrTransportFailure.Wrap(err)
	}
	err = rpio.SpiBegin(rpio.Spi0)
	if err != nil {
		rpio.Close()
		return nil, spiflash.ErrTransportFailure.Wrap(err)
	}
	rpio.SpiSpeed(config.Hertz)
	rpio.SpiMode(0, 0)

	pins := make([]rpio.Pin, len(config.ChipSelects))
	for i, number := range config.ChipSelects {
		if number < 0 || number > 27 {
			rpio.SpiEnd(rpio.Spi0)
			rpio.Close()
			return nil, spiflash.ErrInvalidConfiguration.WithMessage(
				fmt.Sprintf("GPIO %d doesn't exist", number))
		}
		pins[i] = rpio.Pin(number)
		pins[i].Output()
		pins[i].High()
	}

	config.Logger.Debug(
		"rpio SPI transport ready",
		zap.Int("hertz", config.Hertz),
		zap.Ints("chip_selects", config.ChipSelects),
	)
	return &Rpio{chipSelects: pins, selected: -1, logger: config.Logger}, nil
}

func (r *Rpio) ChipSelects() int {
	return len(r.chipSelects)
}

func (r *Rpio) SelectChip(index int) error {
	if index < 0 || index >= len(r.chipSelects) {
		return spiflash.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("no chip select line %d", index))
	}
	if r.selected >= 0 {
		return spiflash.ErrBusy.WithMessage(
			fmt.Sprintf("chip %d is still selected", r.selected))
	}
	r.chipSelects[index].Low()
	r.selected = index
	return nil
}

func (r *Rpio) Deselect() error {
	if r.selected >= 0 {
		r.chipSelects[r.selected].High()
		r.selected = -1
	}
	return nil
}

// Transfer exchanges a copy of `tx`; SpiExchange works in place.
func (r *Rpio) Transfer(tx []byte) ([]byte, error) {
	buf := make([]byte, len(tx))
	copy(buf, tx)
	rpio.SpiExchange(buf)
	return buf, nil
}

func (r *Rpio) Close() error {
	r.Deselect()
	rpio.SpiEnd(rpio.Spi0)
	return rpio.Close()
}
