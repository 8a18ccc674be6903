// Package transport connects the driver to real SPI hardware.
//
// Chip selects are always driven as plain GPIO outputs, never by the SPI
// controller. A flash command spans several transfers (header, then data) and
// the chip must stay selected across all of them, which per-transfer hardware
// chip selects don't allow.
package transport

import (
	"fmt"
	"io"

	"github.com/dargueta/spiflash"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// DefaultFrequency is the SPI clock used when none is configured. Every part
// in the parts table supports plain READ at this speed.
const DefaultFrequency = 10 * physic.MegaHertz

// Periph is a transport over a periph.io SPI connection, with one GPIO output
// per chip.
type Periph struct {
	conn        spi.Conn
	port        io.Closer
	chipSelects []gpio.PinOut
	selected    int
	logger      *zap.Logger
}

var _ spiflash.Transport = (*Periph)(nil)

// PeriphConfig names the hardware to open.
type PeriphConfig struct {
	// Port is the SPI port name as known to spireg, e.g. "SPI0.0". Empty picks
	// the first one available.
	Port string
	// ChipSelects are GPIO pin names as known to gpioreg, in chip order.
	ChipSelects []string
	// Frequency is the SPI clock. Zero means DefaultFrequency.
	Frequency physic.Frequency
	Logger    *zap.Logger
}

// OpenPeriph initializes the host drivers and opens the configured port and
// chip-select pins.
func OpenPeriph(config PeriphConfig) (*Periph, error) {
	if len(config.ChipSelects) == 0 {
		return nil, spiflash.ErrInvalidConfiguration.WithMessage("no chip select pins given")
	}
	if config.Frequency == 0 {
		config.Frequency = DefaultFrequency
	}

	_, err := host.Init()
	if err != nil {
		return nil, spiflash.ErrTransportFailure.Wrap(err)
	}

	pins := make([]gpio.PinOut, len(config.ChipSelects))
	for i, name := range config.ChipSelects {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, spiflash.ErrInvalidConfiguration.WithMessage(
				fmt.Sprintf("no GPIO pin named %q", name))
		}
		pins[i] = pin
	}

	port, err := spireg.Open(config.Port)
	if err != nil {
		return nil, spiflash.ErrTransportFailure.Wrap(err)
	}

	// NoCS: the controller's own chip select stays idle, the pins above do the
	// selecting.
	conn, err := port.Connect(config.Frequency, spi.Mode0|spi.NoCS, 8)
	if err != nil {
		port.Close()
		return nil, spiflash.ErrTransportFailure.Wrap(err)
	}

	p, err := NewPeriph(conn, pins, config.Logger)
	if err != nil {
		port.Close()
		return nil, err
	}
	p.port = port
	return p, nil
}

// NewPeriph wraps an already-connected SPI connection. All chip-select pins
// are driven high (inactive) before it returns.
func NewPeriph(conn spi.Conn, chipSelects []gpio.PinOut, logger *zap.Logger) (*Periph, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	for i, pin := range chipSelects {
		err := pin.Out(gpio.High)
		if err != nil {
			return nil, spiflash.ErrTransportFailure.Wrap(
				fmt.Errorf("deasserting chip select %d (%s): %w", i, pin, err))
		}
	}

	logger.Debug(
		"SPI transport ready",
		zap.Stringer("conn", conn),
		zap.Int("chip_selects", len(chipSelects)),
	)
	return &Periph{
		conn:        conn,
		chipSelects: chipSelects,
		selected:    -1,
		logger:      logger,
	}, nil
}

func (p *Periph) ChipSelects() int {
	return len(p.chipSelects)
}

func (p *Periph) SelectChip(index int) error {
	if index < 0 || index >= len(p.chipSelects) {
		return spiflash.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("no chip select line %d", index))
	}
	if p.selected >= 0 {
		return spiflash.ErrBusy.WithMessage(
			fmt.Sprintf("chip %d is still selected", p.selected))
	}

	err := p.chipSelects[index].Out(gpio.Low)
	if err != nil {
		return spiflash.ErrTransportFailure.Wrap(err)
	}
	p.selected = index
	return nil
}

func (p *Periph) Deselect() error {
	if p.selected < 0 {
		return nil
	}

	err := p.chipSelects[p.selected].Out(gpio.High)
	if err != nil {
		return spiflash.ErrTransportFailure.Wrap(err)
	}
	p.selected = -1
	return nil
}

func (p *Periph) Transfer(tx []byte) ([]byte, error) {
	rx := make([]byte, len(tx))
	err := p.conn.Tx(tx, rx)
	if err != nil {
		return nil, spiflash.ErrTransportFailure.Wrap(err)
	}
	return rx, nil
}

// Close releases the SPI port if OpenPeriph opened it. The pins are left
// deasserted.
func (p *Periph) Close() error {
	err := p.Deselect()
	if err != nil {
		return err
	}
	if p.port == nil {
		return nil
	}
	return p.port.Close()
}
