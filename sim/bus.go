package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dargueta/spiflash"
)

// Operation is one array access a chip executed: a read, page program or
// erase. Status reads, ID reads and write enables aren't logged.
type Operation struct {
	Chip    int
	Opcode  byte
	Address int64
	Length  int
}

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("sim: injected bus fault")

// Bus is a shared SPI bus with one simulated chip per chip-select line. It
// implements [spiflash.Transport].
type Bus struct {
	mu       sync.Mutex
	chips    []*Chip
	selected int
	log      []Operation

	failRemaining     int
	failErr           error
	truncateRemaining int
	transfers         int
	collisions        int
}

var _ spiflash.Transport = (*Bus)(nil)

// NewBus puts the given chips on a bus, chip i on chip-select line i.
func NewBus(chips ...*Chip) *Bus {
	return &Bus{chips: chips, selected: -1}
}

// NewUniformBus creates a bus with `count` identical chips.
func NewUniformBus(count int, config Config) (*Bus, error) {
	chips := make([]*Chip, count)
	for i := range chips {
		c, err := NewChip(config)
		if err != nil {
			return nil, err
		}
		chips[i] = c
	}
	return NewBus(chips...), nil
}

func (bus *Bus) ChipSelects() int {
	return len(bus.chips)
}

// Chip returns the chip on chip-select line `index`.
func (bus *Bus) Chip(index int) *Chip {
	return bus.chips[index]
}

func (bus *Bus) SelectChip(index int) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if index < 0 || index >= len(bus.chips) {
		return fmt.Errorf("sim: no chip select line %d", index)
	}
	if bus.selected >= 0 {
		bus.collisions++
		return fmt.Errorf(
			"sim: selecting chip %d while chip %d is still selected", index, bus.selected)
	}
	bus.selected = index
	bus.chips[index].begin()
	return nil
}

func (bus *Bus) Deselect() error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.selected < 0 {
		return nil
	}
	op, ok := bus.chips[bus.selected].end()
	if ok {
		op.Chip = bus.selected
		bus.log = append(bus.log, op)
	}
	bus.selected = -1
	return nil
}

// Transfer clocks `tx` through the selected chip. With no chip selected the
// bus floats high and every byte reads back as 0xff.
func (bus *Bus) Transfer(tx []byte) ([]byte, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.transfers++
	if bus.failRemaining > 0 {
		bus.failRemaining--
		return nil, bus.failErr
	}

	var rx []byte
	if bus.selected < 0 {
		rx = make([]byte, len(tx))
		for i := range rx {
			rx[i] = 0xff
		}
	} else {
		rx = bus.chips[bus.selected].clock(tx)
	}

	if bus.truncateRemaining > 0 {
		bus.truncateRemaining--
		rx = rx[:len(rx)/2]
	}
	return rx, nil
}

// FailNext makes the next `count` transfers fail with `err`, or ErrInjected if
// it's nil. The bytes are never clocked into the chip.
func (bus *Bus) FailNext(count int, err error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if err == nil {
		err = ErrInjected
	}
	bus.failRemaining = count
	bus.failErr = err
}

// TruncateNext makes the next `count` transfers return only half of the bytes
// clocked in.
func (bus *Bus) TruncateNext(count int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.truncateRemaining = count
}

// Log returns a copy of the operations executed so far, in order.
func (bus *Bus) Log() []Operation {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	log := make([]Operation, len(bus.log))
	copy(log, bus.log)
	return log
}

// ResetLog clears the operation log.
func (bus *Bus) ResetLog() {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.log = nil
}

// Transfers is the number of Transfer calls made, including failed ones.
func (bus *Bus) Transfers() int {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return bus.transfers
}

// Collisions counts SelectChip calls made while another chip was still
// selected, i.e. transactions that overlapped on the bus.
func (bus *Bus) Collisions() int {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return bus.collisions
}
