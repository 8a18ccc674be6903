// Package chip drives a single SPI NOR flash chip sitting on a shared bus.
//
// Chips can only program bits from 1 to 0, in pages, and only erase whole
// sectors back to 0xff. WriteAt hides that: it's a write-through
// erase-before-write over whichever sectors a write touches, so callers can
// overwrite arbitrary byte ranges. Nothing is cached between calls.
package chip

import (
	"bytes"
	"fmt"
	"time"

	"github.com/dargueta/spiflash"
	"github.com/dargueta/spiflash/addressing"
	"go.uber.org/zap"
)

// Defaults used for parts missing from the parts table.
const (
	DefaultPageBytes   = 256
	DefaultSectorBytes = 4096
)

// 3-byte addresses cover exactly 16 MiB.
const maxThreeByteCapacity = 1 << 24

type Chip struct {
	transport    spiflash.Transport
	index        int
	id           JEDECID
	part         *Part
	capacity     int64
	pageBytes    int64
	sectorBytes  int64
	addressBytes int
	pollInterval time.Duration
	logger       *zap.Logger
}

type Option func(*Chip)

// WithLogger sets the logger used for probe and erase messages, and for
// per-operation debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Chip) {
		c.logger = logger
	}
}

// WithPollInterval makes the chip sleep between status polls while waiting
// for a program or erase cycle to finish. By default it polls continuously.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Chip) {
		c.pollInterval = interval
	}
}

// Probe identifies the chip behind chip-select `index` and returns a driver
// for it.
func Probe(transport spiflash.Transport, index int, options ...Option) (*Chip, error) {
	if index < 0 || index >= transport.ChipSelects() {
		return nil, spiflash.ErrInvalidConfiguration.WithMessage(
			fmt.Sprintf(
				"chip select %d not in range [0, %d)", index, transport.ChipSelects()))
	}

	c := &Chip{
		transport:    transport,
		index:        index,
		pageBytes:    DefaultPageBytes,
		sectorBytes:  DefaultSectorBytes,
		addressBytes: 3,
		logger:       zap.NewNop(),
	}
	for _, option := range options {
		option(c)
	}

	id, err := c.readID()
	if err != nil {
		return nil, err
	}
	c.id = id

	c.capacity, err = id.Capacity()
	if err != nil {
		return nil, err.(spiflash.DriverError).WithMessage(
			fmt.Sprintf("chip select %d", index))
	}

	part, ok := LookupPart(id)
	if ok {
		c.part = &part
		c.pageBytes = part.PageBytes
		c.sectorBytes = part.SectorBytes
	}
	if c.capacity > maxThreeByteCapacity {
		c.addressBytes = 4
	}

	c.logger.Info(
		"probed flash chip",
		zap.Int("chip", index),
		zap.Stringer("jedec_id", id),
		zap.String("part", c.PartName()),
		zap.Int64("capacity", c.capacity),
		zap.Int("address_bytes", c.addressBytes),
	)
	return c, nil
}

// Index is the chip-select line this chip is on.
func (c *Chip) Index() int {
	return c.index
}

func (c *Chip) ID() JEDECID {
	return c.id
}

// PartName is the vendor and model of the chip, or "unknown" if its ID isn't
// in the parts table.
func (c *Chip) PartName() string {
	if c.part == nil {
		return "unknown"
	}
	return c.part.String()
}

// Capacity is the size of the chip, in bytes.
func (c *Chip) Capacity() int64 {
	return c.capacity
}

func (c *Chip) PageBytes() int64 {
	return c.pageBytes
}

func (c *Chip) SectorBytes() int64 {
	return c.sectorBytes
}

func (c *Chip) checkBounds(offset int64, length int) error {
	if offset < 0 || offset > c.capacity || int64(length) > c.capacity-offset {
		return spiflash.ErrOutOfRange.WithMessage(
			fmt.Sprintf(
				"%d bytes at %#x not within chip %d (%d B)",
				length,
				offset,
				c.index,
				c.capacity))
	}
	return nil
}

// ReadAt implements io.ReaderAt.
func (c *Chip) ReadAt(p []byte, off int64) (int, error) {
	err := c.checkBounds(off, len(p))
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	err = c.read(p, off)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteAt implements io.WriterAt. Sectors are rewritten in ascending order;
// if an error occurs the returned count covers the sectors completed before
// it.
func (c *Chip) WriteAt(p []byte, off int64) (int, error) {
	err := c.checkBounds(off, len(p))
	if err != nil {
		return 0, err
	}

	written := 0
	for _, sector := range addressing.Split(off, int64(len(p)), c.sectorBytes) {
		data := p[written : written+int(sector.Length)]
		err = c.writeSector(sector.Index*c.sectorBytes, sector.Offset, data)
		if err != nil {
			return written, err
		}
		written += len(data)
	}
	return written, nil
}

// writeSector writes `data` at `local` bytes into the sector starting at
// `base`, erasing the sector first only if some bit has to go from 0 to 1.
func (c *Chip) writeSector(base, local int64, data []byte) error {
	sector := make([]byte, c.sectorBytes)
	err := c.read(sector, base)
	if err != nil {
		return err
	}

	existing := sector[local : local+int64(len(data))]
	if bytes.Equal(existing, data) {
		return nil
	}

	if canProgramOver(existing, data) {
		return c.program(base+local, data)
	}

	copy(existing, data)
	c.logger.Debug(
		"rewriting sector",
		zap.Int("chip", c.index),
		zap.Int64("sector", base/c.sectorBytes),
	)
	err = c.eraseSectorAt(base)
	if err != nil {
		return err
	}
	return c.program(base, sector)
}

// canProgramOver is true if `data` can be programmed over `existing` without
// an erase, i.e. no bit needs to go from 0 to 1.
func canProgramOver(existing, data []byte) bool {
	for i := range data {
		if existing[i]&data[i] != data[i] {
			return false
		}
	}
	return true
}

// program writes `data` at `address`, splitting it at page boundaries. Pages
// that are entirely 0xff are skipped, since that's what erased flash already
// holds and programming them is a no-op.
func (c *Chip) program(address int64, data []byte) error {
	done := int64(0)
	for _, page := range addressing.Split(address, int64(len(data)), c.pageBytes) {
		chunk := data[done : done+page.Length]
		done += page.Length
		if isBlank(chunk) {
			continue
		}

		err := c.programPage(page.Index*c.pageBytes+page.Offset, chunk)
		if err != nil {
			return err
		}
	}
	return nil
}

func isBlank(data []byte) bool {
	for _, b := range data {
		if b != 0xff {
			return false
		}
	}
	return true
}

// EraseSector erases the sector with the given index to 0xff.
func (c *Chip) EraseSector(sector int64) error {
	if sector < 0 || sector >= c.capacity/c.sectorBytes {
		return spiflash.ErrOutOfRange.WithMessage(
			fmt.Sprintf(
				"sector %d not in range [0, %d) on chip %d",
				sector,
				c.capacity/c.sectorBytes,
				c.index))
	}
	return c.eraseSectorAt(sector * c.sectorBytes)
}

// Erase erases the entire chip.
func (c *Chip) Erase() error {
	c.logger.Info("erasing chip", zap.Int("chip", c.index))
	return c.eraseAll()
}
