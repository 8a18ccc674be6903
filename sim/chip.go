// Package sim emulates SPI NOR flash chips on a bus, byte for byte, so the
// driver can be exercised without hardware.
//
// The model is deliberately strict: programming can only clear bits, a page
// program that runs off the end of its page wraps to the start of the page,
// program and erase need the write-enable latch, and every command other than
// a status read is ignored while the chip is busy.
package sim

import (
	"bytes"
	"fmt"
	"io"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/spiflash/chip"
	"github.com/xaionaro-go/bytesextra"
)

// Config describes a simulated part.
type Config struct {
	// ID is what RDID returns. The third byte sets the capacity.
	ID chip.JEDECID
	// PageBytes is the program page size. Defaults to 256.
	PageBytes int64
	// SectorBytes is the erase sector size. Defaults to 4096.
	SectorBytes int64
	// BusyPolls is how many status reads report write-in-progress after each
	// program or erase.
	BusyPolls int
}

// Winbond W25Q64, 8 MiB.
var DefaultID = chip.JEDECID{0xef, 0x40, 0x17}

// SmallID is an unlisted 128 KiB part, handy for fast tests.
var SmallID = chip.JEDECID{0xef, 0x40, 0x11}

type Chip struct {
	id          chip.JEDECID
	capacity    int64
	pageBytes   int64
	sectorBytes int64
	busyPolls   int

	memory     io.ReadWriteSeeker
	programmed bitmap.Bitmap

	writeEnabled  bool
	busyRemaining int

	// State of the current transaction. opcode is -1 between transactions.
	opcode  int
	header  []byte
	payload bytes.Buffer
	clocked int

	programs   int
	erases     int
	violations int
}

// NewChip creates an erased chip.
func NewChip(config Config) (*Chip, error) {
	if config.ID == (chip.JEDECID{}) {
		config.ID = DefaultID
	}
	if config.PageBytes == 0 {
		config.PageBytes = chip.DefaultPageBytes
	}
	if config.SectorBytes == 0 {
		config.SectorBytes = chip.DefaultSectorBytes
	}

	capacity, err := config.ID.Capacity()
	if err != nil {
		return nil, err
	}
	if capacity%config.SectorBytes != 0 || config.SectorBytes%config.PageBytes != 0 {
		return nil, fmt.Errorf(
			"geometry doesn't nest: %d B chip, %d B sectors, %d B pages",
			capacity,
			config.SectorBytes,
			config.PageBytes)
	}

	c := &Chip{
		id:          config.ID,
		capacity:    capacity,
		pageBytes:   config.PageBytes,
		sectorBytes: config.SectorBytes,
		busyPolls:   config.BusyPolls,
		memory:      bytesextra.NewReadWriteSeeker(bytes.Repeat([]byte{0xff}, int(capacity))),
		programmed:  bitmap.New(int(capacity / config.PageBytes)),
		opcode:      -1,
	}
	return c, nil
}

// MustNewChip is NewChip for configurations known to be valid.
func MustNewChip(config Config) *Chip {
	c, err := NewChip(config)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Chip) Capacity() int64 {
	return c.capacity
}

func (c *Chip) readMemory(p []byte, offset int64) {
	_, err := c.memory.Seek(offset, io.SeekStart)
	if err == nil {
		_, err = io.ReadFull(c.memory, p)
	}
	if err != nil {
		panic(fmt.Sprintf("simulated memory read of %d bytes at %d failed: %s", len(p), offset, err))
	}
}

func (c *Chip) writeMemory(p []byte, offset int64) {
	_, err := c.memory.Seek(offset, io.SeekStart)
	if err == nil {
		_, err = c.memory.Write(p)
	}
	if err != nil {
		panic(fmt.Sprintf("simulated memory write of %d bytes at %d failed: %s", len(p), offset, err))
	}
}

// Contents returns a copy of the whole chip.
func (c *Chip) Contents() []byte {
	data := make([]byte, c.capacity)
	c.readMemory(data, 0)
	return data
}

// Load overwrites the chip's contents directly, bypassing the command
// interface. Pages are marked as programmed unless they're blank.
func (c *Chip) Load(data []byte, offset int64) {
	c.writeMemory(data, offset)
	page := make([]byte, c.pageBytes)
	first := offset / c.pageBytes
	last := (offset + int64(len(data)) - 1) / c.pageBytes
	for i := first; i <= last && len(data) > 0; i++ {
		c.readMemory(page, i*c.pageBytes)
		c.programmed.Set(int(i), !bytes.Equal(page, bytes.Repeat([]byte{0xff}, len(page))))
	}
}

// ProgrammedPages counts pages programmed since they were last erased.
func (c *Chip) ProgrammedPages() int {
	count := 0
	for i := 0; i < int(c.capacity/c.pageBytes); i++ {
		if c.programmed.Get(i) {
			count++
		}
	}
	return count
}

// Programs is the number of page program commands executed.
func (c *Chip) Programs() int {
	return c.programs
}

// Erases is the number of sector and chip erase commands executed.
func (c *Chip) Erases() int {
	return c.erases
}

// Violations counts commands the chip ignored: programs and erases without
// the write-enable latch set, and anything other than a status read sent
// while busy.
func (c *Chip) Violations() int {
	return c.violations
}

func (c *Chip) busy() bool {
	return c.busyRemaining > 0
}

func (c *Chip) addressBytes() int {
	if c.capacity > 1<<24 {
		return 4
	}
	return 3
}

func (c *Chip) headerLength() int {
	switch c.opcode {
	case chip.OpRead, chip.OpPageProgram, chip.OpSectorErase:
		return c.addressBytes()
	case chip.OpRead4B, chip.OpPageProgram4B, chip.OpSectorErase4B:
		return 4
	}
	return 0
}

func (c *Chip) address() int64 {
	address := int64(0)
	for _, b := range c.header {
		address = address<<8 | int64(b)
	}
	return address % c.capacity
}

func (c *Chip) begin() {
	c.opcode = -1
	c.header = c.header[:0]
	c.payload.Reset()
	c.clocked = 0
}

// clock shifts `tx` into the chip and returns what the chip shifts out.
func (c *Chip) clock(tx []byte) []byte {
	rx := bytes.Repeat([]byte{0xff}, len(tx))

	for i := 0; i < len(tx); {
		if c.opcode < 0 {
			c.opcode = int(tx[i])
			i++
			continue
		}
		if len(c.header) < c.headerLength() {
			c.header = append(c.header, tx[i])
			i++
			continue
		}

		remaining := tx[i:]
		switch c.opcode {
		case chip.OpReadID:
			for j := range remaining {
				if c.clocked+j < len(c.id) {
					rx[i+j] = c.id[c.clocked+j]
				} else {
					rx[i+j] = 0
				}
			}
		case chip.OpReadStatus:
			for j := range remaining {
				rx[i+j] = c.status()
				if c.busyRemaining > 0 {
					c.busyRemaining--
				}
			}
		case chip.OpRead, chip.OpRead4B:
			if !c.busy() {
				c.readWrapped(rx[i:], c.address()+int64(c.clocked))
			}
		case chip.OpPageProgram, chip.OpPageProgram4B:
			c.payload.Write(remaining)
		}
		c.clocked += len(remaining)
		i += len(remaining)
	}
	return rx
}

func (c *Chip) status() byte {
	status := byte(0)
	if c.busy() {
		status |= chip.StatusWriteInProgress
	}
	if c.writeEnabled {
		status |= chip.StatusWriteEnabled
	}
	return status
}

// readWrapped fills `p` from `offset`, wrapping at the end of the chip the way
// a continuous read does.
func (c *Chip) readWrapped(p []byte, offset int64) {
	for len(p) > 0 {
		n := min(int64(len(p)), c.capacity-offset)
		c.readMemory(p[:n], offset)
		p = p[n:]
		offset = 0
	}
}

// end executes the command of the current transaction, as chip select rising
// does on a real part. It returns the operation for the bus log, if any.
func (c *Chip) end() (Operation, bool) {
	defer c.begin()
	if c.opcode < 0 {
		return Operation{}, false
	}

	op := Operation{Opcode: byte(c.opcode)}
	if c.busy() && c.opcode != chip.OpReadStatus {
		c.violations++
		return op, false
	}

	switch c.opcode {
	case chip.OpWriteEnable:
		c.writeEnabled = true
		return op, false

	case chip.OpRead, chip.OpRead4B:
		if len(c.header) < c.headerLength() {
			return op, false
		}
		op.Address = c.address()
		op.Length = c.clocked
		return op, true

	case chip.OpPageProgram, chip.OpPageProgram4B:
		if !c.requireWriteEnable() || len(c.header) < c.headerLength() {
			return op, false
		}
		op.Address = c.address()
		op.Length = c.payload.Len()
		c.programPage(op.Address, c.payload.Bytes())
		return op, true

	case chip.OpSectorErase, chip.OpSectorErase4B:
		if !c.requireWriteEnable() || len(c.header) < c.headerLength() {
			return op, false
		}
		op.Address = c.address() / c.sectorBytes * c.sectorBytes
		op.Length = int(c.sectorBytes)
		c.erase(op.Address, c.sectorBytes)
		return op, true

	case chip.OpChipErase, chip.OpChipEraseAlt:
		if !c.requireWriteEnable() {
			return op, false
		}
		op.Length = int(c.capacity)
		c.erase(0, c.capacity)
		return op, true
	}
	return op, false
}

func (c *Chip) requireWriteEnable() bool {
	if !c.writeEnabled {
		c.violations++
		return false
	}
	c.writeEnabled = false
	c.busyRemaining = c.busyPolls
	return true
}

// programPage ANDs `data` into the page containing `address`. Bytes past the
// end of the page wrap to its start; if more than a page is sent only the
// last page's worth is kept.
func (c *Chip) programPage(address int64, data []byte) {
	c.programs++
	pageStart := address / c.pageBytes * c.pageBytes
	if int64(len(data)) > c.pageBytes {
		skipped := int64(len(data)) - c.pageBytes
		data = data[skipped:]
		address += skipped
	}

	page := make([]byte, c.pageBytes)
	c.readMemory(page, pageStart)
	for i, b := range data {
		page[(address-pageStart+int64(i))%c.pageBytes] &= b
	}
	c.writeMemory(page, pageStart)
	c.programmed.Set(int(pageStart/c.pageBytes), true)
}

func (c *Chip) erase(start, length int64) {
	c.erases++
	c.writeMemory(bytes.Repeat([]byte{0xff}, int(length)), start)
	for page := start / c.pageBytes; page < (start+length)/c.pageBytes; page++ {
		c.programmed.Set(int(page), false)
	}
}
