package chip_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/dargueta/spiflash"
	"github.com/dargueta/spiflash/chip"
	"github.com/dargueta/spiflash/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func probeSmall(t *testing.T, config sim.Config) (*chip.Chip, *sim.Bus) {
	if config.ID == (chip.JEDECID{}) {
		config.ID = sim.SmallID
	}
	bus, err := sim.NewUniformBus(1, config)
	require.NoError(t, err)

	c, err := chip.Probe(bus, 0, chip.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return c, bus
}

func TestProbe__KnownPart(t *testing.T) {
	bus, err := sim.NewUniformBus(1, sim.Config{ID: chip.JEDECID{0xef, 0x40, 0x17}})
	require.NoError(t, err)

	c, err := chip.Probe(bus, 0)
	require.NoError(t, err)
	assert.Equal(t, "Winbond W25Q64", c.PartName())
	assert.EqualValues(t, 8*1024*1024, c.Capacity())
	assert.EqualValues(t, 256, c.PageBytes())
	assert.EqualValues(t, 4096, c.SectorBytes())
	assert.Equal(t, "ef4017", c.ID().String())
}

func TestProbe__UnknownPart(t *testing.T) {
	c, _ := probeSmall(t, sim.Config{})
	assert.Equal(t, "unknown", c.PartName())
	assert.EqualValues(t, 128*1024, c.Capacity())
	assert.EqualValues(t, chip.DefaultPageBytes, c.PageBytes())
}

func TestProbe__NoChip(t *testing.T) {
	// A chip select with nothing listening reads back a floating bus.
	bus := floatingBus{}
	_, err := chip.Probe(bus, 0)
	assert.ErrorIs(t, err, spiflash.ErrInvalidConfiguration)
}

func TestProbe__BadIndex(t *testing.T) {
	bus, err := sim.NewUniformBus(1, sim.Config{ID: sim.SmallID})
	require.NoError(t, err)

	_, err = chip.Probe(bus, 1)
	assert.ErrorIs(t, err, spiflash.ErrInvalidConfiguration)
}

func TestProbe__TransportFailure(t *testing.T) {
	bus, err := sim.NewUniformBus(1, sim.Config{ID: sim.SmallID})
	require.NoError(t, err)
	bus.FailNext(1, nil)

	_, err = chip.Probe(bus, 0)
	assert.ErrorIs(t, err, spiflash.ErrTransportFailure)
	assert.ErrorIs(t, err, sim.ErrInjected)
}

func TestProbe__FourByteAddressing(t *testing.T) {
	bus, err := sim.NewUniformBus(1, sim.Config{ID: chip.JEDECID{0x01, 0x60, 0x19}})
	require.NoError(t, err)

	c, err := chip.Probe(bus, 0)
	require.NoError(t, err)
	assert.Equal(t, "Cypress S25FL256L", c.PartName())

	// Write straddling the 16 MiB line, which 3-byte addresses can't reach.
	data := []byte("above and below")
	_, err = c.WriteAt(data, (1<<24)-5)
	require.NoError(t, err)

	readBack := make([]byte, len(data))
	_, err = c.ReadAt(readBack, (1<<24)-5)
	require.NoError(t, err)
	assert.Equal(t, data, readBack)

	for _, op := range bus.Log() {
		assert.Contains(
			t,
			[]byte{chip.OpRead4B, chip.OpPageProgram4B, chip.OpSectorErase4B},
			op.Opcode,
			"3-byte opcode used on a 32 MiB part")
	}
}

func TestReadWrite__RoundTrip(t *testing.T) {
	c, bus := probeSmall(t, sim.Config{BusyPolls: 3})

	data := make([]byte, 10000)
	rand.Read(data)
	n, err := c.WriteAt(data, 1234)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	readBack := make([]byte, len(data))
	n, err = c.ReadAt(readBack, 1234)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, readBack)
	assert.Equal(t, 0, bus.Chip(0).Violations(), "driver didn't wait for the chip")
}

// Overwriting existing data needs an erase; the rest of the sector must
// survive it.
func TestWriteAt__OverwritePreservesSector(t *testing.T) {
	c, bus := probeSmall(t, sim.Config{})

	original := make([]byte, 4096)
	rand.Read(original)
	_, err := c.WriteAt(original, 4096)
	require.NoError(t, err)

	_, err = c.WriteAt([]byte("hello"), 4096+100)
	require.NoError(t, err)

	expected := append([]byte{}, original...)
	copy(expected[100:], "hello")
	assert.Equal(t, expected, bus.Chip(0).Contents()[4096:8192])
}

// Writing into erased flash must not erase anything.
func TestWriteAt__ErasedSkipsErase(t *testing.T) {
	c, bus := probeSmall(t, sim.Config{})

	_, err := c.WriteAt([]byte{1, 2, 3}, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, bus.Chip(0).Erases())
	assert.Equal(t, 1, bus.Chip(0).Programs())

	// Same data again is a no-op.
	_, err = c.WriteAt([]byte{1, 2, 3}, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, bus.Chip(0).Erases())
	assert.Equal(t, 1, bus.Chip(0).Programs())
}

// Programs must be split at page boundaries. The simulator wraps within the
// page otherwise, which would show up as corruption.
func TestWriteAt__SplitsAtPages(t *testing.T) {
	c, bus := probeSmall(t, sim.Config{})

	data := bytes.Repeat([]byte{0xa5}, 600)
	_, err := c.WriteAt(data, 200)
	require.NoError(t, err)

	var programs []sim.Operation
	for _, op := range bus.Log() {
		if op.Opcode == chip.OpPageProgram {
			programs = append(programs, op)
		}
	}
	assert.Equal(
		t,
		[]sim.Operation{
			{Chip: 0, Opcode: chip.OpPageProgram, Address: 200, Length: 56},
			{Chip: 0, Opcode: chip.OpPageProgram, Address: 256, Length: 256},
			{Chip: 0, Opcode: chip.OpPageProgram, Address: 512, Length: 256},
			{Chip: 0, Opcode: chip.OpPageProgram, Address: 768, Length: 32},
		},
		programs,
	)
	assert.Equal(t, data, bus.Chip(0).Contents()[200:800])
}

func TestWriteAt__SpansSectors(t *testing.T) {
	c, bus := probeSmall(t, sim.Config{})
	bus.Chip(0).Load(bytes.Repeat([]byte{0x11}, 3*4096), 0)

	data := bytes.Repeat([]byte{0xee}, 4096+20)
	_, err := c.WriteAt(data, 4096-10)
	require.NoError(t, err)

	contents := bus.Chip(0).Contents()
	assert.Equal(t, bytes.Repeat([]byte{0x11}, 4096-10), contents[:4096-10])
	assert.Equal(t, data, contents[4096-10:2*4096+10])
	assert.Equal(t, bytes.Repeat([]byte{0x11}, 4096-10), contents[2*4096+10:3*4096])
	assert.Equal(t, 3, bus.Chip(0).Erases())
}

func TestReadWrite__OutOfRange(t *testing.T) {
	c, _ := probeSmall(t, sim.Config{})

	_, err := c.ReadAt(make([]byte, 2), c.Capacity()-1)
	assert.ErrorIs(t, err, spiflash.ErrOutOfRange)
	_, err = c.WriteAt(make([]byte, 2), -1)
	assert.ErrorIs(t, err, spiflash.ErrOutOfRange)
	assert.ErrorIs(t, c.EraseSector(c.Capacity()/c.SectorBytes()), spiflash.ErrOutOfRange)
}

func TestReadAt__ShortTransfer(t *testing.T) {
	c, bus := probeSmall(t, sim.Config{})
	bus.TruncateNext(1)

	_, err := c.ReadAt(make([]byte, 64), 0)
	assert.ErrorIs(t, err, spiflash.ErrShortTransfer)
	assert.ErrorIs(t, err, spiflash.ErrTransportFailure)

	// The chip must have been deselected despite the failure.
	_, err = c.ReadAt(make([]byte, 64), 0)
	assert.NoError(t, err)
}

func TestErase(t *testing.T) {
	c, bus := probeSmall(t, sim.Config{BusyPolls: 5})
	bus.Chip(0).Load(bytes.Repeat([]byte{0}, int(c.Capacity())), 0)

	require.NoError(t, c.Erase())
	assert.Equal(t, bytes.Repeat([]byte{0xff}, int(c.Capacity())), bus.Chip(0).Contents())
	assert.Equal(t, 0, bus.Chip(0).ProgrammedPages())
	assert.Equal(t, 0, bus.Chip(0).Violations())
}

func TestKnownParts(t *testing.T) {
	parts := chip.KnownParts()
	require.NotEmpty(t, parts)
	for _, part := range parts {
		assert.Len(t, part.JEDECID, 6, "bad ID for %s", part)
		assert.Greater(t, part.PageBytes, int64(0))
		assert.Zero(t, part.SectorBytes%part.PageBytes, "%s", part)
	}

	part, ok := chip.LookupPart(chip.JEDECID{0xc2, 0x20, 0x18})
	require.True(t, ok)
	assert.Equal(t, "Macronix MX25L12835F", part.String())
}

func TestJEDECID__Capacity(t *testing.T) {
	capacity, err := chip.JEDECID{0xef, 0x40, 0x18}.Capacity()
	require.NoError(t, err)
	assert.EqualValues(t, 16*1024*1024, capacity)

	_, err = chip.JEDECID{0xff, 0xff, 0xff}.Capacity()
	assert.ErrorIs(t, err, spiflash.ErrInvalidConfiguration)
	_, err = chip.JEDECID{0, 0, 0}.Capacity()
	assert.ErrorIs(t, err, spiflash.ErrInvalidConfiguration)
}

// floatingBus is a bus with one chip-select line and nothing attached.
type floatingBus struct{}

func (floatingBus) ChipSelects() int           { return 1 }
func (floatingBus) SelectChip(index int) error { return nil }
func (floatingBus) Deselect() error            { return nil }
func (floatingBus) Transfer(tx []byte) ([]byte, error) {
	return bytes.Repeat([]byte{0xff}, len(tx)), nil
}
