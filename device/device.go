// Package device presents a set of flash chips as one linear block device.
//
// Requests against the flat address space are decomposed into chip-confined
// spans by [addressing.AddressSpace.Decompose] and issued to the chips in
// ascending order. There are no alignment requirements: single bytes at
// arbitrary offsets work, as do ranges crossing any number of page, sector
// or chip boundaries.
package device

import (
	"fmt"
	"io"
	"sync"

	"github.com/dargueta/spiflash"
	"github.com/dargueta/spiflash/addressing"
	"github.com/dargueta/spiflash/chip"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// DefaultBlockBytes is the block size reported to filesystems unless
// configured otherwise.
const DefaultBlockBytes = 512

// PhysicalChip is the storage behind one chip-select line.
type PhysicalChip interface {
	io.ReaderAt
	io.WriterAt
	Capacity() int64
	Erase() error
}

// Config holds the geometry a device is expected to have.
type Config struct {
	// BlockBytes is the logical block size. It must divide the chip size.
	// Zero means DefaultBlockBytes.
	BlockBytes int64
	// ChipBytes is the expected size of every chip. Zero accepts whatever the
	// first chip reports; every other chip must match it.
	ChipBytes int64
}

// Device is a block device spanning one or more chips. It's safe for
// concurrent use; operations are serialized since the chips share a bus.
type Device struct {
	space  addressing.AddressSpace
	chips  []PhysicalChip
	logger *zap.Logger

	// Held for the whole span sequence of one request.
	mu sync.Mutex
}

var _ spiflash.BlockDevice = (*Device)(nil)

type Option func(*options)

type options struct {
	logger      *zap.Logger
	chipOptions []chip.Option
}

// WithLogger sets the logger for the device and the chips it probes.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithChipOptions passes extra options to every chip probed by Open.
func WithChipOptions(chipOptions ...chip.Option) Option {
	return func(o *options) {
		o.chipOptions = append(o.chipOptions, chipOptions...)
	}
}

func collectOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open probes every chip on the transport and builds a device over them.
func Open(transport spiflash.Transport, config Config, opts ...Option) (*Device, error) {
	o := collectOptions(opts)
	chipOptions := append([]chip.Option{chip.WithLogger(o.logger)}, o.chipOptions...)

	chips := make([]PhysicalChip, transport.ChipSelects())
	for i := range chips {
		c, err := chip.Probe(transport, i, chipOptions...)
		if err != nil {
			return nil, err
		}
		chips[i] = c
	}
	return New(chips, config, opts...)
}

// New builds a device over already-initialized chips. All chips must be the
// same size.
func New(chips []PhysicalChip, config Config, opts ...Option) (*Device, error) {
	o := collectOptions(opts)

	if len(chips) == 0 {
		return nil, spiflash.ErrInvalidConfiguration.WithMessage("no chips given")
	}

	chipBytes := config.ChipBytes
	if chipBytes == 0 {
		chipBytes = chips[0].Capacity()
	}

	var mismatches error
	for i, c := range chips {
		if c.Capacity() != chipBytes {
			mismatches = multierror.Append(
				mismatches,
				fmt.Errorf("chip %d is %d B, expected %d B", i, c.Capacity(), chipBytes))
		}
	}
	if mismatches != nil {
		return nil, spiflash.ErrInvalidConfiguration.Wrap(mismatches)
	}

	blockBytes := config.BlockBytes
	if blockBytes == 0 {
		blockBytes = DefaultBlockBytes
	}

	space, err := addressing.NewAddressSpace(len(chips), chipBytes, blockBytes)
	if err != nil {
		return nil, err
	}

	o.logger.Info(
		"flash device ready",
		zap.Int("chips", space.ChipCount()),
		zap.Int64("chip_bytes", space.ChipBytes()),
		zap.Int64("total_bytes", space.TotalBytes()),
		zap.Int64("block_bytes", space.BlockBytes()),
	)
	return &Device{space: space, chips: chips, logger: o.logger}, nil
}

// Space returns the device's geometry.
func (device *Device) Space() addressing.AddressSpace {
	return device.space
}

// Len is the total size of the device, in bytes.
func (device *Device) Len() int64 {
	return device.space.TotalBytes()
}

// BlockSize is the logical block size, in bytes. It's advisory; the device
// itself doesn't require aligned access.
func (device *Device) BlockSize() int64 {
	return device.space.BlockBytes()
}

// BlockCount is the number of logical blocks on the device.
func (device *Device) BlockCount() int64 {
	return device.space.BlockCount()
}

// ChipCount is the number of physical chips.
func (device *Device) ChipCount() int {
	return device.space.ChipCount()
}

// ChipCapacity is the size of a single chip, in bytes.
func (device *Device) ChipCapacity() int64 {
	return device.space.ChipBytes()
}

// Chip returns the chip on chip-select line `index`.
func (device *Device) Chip(index int) PhysicalChip {
	return device.chips[index]
}
