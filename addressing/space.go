package addressing

import (
	"fmt"

	"github.com/dargueta/spiflash"
)

// AddressSpace describes how a device's flat address space is laid over its
// chips. It's immutable once created.
type AddressSpace struct {
	totalBytes int64
	blockBytes int64
	chipBytes  int64
	chipCount  int
}

// NewAddressSpace validates the geometry of a device with `chipCount` chips of
// `chipBytes` each, exposing `blockBytes`-sized logical blocks.
//
// The total size is always chipBytes * chipCount. Anything that would require
// truncating the address space is a configuration error.
func NewAddressSpace(chipCount int, chipBytes, blockBytes int64) (AddressSpace, error) {
	if chipCount < 1 {
		return AddressSpace{}, spiflash.ErrInvalidConfiguration.WithMessage(
			fmt.Sprintf("need at least one chip, got %d", chipCount))
	}
	if chipBytes <= 0 {
		return AddressSpace{}, spiflash.ErrInvalidConfiguration.WithMessage(
			fmt.Sprintf("chip size must be positive, got %d", chipBytes))
	}
	if blockBytes <= 0 || chipBytes%blockBytes != 0 {
		return AddressSpace{}, spiflash.ErrInvalidConfiguration.WithMessage(
			fmt.Sprintf(
				"block size %d B must be positive and divide the chip size %d B",
				blockBytes,
				chipBytes))
	}

	return AddressSpace{
		totalBytes: chipBytes * int64(chipCount),
		blockBytes: blockBytes,
		chipBytes:  chipBytes,
		chipCount:  chipCount,
	}, nil
}

// TotalBytes is the size of the whole device.
func (space AddressSpace) TotalBytes() int64 {
	return space.totalBytes
}

// BlockBytes is the logical block size.
func (space AddressSpace) BlockBytes() int64 {
	return space.blockBytes
}

// ChipBytes is the capacity of a single chip.
func (space AddressSpace) ChipBytes() int64 {
	return space.chipBytes
}

// ChipCount is the number of chips, one per chip-select line.
func (space AddressSpace) ChipCount() int {
	return space.chipCount
}

// BlockCount is the number of logical blocks on the device.
func (space AddressSpace) BlockCount() int64 {
	return space.totalBytes / space.blockBytes
}

// CheckBounds returns ErrOutOfRange unless [offset, offset+length) lies within
// the device. A zero-length range is fine anywhere in [0, TotalBytes].
func (space AddressSpace) CheckBounds(offset, length int64) error {
	if offset < 0 || length < 0 {
		return spiflash.ErrOutOfRange.WithMessage(
			fmt.Sprintf("negative offset or length: %d bytes at %d", length, offset))
	}
	if offset > space.totalBytes || length > space.totalBytes-offset {
		return spiflash.ErrOutOfRange.WithMessage(
			fmt.Sprintf(
				"%d bytes at offset %d extends past end of device (%d B)",
				length,
				offset,
				space.totalBytes))
	}
	return nil
}

// Decompose converts a request into the chip-confined spans covering it,
// exactly once each, in ascending offset order.
func (space AddressSpace) Decompose(req LogicalRequest) ([]PhysicalSpan, error) {
	if req.Payload != nil && int64(len(req.Payload)) != req.Length {
		return nil, spiflash.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"request length %d doesn't match payload size %d",
				req.Length,
				len(req.Payload)))
	}

	err := space.CheckBounds(req.Offset, req.Length)
	if err != nil {
		return nil, err
	}

	units := Split(req.Offset, req.Length, space.chipBytes)
	spans := make([]PhysicalSpan, len(units))
	for i, unit := range units {
		spans[i] = PhysicalSpan{
			Chip:   int(unit.Index),
			Offset: unit.Offset,
			Length: unit.Length,
		}
	}
	return spans, nil
}
