package device

import (
	"fmt"

	"github.com/dargueta/spiflash"
	"go.uber.org/zap"
)

// BlockID is the index of a logical block on the device.
type BlockID int64

// BlockOffset converts a block ID and a byte offset within that block to an
// absolute device offset. The offset may run past the end of the block; only
// the resulting address range is bounds-checked.
func (device *Device) BlockOffset(block BlockID, offset int64) (int64, error) {
	if block < 0 || int64(block) >= device.space.BlockCount() {
		return -1, spiflash.ErrOutOfRange.WithMessage(
			fmt.Sprintf(
				"invalid block ID %d: not in range [0, %d)",
				block,
				device.space.BlockCount()))
	}
	if offset < 0 {
		return -1, spiflash.ErrOutOfRange.WithMessage(
			fmt.Sprintf("negative offset %d into block %d", offset, block))
	}
	return int64(block)*device.space.BlockBytes() + offset, nil
}

// ReadBlocks fills `buf` starting `offset` bytes into block `block`.
func (device *Device) ReadBlocks(block BlockID, buf []byte, offset int64) error {
	absolute, err := device.BlockOffset(block, offset)
	if err != nil {
		return err
	}
	return device.read(buf, absolute)
}

// WriteBlocks writes `buf` starting `offset` bytes into block `block`. Erasing
// whatever the write covers is handled by the chips.
func (device *Device) WriteBlocks(block BlockID, buf []byte, offset int64) error {
	absolute, err := device.BlockOffset(block, offset)
	if err != nil {
		return err
	}
	return device.write(buf, absolute)
}

// EraseBlock is accepted for filesystems that issue explicit erases. It
// doesn't touch the flash: writes already erase what they need.
func (device *Device) EraseBlock(block BlockID) error {
	_, err := device.BlockOffset(block, 0)
	return err
}

// Sync always succeeds. Every write goes straight to the chips.
func (device *Device) Sync() error {
	return nil
}

// Erase wipes every chip, in order. It stops at the first failure.
func (device *Device) Erase() error {
	device.mu.Lock()
	defer device.mu.Unlock()

	for i, c := range device.chips {
		device.logger.Info("erasing chip", zap.Int("chip", i))
		err := c.Erase()
		if err != nil {
			driverErr, ok := err.(spiflash.DriverError)
			if !ok {
				return spiflash.ErrTransportFailure.Wrap(err)
			}
			return driverErr.WithMessage(fmt.Sprintf("erasing chip %d", i))
		}
	}
	return nil
}
