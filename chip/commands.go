package chip

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dargueta/spiflash"
	"github.com/hashicorp/go-multierror"
	"github.com/noxer/bytewriter"
)

// SPI NOR opcodes understood by the driver. The 4B variants take a 32-bit
// address and are used on parts larger than 16 MiB.
const (
	OpWriteEnable   = 0x06
	OpReadStatus    = 0x05
	OpReadID        = 0x9f
	OpRead          = 0x03
	OpRead4B        = 0x13
	OpPageProgram   = 0x02
	OpPageProgram4B = 0x12
	OpSectorErase   = 0x20
	OpSectorErase4B = 0x21
	OpChipErase     = 0xc7
	OpChipEraseAlt  = 0x60
)

// Status register bits.
const (
	StatusWriteInProgress = 0x01
	StatusWriteEnabled    = 0x02
)

// frame builds a command: the opcode, then the address, then `payload`.
func (c *Chip) frame(opcode byte, address int64, payload []byte) ([]byte, error) {
	frame := make([]byte, 1+c.addressBytes+len(payload))
	writer := bytewriter.New(frame)

	var addressBuf [4]byte
	binary.BigEndian.PutUint32(addressBuf[:], uint32(address))

	for _, part := range [][]byte{{opcode}, addressBuf[4-c.addressBytes:], payload} {
		if len(part) == 0 {
			continue
		}
		_, err := writer.Write(part)
		if err != nil {
			return nil, spiflash.ErrInvalidArgument.Wrap(
				fmt.Errorf("building command %02x: %w", opcode, err))
		}
	}
	return frame, nil
}

// transaction selects the chip, clocks each frame through it in order and
// deselects it. The response to the last frame is returned.
//
// The chip is always deselected, even if a transfer fails, since program and
// erase commands only take effect when chip select is released.
func (c *Chip) transaction(frames ...[]byte) ([]byte, error) {
	err := c.transport.SelectChip(c.index)
	if err != nil {
		return nil, spiflash.ErrTransportFailure.Wrap(
			fmt.Errorf("selecting chip %d: %w", c.index, err))
	}

	var rx []byte
	var transferErr error
	for _, tx := range frames {
		rx, transferErr = c.transport.Transfer(tx)
		if transferErr != nil {
			transferErr = spiflash.ErrTransportFailure.Wrap(transferErr)
			break
		}
		if len(rx) < len(tx) {
			transferErr = spiflash.ErrShortTransfer.WithMessage(
				fmt.Sprintf(
					"chip %d: clocked out %d bytes but got %d back",
					c.index,
					len(tx),
					len(rx)))
			break
		}
	}

	deselectErr := c.transport.Deselect()
	switch {
	case transferErr != nil && deselectErr != nil:
		return nil, spiflash.ErrTransportFailure.Wrap(multierror.Append(transferErr, deselectErr))
	case transferErr != nil:
		return nil, transferErr
	case deselectErr != nil:
		return nil, spiflash.ErrTransportFailure.Wrap(
			fmt.Errorf("deselecting chip %d: %w", c.index, deselectErr))
	}
	return rx, nil
}

func (c *Chip) writeEnable() error {
	_, err := c.transaction([]byte{OpWriteEnable})
	return err
}

func (c *Chip) readStatus() (byte, error) {
	rx, err := c.transaction([]byte{OpReadStatus, 0})
	if err != nil {
		return 0, err
	}
	return rx[1], nil
}

// waitReady polls the status register until the chip finishes its internal
// program or erase cycle. There is no timeout; a stalled chip blocks.
func (c *Chip) waitReady() error {
	for {
		status, err := c.readStatus()
		if err != nil {
			return err
		}
		if status&StatusWriteInProgress == 0 {
			return nil
		}
		if c.pollInterval > 0 {
			time.Sleep(c.pollInterval)
		}
	}
}

func (c *Chip) readID() (JEDECID, error) {
	rx, err := c.transaction([]byte{OpReadID, 0, 0, 0})
	if err != nil {
		return JEDECID{}, err
	}
	return JEDECID{rx[1], rx[2], rx[3]}, nil
}

// read fetches len(p) bytes at `address` in a single READ command.
func (c *Chip) read(p []byte, address int64) error {
	opcode := byte(OpRead)
	if c.addressBytes == 4 {
		opcode = OpRead4B
	}

	header, err := c.frame(opcode, address, nil)
	if err != nil {
		return err
	}
	rx, err := c.transaction(header, make([]byte, len(p)))
	if err != nil {
		return err
	}
	copy(p, rx)
	return nil
}

// programPage programs `data` at `address`. The range must not cross a page
// boundary; parts wrap around to the start of the page if it does.
func (c *Chip) programPage(address int64, data []byte) error {
	err := c.writeEnable()
	if err != nil {
		return err
	}

	opcode := byte(OpPageProgram)
	if c.addressBytes == 4 {
		opcode = OpPageProgram4B
	}

	frame, err := c.frame(opcode, address, data)
	if err != nil {
		return err
	}
	_, err = c.transaction(frame)
	if err != nil {
		return err
	}
	return c.waitReady()
}

func (c *Chip) eraseSectorAt(address int64) error {
	err := c.writeEnable()
	if err != nil {
		return err
	}

	opcode := byte(OpSectorErase)
	if c.addressBytes == 4 {
		opcode = OpSectorErase4B
	}

	frame, err := c.frame(opcode, address, nil)
	if err != nil {
		return err
	}
	_, err = c.transaction(frame)
	if err != nil {
		return err
	}
	return c.waitReady()
}

func (c *Chip) eraseAll() error {
	err := c.writeEnable()
	if err != nil {
		return err
	}
	_, err = c.transaction([]byte{OpChipErase})
	if err != nil {
		return err
	}
	return c.waitReady()
}
