// Package spiflash defines the contracts shared by the flash driver's
// packages: the error taxonomy, the bus transport consumed by the chip layer,
// and the block device offered to filesystem layers.
package spiflash

import "io"

// Transport is the physical bus a set of flash chips hangs off of. Pin setup
// and bus initialization are the implementation's business; the driver only
// ever selects a chip, clocks bytes through it and deselects it.
//
// Implementations are not required to be safe for concurrent use. Callers
// must serialize transactions.
type Transport interface {
	// ChipSelects is the number of chip-select lines, i.e. physical chips.
	ChipSelects() int
	// SelectChip asserts the chip-select line for chip `index`, beginning a
	// transaction.
	SelectChip(index int) error
	// Deselect releases whichever chip-select line is asserted, ending the
	// transaction.
	Deselect() error
	// Transfer clocks `tx` out on the bus and returns the bytes clocked in at
	// the same time. A full-duplex transfer returns exactly len(tx) bytes;
	// anything shorter is a short transfer.
	Transfer(tx []byte) ([]byte, error)
}

// BlockDevice is the interface a filesystem layer needs to mount a device.
// There are no alignment requirements on offsets or lengths.
type BlockDevice interface {
	io.ReaderAt
	io.WriterAt
	// Len is the total size of the device, in bytes.
	Len() int64
	// BlockSize is the size filesystems should align their allocation units
	// to.
	BlockSize() int64
	// Erase wipes the entire device.
	Erase() error
}
