package chip

import (
	"encoding/hex"
	"fmt"

	"github.com/dargueta/spiflash"
)

// Capacity byte limits accepted from a JEDEC ID, exclusive. Anything outside
// this range is almost certainly a floating bus or a missing chip.
const (
	minCapacityCode = 0x10
	maxCapacityCode = 0x22
)

// JEDECID is the manufacturer, memory type and capacity code returned by the
// RDID command.
type JEDECID [3]byte

func (id JEDECID) String() string {
	return hex.EncodeToString(id[:])
}

// Manufacturer is the JEDEC manufacturer code.
func (id JEDECID) Manufacturer() byte {
	return id[0]
}

// Capacity decodes the size of the chip in bytes from the capacity code.
func (id JEDECID) Capacity() (int64, error) {
	code := id[2]
	if code <= minCapacityCode || code >= maxCapacityCode {
		return 0, spiflash.ErrInvalidConfiguration.WithMessage(
			fmt.Sprintf("invalid capacity code %#02x in JEDEC ID %s", code, id))
	}
	return int64(1) << code, nil
}
