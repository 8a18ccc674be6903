// Package addressing maps a flat byte address space onto the physical chips
// backing it.
//
// Every boundary the driver cares about (chips, program pages, erase sectors)
// is handled by the same algorithm, [Split], parameterized by the size of the
// unit whose boundaries must not be crossed.
package addressing

import "fmt"

// Unit is one piece of a byte range confined to a single fixed-size unit.
type Unit struct {
	// Index is the number of the unit, counting from the start of the address
	// space.
	Index int64
	// Offset is where the piece starts, relative to the start of its unit.
	Offset int64
	// Length is the size of the piece, in bytes. It is always at least 1.
	Length int64
}

// Split cuts the range [offset, offset+length) at every multiple of `unitSize`
// and returns the pieces in ascending order. A range crossing N boundaries
// produces N+1 pieces; the first and last may be shorter than a unit.
//
// Split panics if unitSize isn't positive. It does no bounds checking.
func Split(offset, length, unitSize int64) []Unit {
	if unitSize <= 0 {
		panic(fmt.Sprintf("unit size must be positive, got %d", unitSize))
	}
	if length <= 0 {
		return nil
	}

	units := make([]Unit, 0, 1+(offset%unitSize+length-1)/unitSize)
	for length > 0 {
		local := offset % unitSize
		chunk := min(length, unitSize-local)
		units = append(units, Unit{Index: offset / unitSize, Offset: local, Length: chunk})
		offset += chunk
		length -= chunk
	}
	return units
}

// PhysicalSpan is a piece of a request confined to one chip. It's the unit of
// work handed to the chip layer.
type PhysicalSpan struct {
	Chip   int
	Offset int64
	Length int64
}

// End is the chip-relative offset one past the last byte of the span.
func (span PhysicalSpan) End() int64 {
	return span.Offset + span.Length
}

func (span PhysicalSpan) String() string {
	return fmt.Sprintf("chip %d [%#x, %#x)", span.Chip, span.Offset, span.End())
}

// LogicalRequest is one read or write issued against the flat address space.
type LogicalRequest struct {
	Offset int64
	Length int64
	// Payload holds the data to write. It's nil for reads.
	Payload []byte
}

// ReadRequest creates a request for `length` bytes starting at `offset`.
func ReadRequest(offset, length int64) LogicalRequest {
	return LogicalRequest{Offset: offset, Length: length}
}

// WriteRequest creates a request writing all of `payload` at `offset`.
func WriteRequest(offset int64, payload []byte) LogicalRequest {
	return LogicalRequest{Offset: offset, Length: int64(len(payload)), Payload: payload}
}

// End is the offset one past the last byte of the request.
func (req LogicalRequest) End() int64 {
	return req.Offset + req.Length
}
