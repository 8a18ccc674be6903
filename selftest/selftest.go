// Package selftest exercises a flash device end to end: byte addressing,
// slice readback, block and chip boundaries, and a write/read sweep of the
// whole device.
//
// Every check writes to the device. None of them restore what was there.
package selftest

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dargueta/spiflash"
)

// Device is what the checks need from a flash device.
type Device interface {
	Len() int64
	BlockSize() int64
	ChipCount() int
	ChipCapacity() int64
	Get(offset int64) (byte, error)
	Set(offset int64, value byte) error
	GetRange(offset, length int64) ([]byte, error)
	SetRange(offset int64, data []byte) error
}

// ErrSkipped is returned by a check that doesn't apply to the device.
var ErrSkipped = spiflash.ErrNotSupported.WithMessage("check skipped")

// Default locations and sizes used by Run.
const (
	ByteAddressingStart = 1000
	SliceReadbackStart  = 2000
	SliceReadbackLength = 30
	BoundaryBlockBytes  = 256
)

// Failure is a check that ran to completion and found the wrong data.
type Failure struct {
	Check    string
	Step     int
	Address  int64
	Expected []byte
	Actual   []byte
}

func (f *Failure) Error() string {
	step := ""
	if f.Step > 0 {
		step = fmt.Sprintf(" step %d", f.Step)
	}
	return fmt.Sprintf(
		"%s%s failed at %#x: expected %v, got %v",
		f.Check,
		step,
		f.Address,
		f.Expected,
		f.Actual)
}

func compare(check string, step int, address int64, expected, actual []byte) error {
	if bytes.Equal(expected, actual) {
		return nil
	}
	for i := range expected {
		if i >= len(actual) || expected[i] != actual[i] {
			return &Failure{
				Check:    check,
				Step:     step,
				Address:  address + int64(i),
				Expected: expected,
				Actual:   actual,
			}
		}
	}
	return &Failure{Check: check, Step: step, Address: address, Expected: expected, Actual: actual}
}

// ByteAddressing writes the values 0-255 one byte at a time starting at
// `start`, then reads them back one at a time.
func ByteAddressing(dev Device, start int64) error {
	for v := 0; v < 256; v++ {
		err := dev.Set(start+int64(v), byte(v))
		if err != nil {
			return err
		}
	}
	for v := 0; v < 256; v++ {
		got, err := dev.Get(start + int64(v))
		if err != nil {
			return err
		}
		if got != byte(v) {
			return &Failure{
				Check:    "byte addressing",
				Address:  start + int64(v),
				Expected: []byte{byte(v)},
				Actual:   []byte{got},
			}
		}
	}
	return nil
}

// SliceReadback writes SliceReadbackLength bytes from `rnd` at `start` in one
// operation and reads them back in one operation.
func SliceReadback(dev Device, start int64, rnd io.Reader) error {
	data := make([]byte, SliceReadbackLength)
	_, err := io.ReadFull(rnd, data)
	if err != nil {
		return err
	}

	err = dev.SetRange(start, data)
	if err != nil {
		return err
	}
	got, err := dev.GetRange(start, int64(len(data)))
	if err != nil {
		return err
	}
	return compare("slice readback", 0, start, data, got)
}

// Boundary checks writes that start, end, and straddle the boundary at
// `boundary` by overwriting progressively smaller pieces around it.
func Boundary(dev Device, boundary int64) error {
	const check = "boundary"
	lead := []byte("this >")
	trail := []byte("<is the boundary")
	garbage := []byte("xxxxxxxxxxxxxxxxxxx")
	start := boundary - int64(len(lead))

	err := dev.SetRange(start, garbage)
	if err != nil {
		return err
	}
	got, err := dev.GetRange(start, int64(len(garbage)))
	if err != nil {
		return err
	}
	err = compare(check, 1, start, garbage, got)
	if err != nil {
		return err
	}

	err = dev.SetRange(start, lead)
	if err != nil {
		return err
	}
	got, err = dev.GetRange(start, int64(len(garbage)))
	if err != nil {
		return err
	}
	err = compare(check, 2, start, []byte("this >xxxxxxxxxxxxx"), got)
	if err != nil {
		return err
	}

	err = dev.SetRange(boundary, trail)
	if err != nil {
		return err
	}
	expected := append(append([]byte{}, lead...), trail...)
	got, err = dev.GetRange(start, int64(len(expected)))
	if err != nil {
		return err
	}
	return compare(check, 3, start, expected, got)
}

// ChipBoundary runs Boundary across the join of the first two chips. With only
// one chip there's no join, and it returns ErrSkipped.
func ChipBoundary(dev Device) error {
	if dev.ChipCount() < 2 {
		return ErrSkipped
	}
	return Boundary(dev, dev.ChipCapacity())
}

// FullSweep writes random data to every block of the device in order, reading
// each back right after writing it. It stops at the first block that fails.
// `progress`, if not nil, is called after each block passes.
func FullSweep(dev Device, rnd io.Reader, progress func(block, total int64)) error {
	blockBytes := dev.BlockSize()
	total := dev.Len() / blockBytes
	data := make([]byte, blockBytes)

	for block := int64(0); block < total; block++ {
		_, err := io.ReadFull(rnd, data)
		if err != nil {
			return err
		}

		offset := block * blockBytes
		err = dev.SetRange(offset, data)
		if err != nil {
			return fmt.Errorf("block %d: %w", block, err)
		}
		got, err := dev.GetRange(offset, blockBytes)
		if err != nil {
			return fmt.Errorf("block %d: %w", block, err)
		}
		err = compare(fmt.Sprintf("sweep of block %d", block), 0, offset, data, got)
		if err != nil {
			return err
		}

		if progress != nil {
			progress(block, total)
		}
	}
	return nil
}

// Result is the outcome of one check run by Run.
type Result struct {
	Name string
	Err  error
}

func (r Result) Passed() bool {
	return r.Err == nil
}

func (r Result) Skipped() bool {
	return errors.Is(r.Err, ErrSkipped)
}

func (r Result) String() string {
	switch {
	case r.Passed():
		return r.Name + ": passed"
	case r.Skipped():
		return r.Name + ": skipped"
	}
	return fmt.Sprintf("%s: FAILED: %s", r.Name, r.Err)
}

// Run runs every check except the full sweep, in order, and reports each one.
// A failing check doesn't stop the ones after it.
func Run(dev Device, rnd io.Reader) []Result {
	return []Result{
		{
			Name: "byte addressing",
			Err:  ByteAddressing(dev, ByteAddressingStart),
		},
		{
			Name: "slice readback",
			Err:  SliceReadback(dev, SliceReadbackStart, rnd),
		},
		{
			Name: fmt.Sprintf("block boundary %d", BoundaryBlockBytes),
			Err:  Boundary(dev, BoundaryBlockBytes),
		},
		{
			Name: fmt.Sprintf("chip boundary %d", dev.ChipCapacity()),
			Err:  ChipBoundary(dev),
		},
	}
}

// Failed is true if any result is a failure. Skipped checks don't count.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed() && !r.Skipped() {
			return true
		}
	}
	return false
}
