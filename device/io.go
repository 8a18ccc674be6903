package device

import (
	"fmt"

	"github.com/dargueta/spiflash"
	"github.com/dargueta/spiflash/addressing"
	"go.uber.org/zap"
)

// read fills `p` from `offset`, one physical read per span.
func (device *Device) read(p []byte, offset int64) error {
	spans, err := device.space.Decompose(addressing.ReadRequest(offset, int64(len(p))))
	if err != nil {
		return err
	}

	device.mu.Lock()
	defer device.mu.Unlock()

	cut := int64(0)
	for _, span := range spans {
		device.logger.Debug(
			"read span",
			zap.Int("chip", span.Chip),
			zap.Int64("offset", span.Offset),
			zap.Int64("length", span.Length),
		)

		n, err := device.chips[span.Chip].ReadAt(p[cut:cut+span.Length], span.Offset)
		if err != nil {
			return spanError(err, span)
		}
		if int64(n) != span.Length {
			return spiflash.ErrShortTransfer.WithMessage(
				fmt.Sprintf("read %d of %d bytes from %s", n, span.Length, span))
		}
		cut += span.Length
	}
	return nil
}

// write writes all of `data` at `offset`, one physical write per span, in
// ascending order. The buffer is cut at the same points as the spans.
func (device *Device) write(data []byte, offset int64) error {
	spans, err := device.space.Decompose(addressing.WriteRequest(offset, data))
	if err != nil {
		return err
	}

	device.mu.Lock()
	defer device.mu.Unlock()

	cut := int64(0)
	for _, span := range spans {
		device.logger.Debug(
			"write span",
			zap.Int("chip", span.Chip),
			zap.Int64("offset", span.Offset),
			zap.Int64("length", span.Length),
		)

		n, err := device.chips[span.Chip].WriteAt(data[cut:cut+span.Length], span.Offset)
		if err != nil {
			return spanError(err, span)
		}
		if int64(n) != span.Length {
			return spiflash.ErrShortTransfer.WithMessage(
				fmt.Sprintf("wrote %d of %d bytes to %s", n, span.Length, span))
		}
		cut += span.Length
	}
	return nil
}

// spanError attributes a chip error to the span that caused it. Errors that
// aren't from this package are transport failures by definition.
func spanError(err error, span addressing.PhysicalSpan) error {
	driverErr, ok := err.(spiflash.DriverError)
	if !ok {
		return spiflash.ErrTransportFailure.Wrap(err)
	}
	return driverErr.WithMessage(span.String())
}

// Get reads the byte at `offset`.
func (device *Device) Get(offset int64) (byte, error) {
	var buf [1]byte
	err := device.read(buf[:], offset)
	return buf[0], err
}

// GetRange reads `length` bytes starting at `offset`.
func (device *Device) GetRange(offset, length int64) ([]byte, error) {
	err := device.space.CheckBounds(offset, length)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	err = device.read(buf, offset)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Set writes a single byte at `offset`.
func (device *Device) Set(offset int64, value byte) error {
	return device.write([]byte{value}, offset)
}

// SetRange writes all of `data` starting at `offset`.
func (device *Device) SetRange(offset int64, data []byte) error {
	return device.write(data, offset)
}

// ReadAt implements io.ReaderAt. Reads are all or nothing.
func (device *Device) ReadAt(p []byte, off int64) (int, error) {
	err := device.read(p, off)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteAt implements io.WriterAt. Writes are all or nothing from the caller's
// point of view; a failed write may have modified a prefix of the range.
func (device *Device) WriteAt(p []byte, off int64) (int, error) {
	err := device.write(p, off)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}
