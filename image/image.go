// Package image saves and restores the full contents of a flash device.
//
// An image is the raw device contents, RLE8 encoded and then gzipped. Erased
// flash is long runs of 0xff, so a mostly empty device dumps to almost
// nothing. In the RLE8 scheme used here, a byte B occurring N >= 2 times in a
// row is stored as B B (N-2), so runs of up to 257 bytes take three bytes.
// Longer runs are split.
package image

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/dargueta/spiflash"
	"github.com/noxer/bytewriter"
)

// Device is what dumping and restoring need from a flash device.
type Device interface {
	io.ReaderAt
	io.WriterAt
	Len() int64
}

// Dump writes an image of the whole device to `w`.
func Dump(dev Device, w io.Writer) error {
	gzWriter, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return err
	}

	_, err = EncodeRLE8(io.NewSectionReader(dev, 0, dev.Len()), gzWriter)
	if err != nil {
		return err
	}
	return gzWriter.Close()
}

// Expand decodes an image of any size to `w`, returning the number of raw
// bytes written.
func Expand(r io.Reader, w io.Writer) (int64, error) {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return 0, spiflash.ErrInvalidArgument.Wrap(err)
	}
	defer gzReader.Close()

	output := bufio.NewWriter(w)
	n, err := DecodeRLE8(gzReader, output)
	if err != nil {
		return n, spiflash.ErrInvalidArgument.Wrap(err)
	}
	return n, output.Flush()
}

// Decode reads an image and returns the raw contents, which must be exactly
// `size` bytes.
func Decode(r io.Reader, size int64) ([]byte, error) {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, spiflash.ErrInvalidArgument.Wrap(err)
	}
	defer gzReader.Close()

	// One spare byte so an oversized image shows up as a size mismatch
	// instead of a failed write.
	contents := make([]byte, size+1)
	decoded, err := DecodeRLE8(gzReader, bytewriter.New(contents))
	if decoded > size {
		return nil, spiflash.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("image is larger than the device (%d B)", size))
	}
	if err != nil {
		return nil, spiflash.ErrInvalidArgument.Wrap(err)
	}
	if decoded != size {
		return nil, spiflash.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("image is %d B, device is %d B", decoded, size))
	}
	return contents[:size], nil
}

// Restore overwrites the whole device with an image read from `r`. Nothing is
// written unless the image decodes cleanly to exactly the device's size.
func Restore(dev Device, r io.Reader) error {
	contents, err := Decode(r, dev.Len())
	if err != nil {
		return err
	}
	_, err = dev.WriteAt(contents, 0)
	return err
}
