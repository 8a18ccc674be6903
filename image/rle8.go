package image

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// The longest run one RLE8 group can hold: two literal bytes plus up to 255
// repeats.
const maxRun = 257

// EncodeRLE8 run-length encodes everything in `input` to `output` until the
// input is exhausted. It returns the number of encoded bytes written.
func EncodeRLE8(input io.Reader, output io.Writer) (int64, error) {
	grouper := newRunGrouper(input)

	written := int64(0)
	for {
		run, err := grouper.next()
		if errors.Is(err, io.EOF) {
			return written, nil
		} else if err != nil {
			return written, err
		}

		for run.length >= 2 {
			repeats := min(run.length, maxRun) - 2
			n, err := output.Write([]byte{run.value, run.value, byte(repeats)})
			written += int64(n)
			if err != nil {
				return written, err
			}
			run.length -= repeats + 2
		}

		if run.length == 1 {
			n, err := output.Write([]byte{run.value})
			written += int64(n)
			if err != nil {
				return written, err
			}
		}
	}
}

// DecodeRLE8 expands an RLE8 stream from `input` to `output`. It returns the
// number of raw bytes written, which is meaningful even on error.
func DecodeRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	// The previous literal byte, or -1 if the next byte can't start a repeat.
	last := -1
	written := int64(0)

	for {
		current, err := source.ReadByte()
		if errors.Is(err, io.EOF) {
			return written, nil
		} else if err != nil {
			return written, fmt.Errorf("error reading input: %w", err)
		}

		var chunk []byte
		if int(current) == last {
			// Second of a pair: the next byte is the number of extra repeats.
			repeats, err := source.ReadByte()
			if errors.Is(err, io.EOF) {
				return written, fmt.Errorf(
					"%w: missing repeat count after two %02x bytes",
					io.ErrUnexpectedEOF,
					current)
			} else if err != nil {
				return written, fmt.Errorf("error reading input: %w", err)
			}

			// The first of the pair was already written as a literal.
			chunk = bytes.Repeat([]byte{current}, int(repeats)+1)
			last = -1
		} else {
			chunk = []byte{current}
			last = int(current)
		}

		n, err := output.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("failed to write to output: %w", err)
		}
	}
}
