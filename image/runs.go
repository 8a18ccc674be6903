package image

import (
	"bufio"
	"io"
)

// byteRun is one run of a single byte value. length is the number of times
// the byte occurs, so a valid run always has a length of at least 1.
type byteRun struct {
	value  byte
	length int
}

// runGrouper splits a stream into maximal runs of identical bytes. An erased
// sector comes out as a single run of 0xff.
type runGrouper struct {
	rd *bufio.Reader
}

func newRunGrouper(rd io.Reader) runGrouper {
	return runGrouper{rd: bufio.NewReader(rd)}
}

// next returns the next run in the stream. At the end of the stream it
// returns a zero-length run and io.EOF.
func (grouper runGrouper) next() (byteRun, error) {
	first, err := grouper.rd.ReadByte()
	if err != nil {
		return byteRun{}, err
	}

	run := byteRun{value: first, length: 1}
	for {
		current, err := grouper.rd.ReadByte()
		if err == io.EOF {
			return run, nil
		} else if err != nil {
			return byteRun{}, err
		}
		if current != first {
			err = grouper.rd.UnreadByte()
			return run, err
		}
		run.length++
	}
}
