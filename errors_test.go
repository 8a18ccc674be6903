package spiflash_test

import (
	"errors"
	"testing"

	"github.com/dargueta/spiflash"
	"github.com/stretchr/testify/assert"
)

func TestFlashErrorWithMessage(t *testing.T) {
	newErr := spiflash.ErrOutOfRange.WithMessage("offset 12 past end")
	assert.Equal(
		t, "Address out of range: offset 12 past end", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, spiflash.ErrOutOfRange)
	assert.NotErrorIs(t, newErr, spiflash.ErrTransportFailure)
}

func TestFlashErrorWrap(t *testing.T) {
	originalErr := errors.New("spidev: ioctl failed")
	newErr := spiflash.ErrTransportFailure.Wrap(originalErr)
	expectedMessage := "Transport failure: spidev: ioctl failed"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, spiflash.ErrTransportFailure, "flash error not set as parent")
}

func TestShortTransferIsTransportFailure(t *testing.T) {
	err := spiflash.ErrShortTransfer.WithMessage("wanted 260 bytes, got 4")
	assert.ErrorIs(t, err, spiflash.ErrShortTransfer)
	assert.ErrorIs(t, err, spiflash.ErrTransportFailure)
	assert.NotErrorIs(t, spiflash.ErrTransportFailure, spiflash.ErrShortTransfer)
}
