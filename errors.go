package spiflash

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

type DriverError interface {
	error
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
}

type baseFlashError string

const rootError = baseFlashError("")

// ErrOutOfRange is returned when a request does not lie entirely inside the
// device's address space. It indicates a bug in the caller.
var ErrOutOfRange = rootError.WithMessage("Address out of range")

// ErrTransportFailure is returned when the bus or a chip fails an operation.
// It is never retried by this package.
var ErrTransportFailure = rootError.WithMessage("Transport failure")

// ErrShortTransfer is a transport failure where a physical operation moved
// fewer bytes than were requested.
var ErrShortTransfer = ErrTransportFailure.WithMessage("short transfer")

var ErrMountFailure = rootError.WithMessage("Mount failed")
var ErrInvalidConfiguration = rootError.WithMessage("Invalid configuration")
var ErrInvalidArgument = rootError.WithMessage("Invalid argument")
var ErrNotSupported = rootError.WithMessage("Operation not supported")
var ErrBusy = rootError.WithMessage("Device or resource busy")

func (e baseFlashError) Error() string {
	return string(e)
}

func (e baseFlashError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       message,
		originalError: e,
	}
}

func (e baseFlashError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customDriverError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customDriverError) Error() string {
	return e.message
}

func (e customDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customDriverError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customDriverError) Unwrap() error {
	return e.originalError
}
