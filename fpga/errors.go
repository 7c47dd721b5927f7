package fpga

import (
	"errors"
	"fmt"
)

// ErrShortWrite is generated when the device accepts fewer bytes than were
// handed to it.  The link has no replay guarantee once bytes are partially
// sent, so this is not retried.
var ErrShortWrite = errors.New("device accepted fewer bytes than requested, check connection - device may be closed")

// TransportError wraps a failure of the underlying link with the name of
// the protocol operation that was in progress.  Configuration and format
// problems are reported as plain errors; a TransportError always means the
// hardware state is unknown.
type TransportError struct {
	// Op is the protocol operation that failed, e.g. "trigger" or "flush".
	Op string

	// Err is the underlying failure.
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fpga: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
