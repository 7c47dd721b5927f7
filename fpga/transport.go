package fpga

import "io"

// Transport is the exclusive byte pipe between the host and the board.  All
// methods are blocking and the implementation performs no error hiding; the
// Interface layered on top decides what a failure means for the protocol.
//
// A Transport must only ever be driven from one goroutine; the worker owns
// it for the life of the process.
type Transport interface {
	io.ReadWriteCloser

	// PurgeRX discards any device-to-host bytes queued in the link so a
	// status read observes only post-trigger state.
	PurgeRX() error

	// Reset returns the link hardware to its power-on condition.
	Reset() error
}
