/*Package fpga speaks the byte protocol of the pseudoclock timing board and
owns the policy around it: command framing with buffered, chunked
transmission, wait encoding, the smart-programming cache that suppresses
retransmission of unchanged channel programs, and the worker that sequences
a shot from a persisted description.

Every command begins with a one-byte mode identifier followed by board and
(usually) channel numbers, then a mode-specific payload.  The identifier
table below is the single source of truth for the wire format; the firmware
carries a matching copy.
*/
package fpga

// Mode is a 1-byte command identifier.
type Mode byte

// The command modes understood by the firmware.
const (
	ModeRealtime Mode = iota
	ModePseudoclock
	ModeData
	ModeParameter
	ModeTrigger
	ModeRepeat
	ModePCWait
	ModeDigitalWait
	ModeAnalogWait
	ModeWaitTimes
	ModeOutputRange
	ModeReset
)

const (
	// StatusFinished is the status byte the board reports once a shot has
	// run to completion.
	StatusFinished byte = 0x07

	// statusBlockSize is how much of the status stream is read per poll.
	statusBlockSize = 100
)
