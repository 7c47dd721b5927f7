package fpga

import "math"

// WaitKind discriminates the three pause conditions the board can block on.
type WaitKind int

const (
	// PCWait blocks until the host releases the board.
	PCWait WaitKind = iota

	// DigitalWait blocks until a digital input reaches a level.
	DigitalWait

	// AnalogWait blocks until an analog input crosses a threshold under a
	// comparison operator.
	AnalogWait
)

// Wait is one conditional pause point.  Optional fields are nil when
// absent; the NaN sentinels of the persisted shot format never appear
// inside the process, only at the storage boundary (see WaitFromRecord).
//
// A comparison implies an analog wait.  Without one, a present board number
// implies a digital wait, and a fully empty record is a PC wait.
type Wait struct {
	Board      *uint8
	Channel    *uint8
	Value      *float64
	Comparison *byte
}

// Kind reports which pause condition the wait describes.
func (w Wait) Kind() WaitKind {
	if w.Comparison != nil {
		return AnalogWait
	}
	if w.Board != nil {
		return DigitalWait
	}
	return PCWait
}

// WaitFromRecord converts the sentinel encoding of a persisted wait record
// into a Wait.  The storage format cannot represent an absent value, so
// absent fields arrive as NaN.
func WaitFromRecord(board, channel, value, comparison float64) Wait {
	var w Wait
	if !math.IsNaN(board) {
		b := uint8(board)
		w.Board = &b
	}
	if !math.IsNaN(channel) {
		c := uint8(channel)
		w.Channel = &c
	}
	if !math.IsNaN(value) {
		v := value
		w.Value = &v
	}
	if !math.IsNaN(comparison) {
		c := byte(comparison)
		w.Comparison = &c
	}
	return w
}
