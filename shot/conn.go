// Package shot holds the persisted shot description: per-channel clock
// programs and sample arrays keyed by connection token, wait records, and
// the device-level timing attributes, together with the compile pipeline
// that produces them from raw instruction sequences.
package shot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Per-channel ceilings imposed by the firmware's instruction and sample
// memories.
const (
	MaxClockInstructions = 255
	MaxAnalogData        = 65535
)

// Kind distinguishes the two output types a channel can carry.
type Kind string

const (
	Analog  Kind = "analog"
	Digital Kind = "digital"
)

// GroupPlaceholder marks a synthetic channel generated to satisfy the
// firmware's requirement that every physical channel have a program.
// Placeholder channels are hidden from front panels.
const GroupPlaceholder = "placeholder"

// ErrBadConnection is wrapped by errors from Decode.
var ErrBadConnection = errors.New("shot: malformed connection token")

// ConnectionName identifies one output channel.  Its token form
// "{kind}_{board}_{channel}_{group}" keys the clocks and analog data
// collections in the shot document.
type ConnectionName struct {
	Kind    Kind
	Board   uint8
	Channel uint8
	Group   string
}

func (c ConnectionName) String() string {
	return fmt.Sprintf("%s_%d_%d_%s", c.Kind, c.Board, c.Channel, c.Group)
}

// Placeholder returns true for synthetic constant channels.
func (c ConnectionName) Placeholder() bool {
	return c.Group == GroupPlaceholder
}

// Decode is the exact inverse of String.  The group field may itself
// contain underscores; the leading three fields may not.
func Decode(token string) (ConnectionName, error) {
	parts := strings.SplitN(token, "_", 4)
	if len(parts) != 4 {
		return ConnectionName{}, fmt.Errorf("%w: %q", ErrBadConnection, token)
	}
	kind := Kind(parts[0])
	if kind != Analog && kind != Digital {
		return ConnectionName{}, fmt.Errorf("%w: unknown output kind %q in %q", ErrBadConnection, parts[0], token)
	}
	board, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return ConnectionName{}, fmt.Errorf("%w: board number in %q: %v", ErrBadConnection, token, err)
	}
	channel, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return ConnectionName{}, fmt.Errorf("%w: channel number in %q: %v", ErrBadConnection, token, err)
	}
	if parts[3] == "" {
		return ConnectionName{}, fmt.Errorf("%w: empty group in %q", ErrBadConnection, token)
	}
	return ConnectionName{Kind: kind, Board: uint8(board), Channel: uint8(channel), Group: parts[3]}, nil
}
