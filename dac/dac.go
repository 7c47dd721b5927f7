/*Package dac provides quantization and output-range handling for the
LTC1592 DACs on the timing board.

Output values are specified to the hardware as 16-bit codes with 0x0000 at
the minimum of the currently programmed range and 0xFFFF at the maximum.
Six ranges are supported; the range is selected by index over the wire, so
the table here must stay in step with the firmware's.
*/
package dac

import (
	"errors"
	"fmt"
	"math"

	"github.com/atomoptics/fpgaclock/util"
)

// codeMax is the largest 16-bit DAC code.
const codeMax = 1<<16 - 1

// ErrDegenerateRange is returned when a range has no width; quantizing
// against it is a configuration error, not something to clamp around.
var ErrDegenerateRange = errors.New("dac: output range has zero or negative width")

// Range is an index into the output-range table of the DAC.
type Range int

// The output ranges of the LTC1592, in firmware table order.
const (
	FiveVPos Range = iota
	TenVPos
	FiveVSymm
	TenVSymm
	TwoHalfVSymm
	TwoHalfTo7Half
)

// DefaultRange is the span assumed for a channel with no explicit
// configuration.
const DefaultRange = FiveVPos

// Validate ensures that a range index is within the table.
func Validate(r Range) error {
	if r < FiveVPos || r > TwoHalfTo7Half {
		return fmt.Errorf("dac: output range index %d is not allowed", int(r))
	}
	return nil
}

// Span returns the (min, max) voltages of a range.
func (r Range) Span() (float64, float64) {
	switch r {
	case FiveVPos:
		return 0, 5
	case TenVPos:
		return 0, 10
	case FiveVSymm:
		return -5, 5
	case TenVSymm:
		return -10, 10
	case TwoHalfVSymm:
		return -2.5, 2.5
	case TwoHalfTo7Half:
		return -2.5, 7.5
	default:
		return 0, 0
	}
}

// String formats a range as "<low>,<high>" as in the front panel selector.
func (r Range) String() string {
	min, max := r.Span()
	return fmt.Sprintf("%g,%g", min, max)
}

// Parse converts a "<low>,<high>" string to a range index.
func Parse(s string) (Range, error) {
	for r := FiveVPos; r <= TwoHalfTo7Half; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return -1, fmt.Errorf("dac: invalid output range %q", s)
}

// Quantize maps a requested voltage onto the 16-bit code for the given
// range.  It returns the code and the voltage the hardware will actually
// produce, so a front panel can be updated to reflect the coerced value.
// Out-of-range requests clamp to the nearest end of the range.
func Quantize(value, rangeMin, rangeMax float64) (coerced float64, code uint16, err error) {
	if rangeMax-rangeMin <= 0 {
		return 0, 0, fmt.Errorf("%w: [%g, %g]", ErrDegenerateRange, rangeMin, rangeMax)
	}
	step := (rangeMax - rangeMin) / codeMax
	if value > rangeMax {
		return rangeMax, codeMax, nil
	}
	if value < rangeMin {
		return rangeMin, 0, nil
	}
	c := uint16(math.Round((value - rangeMin) / step))
	coerced = util.Clamp(rangeMin+float64(c)*step, rangeMin, rangeMax)
	return coerced, c, nil
}

// QuantizeRange is Quantize against a table range.
func QuantizeRange(value float64, r Range) (float64, uint16, error) {
	min, max := r.Span()
	return Quantize(value, min, max)
}
