/*Package pseudoclock turns compiler-emitted clock instructions into the
instruction stream the FPGA clock generators consume.

A pseudoclock is a per-channel sequence of "hold for this period, this many
extra times" instructions.  The firmware has a hard per-channel instruction
ceiling, so adjacent instructions with equal periods are merged first
(Reduce), and the merged sequence is then converted to device-cycle form:
clocks-and-toggles for digital channels, clocks-and-reps for analog ones.
*/
package pseudoclock

import "math"

// Instruction is one pseudoclock entry: hold the output for Period seconds,
// then repeat the hold Reps additional times.  The total elapsed time of an
// instruction is (Reps+1)*Period.
type Instruction struct {
	// Period is the hold duration in seconds.
	Period float64

	// Reps is the number of additional repetitions of the hold.
	Reps int64
}

// Tick is a device-cycle-domain instruction.  For digital channels Count is
// the number of toggle events applied over the hold, except on the first
// tick of a channel where it encodes the initial logic level (0 or 1).  For
// analog channels Count is the repeat count carried over from the reduced
// instruction.
type Tick struct {
	// Clocks is the number of device clock cycles to hold.
	Clocks int64

	// Count is the toggle count (digital) or repeat count (analog).
	Count int64
}

// Reduce merges consecutive instructions that share a period by summing
// their repeat counts, preserving total elapsed time exactly.  Reducing an
// already-reduced sequence returns an equal sequence.
func Reduce(instructions []Instruction) []Instruction {
	if len(instructions) == 0 {
		return []Instruction{}
	}
	out := make([]Instruction, 0, len(instructions))
	acc := instructions[0]
	for _, in := range instructions[1:] {
		if in.Period == acc.Period {
			// the instruction itself is one more occurrence of the hold
			acc.Reps += in.Reps + 1
		} else {
			out = append(out, acc)
			acc = in
		}
	}
	return append(out, acc)
}

// ToClocksAndToggles converts a reduced sequence for a digital channel into
// firmware tick form.  The channel's level before the shot is external state
// and is threaded in as initialLevel; it is encoded in the Count field of an
// extra leading tick, and one repetition of the first instruction is
// consumed representing it.  Holds are expressed as "wait N-1 cycles then
// toggle", so every tick's Clocks is round(period*clockRate)-1.
//
// A first instruction whose repeat count reaches zero after the adjustment
// still produces a tick: a zero-toggle tick is a valid hold and dropping it
// would change the timing the firmware sees.  A first instruction with no
// repetitions at all (Reps 0, a single hold) is consumed entirely by the
// leading tick and produces no adjustment tick; the count field must never
// go negative, since the wire format carries it unsigned.  The emitted
// length is therefore len(reduced)+1, or len(reduced) for a single-hold
// first instruction.
func ToClocksAndToggles(reduced []Instruction, initialLevel int64, clockRate float64) []Tick {
	if len(reduced) == 0 {
		return []Tick{}
	}
	out := make([]Tick, 0, len(reduced)+1)

	first := reduced[0]
	out = append(out, Tick{
		Clocks: cycles(first.Period, clockRate) - 1,
		Count:  initialLevel,
	})
	if first.Reps > 0 {
		out = append(out, Tick{
			Clocks: cycles(first.Period, clockRate) - 1,
			Count:  first.Reps - 1,
		})
	}
	for _, in := range reduced[1:] {
		out = append(out, Tick{
			Clocks: cycles(in.Period, clockRate) - 1,
			Count:  in.Reps,
		})
	}
	return out
}

// ToAnalogClocks converts a reduced sequence for an analog channel into
// firmware tick form.  Analog outputs are driven by a sample array rather
// than toggle state, so there is no initial-state tick and Clocks is the
// full round(period*clockRate).
func ToAnalogClocks(reduced []Instruction, clockRate float64) []Tick {
	out := make([]Tick, 0, len(reduced))
	for _, in := range reduced {
		out = append(out, Tick{
			Clocks: cycles(in.Period, clockRate),
			Count:  in.Reps,
		})
	}
	return out
}

// TotalTime returns the elapsed time of a sequence in seconds.
func TotalTime(instructions []Instruction) float64 {
	var t float64
	for _, in := range instructions {
		t += float64(in.Reps+1) * in.Period
	}
	return t
}

// FinalState returns the resting logic level of a digital channel after all
// ticks have been applied.  The first tick's Count holds the initial level,
// not toggles, so only subsequent ticks enter the parity sum.
func FinalState(ticks []Tick) int64 {
	if len(ticks) == 0 {
		return 0
	}
	var toggles int64
	for _, tk := range ticks[1:] {
		toggles += tk.Count
	}
	return ticks[0].Count ^ (toggles % 2)
}

func cycles(period, clockRate float64) int64 {
	return int64(math.Round(period * clockRate))
}
