package shot

import (
	"fmt"
	"math"

	"github.com/atomoptics/fpgaclock/pseudoclock"
)

// BoardLayout lists the physical output channels of one board.  Channels
// the compiler leaves unprogrammed are filled with placeholder constant
// programs; the firmware clocks every channel and an unprogrammed one
// would free-run.
type BoardLayout struct {
	Board   uint8   `yaml:"board"`
	Analog  []uint8 `yaml:"analog"`
	Digital []uint8 `yaml:"digital"`
}

// DefaultLayout describes the single-board reference hardware: eight DAC
// channels followed by twenty-six digital lines.
func DefaultLayout() []BoardLayout {
	l := BoardLayout{Board: 1}
	for ch := uint8(0); ch <= 7; ch++ {
		l.Analog = append(l.Analog, ch)
	}
	for ch := uint8(8); ch <= 33; ch++ {
		l.Digital = append(l.Digital, ch)
	}
	return []BoardLayout{l}
}

// ChannelProgram is one output's raw compiled form: the unreduced
// instruction sequence plus, per kind, the initial logic level (digital)
// or the sample array and DAC span (analog).
type ChannelProgram struct {
	Conn         ConnectionName
	Instructions []pseudoclock.Instruction
	InitialLevel int64
	Samples      []float64
	Limits       *Limits
}

// BuildParams carries everything Build needs to assemble a device section.
type BuildParams struct {
	StopTime        float64
	ClockFrequency  float64
	ClockResolution float64
	ShotReps        uint16
	Layout          []BoardLayout
	Channels        []ChannelProgram
	Waits           []WaitRecord
	// WaitTimes are the absolute times of declared waits, in seconds.
	WaitTimes []float64
}

// Build runs the compile pipeline: reduce each channel's instructions,
// encode them for the channel's kind, enforce the per-channel ceilings,
// fill every unprogrammed physical channel with a placeholder constant
// program, and convert wait times to device clock ticks.
func Build(p BuildParams) (*Device, error) {
	if p.ClockFrequency <= 0 {
		return nil, fmt.Errorf("shot: clock frequency must be positive (got %g)", p.ClockFrequency)
	}
	if p.StopTime <= 0 {
		return nil, fmt.Errorf("shot: stop time must be positive (got %g)", p.StopTime)
	}
	if p.ShotReps == 0 {
		p.ShotReps = 1
	}

	d := &Device{
		StopTime:        p.StopTime,
		ClockFrequency:  p.ClockFrequency,
		ClockResolution: p.ClockResolution,
		ShotReps:        p.ShotReps,
		Clocks:          make(map[string][]TickRecord),
		AnalogData:      make(map[string][]float64),
		Waits:           p.Waits,
	}

	used := make(map[[2]uint8]bool)
	for _, ch := range p.Channels {
		used[[2]uint8{ch.Conn.Board, ch.Conn.Channel}] = true
		if err := buildChannel(d, ch); err != nil {
			return nil, err
		}
	}

	// constant programs for the physical channels nothing drives
	for _, board := range p.Layout {
		hold := []pseudoclock.Instruction{{Period: p.StopTime, Reps: 1}}
		for _, ch := range board.Analog {
			if used[[2]uint8{board.Board, ch}] {
				continue
			}
			err := buildChannel(d, ChannelProgram{
				Conn:         ConnectionName{Kind: Analog, Board: board.Board, Channel: ch, Group: GroupPlaceholder},
				Instructions: hold,
				Samples:      []float64{0},
			})
			if err != nil {
				return nil, err
			}
		}
		for _, ch := range board.Digital {
			if used[[2]uint8{board.Board, ch}] {
				continue
			}
			err := buildChannel(d, ChannelProgram{
				Conn:         ConnectionName{Kind: Digital, Board: board.Board, Channel: ch, Group: GroupPlaceholder},
				Instructions: hold,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	for _, t := range p.WaitTimes {
		d.WaitTimes = append(d.WaitTimes, uint64(math.Round(t*p.ClockFrequency)))
	}
	if len(d.Waits) != len(d.WaitTimes) {
		return nil, fmt.Errorf("shot: %d waits declared but %d wait times given", len(d.Waits), len(d.WaitTimes))
	}
	return d, nil
}

func buildChannel(d *Device, ch ChannelProgram) error {
	token := ch.Conn.String()
	for i, in := range ch.Instructions {
		if in.Period <= 0 {
			return fmt.Errorf("shot: channel %s: instruction %d has non-positive period %g", token, i, in.Period)
		}
		if in.Reps < 0 {
			return fmt.Errorf("shot: channel %s: instruction %d has negative repeat count %d", token, i, in.Reps)
		}
	}
	reduced := pseudoclock.Reduce(ch.Instructions)

	var ticks []pseudoclock.Tick
	switch ch.Conn.Kind {
	case Digital:
		ticks = pseudoclock.ToClocksAndToggles(reduced, ch.InitialLevel, d.ClockFrequency)
	case Analog:
		ticks = pseudoclock.ToAnalogClocks(reduced, d.ClockFrequency)
	default:
		return fmt.Errorf("shot: channel %s: unknown output kind %q", token, ch.Conn.Kind)
	}
	if len(ticks) > MaxClockInstructions {
		return fmt.Errorf("shot: cannot exceed %d clock instructions per channel (%d requested) on %s",
			MaxClockInstructions, len(ticks), token)
	}

	records := make([]TickRecord, len(ticks))
	for i, tk := range ticks {
		records[i] = TickRecord{Clocks: tk.Clocks, Count: tk.Count}
	}
	d.Clocks[token] = records

	if ch.Conn.Kind == Analog {
		if len(ch.Samples) > MaxAnalogData {
			return fmt.Errorf("shot: cannot exceed %d analog data points per channel (%d requested) on %s",
				MaxAnalogData, len(ch.Samples), token)
		}
		d.AnalogData[token] = ch.Samples
		if ch.Limits != nil {
			if d.AnalogLimits == nil {
				d.AnalogLimits = make(map[string]Limits)
			}
			d.AnalogLimits[token] = *ch.Limits
		}
	}
	return nil
}
