package shot

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atomoptics/fpgaclock/pseudoclock"
)

func singleBoard(analog, digital []uint8) []BoardLayout {
	return []BoardLayout{{Board: 1, Analog: analog, Digital: digital}}
}

func TestBuildEncodesDigitalChannel(t *testing.T) {
	conn := ConnectionName{Kind: Digital, Board: 1, Channel: 8, Group: "shutters"}
	d, err := Build(BuildParams{
		StopTime:       4,
		ClockFrequency: 1e6,
		Layout:         singleBoard(nil, []uint8{8}),
		Channels: []ChannelProgram{{
			Conn:         conn,
			Instructions: []pseudoclock.Instruction{{Period: 1, Reps: 4}},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := d.Clocks[conn.String()]
	want := []TickRecord{{Clocks: 999999, Count: 0}, {Clocks: 999999, Count: 3}}
	if len(got) != len(want) {
		t.Fatalf("got %d tick records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBuildFillsPlaceholders(t *testing.T) {
	d, err := Build(BuildParams{
		StopTime:       1,
		ClockFrequency: 1e6,
		Layout:         singleBoard([]uint8{0, 1}, []uint8{8}),
		Channels: []ChannelProgram{{
			Conn:         ConnectionName{Kind: Analog, Board: 1, Channel: 0, Group: "mot"},
			Instructions: []pseudoclock.Instruction{{Period: 0.5, Reps: 2}},
			Samples:      []float64{1.25, 2.5},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	// channel 0 programmed, channels 1 and 8 filled in
	if len(d.Clocks) != 3 {
		t.Fatalf("got %d clock programs, want 3", len(d.Clocks))
	}
	if _, ok := d.Clocks["analog_1_1_placeholder"]; !ok {
		t.Error("missing placeholder for unused analog channel 1")
	}
	if _, ok := d.Clocks["digital_1_8_placeholder"]; !ok {
		t.Error("missing placeholder for unused digital channel 8")
	}
	samples := d.AnalogData["analog_1_1_placeholder"]
	if len(samples) != 1 || samples[0] != 0 {
		t.Errorf("placeholder samples = %v, want [0]", samples)
	}
}

func TestBuildSingleHoldDigitalChannel(t *testing.T) {
	conn := ConnectionName{Kind: Digital, Board: 1, Channel: 8, Group: "shutters"}
	d, err := Build(BuildParams{
		StopTime:       1e-3,
		ClockFrequency: 1e6,
		Channels: []ChannelProgram{{
			Conn:         conn,
			Instructions: []pseudoclock.Instruction{{Period: 1e-3, Reps: 0}},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	records := d.Clocks[conn.String()]
	if len(records) != 1 {
		t.Fatalf("got %d tick records, want 1 (single hold merges into the initial-state tick)", len(records))
	}
	for i, r := range records {
		if r.Count < 0 {
			t.Errorf("record %d has negative count %d", i, r.Count)
		}
	}
}

func TestBuildRejectsDegenerateInstructions(t *testing.T) {
	conn := ConnectionName{Kind: Digital, Board: 1, Channel: 8, Group: "shutters"}
	cases := []struct {
		name string
		ins  []pseudoclock.Instruction
	}{
		{"negative reps", []pseudoclock.Instruction{{Period: 1e-3, Reps: -1}}},
		{"zero period", []pseudoclock.Instruction{{Period: 0, Reps: 1}}},
		{"negative period", []pseudoclock.Instruction{{Period: -1e-3, Reps: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(BuildParams{
				StopTime:       1,
				ClockFrequency: 1e6,
				Channels:       []ChannelProgram{{Conn: conn, Instructions: tc.ins}},
			})
			if err == nil {
				t.Fatal("expected configuration error")
			}
			if !strings.Contains(err.Error(), conn.String()) {
				t.Errorf("error does not name the offending channel: %v", err)
			}
		})
	}
}

func TestBuildRejectsTooManyInstructions(t *testing.T) {
	ins := make([]pseudoclock.Instruction, 300)
	for i := range ins {
		// alternating periods defeat the reducer
		ins[i] = pseudoclock.Instruction{Period: float64(1 + i%2), Reps: 1}
	}
	conn := ConnectionName{Kind: Digital, Board: 1, Channel: 8, Group: "shutters"}
	_, err := Build(BuildParams{
		StopTime:       1,
		ClockFrequency: 1e6,
		Channels:       []ChannelProgram{{Conn: conn, Instructions: ins}},
	})
	if err == nil {
		t.Fatal("expected instruction ceiling error")
	}
	if !strings.Contains(err.Error(), conn.String()) {
		t.Errorf("error does not name the offending channel: %v", err)
	}
}

func TestBuildRejectsTooManySamples(t *testing.T) {
	conn := ConnectionName{Kind: Analog, Board: 1, Channel: 0, Group: "mot"}
	_, err := Build(BuildParams{
		StopTime:       1,
		ClockFrequency: 1e6,
		Channels: []ChannelProgram{{
			Conn:         conn,
			Instructions: []pseudoclock.Instruction{{Period: 1, Reps: 1}},
			Samples:      make([]float64, MaxAnalogData+1),
		}},
	})
	if err == nil {
		t.Fatal("expected sample ceiling error")
	}
	if !strings.Contains(err.Error(), conn.String()) {
		t.Errorf("error does not name the offending channel: %v", err)
	}
}

func TestBuildConvertsWaitTimes(t *testing.T) {
	d, err := Build(BuildParams{
		StopTime:       2,
		ClockFrequency: 1e6,
		ShotReps:       3,
		Waits:          []WaitRecord{{Board: Absent(), Channel: Absent(), Value: Absent(), Comparison: Absent()}},
		WaitTimes:      []float64{0.5},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(d.WaitTimes) != 1 || d.WaitTimes[0] != 500000 {
		t.Errorf("wait times = %v, want [500000]", d.WaitTimes)
	}
	if d.ShotPeriod() != 2000000 {
		t.Errorf("shot period = %d, want 2000000", d.ShotPeriod())
	}
	if d.ShotReps != 3 {
		t.Errorf("shot reps = %d, want 3", d.ShotReps)
	}
}

func TestBuildRejectsMismatchedWaits(t *testing.T) {
	_, err := Build(BuildParams{
		StopTime:       1,
		ClockFrequency: 1e6,
		Waits:          []WaitRecord{{Board: Absent(), Channel: Absent(), Value: Absent(), Comparison: Absent()}},
	})
	if err == nil {
		t.Fatal("expected mismatch error for wait without a wait time")
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	d, err := Build(BuildParams{
		StopTime:       1,
		ClockFrequency: 1e6,
		Layout:         singleBoard([]uint8{0}, nil),
		Channels: []ChannelProgram{{
			Conn:         ConnectionName{Kind: Analog, Board: 1, Channel: 0, Group: "mot"},
			Instructions: []pseudoclock.Instruction{{Period: 0.5, Reps: 2}},
			Samples:      []float64{0, 5},
			Limits:       &Limits{Min: 0, Max: 5},
		}},
		Waits:     []WaitRecord{{Board: 1, Channel: 10, Value: 1, Comparison: Absent()}},
		WaitTimes: []float64{0.25},
	})
	if err != nil {
		t.Fatal(err)
	}
	doc := &Document{Devices: map[string]*Device{"fpga0": d}}

	path := filepath.Join(t.TempDir(), "shot.yaml")
	if err := doc.Save(path); err != nil {
		t.Fatal(err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dev, err := back.Device("fpga0")
	if err != nil {
		t.Fatal(err)
	}
	if dev.ClockFrequency != 1e6 || dev.StopTime != 1 {
		t.Errorf("attributes lost: %+v", dev)
	}
	if got := dev.AnalogData["analog_1_0_mot"]; len(got) != 2 || got[1] != 5 {
		t.Errorf("analog data lost: %v", got)
	}
	if lim := dev.AnalogLimits["analog_1_0_mot"]; lim.Max != 5 {
		t.Errorf("limits lost: %+v", lim)
	}
	w := dev.Waits[0]
	if w.Board != 1 || !math.IsNaN(w.Comparison) {
		t.Errorf("wait record lost: %+v", w)
	}
	if _, err := back.Device("nope"); err == nil {
		t.Error("missing device lookup should fail")
	}
}
