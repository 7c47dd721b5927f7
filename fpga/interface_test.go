package fpga

import (
	"bytes"
	"errors"
	"testing"

	"github.com/atomoptics/fpgaclock/dac"
	"github.com/atomoptics/fpgaclock/pseudoclock"
)

func b(vals ...byte) []byte { return vals }

func TestValuePacking(t *testing.T) {
	cases := []struct {
		name  string
		v     uint64
		width int
		want  []byte
	}{
		{"single byte", 0x07, 1, b(0x07)},
		{"zero padded", 0x0102, 4, b(0x00, 0x00, 0x01, 0x02)},
		{"truncated keeps low bytes", 0x1122334455, 2, b(0x44, 0x55)},
		{"wider than eight", 0x01, 10, b(0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			i := NewInterface(&MockTransport{})
			i.value(tc.v, tc.width)
			if got := i.buf.Bytes(); !bytes.Equal(got, tc.want) {
				t.Errorf("value(%#x, %d) packed % x, want % x", tc.v, tc.width, got, tc.want)
			}
		})
	}
}

func TestSendPseudoclockFraming(t *testing.T) {
	mock := &MockTransport{}
	i := NewInterface(mock)
	ticks := []pseudoclock.Tick{
		{Clocks: 999999, Count: 0},
		{Clocks: 999999, Count: 3},
	}
	if err := i.SendPseudoclock(1, 2, ticks); err != nil {
		t.Fatal(err)
	}
	if err := i.Flush(); err != nil {
		t.Fatal(err)
	}
	want := b(
		byte(ModePseudoclock), 1, 2, 2,
		// toggle count before cycle count, per tick
		0x00, 0x00, 0x00, 0x00, 0x00, 0x0F, 0x42, 0x3F,
		0x00, 0x00, 0x00, 0x03, 0x00, 0x0F, 0x42, 0x3F,
	)
	if got := mock.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("frame = % x, want % x", got, want)
	}
}

func TestSendPseudoclockCeiling(t *testing.T) {
	i := NewInterface(&MockTransport{})
	if err := i.SendPseudoclock(1, 2, make([]pseudoclock.Tick, 256)); err == nil {
		t.Error("expected instruction ceiling error")
	}
}

func TestSendAnalogDataFraming(t *testing.T) {
	mock := &MockTransport{}
	i := NewInterface(mock)
	if err := i.SendAnalogData(1, 3, 0, 5, []float64{0, 5}); err != nil {
		t.Fatal(err)
	}
	if err := i.Flush(); err != nil {
		t.Fatal(err)
	}
	want := b(
		byte(ModeData), 1, 3, 0x00, 0x02,
		0x00, 0x00, 0x00, 0x00, // address 0, code 0
		0x00, 0x01, 0xFF, 0xFF, // address 1, code 65535
	)
	if got := mock.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("frame = % x, want % x", got, want)
	}
}

func TestSendRealtimeAnalogReturnsCoerced(t *testing.T) {
	i := NewInterface(&MockTransport{})
	got, err := i.SendRealtimeAnalog(1, 0, 6, 0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("coerced value = %v, want 5 (clamped)", got)
	}
}

func TestSendRealtimeDigitalFraming(t *testing.T) {
	mock := &MockTransport{}
	i := NewInterface(mock)
	i.SendRealtimeDigital(1, 9, true)
	if err := i.Flush(); err != nil {
		t.Fatal(err)
	}
	want := b(byte(ModeRealtime), 1, 9, 1)
	if got := mock.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("frame = % x, want % x", got, want)
	}
}

func TestWaitEncodings(t *testing.T) {
	board := uint8(1)
	channel := uint8(4)
	threshold := 2.5
	level := 1.0
	cmp := byte(2)

	t.Run("analog", func(t *testing.T) {
		mock := &MockTransport{}
		i := NewInterface(mock)
		err := i.SendWait(Wait{Board: &board, Channel: &channel, Value: &threshold, Comparison: &cmp})
		if err != nil {
			t.Fatal(err)
		}
		if err := i.Flush(); err != nil {
			t.Fatal(err)
		}
		got := mock.Bytes()
		if len(got) != 6 || got[0] != byte(ModeAnalogWait) || got[5] != cmp {
			t.Fatalf("frame = % x, want analog-wait mode and trailing comparison", got)
		}
		// threshold quantized against the fixed 0-5 span
		code := uint16(got[3])<<8 | uint16(got[4])
		if code != 32767 && code != 32768 {
			t.Errorf("threshold code = %d, want mid-scale", code)
		}
	})

	t.Run("digital reuses board as mode slot", func(t *testing.T) {
		mock := &MockTransport{}
		i := NewInterface(mock)
		err := i.SendWait(Wait{Board: &board, Channel: &channel, Value: &level})
		if err != nil {
			t.Fatal(err)
		}
		if err := i.Flush(); err != nil {
			t.Fatal(err)
		}
		want := b(board, channel, 1)
		if got := mock.Bytes(); !bytes.Equal(got, want) {
			t.Errorf("frame = % x, want % x", got, want)
		}
	})

	t.Run("pc", func(t *testing.T) {
		mock := &MockTransport{}
		i := NewInterface(mock)
		if err := i.SendWait(Wait{}); err != nil {
			t.Fatal(err)
		}
		if err := i.Flush(); err != nil {
			t.Fatal(err)
		}
		want := b(byte(ModePCWait), 0, 0)
		if got := mock.Bytes(); !bytes.Equal(got, want) {
			t.Errorf("frame = % x, want % x", got, want)
		}
	})
}

func TestSendWaitTimesFraming(t *testing.T) {
	mock := &MockTransport{}
	i := NewInterface(mock)
	i.SendWaitTimes([]uint64{500000})
	if err := i.Flush(); err != nil {
		t.Fatal(err)
	}
	want := b(byte(ModeWaitTimes), 0x00, 0x00, 0x00, 0x00, 0x00, 0x07, 0xA1, 0x20)
	if got := mock.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("frame = % x, want % x", got, want)
	}
}

func TestSendRepeatsAndPeriodFraming(t *testing.T) {
	mock := &MockTransport{}
	i := NewInterface(mock)
	i.SendRepeatsAndPeriod(3, 2000000)
	if err := i.Flush(); err != nil {
		t.Fatal(err)
	}
	want := b(byte(ModeRepeat), 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x1E, 0x84, 0x80)
	if got := mock.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("frame = % x, want % x", got, want)
	}
}

func TestSendParameterFraming(t *testing.T) {
	mock := &MockTransport{}
	i := NewInterface(mock)
	i.SendParameter(1, 9, 0x2A)
	if len(mock.Writes) != 0 {
		t.Fatalf("parameter update written before Flush: %d writes", len(mock.Writes))
	}
	if err := i.Flush(); err != nil {
		t.Fatal(err)
	}
	want := b(byte(ModeParameter), 1, 9, 0x2A)
	if got := mock.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("frame = % x, want % x", got, want)
	}
}

func TestSendOutputRangeFlushesImmediately(t *testing.T) {
	mock := &MockTransport{}
	i := NewInterface(mock)
	if err := i.SendOutputRange(1, 0, dac.TenVSymm); err != nil {
		t.Fatal(err)
	}
	if len(mock.Writes) != 1 {
		t.Fatalf("output range not flushed immediately: %d writes", len(mock.Writes))
	}
	want := b(byte(ModeOutputRange), 1, 0, byte(dac.TenVSymm))
	if got := mock.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("frame = % x, want % x", got, want)
	}
}

func TestStartPurgesThenTriggers(t *testing.T) {
	mock := &MockTransport{}
	i := NewInterface(mock)
	if err := i.Start(); err != nil {
		t.Fatal(err)
	}
	if mock.Purges != 1 {
		t.Errorf("purges = %d, want 1", mock.Purges)
	}
	if got := mock.Bytes(); !bytes.Equal(got, b(byte(ModeTrigger))) {
		t.Errorf("frame = % x, want trigger mode byte", got)
	}
}

func TestResetResetsLink(t *testing.T) {
	mock := &MockTransport{}
	i := NewInterface(mock)
	if err := i.Reset(); err != nil {
		t.Fatal(err)
	}
	if mock.Resets != 1 {
		t.Errorf("resets = %d, want 1", mock.Resets)
	}
	if got := mock.Bytes(); !bytes.Equal(got, b(byte(ModeReset))) {
		t.Errorf("frame = % x, want reset mode byte", got)
	}
}

func TestFlushChunkedSplitsTransfers(t *testing.T) {
	mock := &MockTransport{}
	i := NewInterface(mock)
	i.SendWaitTimes([]uint64{1}) // 9 bytes
	if err := i.FlushChunked(4, 0); err != nil {
		t.Fatal(err)
	}
	if len(mock.Writes) != 3 {
		t.Fatalf("got %d transfers, want 3", len(mock.Writes))
	}
	sizes := []int{len(mock.Writes[0]), len(mock.Writes[1]), len(mock.Writes[2])}
	if sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 1 {
		t.Errorf("chunk sizes = %v, want [4 4 1]", sizes)
	}
	if i.Buffered() != 0 {
		t.Errorf("buffer not drained: %d bytes left", i.Buffered())
	}
}

func TestShortWriteIsTransportError(t *testing.T) {
	mock := &MockTransport{ShortWrite: true}
	i := NewInterface(mock)
	i.SendRealtimeDigital(1, 9, false)
	err := i.Flush()
	if err == nil {
		t.Fatal("expected short write error")
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error %T is not a TransportError", err)
	}
	if !errors.Is(err, ErrShortWrite) {
		t.Errorf("short write not wrapped: %v", err)
	}
}

func TestCheckStatus(t *testing.T) {
	mock := &MockTransport{}
	i := NewInterface(mock)

	finished, err := i.CheckStatus()
	if err != nil || finished {
		t.Errorf("empty status read: finished=%v err=%v, want false nil", finished, err)
	}

	mock.QueueStatus(0x01)
	finished, _ = i.CheckStatus()
	if finished {
		t.Error("non-sentinel status reported as finished")
	}

	mock.QueueStatus(StatusFinished)
	finished, _ = i.CheckStatus()
	if !finished {
		t.Error("finished sentinel not detected")
	}
}
