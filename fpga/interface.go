package fpga

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/atomoptics/fpgaclock/dac"
	"github.com/atomoptics/fpgaclock/pseudoclock"
	"github.com/atomoptics/fpgaclock/shot"
)

// waitThresholdMin and waitThresholdMax are the fixed span analog wait
// thresholds are quantized against.  The wait comparators sit in front of
// the DACs, so a channel's configured output range does not apply.
const (
	waitThresholdMin = 0.0
	waitThresholdMax = 5.0
)

// Interface frames commands for the board and manages transmission timing.
//
// It is more efficient to hand the FTDI link as much data as possible in a
// single transfer, so commands accumulate in a write buffer and nothing
// reaches the device until Flush or FlushChunked.  The exceptions, noted on
// the individual methods, are commands that must take effect before
// whatever follows them.
type Interface struct {
	t   Transport
	buf bytes.Buffer
}

// NewInterface wraps a transport in the board protocol.
func NewInterface(t Transport) *Interface {
	return &Interface{t: t}
}

// value appends an integer to the write buffer as width big-endian bytes,
// zero-padded or truncated (keeping the low bytes) to fit.
func (i *Interface) value(v uint64, width int) {
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], v)
	for width > 8 {
		i.buf.WriteByte(0)
		width--
	}
	i.buf.Write(scratch[8-width:])
}

// SendPseudoclock buffers a channel's clock program.  The wire order within
// a tick is count word first, cycle word second.
func (i *Interface) SendPseudoclock(board, channel uint8, ticks []pseudoclock.Tick) error {
	if len(ticks) > shot.MaxClockInstructions {
		return fmt.Errorf("fpga: cannot exceed %d clock instructions per channel (%d requested) on board %d channel %d",
			shot.MaxClockInstructions, len(ticks), board, channel)
	}
	i.value(uint64(ModePseudoclock), 1)
	i.value(uint64(board), 1)
	i.value(uint64(channel), 1)
	i.value(uint64(len(ticks)), 1)
	for _, tk := range ticks {
		i.value(uint64(tk.Count), 4)
		i.value(uint64(tk.Clocks), 4)
	}
	return nil
}

// SendAnalogData buffers a channel's sample array.  Each sample is
// quantized against the supplied range and addressed from zero in
// transmission order.
func (i *Interface) SendAnalogData(board, channel uint8, rangeMin, rangeMax float64, data []float64) error {
	if len(data) > shot.MaxAnalogData {
		return fmt.Errorf("fpga: cannot exceed %d analog data points per channel (%d requested) on board %d channel %d",
			shot.MaxAnalogData, len(data), board, channel)
	}
	i.value(uint64(ModeData), 1)
	i.value(uint64(board), 1)
	i.value(uint64(channel), 1)
	i.value(uint64(len(data)), 2)
	for addr, datum := range data {
		_, code, err := dac.Quantize(datum, rangeMin, rangeMax)
		if err != nil {
			return fmt.Errorf("fpga: board %d channel %d sample %d: %w", board, channel, addr, err)
		}
		i.value(uint64(addr), 2)
		i.value(uint64(code), 2)
	}
	return nil
}

// SendRealtimeAnalog buffers a manual-mode set-point for an analog channel
// and returns the coerced voltage the board will actually produce.
func (i *Interface) SendRealtimeAnalog(board, channel uint8, value, rangeMin, rangeMax float64) (float64, error) {
	coerced, code, err := dac.Quantize(value, rangeMin, rangeMax)
	if err != nil {
		return 0, fmt.Errorf("fpga: board %d channel %d: %w", board, channel, err)
	}
	i.value(uint64(ModeRealtime), 1)
	i.value(uint64(board), 1)
	i.value(uint64(channel), 1)
	i.value(uint64(code), 2)
	return coerced, nil
}

// SendRealtimeDigital buffers a manual-mode level for a digital channel.
func (i *Interface) SendRealtimeDigital(board, channel uint8, level bool) {
	i.value(uint64(ModeRealtime), 1)
	i.value(uint64(board), 1)
	i.value(uint64(channel), 1)
	var v uint64
	if level {
		v = 1
	}
	i.value(v, 1)
}

// SendWait buffers one pause-condition frame.  Analog waits carry a
// threshold quantized against the fixed comparator span; digital waits
// reuse the board number as the mode slot, a quirk the firmware relies on.
func (i *Interface) SendWait(w Wait) error {
	switch w.Kind() {
	case AnalogWait:
		if w.Board == nil || w.Channel == nil || w.Value == nil {
			return fmt.Errorf("fpga: analog wait requires board, channel and threshold")
		}
		_, code, err := dac.Quantize(*w.Value, waitThresholdMin, waitThresholdMax)
		if err != nil {
			return err
		}
		i.value(uint64(ModeAnalogWait), 1)
		i.value(uint64(*w.Board), 1)
		i.value(uint64(*w.Channel), 1)
		i.value(uint64(code), 2)
		i.value(uint64(*w.Comparison), 1)
	case DigitalWait:
		if w.Channel == nil {
			return fmt.Errorf("fpga: digital wait requires a channel number")
		}
		i.value(uint64(*w.Board), 1)
		i.value(uint64(*w.Channel), 1)
		i.value(uint64(waitLevel(w.Value)), 1)
	case PCWait:
		i.value(uint64(ModePCWait), 1)
		if w.Channel != nil {
			i.value(uint64(*w.Channel), 1)
		} else {
			i.value(0, 1)
		}
		i.value(uint64(waitLevel(w.Value)), 1)
	}
	return nil
}

func waitLevel(v *float64) byte {
	if v != nil && *v != 0 {
		return 1
	}
	return 0
}

// SendWaitTimes buffers the absolute trigger time of every declared wait,
// as 8-byte counts of device clock ticks in declaration order.
func (i *Interface) SendWaitTimes(times []uint64) {
	i.value(uint64(ModeWaitTimes), 1)
	for _, t := range times {
		i.value(t, 8)
	}
}

// SendRepeatsAndPeriod buffers the shot repeat count and period (in device
// clock ticks).
func (i *Interface) SendRepeatsAndPeriod(shotReps uint16, shotPeriod uint64) {
	i.value(uint64(ModeRepeat), 1)
	i.value(uint64(shotReps), 2)
	i.value(shotPeriod, 8)
}

// SendParameter buffers an output parameter update.
func (i *Interface) SendParameter(board, channel, value uint8) {
	i.value(uint64(ModeParameter), 1)
	i.value(uint64(board), 1)
	i.value(uint64(channel), 1)
	i.value(uint64(value), 1)
}

// SendOutputRange transmits a DAC range selection immediately.  It is not
// buffered: the range must be in effect before any realtime value that
// follows it is quantized on the board side.
func (i *Interface) SendOutputRange(board, channel uint8, r dac.Range) error {
	if err := dac.Validate(r); err != nil {
		return err
	}
	i.value(uint64(ModeOutputRange), 1)
	i.value(uint64(board), 1)
	i.value(uint64(channel), 1)
	i.value(uint64(r), 1)
	return i.flush("output range", 0, 0)
}

// Start purges stale status bytes and transmits the trigger, flushing any
// buffered program ahead of it.
func (i *Interface) Start() error {
	if err := i.t.PurgeRX(); err != nil {
		return &TransportError{Op: "trigger", Err: err}
	}
	i.value(uint64(ModeTrigger), 1)
	return i.flush("trigger", 0, 0)
}

// Reset transmits the reset command and returns the link hardware to its
// power-on state.
func (i *Interface) Reset() error {
	i.value(uint64(ModeReset), 1)
	if err := i.flush("reset", 0, 0); err != nil {
		return err
	}
	if err := i.t.Reset(); err != nil {
		return &TransportError{Op: "reset", Err: err}
	}
	return nil
}

// CheckStatus reads a block of the status stream and reports whether the
// board has finished its shot.  With several status bytes queued, the most
// recent one wins.  An empty read is not an error; it simply means the
// board has nothing new to say.
func (i *Interface) CheckStatus() (bool, error) {
	block := make([]byte, statusBlockSize)
	n, err := i.t.Read(block)
	if err != nil {
		return false, &TransportError{Op: "status", Err: err}
	}
	if n == 0 {
		return false, nil
	}
	return block[n-1] == StatusFinished, nil
}

// Buffered returns the number of bytes awaiting transmission.
func (i *Interface) Buffered() int {
	return i.buf.Len()
}

// Flush transmits the write buffer in a single transfer.
func (i *Interface) Flush() error {
	return i.flush("flush", 0, 0)
}

// FlushChunked transmits the write buffer in fixed-size chunks with a
// pause between transfers.  The link has no device-side flow control, so
// the firmware needs the gap to drain each chunk.  chunkSize <= 0 falls
// back to a single transfer; delay <= 0 sends chunks back to back.
func (i *Interface) FlushChunked(chunkSize int, delay time.Duration) error {
	return i.flush("flush", chunkSize, delay)
}

func (i *Interface) flush(op string, chunkSize int, delay time.Duration) error {
	if i.buf.Len() == 0 {
		return nil
	}
	// take the bytes out up front; a failed transfer cannot be resumed, so
	// there is no point keeping them around
	payload := make([]byte, i.buf.Len())
	copy(payload, i.buf.Bytes())
	i.buf.Reset()

	if chunkSize <= 0 {
		chunkSize = len(payload)
	}
	var limiter *rate.Limiter
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	for start := 0; start < len(payload); start += chunkSize {
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		if limiter != nil {
			if err := limiter.Wait(context.Background()); err != nil {
				return &TransportError{Op: op, Err: err}
			}
		}
		if err := i.write(op, payload[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (i *Interface) write(op string, b []byte) error {
	n, err := i.t.Write(b)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if n < len(b) {
		return &TransportError{Op: op, Err: ErrShortWrite}
	}
	return nil
}
