package fpga

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/atomoptics/fpgaclock/dac"
	"github.com/atomoptics/fpgaclock/pseudoclock"
	"github.com/atomoptics/fpgaclock/shot"
)

// Transfer pacing for the two bulk programming stages.  The firmware
// drains its data FIFO slower than its instruction FIFO, hence the pause
// between sample chunks.
const (
	clocksChunkSize = 512
	dataChunkSize   = 512
	dataChunkDelay  = 4 * time.Millisecond
)

// Status poll cadence: tight while a shot is running, relaxed while the
// board sits in manual mode.
const (
	fastPoll = 100 * time.Millisecond
	slowPoll = 2 * time.Second
)

// OutputConfig describes one front-panel output the worker manages.
type OutputConfig struct {
	// Name is the human label used in logs and HTTP responses.
	Name string `yaml:"name"`
	// Conn is the channel identity token.
	Conn string `yaml:"conn"`
	// Range selects the DAC span for analog outputs; ignored for digital.
	Range dac.Range `yaml:"range"`
}

type request struct {
	fn   func() error
	done chan error
}

// Worker owns one board: its transport, its frame buffer, and its smart
// cache.  All device traffic happens on the goroutine running Run; public
// methods marshal their work onto that goroutine, so callers may use a
// Worker from anywhere but the link itself is never shared.
type Worker struct {
	iface   *Interface
	cache   *SmartCache
	outputs map[string]OutputConfig // keyed by connection token
	log     *log.Logger

	requests chan request

	// loop-goroutine state
	inFlight bool
	finals   map[string]float64
}

// NewWorker wraps a transport.  outputs may be nil when every channel uses
// the default DAC range.
func NewWorker(t Transport, outputs []OutputConfig, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	m := make(map[string]OutputConfig, len(outputs))
	for _, o := range outputs {
		m[o.Conn] = o
	}
	return &Worker{
		iface:    NewInterface(t),
		cache:    NewSmartCache(),
		outputs:  m,
		log:      logger,
		requests: make(chan request),
		finals:   make(map[string]float64),
	}
}

// Run is the worker's control loop.  It executes submitted operations and
// polls the board's status stream between them, and returns when ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) error {
	timer := time.NewTimer(w.pollInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-w.requests:
			req.done <- req.fn()
		case <-timer.C:
			w.poll()
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.pollInterval())
	}
}

func (w *Worker) pollInterval() time.Duration {
	if w.inFlight {
		return fastPoll
	}
	return slowPoll
}

func (w *Worker) poll() {
	if !w.inFlight {
		return
	}
	finished, err := w.iface.CheckStatus()
	if err != nil {
		w.log.Printf("fpga: status poll failed: %v", err)
		return
	}
	if finished {
		w.log.Printf("fpga: shot finished")
		w.settle()
	}
}

// settle returns the worker to manual mode after a shot, committing the
// shot's final output states to the realtime cache.
func (w *Worker) settle() {
	w.cache.SeedValues(w.finals)
	w.inFlight = false
}

// submit runs fn on the loop goroutine and waits for it.
func (w *Worker) submit(fn func() error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	w.requests <- req
	return <-req.done
}

// Busy reports whether a shot is in flight.
func (w *Worker) Busy() bool {
	var busy bool
	w.submit(func() error {
		busy = w.inFlight
		return nil
	})
	return busy
}

// LastValue reports a channel's last known manual-mode value.
func (w *Worker) LastValue(conn string) (float64, bool) {
	var (
		v  float64
		ok bool
	)
	w.submit(func() error {
		v, ok = w.cache.Value(conn)
		return nil
	})
	return v, ok
}

func (w *Worker) span(conn string) (float64, float64) {
	if o, ok := w.outputs[conn]; ok {
		if err := dac.Validate(o.Range); err == nil {
			return o.Range.Span()
		}
	}
	return dac.DefaultRange.Span()
}

// ProgramManual drives outputs directly from front-panel values, keyed by
// connection token.  Only values that differ from the board's known state
// are transmitted.  The returned map holds the coerced value of every
// channel actually programmed, which may differ from the requested one.
func (w *Worker) ProgramManual(values map[string]float64) (map[string]float64, error) {
	modified := make(map[string]float64)
	err := w.submit(func() error {
		sent := make(map[string]float64)
		for _, conn := range sortedKeys(values) {
			value := values[conn]
			if !w.cache.NeedsValue(conn, value, false) {
				continue
			}
			cn, err := shot.Decode(conn)
			if err != nil {
				return err
			}
			actual := value
			if cn.Kind == shot.Analog {
				min, max := w.span(conn)
				actual, err = w.iface.SendRealtimeAnalog(cn.Board, cn.Channel, value, min, max)
				if err != nil {
					return err
				}
			} else {
				w.iface.SendRealtimeDigital(cn.Board, cn.Channel, value != 0)
				if value != 0 {
					actual = 1
				} else {
					actual = 0
				}
			}
			sent[conn] = actual
		}
		if err := w.iface.Flush(); err != nil {
			return err
		}
		// cache only what is known to have reached the board
		for conn, v := range sent {
			w.cache.StoreValue(conn, v)
			modified[conn] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return modified, nil
}

// TransitionToBuffered programs a shot onto the board: repeats and period,
// then every channel's clock program, then the analog sample arrays, then
// the waits.  Channels whose payload matches the smart cache are skipped
// unless fresh forces a full reprogram.  The returned map gives the value
// each channel will hold when the shot completes.
func (w *Worker) TransitionToBuffered(dev *shot.Device, fresh bool) (map[string]float64, error) {
	finals := make(map[string]float64)
	err := w.submit(func() error {
		w.iface.SendRepeatsAndPeriod(dev.ShotReps, dev.ShotPeriod())

		if err := w.sendClocks(dev, fresh, finals); err != nil {
			return err
		}
		if err := w.sendAnalogData(dev, fresh, finals); err != nil {
			return err
		}
		if err := w.sendWaits(dev); err != nil {
			return err
		}
		w.finals = finals
		return nil
	})
	if err != nil {
		return nil, err
	}
	return finals, nil
}

func (w *Worker) sendClocks(dev *shot.Device, fresh bool, finals map[string]float64) error {
	type staged struct {
		conn    string
		payload []byte
	}
	var sent []staged

	for _, conn := range sortedKeys(dev.Clocks) {
		records := dev.Clocks[conn]
		cn, err := shot.Decode(conn)
		if err != nil {
			return err
		}
		if cn.Kind == shot.Digital && len(records) > 0 {
			finals[conn] = float64(digitalFinalState(records))
		}
		payload := clockPayload(records)
		if !w.cache.NeedsClocks(conn, payload, fresh) {
			continue
		}
		ticks := make([]pseudoclock.Tick, len(records))
		for i, r := range records {
			ticks[i] = pseudoclock.Tick{Clocks: r.Clocks, Count: r.Count}
		}
		w.log.Printf("fpga: programming clocks for %s (%d ticks)", conn, len(ticks))
		if err := w.iface.SendPseudoclock(cn.Board, cn.Channel, ticks); err != nil {
			return err
		}
		sent = append(sent, staged{conn, payload})
	}
	if err := w.iface.FlushChunked(clocksChunkSize, 0); err != nil {
		return err
	}
	for _, s := range sent {
		w.cache.StoreClocks(s.conn, s.payload)
	}
	return nil
}

func (w *Worker) sendAnalogData(dev *shot.Device, fresh bool, finals map[string]float64) error {
	type staged struct {
		conn    string
		payload []byte
	}
	var sent []staged

	for _, conn := range sortedKeys(dev.AnalogData) {
		samples := dev.AnalogData[conn]
		if len(samples) > 0 {
			finals[conn] = samples[len(samples)-1]
		}
		payload := samplePayload(samples)
		if !w.cache.NeedsData(conn, payload, fresh) {
			continue
		}
		cn, err := shot.Decode(conn)
		if err != nil {
			return err
		}
		min, max := w.span(conn)
		if lim, ok := dev.AnalogLimits[conn]; ok {
			min, max = lim.Min, lim.Max
		}
		w.log.Printf("fpga: programming data for %s (%d samples)", conn, len(samples))
		if err := w.iface.SendAnalogData(cn.Board, cn.Channel, min, max, samples); err != nil {
			return err
		}
		sent = append(sent, staged{conn, payload})
	}
	if err := w.iface.FlushChunked(dataChunkSize, dataChunkDelay); err != nil {
		return err
	}
	for _, s := range sent {
		w.cache.StoreData(s.conn, s.payload)
	}
	return nil
}

func (w *Worker) sendWaits(dev *shot.Device) error {
	for i, rec := range dev.Waits {
		wt := WaitFromRecord(rec.Board, rec.Channel, rec.Value, rec.Comparison)
		if err := w.iface.SendWait(wt); err != nil {
			return fmt.Errorf("fpga: wait %d: %w", i, err)
		}
	}
	if len(dev.WaitTimes) > 0 {
		w.iface.SendWaitTimes(dev.WaitTimes)
	}
	return w.iface.Flush()
}

// Start triggers the programmed shot.
func (w *Worker) Start() error {
	return w.submit(func() error {
		if err := w.iface.Start(); err != nil {
			return err
		}
		w.inFlight = true
		return nil
	})
}

// TransitionToManual returns the board to manual mode after a completed
// shot and reports the final output values now on the front panel.
func (w *Worker) TransitionToManual() (map[string]float64, error) {
	finals := make(map[string]float64)
	err := w.submit(func() error {
		w.settle()
		for conn, v := range w.finals {
			finals[conn] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return finals, nil
}

// Abort flushes anything still buffered and returns to manual mode without
// committing the shot's final states.  There is no cancelling an in-flight
// transfer; the board simply stops being polled as a running shot.
func (w *Worker) Abort() error {
	return w.submit(func() error {
		if err := w.iface.Flush(); err != nil {
			return err
		}
		w.inFlight = false
		return nil
	})
}

// Reset puts the board back in its power-on state and forgets everything
// the smart cache knew; the next shot reprograms every channel.
func (w *Worker) Reset() error {
	return w.submit(func() error {
		if err := w.iface.Reset(); err != nil {
			return err
		}
		w.cache.Invalidate()
		w.inFlight = false
		return nil
	})
}

// SetOutputRange selects a DAC span for an analog channel.  The change
// invalidates the channel's cached realtime value, since the same code now
// produces a different voltage.
func (w *Worker) SetOutputRange(conn string, r dac.Range) error {
	return w.submit(func() error {
		cn, err := shot.Decode(conn)
		if err != nil {
			return err
		}
		if cn.Kind != shot.Analog {
			return fmt.Errorf("fpga: %s is not an analog output", conn)
		}
		if err := w.iface.SendOutputRange(cn.Board, cn.Channel, r); err != nil {
			return err
		}
		o := w.outputs[conn]
		o.Conn = conn
		o.Range = r
		w.outputs[conn] = o
		w.cache.DropValue(conn)
		return nil
	})
}

// SetParameter updates a firmware parameter on one output channel.
func (w *Worker) SetParameter(conn string, value uint8) error {
	return w.submit(func() error {
		cn, err := shot.Decode(conn)
		if err != nil {
			return err
		}
		w.iface.SendParameter(cn.Board, cn.Channel, value)
		return w.iface.Flush()
	})
}

// digitalFinalState is the level a digital channel holds after its program
// runs: the initial level carried by the first tick, flipped by the parity
// of every toggle after it.
func digitalFinalState(records []shot.TickRecord) int64 {
	var toggles int64
	for _, r := range records[1:] {
		toggles += r.Count
	}
	return records[0].Count ^ (toggles % 2)
}

// clockPayload is the cache's canonical byte form of a clock program.
func clockPayload(records []shot.TickRecord) []byte {
	out := make([]byte, 0, 16*len(records))
	var scratch [8]byte
	for _, r := range records {
		binary.BigEndian.PutUint64(scratch[:], uint64(r.Clocks))
		out = append(out, scratch[:]...)
		binary.BigEndian.PutUint64(scratch[:], uint64(r.Count))
		out = append(out, scratch[:]...)
	}
	return out
}

// samplePayload is the cache's canonical byte form of a sample array.
func samplePayload(samples []float64) []byte {
	out := make([]byte, 0, 8*len(samples))
	var scratch [8]byte
	for _, s := range samples {
		binary.BigEndian.PutUint64(scratch[:], math.Float64bits(s))
		out = append(out, scratch[:]...)
	}
	return out
}

func sortedKeys(m interface{}) []string {
	var keys []string
	switch v := m.(type) {
	case map[string][]shot.TickRecord:
		for k := range v {
			keys = append(keys, k)
		}
	case map[string][]float64:
		for k := range v {
			keys = append(keys, k)
		}
	case map[string]float64:
		for k := range v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
