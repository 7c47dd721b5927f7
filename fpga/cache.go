package fpga

import (
	"bytes"

	"github.com/snksoft/crc"
)

var crcTable = crc.NewTable(crc.CRC64ECMA)

// program is one cached per-channel payload.  The fingerprint is a cheap
// first-pass comparison; on a fingerprint match the stored bytes are
// compared directly so a collision can never suppress a retransmission.
type program struct {
	fingerprint uint64
	payload     []byte
}

func (p program) equal(payload []byte) bool {
	return p.fingerprint == crcTable.CalculateCRC(payload) && bytes.Equal(p.payload, payload)
}

func newProgram(payload []byte) program {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return program{fingerprint: crcTable.CalculateCRC(cp), payload: cp}
}

// SmartCache remembers what each channel was last programmed with so that
// reprogramming a board can skip channels whose payload has not changed.
// Entries are stored only after a successful transmission; a transport
// failure leaves the cache describing what is actually on the board.
type SmartCache struct {
	clocks map[string]program
	data   map[string]program
	values map[string]float64
}

func NewSmartCache() *SmartCache {
	return &SmartCache{
		clocks: make(map[string]program),
		data:   make(map[string]program),
		values: make(map[string]float64),
	}
}

// NeedsClocks reports whether a channel's clock payload differs from the
// one last sent.  fresh forces retransmission regardless of the cache.
func (c *SmartCache) NeedsClocks(conn string, payload []byte, fresh bool) bool {
	if fresh {
		return true
	}
	p, ok := c.clocks[conn]
	return !ok || !p.equal(payload)
}

// StoreClocks records a clock payload as on-board.  Call it only after the
// payload has been flushed without error.
func (c *SmartCache) StoreClocks(conn string, payload []byte) {
	c.clocks[conn] = newProgram(payload)
}

// NeedsData reports whether a channel's sample payload differs from the
// one last sent.
func (c *SmartCache) NeedsData(conn string, payload []byte, fresh bool) bool {
	if fresh {
		return true
	}
	p, ok := c.data[conn]
	return !ok || !p.equal(payload)
}

// StoreData records a sample payload as on-board.
func (c *SmartCache) StoreData(conn string, payload []byte) {
	c.data[conn] = newProgram(payload)
}

// Value returns the last known manual-mode value of a channel.
func (c *SmartCache) Value(conn string) (float64, bool) {
	v, ok := c.values[conn]
	return v, ok
}

// NeedsValue reports whether setting a channel to value would change its
// output.  An unknown channel always needs programming.
func (c *SmartCache) NeedsValue(conn string, value float64, fresh bool) bool {
	if fresh {
		return true
	}
	v, ok := c.values[conn]
	return !ok || v != value
}

// StoreValue records a channel's manual-mode value.
func (c *SmartCache) StoreValue(conn string, value float64) {
	c.values[conn] = value
}

// DropValue forgets a channel's manual-mode value, forcing the next
// realtime write to that channel through.
func (c *SmartCache) DropValue(conn string) {
	delete(c.values, conn)
}

// SeedValues records the final state every channel will hold when a shot
// ends, so the return to manual mode knows the board's outputs without
// reprogramming them.
func (c *SmartCache) SeedValues(finals map[string]float64) {
	for conn, v := range finals {
		c.values[conn] = v
	}
}

// Invalidate forgets everything known about the board.  The next shot will
// program every channel from scratch.
func (c *SmartCache) Invalidate() {
	c.clocks = make(map[string]program)
	c.data = make(map[string]program)
	c.values = make(map[string]float64)
}
