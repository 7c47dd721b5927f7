package shot

import (
	"fmt"
	"io/ioutil"
	"math"

	yaml "gopkg.in/yaml.v2"
)

// TickRecord is one persisted clock instruction.  For digital channels
// Count holds a toggle count (initial level in the first record); for
// analog channels it holds a repeat count.
type TickRecord struct {
	Clocks int64 `yaml:"clocks"`
	Count  int64 `yaml:"count"`
}

// Limits is a channel's DAC output span saved at compile time.
type Limits struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// WaitRecord is a pause condition as persisted.  The container format has
// no null, so absent fields are stored as NaN.
type WaitRecord struct {
	Board      float64 `yaml:"board"`
	Channel    float64 `yaml:"channel"`
	Value      float64 `yaml:"value"`
	Comparison float64 `yaml:"comparison"`
}

// Absent returns a field value encoding "not present".
func Absent() float64 { return math.NaN() }

// Device is one board driver's section of the shot document.
type Device struct {
	StopTime        float64 `yaml:"stop_time"`
	ClockFrequency  float64 `yaml:"clock_frequency"`
	ClockResolution float64 `yaml:"clock_resolution"`
	ShotReps        uint16  `yaml:"shot_reps"`

	Clocks       map[string][]TickRecord `yaml:"clocks"`
	AnalogData   map[string][]float64    `yaml:"analog_data"`
	AnalogLimits map[string]Limits       `yaml:"analog_limits,omitempty"`
	Waits        []WaitRecord            `yaml:"waits,omitempty"`
	WaitTimes    []uint64                `yaml:"wait_times,omitempty"`
}

// ShotPeriod returns the shot duration as a count of device clock ticks.
func (d *Device) ShotPeriod() uint64 {
	return uint64(math.Round(d.StopTime * d.ClockFrequency))
}

// Document is a whole persisted shot description, keyed by device name.
type Document struct {
	Devices map[string]*Device `yaml:"devices"`
}

// Device fetches a named device section; a missing section is a format
// error, not an empty program.
func (doc *Document) Device(name string) (*Device, error) {
	d, ok := doc.Devices[name]
	if !ok {
		return nil, fmt.Errorf("shot: document has no device %q", name)
	}
	return d, nil
}

// Load reads a shot document from disk.
func Load(path string) (*Document, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("shot: parsing %s: %w", path, err)
	}
	return &doc, nil
}

// Save writes a shot document to disk.
func (doc *Document) Save(path string) error {
	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, b, 0644)
}
