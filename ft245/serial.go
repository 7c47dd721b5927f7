package ft245

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// Serial is the virtual COM port fallback transport, for hosts where the
// FTDI kernel driver cannot be detached from the bridge.
type Serial struct {
	conf *serial.Config
	port *serial.Port
}

// OpenSerial opens the named port.  The baud rate is ignored by the bridge
// in FIFO mode but the kernel driver insists on one.
func OpenSerial(name string) (*Serial, error) {
	conf := &serial.Config{
		Name:        name,
		Baud:        3000000,
		ReadTimeout: 100 * time.Millisecond,
	}
	port, err := serial.OpenPort(conf)
	if err != nil {
		return nil, fmt.Errorf("ft245: opening %s: %w", name, err)
	}
	return &Serial{conf: conf, port: port}, nil
}

func (s *Serial) Write(b []byte) (int, error) {
	return s.port.Write(b)
}

func (s *Serial) Read(b []byte) (int, error) {
	return s.port.Read(b)
}

// PurgeRX discards anything buffered on the port.
func (s *Serial) PurgeRX() error {
	return s.port.Flush()
}

// Reset reopens the port; the kernel driver exposes no finer-grained
// control over the bridge.
func (s *Serial) Reset() error {
	if err := s.port.Close(); err != nil {
		return err
	}
	port, err := serial.OpenPort(s.conf)
	if err != nil {
		return fmt.Errorf("ft245: reopening %s: %w", s.conf.Name, err)
	}
	s.port = port
	return nil
}

func (s *Serial) Close() error {
	return s.port.Close()
}
