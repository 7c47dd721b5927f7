/*Package ft245 provides transports for the board's USB synchronous FIFO
link.  The primary implementation drives the FTDI bridge chip directly
through its bulk endpoints; a fallback speaks to the same chip through the
kernel's virtual COM port.

Both satisfy the transport contract of package fpga: a plain byte stream
in each direction, plus receive-queue purge and link reset controls.
*/
package ft245

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/gousb"
)

// The FTDI bridge as it enumerates with factory EEPROM settings.
const (
	DefaultVendorID  = 0x0403
	DefaultProductID = 0x6014
)

// FTDI vendor control requests.
const (
	sioReset        = 0x00
	sioResetSIO     = 0
	sioResetPurgeRX = 1

	// bmRequestType for host-to-device vendor requests
	ctrlOut = gousb.ControlOut | gousb.ControlVendor | gousb.ControlDevice

	// wIndex selects the FTDI channel, numbered from 1
	ftdiIndex = 1
)

// Device is the direct bulk-endpoint transport.
type Device struct {
	ctx    *gousb.Context
	device *gousb.Device
	iface  *gousb.Interface
	closer func()
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
}

// Open claims the FTDI bridge by vendor and product ID.  Enumeration right
// after the board powers up is flaky, so the open is retried with an
// exponential backoff before giving up.
func Open(vid, pid uint16) (*Device, error) {
	d := &Device{}
	op := func() error {
		return d.open(vid, pid)
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) open(vid, pid uint16) error {
	var err error
	if d.ctx == nil {
		d.ctx = gousb.NewContext()
	}
	d.device, err = d.ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		return err
	}
	if d.device == nil {
		return fmt.Errorf("ft245: no device with VID:PID %04x:%04x", vid, pid)
	}
	if err = d.device.SetAutoDetach(true); err != nil {
		return err
	}
	d.iface, d.closer, err = d.device.DefaultInterface()
	if err != nil {
		return err
	}
	d.in, err = d.iface.InEndpoint(1)
	if err != nil {
		return err
	}
	d.out, err = d.iface.OutEndpoint(2)
	if err != nil {
		return err
	}
	return nil
}

// Write sends bytes out the bulk endpoint.
func (d *Device) Write(b []byte) (int, error) {
	return d.out.Write(b)
}

// Read reads from the bulk endpoint.  The bridge prepends two modem status
// bytes to every transfer; they carry nothing useful in FIFO mode and are
// stripped here.
func (d *Device) Read(b []byte) (int, error) {
	buf := make([]byte, len(b)+2)
	n, err := d.in.Read(buf)
	if err != nil {
		return 0, err
	}
	if n <= 2 {
		return 0, nil
	}
	return copy(b, buf[2:n]), nil
}

// PurgeRX discards anything queued on the receive side of the bridge.
func (d *Device) PurgeRX() error {
	_, err := d.device.Control(ctrlOut, sioReset, sioResetPurgeRX, ftdiIndex, nil)
	if err != nil {
		return fmt.Errorf("ft245: purge rx: %w", err)
	}
	return nil
}

// Reset returns the bridge to its power-on state.
func (d *Device) Reset() error {
	_, err := d.device.Control(ctrlOut, sioReset, sioResetSIO, ftdiIndex, nil)
	if err != nil {
		return fmt.Errorf("ft245: reset: %w", err)
	}
	return nil
}

// Close releases the interface and the USB context.
func (d *Device) Close() error {
	if d.closer != nil {
		d.closer()
	}
	var err error
	if d.device != nil {
		err = d.device.Close()
	}
	if d.ctx != nil {
		if cerr := d.ctx.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
