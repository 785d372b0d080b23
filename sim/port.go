// Package sim simulates the light source hardware and the camera watching it so the host can run
// without a device attached. The simulated device runs the real pulse scheduler.
package sim

import (
	"bytes"
	"io"
	"sync"

	"tinygo.org/x/drivers"

	"github.com/calvinmclean/endolight/transport"
)

// Port is an in-memory serial line. The host end blocks on Read like a serial port with no
// timeout; the device end never blocks, like a UART ring buffer.
type Port struct {
	mu       sync.Mutex
	cond     *sync.Cond
	toDevice bytes.Buffer
	toHost   bytes.Buffer
	closed   bool
}

// NewPort creates an open Port
func NewPort() *Port {
	p := &Port{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Host returns the host end of the line
func (p *Port) Host() *HostEnd {
	return &HostEnd{p}
}

// Device returns the device end of the line
func (p *Port) Device() *DeviceEnd {
	return &DeviceEnd{p}
}

// HostEnd is the host side of a Port
type HostEnd struct {
	p *Port
}

var _ transport.Port = &HostEnd{}

// Read blocks until the device has written something or the port is closed
func (h *HostEnd) Read(b []byte) (int, error) {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()

	for h.p.toHost.Len() == 0 && !h.p.closed {
		h.p.cond.Wait()
	}
	if h.p.toHost.Len() == 0 {
		return 0, io.EOF
	}
	return h.p.toHost.Read(b)
}

// TryRead reads whatever the device has written without waiting
func (h *HostEnd) TryRead(b []byte) int {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	n, _ := h.p.toHost.Read(b)
	return n
}

// Write sends bytes to the device
func (h *HostEnd) Write(b []byte) (int, error) {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	if h.p.closed {
		return 0, io.ErrClosedPipe
	}
	return h.p.toDevice.Write(b)
}

// Close closes the line and wakes any blocked Read
func (h *HostEnd) Close() error {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	h.p.closed = true
	h.p.cond.Broadcast()
	return nil
}

// Discard drops everything the device has written
func (h *HostEnd) Discard() {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	h.p.toHost.Reset()
}

// DeviceEnd is the device side of a Port. It implements drivers.UART.
type DeviceEnd struct {
	p *Port
}

var _ drivers.UART = &DeviceEnd{}

// Read reads bytes sent by the host. It returns 0, nil when nothing is buffered.
func (d *DeviceEnd) Read(b []byte) (int, error) {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()
	if d.p.toDevice.Len() == 0 {
		return 0, nil
	}
	return d.p.toDevice.Read(b)
}

// Write sends bytes to the host
func (d *DeviceEnd) Write(b []byte) (int, error) {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()
	if d.p.closed {
		return 0, io.ErrClosedPipe
	}
	n, err := d.p.toHost.Write(b)
	d.p.cond.Broadcast()
	return n, err
}

// Buffered returns the number of bytes sent by the host and not yet read
func (d *DeviceEnd) Buffered() int {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()
	return d.p.toDevice.Len()
}
