package sim

import (
	"github.com/calvinmclean/endolight"
	"github.com/calvinmclean/endolight/transport"
)

// Loopback links the host directly to a simulated device without a background goroutine.
// Commands reach the device as soon as they are sent, which makes runs deterministic.
type Loopback struct {
	host   *HostEnd
	framer *transport.Framer
	buf    []byte
	out    []byte
}

// NewLoopback creates a Loopback over the host end of port
func NewLoopback(port *Port) *Loopback {
	return &Loopback{
		host:   port.Host(),
		framer: transport.NewFramer(endolight.MonitorReadingSize),
		buf:    make([]byte, 256),
		out:    make([]byte, 0, endolight.PulseCommandSize),
	}
}

// Send writes cmd to the device
func (l *Loopback) Send(cmd endolight.PulseCommand) error {
	l.out, _ = cmd.AppendBinary(l.out[:0])
	_, err := l.host.Write(l.out)
	return err
}

// TryReceive returns the next reading written by the device, if any
func (l *Loopback) TryReceive() (endolight.MonitorReading, bool) {
	for {
		rec, ok := l.framer.Next()
		if ok {
			var r endolight.MonitorReading
			_ = r.UnmarshalBinary(rec)
			return r, true
		}

		n := l.host.TryRead(l.buf)
		if n == 0 {
			return endolight.MonitorReading{}, false
		}
		_, _ = l.framer.Write(l.buf[:n])
	}
}

// Reset discards unread readings and sends RESET
func (l *Loopback) Reset() error {
	l.host.Discard()
	l.framer.Reset()
	return l.Send(endolight.ResetCommand())
}
