// Package rotation drives the half-wave-plate rotation mount that attenuates the speckle
// illumination channel. The mount accepts a single angle; power is mapped linearly onto the
// calibrated angle range.
package rotation

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/calvinmclean/endolight/transport"
)

const (
	// AngleMin is the mount angle in degrees that transmits the least power
	AngleMin float32 = 265
	// AngleMax is the mount angle in degrees that transmits full power
	AngleMax float32 = 310

	// CommandSetAngle is followed by the target angle in centidegrees, little-endian uint16
	CommandSetAngle byte = 'A'
	// CommandHome drives the mount to its endstop and zeroes its position
	CommandHome byte = 'Z'

	// HomedResponse is the line the mount prints after homing
	HomedResponse = "homed"

	defaultHomeTimeout = 10 * time.Second
)

var ErrNotHomed = errors.New("rotation mount did not report homed")

// PowerToAngle maps a normalized power in [0,1] onto the mount's angle range
func PowerToAngle(p float32) float32 {
	return (AngleMax-AngleMin)*p + AngleMin
}

// Mount is a rotation mount that can be moved to an absolute angle in degrees. SetPosition may
// block while the command is sent.
type Mount interface {
	SetPosition(angle float32) error
}

// NoopMount is used when no rotation mount is attached
type NoopMount struct{}

var _ Mount = NoopMount{}

// SetPosition implements Mount.
func (NoopMount) SetPosition(float32) error { return nil }

// SerialMount controls the rotator firmware over a serial port
type SerialMount struct {
	port        transport.Port
	homeTimeout time.Duration
	last        uint16
	hasLast     bool
	out         [3]byte
}

var _ Mount = &SerialMount{}

// NewSerialMount creates a SerialMount using an open port
func NewSerialMount(port transport.Port) *SerialMount {
	return &SerialMount{port: port, homeTimeout: defaultHomeTimeout}
}

// OpenSerialMount opens the port at path and homes the mount. The port is closed if homing fails.
func OpenSerialMount(path string) (*SerialMount, error) {
	port, err := transport.Open(path, transport.PortOptions{})
	if err != nil {
		return nil, err
	}

	m := NewSerialMount(port)
	err = m.Initialize()
	if err != nil {
		port.Close()
		return nil, err
	}

	return m, nil
}

// Initialize homes the mount and waits for it to report completion
func (m *SerialMount) Initialize() error {
	_, err := m.port.Write([]byte{CommandHome})
	if err != nil {
		return fmt.Errorf("error sending home command: %w", err)
	}

	deadline := time.Now().Add(m.homeTimeout)
	var line bytes.Buffer
	buf := make([]byte, 32)
	for time.Now().Before(deadline) {
		n, err := m.port.Read(buf)
		if err != nil {
			return fmt.Errorf("error reading from rotation mount: %w", err)
		}

		for _, b := range buf[:n] {
			if b != '\n' {
				line.WriteByte(b)
				continue
			}
			if strings.TrimSpace(line.String()) == HomedResponse {
				m.hasLast = false
				return nil
			}
			line.Reset()
		}
	}

	return ErrNotHomed
}

// SetPosition moves the mount to angle degrees. Repeated requests for the same position are not sent.
func (m *SerialMount) SetPosition(angle float32) error {
	if angle < 0 || angle >= 360 {
		return fmt.Errorf("angle out of range: %f", angle)
	}

	centi := uint16(math.Round(float64(angle) * 100))
	if m.hasLast && centi == m.last {
		return nil
	}

	m.out[0] = CommandSetAngle
	binary.LittleEndian.PutUint16(m.out[1:], centi)
	_, err := m.port.Write(m.out[:])
	if err != nil {
		return fmt.Errorf("error sending angle: %w", err)
	}

	m.last = centi
	m.hasLast = true
	return nil
}

// Close closes the serial port
func (m *SerialMount) Close() error {
	return m.port.Close()
}
