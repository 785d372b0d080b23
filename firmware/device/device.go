//go:build tinygo

// Package device binds the pulse scheduler to the light source board: laser enable pins, the
// camera field sync input and the photodiode ADC channels.
package device

import (
	"machine"
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers"

	"github.com/calvinmclean/endolight"
	"github.com/calvinmclean/endolight/firmware/scheduler"
)

// Serial adapts a machine.Serialer, which only reads a byte at a time, to drivers.UART
type Serial struct {
	machine.Serialer
}

var _ drivers.UART = Serial{}

// Read returns whatever is buffered, up to len(p). It does not wait for more.
func (s Serial) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) && s.Buffered() > 0 {
		b, err := s.ReadByte()
		if err != nil {
			return n, err
		}
		p[n] = b
		n++
	}
	return n, nil
}

// Lasers drives the laser enable pins
type Lasers [endolight.NumLaserDiodes]machine.Pin

// Configure sets every pin as an output and turns it off
func (l *Lasers) Configure() {
	for _, p := range l {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.Low()
	}
}

func (l *Lasers) Set(channel int, on bool) {
	l[channel].Set(on)
}

// Timers are one-shot software timers checked by the main loop. Expiry is delivered in id order
// when several are due in the same Run.
type Timers struct {
	expire   func(id int)
	deadline [scheduler.SampleTimer + 1]time.Time
	armed    [scheduler.SampleTimer + 1]bool
}

// OnExpire sets the function called when a timer runs out
func (t *Timers) OnExpire(f func(id int)) {
	t.expire = f
}

func (t *Timers) Start(id int, d time.Duration) {
	t.deadline[id] = time.Now().Add(d)
	t.armed[id] = true
}

// Run expires every timer that is due at now
func (t *Timers) Run(now time.Time) {
	for id := range t.armed {
		if !t.armed[id] || now.Before(t.deadline[id]) {
			continue
		}
		t.armed[id] = false
		t.expire(id)
	}
}

// Monitor reads the photodiode channels, averaging several ADC samples per channel
type Monitor struct {
	adcs       [endolight.NumPhotoDiodes]machine.ADC
	oversample int
	voltages   [endolight.NumPhotoDiodes]uint16
}

// NewMonitor configures the ADC on pins. machine.InitADC must be called first.
func NewMonitor(pins [endolight.NumPhotoDiodes]machine.Pin, oversample int) *Monitor {
	m := &Monitor{oversample: max(oversample, 1)}
	for i, p := range pins {
		m.adcs[i] = machine.ADC{Pin: p}
		m.adcs[i].Configure(machine.ADCConfig{})
	}
	return m
}

func (m *Monitor) Update(which drivers.Measurement) error {
	if which&drivers.Voltage == 0 {
		return nil
	}

	for i, adc := range m.adcs {
		var sum uint32
		for range m.oversample {
			sum += uint32(adc.Get())
		}
		m.voltages[i] = uint16(sum / uint32(m.oversample))
	}
	return nil
}

func (m *Monitor) Voltage(channel int) uint16 {
	return m.voltages[channel]
}

// FieldSync records edges of the camera's field sync signal from its pin interrupt so the main
// loop can pick them up
type FieldSync struct {
	edges atomic.Uint32
	level atomic.Bool
	seen  uint32
}

// NewFieldSync configures pin as an input and starts watching both edges
func NewFieldSync(pin machine.Pin) (*FieldSync, error) {
	f := &FieldSync{}
	pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	err := pin.SetInterrupt(machine.PinToggle, func(p machine.Pin) {
		f.level.Store(p.Get())
		f.edges.Add(1)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Edge returns the current level if an edge happened since the last call. Edges missed in
// between collapse into one.
func (f *FieldSync) Edge() (level bool, ok bool) {
	n := f.edges.Load()
	if n == f.seen {
		return false, false
	}
	f.seen = n
	return f.level.Load(), true
}
