// Package scheduler fires queued pulse-width sets on camera field boundaries and returns
// monitoring voltages to the host. It has no hardware dependencies: the firmware binds it to
// pins, timers, the ADC and the USB serial port through the interfaces below.
package scheduler

import (
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/calvinmclean/endolight"

	"tinygo.org/x/drivers"
)

const (
	// DefaultDepth is the number of commands queued before firing starts. It matches the host
	// frame buffer depth.
	DefaultDepth = 7
	// DefaultSettleDelay is the time after a field boundary before the monitor channels are sampled
	DefaultSettleDelay = 500 * time.Microsecond

	// SampleTimer is the timer id used for monitor sampling. Ids below it are laser channels.
	SampleTimer = endolight.NumLaserDiodes
)

var ErrInvalidDepth = errors.New("depth must be greater than zero")

// State is the scheduler's arming state
type State uint32

const (
	StateUninitialized State = iota
	StateArmed
)

func (s State) String() string {
	if s == StateArmed {
		return "Armed"
	}
	return "Uninitialized"
}

// Outputs drives the laser enable pins
type Outputs interface {
	Set(channel int, on bool)
}

// Timers starts one-shot hardware timers. When timer id expires, the binding must call
// Scheduler.Expire(id). Starting a running timer restarts it.
type Timers interface {
	Start(id int, d time.Duration)
}

// Monitor samples the photodiode channels. Update(drivers.Voltage) acquires a new oversampled set
// of readings which are then returned by Voltage.
type Monitor interface {
	drivers.Sensor
	Voltage(channel int) uint16
}

// Config has the scheduler's fixed parameters
type Config struct {
	Depth       int
	SettleDelay time.Duration
}

// Stats counts scheduler events. Fields are updated from interrupt context.
type Stats struct {
	Fired     atomic.Uint32
	Underruns atomic.Uint32
	Resets    atomic.Uint32
	Dropped   atomic.Uint32
}

// Scheduler is the real-time pulse scheduler. OnFieldSync and Expire may run in interrupt
// context; Poll runs in the main loop. The two sides share only the rings and the atomics.
type Scheduler struct {
	cfg     Config
	port    drivers.UART
	outputs Outputs
	timers  Timers
	monitor Monitor

	commands *Ring[endolight.PulseCommand]
	readings *Ring[endolight.MonitorReading]

	state      atomic.Uint32
	generation atomic.Uint32

	// owned by interrupt context
	current    endolight.PulseCommand
	field      endolight.Field
	firing     bool
	pending    endolight.MonitorReading
	hasPending bool
	pendingGen uint32

	// owned by Poll
	rx [endolight.PulseCommandSize]byte
	tx [endolight.MonitorReadingSize]byte

	Stats Stats
}

// New creates a Scheduler. All queue storage is allocated here.
func New(cfg Config, port drivers.UART, outputs Outputs, timers Timers, monitor Monitor) (*Scheduler, error) {
	if cfg.Depth <= 0 {
		return nil, ErrInvalidDepth
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}

	return &Scheduler{
		cfg:      cfg,
		port:     port,
		outputs:  outputs,
		timers:   timers,
		monitor:  monitor,
		commands: NewRing[endolight.PulseCommand](2 * cfg.Depth),
		readings: NewRing[endolight.MonitorReading](2 * cfg.Depth),
	}, nil
}

// State returns the current arming state
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// QueuedCommands returns the number of commands waiting to be fired
func (s *Scheduler) QueuedCommands() int {
	return s.commands.Len()
}

// QueuedReadings returns the number of readings waiting to be sent
func (s *Scheduler) QueuedReadings() int {
	return s.readings.Len()
}

// OnFieldSync handles a field-sync edge. level is the sync pin level: high marks the odd field
// which starts a new frame.
func (s *Scheduler) OnFieldSync(level bool) {
	if s.State() != StateArmed {
		return
	}
	gen := s.generation.Load()

	s.field = endolight.FieldEven
	if level {
		s.field = endolight.FieldOdd
	}

	if s.field == endolight.FieldOdd {
		s.startFrame(gen)
	}

	// a command dequeued before a RESET must not fire after re-arming
	if !s.firing || s.pendingGen != gen {
		s.firing = false
		return
	}

	for ch := range endolight.NumLaserDiodes {
		w := s.current.Width(s.field, ch)
		if w == 0 {
			continue
		}
		s.outputs.Set(ch, true)
		s.timers.Start(ch, time.Duration(w)*time.Microsecond)
	}
	s.timers.Start(SampleTimer, s.cfg.SettleDelay)
}

// startFrame publishes the previous frame's reading and dequeues the next command
func (s *Scheduler) startFrame(gen uint32) {
	if s.hasPending && s.pendingGen == gen {
		s.pushReading(s.pending)
	}
	s.hasPending = false

	cmd, ok := s.commands.Pop()
	if !ok {
		s.firing = false
		s.Stats.Underruns.Add(1)
		s.pushReading(endolight.ErrorReading())
		return
	}

	s.current = cmd
	s.firing = true
	s.pending = endolight.MonitorReading{FrameID: cmd.FrameID}
	s.hasPending = true
	s.pendingGen = gen
	s.Stats.Fired.Add(1)
}

func (s *Scheduler) pushReading(r endolight.MonitorReading) {
	if !s.readings.Push(r) {
		s.Stats.Dropped.Add(1)
	}
}

// Expire handles expiry of timer id
func (s *Scheduler) Expire(id int) {
	if id < SampleTimer {
		s.outputs.Set(id, false)
		return
	}
	if id == SampleTimer {
		s.sample()
	}
}

// sample stores the monitor voltages for the current field into the pending reading. Samples
// that complete after a RESET are discarded.
func (s *Scheduler) sample() {
	if !s.hasPending || s.pendingGen != s.generation.Load() {
		return
	}

	err := s.monitor.Update(drivers.Voltage)
	if err != nil {
		return
	}

	offset := int(s.field) * endolight.NumPhotoDiodes
	for ch := range endolight.NumPhotoDiodes {
		s.pending.Voltages[offset+ch] = s.monitor.Voltage(ch)
	}
}

// Poll runs one iteration of the I/O loop. It moves every complete command from the port into
// the command queue and writes at most one reading back. When the command queue is full, bytes
// are left in the port buffer until the interrupt side drains it.
func (s *Scheduler) Poll() error {
	for s.port.Buffered() >= endolight.PulseCommandSize && !s.commands.Full() {
		_, err := io.ReadFull(s.port, s.rx[:])
		if err != nil {
			return err
		}

		var cmd endolight.PulseCommand
		_ = cmd.UnmarshalBinary(s.rx[:])

		if cmd.IsReset() {
			s.Reset()
			continue
		}

		s.commands.Push(cmd)
		if s.State() == StateUninitialized && s.commands.Len() >= s.cfg.Depth {
			s.state.Store(uint32(StateArmed))
		}
	}

	r, ok := s.readings.Pop()
	if !ok {
		return nil
	}

	b, _ := r.AppendBinary(s.tx[:0])
	_, err := s.port.Write(b)
	return err
}

// Reset discards all queued work and returns to StateUninitialized. The state change and the
// generation bump happen before the rings are cleared so an interrupt that arrives mid-clear
// returns immediately and in-flight samples are discarded.
func (s *Scheduler) Reset() {
	s.state.Store(uint32(StateUninitialized))
	s.generation.Add(1)
	s.commands.Reset()
	s.readings.Reset()
	s.Stats.Resets.Add(1)
}
