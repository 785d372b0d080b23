package sim

import (
	"cmp"
	"slices"
	"time"

	"tinygo.org/x/drivers"

	"github.com/calvinmclean/endolight"
	"github.com/calvinmclean/endolight/firmware/scheduler"
)

// photodiodeGain is the simulated monitor voltage per lit laser channel
const photodiodeGain = 1000

// Device is a simulated light source: the pulse scheduler bound to simulated pins, timers and
// photodiodes. Fields are stepped explicitly instead of by a camera sync signal.
type Device struct {
	sched   *scheduler.Scheduler
	outputs *outputs
	timers  *timers
}

// NewDevice creates a Device reading commands from port. depth <= 0 uses scheduler.DefaultDepth.
func NewDevice(port drivers.UART, depth int) (*Device, error) {
	if depth <= 0 {
		depth = scheduler.DefaultDepth
	}

	d := &Device{
		outputs: &outputs{},
		timers:  &timers{},
	}

	var err error
	d.sched, err = scheduler.New(
		scheduler.Config{Depth: depth},
		port,
		d.outputs,
		d.timers,
		&monitor{outputs: d.outputs},
	)
	if err != nil {
		return nil, err
	}

	return d, nil
}

// Scheduler returns the simulated device's scheduler
func (d *Device) Scheduler() *scheduler.Scheduler {
	return d.sched
}

// Poll runs the device I/O loop until every ready reading has been written
func (d *Device) Poll() error {
	for {
		err := d.sched.Poll()
		if err != nil {
			return err
		}
		if d.sched.QueuedReadings() == 0 {
			return nil
		}
	}
}

// Field simulates one camera field: the sync edge followed by every timer running out in order.
// It returns how long each laser channel was lit.
func (d *Device) Field(field endolight.Field) [endolight.NumLaserDiodes]time.Duration {
	d.sched.OnFieldSync(field == endolight.FieldOdd)

	var lit [endolight.NumLaserDiodes]time.Duration
	for _, t := range d.timers.drain() {
		if t.id < scheduler.SampleTimer && d.outputs.on[t.id] {
			lit[t.id] = t.d
		}
		d.sched.Expire(t.id)
	}
	return lit
}

type outputs struct {
	on [endolight.NumLaserDiodes]bool
}

func (o *outputs) Set(channel int, on bool) {
	o.on[channel] = on
}

type timer struct {
	id int
	d  time.Duration
}

type timers struct {
	running []timer
}

func (t *timers) Start(id int, d time.Duration) {
	t.running = slices.DeleteFunc(t.running, func(r timer) bool { return r.id == id })
	t.running = append(t.running, timer{id, d})
}

// drain returns the running timers in expiry order and stops them
func (t *timers) drain() []timer {
	expired := slices.Clone(t.running)
	t.running = t.running[:0]
	slices.SortStableFunc(expired, func(a, b timer) int {
		return cmp.Compare(a.d, b.d)
	})
	return expired
}

// monitor reports a voltage per photodiode proportional to the lit lasers it sees. Photodiode k
// watches every channel with index k modulo NumPhotoDiodes.
type monitor struct {
	outputs  *outputs
	voltages [endolight.NumPhotoDiodes]uint16
}

func (m *monitor) Update(which drivers.Measurement) error {
	if which&drivers.Voltage == 0 {
		return nil
	}
	m.voltages = [endolight.NumPhotoDiodes]uint16{}
	for ch, on := range m.outputs.on {
		if on {
			m.voltages[ch%endolight.NumPhotoDiodes] += photodiodeGain
		}
	}
	return nil
}

func (m *monitor) Voltage(channel int) uint16 {
	return m.voltages[channel]
}
