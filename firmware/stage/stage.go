// Package stage positions the rotation mount's half-wave plate with a stepper motor. Angles are
// absolute from the homing endstop; moves are relative steps so rounding error is carried
// forward instead of accumulating.
package stage

import (
	"errors"
	"io"
	"math"
	"strconv"
	"time"
)

var (
	ErrNotHomed   = errors.New("stage is not homed")
	ErrHomeFailed = errors.New("endstop not reached")
	ErrNoEndstop  = errors.New("no endstop configured")
)

// Stepper moves the motor by a signed number of steps, blocking until done
type Stepper interface {
	Move(steps int32)
}

// Endstop reports whether the homing switch is pressed. machine.Pin implements it.
type Endstop interface {
	Get() bool
}

// Config has values that depend on the motor, gearing and switch placement
type Config struct {
	// StepsPerDegree of plate rotation including gearing
	StepsPerDegree float32
	// BacklashSteps is how far a move in the negative direction overshoots before approaching
	// the target from below
	BacklashSteps int32
	// HomeMaxSteps limits the search for the endstop
	HomeMaxSteps int32
	// DelayAfterMove lets the plate settle before the next command is read
	DelayAfterMove time.Duration
}

// Stage controls the rotation mount
type Stage struct {
	stepper Stepper
	endstop Endstop
	input   io.ByteReader
	cfg     Config
	sleep   func(time.Duration)

	// angle is the commanded position in centidegrees
	angle     uint16
	position  int32
	remainder float32
	homed     bool

	startTime time.Time
	verbose   bool
}

// New creates a Stage. input supplies command bytes.
func New(stepper Stepper, endstop Endstop, input io.ByteReader, cfg Config) (*Stage, error) {
	if cfg.StepsPerDegree <= 0 {
		return nil, errors.New("StepsPerDegree must be greater than zero")
	}
	if cfg.HomeMaxSteps <= 0 {
		cfg.HomeMaxSteps = int32(360 * cfg.StepsPerDegree)
	}

	return &Stage{
		stepper:   stepper,
		endstop:   endstop,
		input:     input,
		cfg:       cfg,
		sleep:     time.Sleep,
		startTime: time.Now(),
	}, nil
}

// Home steps backward until the endstop is pressed and makes that position zero degrees. It
// prints "homed" when done.
func (s *Stage) Home() error {
	if s.endstop == nil {
		return ErrNoEndstop
	}
	if s.verbose {
		println(s.ts(), "Home")
	}

	s.homed = false
	for range s.cfg.HomeMaxSteps {
		if s.endstop.Get() {
			s.angle = 0
			s.position = 0
			s.remainder = 0
			s.homed = true
			println("homed")
			return nil
		}
		s.stepper.Move(-1)
	}

	return ErrHomeFailed
}

// SetAngle moves the plate to an absolute angle in centidegrees
func (s *Stage) SetAngle(centi uint16) error {
	if !s.homed {
		return ErrNotHomed
	}
	if centi >= 36000 {
		return errors.New("angle out of range: " + strconv.Itoa(int(centi)))
	}
	if s.verbose {
		println(s.ts(), "SetAngle", centi)
	}

	delta := int32(centi) - int32(s.angle)
	s.angle = centi
	s.move(float32(delta) / 100 * s.cfg.StepsPerDegree)

	return nil
}

// move steps by degrees worth of steps, carrying the fractional step to the next move
func (s *Stage) move(steps float32) {
	rawMove := steps + s.remainder

	move := int32(math.Round(float64(rawMove)))
	s.remainder = rawMove - float32(move)
	if move == 0 {
		return
	}

	// always finish in the positive direction so gear lash is taken up the same way
	if move < 0 && s.cfg.BacklashSteps > 0 {
		s.stepper.Move(move - s.cfg.BacklashSteps)
		s.stepper.Move(s.cfg.BacklashSteps)
	} else {
		s.stepper.Move(move)
	}
	s.position += move

	s.sleep(s.cfg.DelayAfterMove)
}

// Move moves the stepper by raw steps without changing the commanded angle. It is used to
// calibrate against the plate's markings.
func (s *Stage) Move(steps int32) {
	if s.verbose {
		println(s.ts(), "Move", steps)
	}
	s.stepper.Move(steps)
	s.position += steps
}

// Angle returns the commanded angle in centidegrees
func (s *Stage) Angle() uint16 {
	return s.angle
}

// Position returns the motor position in steps from home
func (s *Stage) Position() int32 {
	return s.position
}

// Homed reports whether Home has succeeded
func (s *Stage) Homed() bool {
	return s.homed
}

// Debug prints the stage's state
func (s *Stage) Debug() {
	d := s.ts() + " angle=" + strconv.Itoa(int(s.angle)) + " position=" + strconv.Itoa(int(s.position))
	if !s.homed {
		d += " (not homed)"
	}
	println(d)
}

// Verbose enables logging of every command
func (s *Stage) Verbose() {
	s.verbose = true
	println(s.ts(), "Set Verbose Mode")
}

func (s *Stage) ReadByte() (byte, error) {
	return s.input.ReadByte()
}

// ts returns the uptime timestamp for logging
func (s *Stage) ts() string {
	return "[" + time.Since(s.startTime).Round(time.Millisecond).String() + "]"
}
