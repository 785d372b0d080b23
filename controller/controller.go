// Package controller runs the host side of the light source: it turns per-field image
// intensities into pulse commands for the device, discovers the pipeline delay between command
// and measurement, and drives auto-exposure for every channel of the active program.
package controller

import (
	"fmt"
	"log"
	"math"
	"strconv"
	"sync/atomic"

	"github.com/calvinmclean/endolight"
	"github.com/calvinmclean/endolight/eventlog"
	"github.com/calvinmclean/endolight/rotation"
)

// ErrorResyncThreshold is the number of consecutive ERROR readings after which the device is
// reset and synchronization starts over
const ErrorResyncThreshold = 8

// Link carries pulse commands to the device and readings back. transport.Link implements it.
// All methods must be non-blocking.
type Link interface {
	Send(endolight.PulseCommand) error
	TryReceive() (endolight.MonitorReading, bool)
	Reset() error
}

// LightController is the illumination program engine. SetMode, IncrementProgram and Close must
// be called from a single goroutine, normally the frame goroutine. The accessors are safe to call
// from any goroutine.
type LightController struct {
	link   Link
	mount  rotation.Mount
	logger eventlog.Logger

	program           Program
	consecutiveErrors int

	// power holds emitted powers until their measurement arrives, pending holds updated powers
	// until their program step comes around again and rotation holds the mount's last power
	power    fifo
	pending  fifo
	rotation fifo

	mode       atomic.Int32
	programLen atomic.Int32
	step       atomic.Uint64
	offset     atomic.Uint64
	synced     atomic.Bool
	frameID    atomic.Int32
	errorCount atomic.Uint64
}

// New creates a LightController. It resets the device, selects ModeOff and moves the rotation
// mount to its initial power. A nil mount or logger is replaced with a no-op.
func New(link Link, mount rotation.Mount, logger eventlog.Logger) (*LightController, error) {
	err := ValidatePrograms()
	if err != nil {
		return nil, fmt.Errorf("invalid illumination programs: %w", err)
	}

	if mount == nil {
		mount = rotation.NoopMount{}
	}
	if logger == nil {
		logger = eventlog.Nop{}
	}

	c := &LightController{
		link:   link,
		mount:  mount,
		logger: logger,
	}

	err = link.Send(endolight.ResetCommand())
	if err != nil {
		return nil, fmt.Errorf("error resetting device: %w", err)
	}

	c.SetMode(endolight.ModeOff)

	err = mount.SetPosition(rotation.PowerToAngle(PWRMountInitial))
	if err != nil {
		return nil, fmt.Errorf("error setting initial rotation mount position: %w", err)
	}

	return c, nil
}

// SetMode switches to a new illumination program. Imaging modes are rejected until the pipeline
// offset is known; the return value reports whether the mode was accepted.
func (c *LightController) SetMode(mode endolight.Mode) bool {
	if !c.Synced() && !mode.AllowedBeforeSync() {
		return false
	}

	program, err := ProgramFor(mode)
	if err != nil {
		log.Printf("error setting mode: %v", err)
		return false
	}

	// the coherent channel is pulse-width modulated in this mode so the mount passes full power
	if mode == endolight.ModeStructured {
		err = c.mount.SetPosition(rotation.PowerToAngle(PWRMax))
		if err != nil {
			log.Printf("error setting rotation mount position: %v", err)
		}
	}

	c.mode.Store(int32(mode))
	c.logger.Log(eventlog.TagMode, mode.String())

	c.program = program
	c.programLen.Store(int32(len(program)))

	if mode == endolight.ModeSync {
		c.offset.Store(0)
		c.synced.Store(false)
	} else {
		c.flush()
	}

	c.step.Store(0)

	return true
}

// IncrementProgram advances the program by one frame given the channel means measured in the
// frame's odd and even fields, and sends the resulting pulse command. It must be called exactly
// once per grabbed frame, in order. State always advances; the returned error only reports that
// the command could not be queued.
func (c *LightController) IncrementProgram(odd, even endolight.ChannelMeans) error {
	var cmd endolight.PulseCommand

	mode := c.Mode()
	switch {
	case mode == endolight.ModeSync && !c.Synced():
		c.incrementSync(&cmd, odd)
	case mode == endolight.ModeWarmup:
		c.incrementWarmup(&cmd)
	default:
		c.incrementFields(&cmd, odd, even)
	}

	if mode == endolight.ModeSpeckleContrast {
		c.incrementSpeckle(&cmd, even)
	}

	return c.send(cmd)
}

// incrementSync fires one full-power pulse and then grows the pipeline offset one frame at a
// time until that pulse shows up in the odd field
func (c *LightController) incrementSync(cmd *endolight.PulseCommand, odd endolight.ChannelMeans) {
	offset := c.offset.Load()
	switch {
	case offset == 0:
		for i := range cmd.PulseWidths {
			cmd.PulseWidths[i] = PWMax
		}
		c.offset.Add(2)
	case odd.Average() > SyncThreshold:
		c.synced.Store(true)
		c.logger.Log(eventlog.TagSynced, "")
		c.logger.Log(eventlog.TagBuffer, strconv.FormatUint(offset, 10))
	default:
		c.offset.Add(2)
	}

	c.step.Add(2)
}

func (c *LightController) incrementWarmup(cmd *endolight.PulseCommand) {
	for f, step := range []Step{c.program.At(0), c.program.At(1)} {
		for ch, w := range step.Weights {
			cmd.SetWidth(endolight.Field(f), ch, pulseWidth(w))
		}
	}
	c.step.Add(2)
}

// incrementFields runs auto-exposure for both fields. The measurement of the step emitted
// offset steps ago is turned into a new power for that program step, which is emitted the next
// time the step comes around after one full program period beyond the offset.
func (c *LightController) incrementFields(cmd *endolight.PulseCommand, odd, even endolight.ChannelMeans) {
	step := c.step.Load()
	offset := c.offset.Load()
	n := uint64(c.program.Len())
	convergeAt := n * (ceilDiv(offset, n) + 1)

	for f, means := range []endolight.ChannelMeans{odd, even} {
		power := PWRStart
		if step >= convergeAt {
			power = c.pending.popOr(PWRStart)
		}
		c.power.push(power)

		if step >= offset {
			y := means.Intensity(c.program.At(step - offset).Source)
			c.logger.Log(eventlog.TagValues, formatFloat(y))

			prev := c.power.popOr(PWRStart)
			c.pending.push(ClampPower(UpdatePower(y, prev)))
		}

		for ch, w := range c.program.At(step).Weights {
			if w > 0 {
				cmd.SetWidth(endolight.Field(f), ch, pulseWidth(power*w))
			}
		}

		step++
	}

	c.step.Store(step)
}

// incrementSpeckle pins the coherent channel's pulse width and runs a separate auto-exposure
// loop on the rotation mount from the even field's red channel
func (c *LightController) incrementSpeckle(cmd *endolight.PulseCommand, even endolight.ChannelMeans) {
	cmd.SetWidth(endolight.FieldEven, CoherentChannel, PWLSCI)

	power := PWRStart
	if c.step.Load() >= c.offset.Load()+RotationMargin {
		prev := c.rotation.popOr(PWRStart)
		power = ClampPower(UpdatePower(even.Intensity(endolight.ChannelRed), prev))
	}
	// the mount has no pipeline delay so only the last emitted power is kept
	c.rotation.clear()
	c.rotation.push(power)

	err := c.mount.SetPosition(rotation.PowerToAngle(power))
	if err != nil {
		log.Printf("error setting rotation mount position: %v", err)
	}
	c.logger.Log(eventlog.TagRotation, formatFloat(power))
}

// send tags cmd with the next frame id, queues it and checks for one reading
func (c *LightController) send(cmd endolight.PulseCommand) error {
	fid := c.frameID.Load()
	cmd.FrameID = fid

	sendErr := c.link.Send(cmd)
	c.logger.Log(eventlog.TagPulseWidths, cmd.String())

	c.receive()

	if fid == math.MaxInt32 {
		log.Printf("frame id reached %d, wrapping to 0", fid)
		fid = -1
	}
	c.frameID.Store(fid + 1)

	if sendErr != nil {
		return fmt.Errorf("error sending pulse command %d: %w", cmd.FrameID, sendErr)
	}
	return nil
}

func (c *LightController) receive() {
	r, ok := c.link.TryReceive()
	if !ok {
		return
	}

	if !r.IsError() {
		c.consecutiveErrors = 0
		c.logger.Log(eventlog.TagPhotoDiodes, r.String())
		return
	}

	c.logger.Log(eventlog.TagError, "")
	c.errorCount.Add(1)
	c.consecutiveErrors++
	if c.consecutiveErrors >= ErrorResyncThreshold {
		c.resync()
	}
}

// resync resets the device after repeated underruns. Imaging modes fall back to SYNC since the
// pipeline offset can no longer be trusted.
func (c *LightController) resync() {
	c.consecutiveErrors = 0

	err := c.link.Reset()
	if err != nil {
		log.Printf("error resetting device: %v", err)
	}
	c.logger.Log(eventlog.TagReset, strconv.Itoa(ErrorResyncThreshold))

	switch c.Mode() {
	case endolight.ModeOff, endolight.ModeWarmup:
		c.offset.Store(0)
		c.synced.Store(false)
	default:
		c.SetMode(endolight.ModeSync)
	}
	c.flush()
}

func (c *LightController) flush() {
	c.power.clear()
	c.pending.clear()
	c.rotation.clear()
}

// Close switches the light off and sends one all-zero command. It does not close the link.
func (c *LightController) Close() error {
	c.SetMode(endolight.ModeOff)

	cmd := endolight.PulseCommand{FrameID: c.frameID.Load()}
	err := c.link.Send(cmd)
	c.logger.Log(eventlog.TagPulseWidths, cmd.String())
	if err != nil {
		return fmt.Errorf("error sending off command: %w", err)
	}
	c.frameID.Add(1)
	return nil
}

// Mode returns the current illumination mode
func (c *LightController) Mode() endolight.Mode {
	return endolight.Mode(c.mode.Load())
}

// ProgramLength returns the number of steps in the active program
func (c *LightController) ProgramLength() int {
	return int(c.programLen.Load())
}

// ProgramCount returns the program step counter
func (c *LightController) ProgramCount() uint64 {
	return c.step.Load()
}

// Synced reports whether the pipeline offset has been discovered
func (c *LightController) Synced() bool {
	return c.synced.Load()
}

// PipelineOffset returns the number of field steps commands lead measurements by
func (c *LightController) PipelineOffset() uint64 {
	return c.offset.Load()
}

// FrameID returns the id the next command will carry
func (c *LightController) FrameID() int32 {
	return c.frameID.Load()
}

// Errors returns the number of ERROR readings received
func (c *LightController) Errors() uint64 {
	return c.errorCount.Load()
}

func pulseWidth(p float32) uint16 {
	return uint16(PWMax * p)
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', 6, 32)
}
