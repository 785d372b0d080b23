package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/calvinmclean/endolight"
	"github.com/calvinmclean/endolight/acquisition"
	"github.com/calvinmclean/endolight/eventlog"
	"github.com/calvinmclean/endolight/imaging"
)

// Runner drives a LightController from a stream of frames. It applies mode changes requested
// from other goroutines on the frame goroutine, splits each frame into fields and feeds their
// masked channel means to the controller.
type Runner struct {
	ctrl   *LightController
	logger eventlog.Logger
	circle *imaging.Circle

	// owned by the frame goroutine
	means *imaging.MeanCalculator

	requested atomic.Int32
	grabbed   atomic.Uint64

	// set by NewFromConfig
	source  acquisition.FrameSource
	link    linkRunner
	closers []io.Closer
}

type linkRunner interface {
	Run(ctx context.Context) error
}

// NewRunner creates a Runner. If circle is not nil only pixels inside it contribute to the
// channel means.
func NewRunner(ctrl *LightController, circle *imaging.Circle, logger eventlog.Logger) *Runner {
	if logger == nil {
		logger = eventlog.Nop{}
	}

	r := &Runner{
		ctrl:   ctrl,
		logger: logger,
		circle: circle,
	}
	r.requested.Store(int32(ctrl.Mode()))

	if circle != nil {
		logger.Log(eventlog.TagMask, circle.String())
	}

	return r
}

// Controller returns the LightController driven by the Runner
func (r *Runner) Controller() *LightController {
	return r.ctrl
}

// RequestMode queues a mode change for the next frame. Imaging modes requested before sync is
// locked are retried every frame until they are accepted.
func (r *Runner) RequestMode(mode endolight.Mode) {
	r.requested.Store(int32(mode))
}

// RequestedMode returns the most recently requested mode
func (r *Runner) RequestedMode() endolight.Mode {
	return endolight.Mode(r.requested.Load())
}

// ProcessFrame runs the pipeline for one grabbed frame. A command is always sent, even if the
// frame could not be measured, so the device keeps its place.
func (r *Runner) ProcessFrame(f imaging.Frame) error {
	n := r.grabbed.Add(1) - 1
	r.logger.Log(eventlog.TagGrab, strconv.FormatUint(n, 10))

	if want := r.RequestedMode(); want != r.ctrl.Mode() {
		r.ctrl.SetMode(want)
	}

	odd, even, measureErr := r.measure(f)
	if measureErr != nil {
		measureErr = fmt.Errorf("error measuring frame %d: %w", n, measureErr)
	}

	return errors.Join(measureErr, r.ctrl.IncrementProgram(odd, even))
}

func (r *Runner) measure(f imaging.Frame) (odd, even endolight.ChannelMeans, err error) {
	oddField, evenField, err := imaging.Deinterlace(f)
	if err != nil {
		return odd, even, err
	}

	if r.means == nil {
		r.means = imaging.NewMeanCalculator(r.mask(f.Width, f.Height))
	}
	if m := r.means.Mask(); m.Width != f.Width || m.Height != f.Height {
		log.Printf("frame size changed to %dx%d, rebuilding mask", f.Width, f.Height)
		r.means = imaging.NewMeanCalculator(r.mask(f.Width, f.Height))
	}

	odd, err = r.means.ChannelMeans(oddField)
	if err != nil {
		return odd, even, err
	}
	even, err = r.means.ChannelMeans(evenField)
	return odd, even, err
}

func (r *Runner) mask(width, height int) imaging.Mask {
	if r.circle == nil {
		return imaging.FullMask(width, height)
	}
	return imaging.CircularMask(width, height, *r.circle)
}

// RunFrames processes frames from src until it is exhausted or ctx is cancelled. Per-frame
// errors are logged and do not stop the loop. The controller is closed before returning.
func (r *Runner) RunFrames(ctx context.Context, src acquisition.FrameSource) error {
	defer func() {
		err := r.ctrl.Close()
		if err != nil {
			log.Printf("error closing controller: %v", err)
		}
	}()

	for {
		f, err := src.Next(ctx)
		switch {
		case errors.Is(err, io.EOF), ctx.Err() != nil:
			return nil
		case err != nil:
			return fmt.Errorf("error grabbing frame: %w", err)
		}

		err = r.ProcessFrame(f)
		if err != nil {
			log.Printf("%v", err)
		}
	}
}

// Status is a snapshot of the pipeline for display
type Status struct {
	Mode      endolight.Mode
	Requested endolight.Mode
	Grabbed   uint64
	Synced    bool
	Offset    uint64
	Errors    uint64
}

func (s Status) String() string {
	lock := "SEARCHING"
	if s.Synced {
		lock = "LOCKED"
	}
	str := fmt.Sprintf("Mode: %s | Frames: %d | Sync: %s", s.Mode, s.Grabbed, lock)
	if s.Synced {
		str += fmt.Sprintf(" (offset %d)", s.Offset)
	}
	if s.Requested != s.Mode {
		str += fmt.Sprintf(" | Waiting for %s", s.Requested)
	}
	if s.Errors > 0 {
		str += fmt.Sprintf(" | Errors: %d", s.Errors)
	}
	return str
}

// Status returns the current status. It is safe to call from any goroutine.
func (r *Runner) Status() Status {
	return Status{
		Mode:      r.ctrl.Mode(),
		Requested: r.RequestedMode(),
		Grabbed:   r.grabbed.Load(),
		Synced:    r.ctrl.Synced(),
		Offset:    r.ctrl.PipelineOffset(),
		Errors:    r.ctrl.Errors(),
	}
}

// Run runs the frame loop, the transport and the operator menu until the menu exits, the frame
// source is exhausted or ctx is cancelled. The transport keeps running until the frame loop has
// switched the light off.
func (r *Runner) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	if r.source == nil {
		return errors.New("no frame source configured")
	}

	frameCtx, stopFrames := context.WithCancel(ctx)
	defer stopFrames()
	linkCtx, stopLink := context.WithCancel(context.Background())
	defer stopLink()

	var (
		wg     sync.WaitGroup
		errMtx sync.Mutex
		errs   []error
	)
	addErr := func(err error) {
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		errMtx.Lock()
		errs = append(errs, err)
		errMtx.Unlock()
	}

	if r.link != nil {
		wg.Go(func() {
			err := r.link.Run(linkCtx)
			if err != nil && linkCtx.Err() == nil {
				addErr(fmt.Errorf("transport stopped: %w", err))
				stopFrames()
			}
		})
	}

	wg.Go(func() {
		addErr(r.RunFrames(frameCtx, r.source))
		stopFrames()
		stopLink()
	})

	addErr(r.RunCLI(frameCtx, in, out))
	stopFrames()

	wg.Wait()

	return errors.Join(errs...)
}

// Close releases everything opened by NewFromConfig in reverse order
func (r *Runner) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i].Close())
	}
	r.closers = nil
	return errors.Join(errs...)
}
