package sim

import (
	"context"
	"time"

	"github.com/calvinmclean/endolight"
	"github.com/calvinmclean/endolight/acquisition"
	"github.com/calvinmclean/endolight/imaging"
)

const (
	// fullPulse is the pulse width of a channel at full power
	fullPulse = 14 * time.Millisecond

	DefaultWidth         = 64
	DefaultHeight        = 48
	DefaultGain          = 0.25
	DefaultFrameInterval = time.Second / 30
)

// CameraConfig configures a simulated camera
type CameraConfig struct {
	Width  int
	Height int
	// Gain is the exposure of one channel lit for a full pulse. An exposure of 1 reads as half
	// scale.
	Gain float64
	// FrameInterval paces Next. Zero returns frames as fast as they are requested.
	FrameInterval time.Duration
}

// Camera watches a simulated Device. Each call to Next runs the device through one frame and
// returns an interlaced image whose field brightness follows the light fired in that field.
type Camera struct {
	device *Device
	cfg    CameraConfig
	ticker *time.Ticker
}

var _ acquisition.FrameSource = &Camera{}

// NewCamera creates a Camera. Zero size and gain use the defaults.
func NewCamera(device *Device, cfg CameraConfig) *Camera {
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.Gain <= 0 {
		cfg.Gain = DefaultGain
	}
	return &Camera{device: device, cfg: cfg}
}

// Next implements acquisition.FrameSource.
func (c *Camera) Next(ctx context.Context) (imaging.Frame, error) {
	err := c.wait(ctx)
	if err != nil {
		return imaging.Frame{}, err
	}

	err = c.device.Poll()
	if err != nil {
		return imaging.Frame{}, err
	}

	f := imaging.NewFrame(c.cfg.Width, c.cfg.Height)
	for _, field := range []endolight.Field{endolight.FieldOdd, endolight.FieldEven} {
		v := c.intensity(c.device.Field(field))
		f.Fill(field, v, v, v)
	}

	err = c.device.Poll()
	if err != nil {
		return imaging.Frame{}, err
	}

	return f, nil
}

func (c *Camera) wait(ctx context.Context) error {
	if c.cfg.FrameInterval <= 0 {
		return ctx.Err()
	}
	if c.ticker == nil {
		c.ticker = time.NewTicker(c.cfg.FrameInterval)
	}
	select {
	case <-ctx.Done():
		c.ticker.Stop()
		return ctx.Err()
	case <-c.ticker.C:
		return nil
	}
}

// intensity maps the light in a field onto a sample value that saturates toward 256
func (c *Camera) intensity(lit [endolight.NumLaserDiodes]time.Duration) byte {
	var exposure float64
	for _, d := range lit {
		exposure += c.cfg.Gain * float64(d) / float64(fullPulse)
	}
	y := 256 * exposure / (exposure + 1)
	return byte(min(y, 255))
}

// Simulator bundles a simulated device, the serial line to it and a camera
type Simulator struct {
	Port   *Port
	Device *Device
	Camera *Camera
}

// New creates a Simulator with a device of the given queue depth
func New(depth int, cfg CameraConfig) (*Simulator, error) {
	port := NewPort()
	device, err := NewDevice(port.Device(), depth)
	if err != nil {
		return nil, err
	}
	return &Simulator{
		Port:   port,
		Device: device,
		Camera: NewCamera(device, cfg),
	}, nil
}
