// Package imaging is the reference CPU image service: it splits interlaced frames into fields and
// measures the mean of each color channel inside an inclusion mask.
package imaging

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/calvinmclean/endolight"
)

// Bands is the number of interleaved 8-bit samples per pixel, ordered B, G, R
const Bands = 3

var (
	ErrFrameSize = errors.New("frame buffer does not match dimensions")
	ErrMaskSize  = errors.New("mask does not match frame dimensions")
)

// Frame is an interleaved 8-bit BGR image
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// NewFrame allocates a black frame
func NewFrame(width, height int) Frame {
	return Frame{Width: width, Height: height, Pix: make([]byte, width*height*Bands)}
}

// Validate checks that Pix holds exactly Width*Height pixels
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 || len(f.Pix) != f.Width*f.Height*Bands {
		return fmt.Errorf("%w: %dx%d with %d bytes", ErrFrameSize, f.Width, f.Height, len(f.Pix))
	}
	return nil
}

// Row returns the samples of row y
func (f Frame) Row(y int) []byte {
	stride := f.Width * Bands
	return f.Pix[y*stride : (y+1)*stride]
}

// Fill sets every pixel of rows with the given parity to b, g, r
func (f Frame) Fill(field endolight.Field, b, g, r byte) {
	for y := int(field); y < f.Height; y += 2 {
		row := f.Row(y)
		for x := 0; x < len(row); x += Bands {
			row[x], row[x+1], row[x+2] = b, g, r
		}
	}
}

// Deinterlace splits an interlaced frame into its odd and even fields. Each field keeps the full
// frame size by doubling its lines so masks defined in frame coordinates apply to both. The odd
// field is made of the first line and every second line after it.
func Deinterlace(f Frame) (odd, even Frame, err error) {
	err = f.Validate()
	if err != nil {
		return Frame{}, Frame{}, err
	}

	odd = NewFrame(f.Width, f.Height)
	even = NewFrame(f.Width, f.Height)

	for y := range f.Height {
		src := y &^ 1
		copy(odd.Row(y), f.Row(src))

		src = min(y|1, f.Height-1)
		copy(even.Row(y), f.Row(src))
	}

	return odd, even, nil
}

// Circle is a circular region in frame coordinates
type Circle struct {
	X, Y, Radius int
}

// String formats the circle as "x,y,radius"
func (c Circle) String() string {
	return strconv.Itoa(c.X) + "," + strconv.Itoa(c.Y) + "," + strconv.Itoa(c.Radius)
}

// ParseCircle parses a circle in the format "x,y,radius"
func ParseCircle(s string) (Circle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Circle{}, fmt.Errorf("invalid circle %q: expected x,y,radius", s)
	}

	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Circle{}, fmt.Errorf("invalid circle %q: %w", s, err)
		}
		vals[i] = v
	}
	if vals[2] <= 0 {
		return Circle{}, fmt.Errorf("invalid circle %q: radius must be positive", s)
	}

	return Circle{X: vals[0], Y: vals[1], Radius: vals[2]}, nil
}

// Mask weights each pixel's contribution to the channel means. Included pixels have weight 1.
type Mask struct {
	Width   int
	Height  int
	Weights []float64
}

// FullMask includes every pixel
func FullMask(width, height int) Mask {
	m := Mask{Width: width, Height: height, Weights: make([]float64, width*height)}
	for i := range m.Weights {
		m.Weights[i] = 1
	}
	return m
}

// CircularMask includes only the pixels inside c. It excludes the saturated ring seen when a
// straight cap is fitted to the scope tip.
func CircularMask(width, height int, c Circle) Mask {
	m := Mask{Width: width, Height: height, Weights: make([]float64, width*height)}
	r2 := c.Radius * c.Radius
	for y := range height {
		dy := y - c.Y
		for x := range width {
			dx := x - c.X
			if dx*dx+dy*dy <= r2 {
				m.Weights[y*width+x] = 1
			}
		}
	}
	return m
}

// Included returns the number of pixels with a non-zero weight
func (m Mask) Included() int {
	n := 0
	for _, w := range m.Weights {
		if w != 0 {
			n++
		}
	}
	return n
}

// MeanCalculator computes masked channel means, reusing its sample buffers between frames
type MeanCalculator struct {
	mask    Mask
	samples [Bands][]float64
}

// NewMeanCalculator creates a MeanCalculator for frames matching mask
func NewMeanCalculator(mask Mask) *MeanCalculator {
	mc := &MeanCalculator{mask: mask}
	for b := range mc.samples {
		mc.samples[b] = make([]float64, len(mask.Weights))
	}
	return mc
}

// Mask returns the mask in use
func (mc *MeanCalculator) Mask() Mask {
	return mc.mask
}

// ChannelMeans returns the weighted mean of each channel of field. Means are zero when the mask
// excludes every pixel.
func (mc *MeanCalculator) ChannelMeans(field Frame) (endolight.ChannelMeans, error) {
	err := field.Validate()
	if err != nil {
		return endolight.ChannelMeans{}, err
	}
	if field.Width != mc.mask.Width || field.Height != mc.mask.Height {
		return endolight.ChannelMeans{}, fmt.Errorf("%w: frame %dx%d, mask %dx%d", ErrMaskSize, field.Width, field.Height, mc.mask.Width, mc.mask.Height)
	}

	for i := range mc.mask.Weights {
		px := field.Pix[i*Bands : i*Bands+Bands]
		for b := range Bands {
			mc.samples[b][i] = float64(px[b])
		}
	}

	var means endolight.ChannelMeans
	for b := range Bands {
		m := stat.Mean(mc.samples[b], mc.mask.Weights)
		if math.IsNaN(m) {
			m = 0
		}
		means[b] = float32(m)
	}
	return means, nil
}

// MaskedChannelMeans returns the weighted mean of each channel of field
func MaskedChannelMeans(field Frame, mask Mask) (endolight.ChannelMeans, error) {
	return NewMeanCalculator(mask).ChannelMeans(field)
}
