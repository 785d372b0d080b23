// Package acquisition supplies interlaced frames to the per-frame pipeline
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/calvinmclean/endolight/imaging"
)

// FrameSource delivers grabbed frames in order. Next blocks until a frame is available, ctx is
// cancelled or the source is exhausted, in which case it returns io.EOF.
type FrameSource interface {
	Next(ctx context.Context) (imaging.Frame, error)
}

// RawSource reads back-to-back raw BGR24 frames of a fixed size from a stream, such as a
// capture card's FIFO or a recording
type RawSource struct {
	r      io.Reader
	width  int
	height int
}

var _ FrameSource = &RawSource{}

// NewRawSource creates a RawSource of width x height frames
func NewRawSource(r io.Reader, width, height int) (*RawSource, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	return &RawSource{r: r, width: width, height: height}, nil
}

// Next implements FrameSource. A trailing partial frame is reported as io.ErrUnexpectedEOF.
func (s *RawSource) Next(ctx context.Context) (imaging.Frame, error) {
	err := ctx.Err()
	if err != nil {
		return imaging.Frame{}, err
	}

	f := imaging.NewFrame(s.width, s.height)
	_, err = io.ReadFull(s.r, f.Pix)
	switch {
	case errors.Is(err, io.EOF):
		return imaging.Frame{}, io.EOF
	case err != nil:
		return imaging.Frame{}, fmt.Errorf("error reading frame: %w", err)
	}
	return f, nil
}
