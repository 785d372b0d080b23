package controller

import (
	"errors"
	"fmt"

	"github.com/calvinmclean/endolight"
)

// Step is one field of an illumination program: the relative weight of each laser channel and
// the image channel whose intensity drives auto-exposure for the field it lights
type Step struct {
	Weights [endolight.NumLaserDiodes]float32
	Source  endolight.ImageChannel
}

// Program is a repeating sequence of Steps. The step index is always taken modulo its length.
type Program []Step

// Len returns the number of steps
func (p Program) Len() int {
	return len(p)
}

// At returns the step for a step counter value
func (p Program) At(count uint64) Step {
	return p[count%uint64(len(p))]
}

func weights(pairs ...float32) [endolight.NumLaserDiodes]float32 {
	var w [endolight.NumLaserDiodes]float32
	for i := 0; i+1 < len(pairs); i += 2 {
		w[int(pairs[i])] = pairs[i+1]
	}
	return w
}

func uniform(v float32) [endolight.NumLaserDiodes]float32 {
	var w [endolight.NumLaserDiodes]float32
	for i := range w {
		w[i] = v
	}
	return w
}

var (
	whiteLight = [endolight.NumLaserDiodes]float32{1, 0.85, 0.85, 1, 0.85, 0.85, 1, 0.85, 0.85}

	offProgram = Program{
		{Source: endolight.ChannelMono},
	}

	whiteLightProgram = Program{
		{Weights: whiteLight, Source: endolight.ChannelMono},
	}

	polarizedProgram = Program{
		{Weights: weights(0, 0.85, 1, 0.85, 2, 0.85), Source: endolight.ChannelMono},
		{Weights: weights(3, 0.85, 4, 0.85, 5, 0.85), Source: endolight.ChannelMono},
		{Weights: weights(6, 0.85, 7, 0.85, 8, 0.85), Source: endolight.ChannelMono},
	}

	speckleContrastProgram = Program{
		{Weights: whiteLight, Source: endolight.ChannelMono},
		{Weights: weights(CoherentChannel, 1), Source: endolight.ChannelRed},
	}

	multispectralProgram = Program{
		{Weights: weights(9, 1), Source: endolight.ChannelBlue},
		{Weights: weights(1, 0.7, 4, 1), Source: endolight.ChannelGreen},
		{Weights: weights(0, 0.7, 3, 1), Source: endolight.ChannelRed},
		{Weights: weights(2, 0.7, 5, 1), Source: endolight.ChannelBlue},
		{Weights: weights(11, 1), Source: endolight.ChannelGreen},
		{Weights: weights(13, 1), Source: endolight.ChannelRed},
		{Weights: weights(10, 1), Source: endolight.ChannelBlue},
		{Weights: weights(12, 1), Source: endolight.ChannelGreen},
	}

	structuredProgram = Program{
		{Weights: weights(6, 1), Source: endolight.ChannelRed},
		{Weights: weights(CoherentChannel, 1), Source: endolight.ChannelRed},
	}

	warmupProgram = Program{
		{Weights: uniform(1), Source: endolight.ChannelMono},
		{Weights: uniform(1), Source: endolight.ChannelMono},
	}

	programs = map[endolight.Mode]Program{
		endolight.ModeOff:             offProgram,
		endolight.ModeWhiteLight:      whiteLightProgram,
		endolight.ModePolarized:       polarizedProgram,
		endolight.ModeSpeckleContrast: speckleContrastProgram,
		endolight.ModeMultispectral:   multispectralProgram,
		endolight.ModeStructured:      structuredProgram,
		endolight.ModeWarmup:          warmupProgram,
		// SYNC fires its own calibration pulse and is otherwise dark
		endolight.ModeSync: offProgram,
	}
)

var ErrUnknownMode = errors.New("no program for mode")

// ProgramFor returns the illumination program for a mode
func ProgramFor(mode endolight.Mode) (Program, error) {
	p, ok := programs[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMode, mode)
	}
	return p, nil
}

// ValidatePrograms checks that every mode has a non-empty program with weights in [0,1]
func ValidatePrograms() error {
	for _, mode := range endolight.Modes {
		p, err := ProgramFor(mode)
		if err != nil {
			return err
		}
		if p.Len() == 0 {
			return fmt.Errorf("empty program for mode %v", mode)
		}
		for i, step := range p {
			for ch, w := range step.Weights {
				if w < 0 || w > 1 {
					return fmt.Errorf("invalid weight %v for mode %v step %d channel %d", w, mode, i, ch)
				}
			}
		}
	}
	return nil
}
