package endolight

import "strings"

const (
	// NumLaserDiodes is the number of illumination output channels
	NumLaserDiodes = 15
	// NumPhotoDiodes is the number of monitoring input channels
	NumPhotoDiodes = 3

	// BaudRate is the fixed bit rate of the device serial link
	BaudRate = 115200
)

// Field is the parity of one half of an interlaced frame
type Field int

const (
	FieldOdd Field = iota
	FieldEven
)

func (f Field) String() string {
	if f == FieldEven {
		return "Even"
	}
	return "Odd"
}

// ImageChannel selects which measured intensity drives auto-exposure
type ImageChannel int

const (
	ChannelRed ImageChannel = iota
	ChannelGreen
	ChannelBlue
	ChannelMono
)

func (c ImageChannel) String() string {
	switch c {
	case ChannelRed:
		return "Red"
	case ChannelGreen:
		return "Green"
	case ChannelBlue:
		return "Blue"
	case ChannelMono:
		return "Mono"
	default:
		return "Unknown"
	}
}

// ChannelMeans holds the mean sample value of each raw image channel for one field.
// Values are ordered B, G, R as delivered by the image service.
type ChannelMeans [3]float32

// Intensity returns the measured intensity for the auto-exposure source channel. Mono is the
// average of the three raw channels.
func (m ChannelMeans) Intensity(c ImageChannel) float32 {
	switch c {
	case ChannelBlue:
		return m[0]
	case ChannelGreen:
		return m[1]
	case ChannelRed:
		return m[2]
	default:
		return m.Average()
	}
}

// Average returns the mean across the raw channels
func (m ChannelMeans) Average() float32 {
	return (m[0] + m[1] + m[2]) / 3
}

// Mode is the illumination mode of the light source
type Mode int

const (
	ModeOff Mode = iota
	ModeWhiteLight
	ModePolarized
	ModeSpeckleContrast
	ModeMultispectral
	ModeStructured
	ModeWarmup
	ModeSync
)

// Modes lists every Mode in menu order
var Modes = []Mode{
	ModeOff,
	ModeWhiteLight,
	ModePolarized,
	ModeSpeckleContrast,
	ModeMultispectral,
	ModeStructured,
	ModeWarmup,
	ModeSync,
}

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "OFF"
	case ModeWhiteLight:
		return "WLE"
	case ModePolarized:
		return "PSE"
	case ModeSpeckleContrast:
		return "LSCI"
	case ModeMultispectral:
		return "MULTI"
	case ModeStructured:
		return "SSFDI"
	case ModeWarmup:
		return "WARMUP"
	case ModeSync:
		return "SYNC"
	default:
		return "UNKNOWN"
	}
}

// AllowedBeforeSync reports whether the mode can be entered before the pipeline offset is known
func (m Mode) AllowedBeforeSync() bool {
	return m == ModeOff || m == ModeWarmup || m == ModeSync
}

// ParseMode parses a mode name like "WLE" or its menu index like "1"
func ParseMode(s string) (Mode, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) == 1 && s[0] >= '0' && int(s[0]-'0') < len(Modes) {
		return Modes[s[0]-'0'], true
	}
	for _, m := range Modes {
		if m.String() == s {
			return m, true
		}
	}
	return ModeOff, false
}
