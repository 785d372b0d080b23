package ui

import (
	"image/color"

	"github.com/calvinmclean/endolight"
	"github.com/calvinmclean/endolight/controller"
)

var (
	colorLocked    = color.RGBA{R: 0, G: 128, B: 0, A: 255}
	colorSearching = color.RGBA{R: 204, G: 122, B: 0, A: 255}
	colorFault     = color.RGBA{R: 139, G: 0, B: 0, A: 255}
	colorOff       = color.Gray{Y: 128}
)

// statusColor colors the status line: grey while off, amber until sync locks, green once locked
// and red after the device has underrun
func statusColor(s controller.Status) color.Color {
	switch {
	case s.Errors > 0:
		return colorFault
	case s.Mode == endolight.ModeOff && s.Requested == endolight.ModeOff:
		return colorOff
	case !s.Synced:
		return colorSearching
	default:
		return colorLocked
	}
}

// modeEnabled reports whether a mode button can be pressed. Imaging modes wait for sync.
func modeEnabled(mode endolight.Mode, s controller.Status) bool {
	return s.Synced || mode.AllowedBeforeSync()
}
