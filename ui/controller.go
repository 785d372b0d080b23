package ui

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/calvinmclean/endolight"
	"github.com/calvinmclean/endolight/controller"
)

// controllerWrapper turns button presses into operator menu commands
type controllerWrapper struct {
	writer    io.Writer
	modeTimer *timer
}

func (c *controllerWrapper) SetMode(mode endolight.Mode) {
	i := slices.Index(endolight.Modes, mode)
	if i < 0 {
		return
	}
	c.modeTimer.Set(time.Now())
	fmt.Fprintf(c.writer, "%d\n", i)
}

func (c *controllerWrapper) ShowStatus() {
	fmt.Fprintln(c.writer, "s")
}

func (c *controllerWrapper) Exit() {
	fmt.Fprintln(c.writer, controller.ExitKey)
}
