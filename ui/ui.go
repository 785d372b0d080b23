// Package ui is a desktop panel for the light source: mode buttons, the sync status and the
// operator menu output. Buttons write menu commands, so the panel drives the same path as a
// terminal.
package ui

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"github.com/calvinmclean/endolight"
	"github.com/calvinmclean/endolight/controller"
)

const maxLogLines = 200

// LightSourceUI shows the light source panel. It is an io.Writer for the operator menu output.
type LightSourceUI struct {
	app    fyne.App
	status func() controller.Status

	logMtx   sync.Mutex
	logLines []string
	partial  []byte
	logLabel *widget.Label
}

// NewLightSourceUI creates the panel. status is polled to refresh the status line.
func NewLightSourceUI(app fyne.App, status func() controller.Status) *LightSourceUI {
	return &LightSourceUI{
		app:      app,
		status:   status,
		logLabel: widget.NewLabel(""),
	}
}

// Write appends complete lines to the log view
func (ui *LightSourceUI) Write(p []byte) (int, error) {
	ui.logMtx.Lock()
	ui.partial = append(ui.partial, p...)
	for {
		i := bytes.IndexByte(ui.partial, '\n')
		if i < 0 {
			break
		}
		ui.logLines = append(ui.logLines, string(ui.partial[:i]))
		ui.partial = ui.partial[i+1:]
	}
	if len(ui.logLines) > maxLogLines {
		ui.logLines = ui.logLines[len(ui.logLines)-maxLogLines:]
	}
	text := strings.Join(ui.logLines, "\n")
	ui.logMtx.Unlock()

	fyne.Do(func() {
		ui.logLabel.SetText(text)
	})

	return len(p), nil
}

// Show opens the panel window. Button presses are written to w as menu input. Closing the
// window sends the exit command.
func (ui *LightSourceUI) Show(ctx context.Context, w io.Writer) {
	window := ui.app.NewWindow("Endolight")

	sessionTimer := newTimer(false)
	modeTimer := newTimer(true)
	commands := &controllerWrapper{writer: w, modeTimer: modeTimer}
	sessionTimer.Go(ctx)
	modeTimer.Go(ctx)

	statusText := canvas.NewText("", colorOff)
	statusText.TextStyle = fyne.TextStyle{Bold: true}

	var modeButtons []*widget.Button
	for _, mode := range endolight.Modes {
		modeButtons = append(modeButtons, widget.NewButton(mode.String(), func() {
			commands.SetMode(mode)
		}))
	}

	refresh := func() {
		s := ui.status()
		statusText.Text = s.String()
		statusText.Color = statusColor(s)
		statusText.Refresh()
		for i, mode := range endolight.Modes {
			if modeEnabled(mode, s) {
				modeButtons[i].Enable()
			} else {
				modeButtons[i].Disable()
			}
		}
	}
	refresh()

	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				fyne.Do(func() {
					window.Close()
				})
				return
			case <-ticker.C:
				fyne.Do(refresh)
			}
		}
	}()

	buttons := container.NewGridWithColumns(4)
	for _, b := range modeButtons {
		buttons.Add(b)
	}

	logScroll := container.NewVScroll(ui.logLabel)
	logScroll.SetMinSize(fyne.NewSize(400, 150))

	content := container.NewVBox(
		container.NewHBox(
			container.NewPadded(sessionTimer.text),
			layout.NewSpacer(),
			container.NewPadded(modeTimer.text),
		),
		statusText,
		buttons,
		container.NewHBox(
			widget.NewButton("Status", commands.ShowStatus),
			layout.NewSpacer(),
			widget.NewButton("Off and Exit", commands.Exit),
		),
		widget.NewAccordion(widget.NewAccordionItem("Log", logScroll)),
	)

	window.SetCloseIntercept(func() {
		commands.Exit()
		window.Close()
	})
	window.SetContent(content)
	window.Resize(fyne.NewSize(480, 300))
	window.Show()
}
