package ui

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"

	"github.com/calvinmclean/endolight"
	"github.com/calvinmclean/endolight/controller"
)

func TestValidConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      controller.Config
		expected bool
	}{
		{"Simulate", controller.Config{SessionName: "s", BaudRate: "115200", Simulate: true}, true},
		{"Device", controller.Config{SessionName: "s", BaudRate: "115200", SerialPort: "/dev/ttyACM0", FrameSource: "-"}, true},
		{"NoFrameSource", controller.Config{SessionName: "s", BaudRate: "115200", SerialPort: "/dev/ttyACM0"}, false},
		{"NoSession", controller.Config{BaudRate: "115200", Simulate: true}, false},
		{"NoBaudRate", controller.Config{SessionName: "s", Simulate: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, validConfig(&tt.cfg))
		})
	}
}

func TestStatusColor(t *testing.T) {
	tests := []struct {
		name     string
		status   controller.Status
		expected any
	}{
		{"Off", controller.Status{}, colorOff},
		{"Searching", controller.Status{Mode: endolight.ModeSync, Requested: endolight.ModeSync}, colorSearching},
		{"WaitingForSync", controller.Status{Requested: endolight.ModeWhiteLight}, colorSearching},
		{"Locked", controller.Status{Mode: endolight.ModeWhiteLight, Requested: endolight.ModeWhiteLight, Synced: true}, colorLocked},
		{"Fault", controller.Status{Mode: endolight.ModeWhiteLight, Synced: true, Errors: 1}, colorFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, statusColor(tt.status))
		})
	}
}

func TestModeEnabled(t *testing.T) {
	for _, mode := range endolight.Modes {
		t.Run(mode.String(), func(t *testing.T) {
			assert.Equal(t, mode.AllowedBeforeSync(), modeEnabled(mode, controller.Status{}))
			assert.True(t, modeEnabled(mode, controller.Status{Synced: true}))
		})
	}
}

func TestFormatElapsed(t *testing.T) {
	d := 2*time.Minute + 5*time.Second + 42*time.Millisecond
	assert.Equal(t, "02:05", formatElapsed(d, false))
	assert.Equal(t, "02:05.042", formatElapsed(d, true))
}

func TestControllerWrapper(t *testing.T) {
	var buf bytes.Buffer
	c := &controllerWrapper{writer: &buf, modeTimer: newTimer(true)}

	c.SetMode(endolight.ModeMultispectral)
	c.SetMode(endolight.Mode(42))
	c.ShowStatus()
	c.Exit()

	assert.Equal(t, fmt.Sprintf("4\ns\n%s\n", controller.ExitKey), buf.String())
}

func TestLightSourceUIWrite(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	ui := NewLightSourceUI(a, func() controller.Status { return controller.Status{} })

	n, err := ui.Write([]byte("first\nsec"))
	assert.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, []string{"first"}, ui.logLines)

	_, _ = ui.Write([]byte("ond\n"))
	assert.Equal(t, []string{"first", "second"}, ui.logLines)

	for i := range maxLogLines {
		fmt.Fprintf(ui, "line %d\n", i)
	}
	assert.Len(t, ui.logLines, maxLogLines)
	assert.Equal(t, "line 0", ui.logLines[0])
}
