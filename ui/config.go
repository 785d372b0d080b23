package ui

import (
	"errors"
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/calvinmclean/endolight/controller"
	"github.com/calvinmclean/endolight/transport"
)

type ConfigWindow struct {
	app      fyne.App
	OnSubmit func()
}

func NewConfigWindow(app fyne.App) *ConfigWindow {
	return &ConfigWindow{
		app: app,
	}
}

// loadConfigFromPreferences fills fields that were not set from the environment
func (cw *ConfigWindow) loadConfigFromPreferences(cfg *controller.Config) {
	prefs := cw.app.Preferences()
	load := func(field *string, key, fallback string) {
		if *field == "" {
			*field = prefs.StringWithFallback(key, fallback)
		}
	}
	load(&cfg.SerialPort, "serialPort", "")
	load(&cfg.BaudRate, "baudRate", controller.DefaultBaudRate)
	load(&cfg.RotationPort, "rotationPort", "")
	load(&cfg.FrameSource, "frameSource", "")
	load(&cfg.FrameSize, "frameSize", controller.DefaultFrameSize)
	load(&cfg.Mask, "mask", "")
	load(&cfg.TWChartAddr, "twchartAddr", "")
	load(&cfg.SessionName, "sessionName", "")
	load(&cfg.ProbesInput, "probesInput", controller.DefaultProbes)
}

func (cw *ConfigWindow) saveConfigToPreferences(cfg *controller.Config) {
	prefs := cw.app.Preferences()
	prefs.SetString("serialPort", cfg.SerialPort)
	prefs.SetString("baudRate", cfg.BaudRate)
	prefs.SetString("rotationPort", cfg.RotationPort)
	prefs.SetString("frameSource", cfg.FrameSource)
	prefs.SetString("frameSize", cfg.FrameSize)
	prefs.SetString("mask", cfg.Mask)
	prefs.SetString("twchartAddr", cfg.TWChartAddr)
	prefs.SetString("sessionName", cfg.SessionName)
	prefs.SetString("probesInput", cfg.ProbesInput)
}

// validConfig reports whether the form can be submitted: a session name is required and either
// a device with a frame source or the simulator. Selecting no serial port simulates the device.
func validConfig(cfg *controller.Config) bool {
	if cfg.SessionName == "" || cfg.BaudRate == "" {
		return false
	}
	if cfg.Simulate || cfg.SerialPort == transport.SerialPortNone {
		return true
	}
	return cfg.SerialPort != "" && cfg.FrameSource != ""
}

func (cw *ConfigWindow) Show(cfg *controller.Config) {
	window := cw.app.NewWindow("Endolight - Configuration")
	window.Resize(fyne.NewSize(420, 320))
	window.SetCloseIntercept(func() {
		// Treat window close as cancel
		window.Close()
		cw.app.Quit()
	})
	window.Show()

	cw.loadConfigFromPreferences(cfg)

	serialPorts, err := transport.GetSerialPorts()
	if err != nil && !errors.Is(err, transport.ErrNoUSBSerial) {
		showError(cw.app, window, fmt.Errorf("error getting serial ports: %w", err))
		return
	}

	serialPorts = append(serialPorts, transport.SerialPortNone)

	serialEntry := widget.NewSelect(serialPorts, nil)
	if cfg.SerialPort == "" {
		cfg.SerialPort = serialPorts[0]
	}
	serialEntry.Bind(binding.BindString(&cfg.SerialPort))

	rotationEntry := widget.NewSelect(serialPorts, nil)
	if cfg.RotationPort == "" {
		cfg.RotationPort = transport.SerialPortNone
	}
	rotationEntry.Bind(binding.BindString(&cfg.RotationPort))

	entries := []struct {
		label string
		value *string
	}{
		{"Baud Rate:", &cfg.BaudRate},
		{"Frame Source:", &cfg.FrameSource},
		{"Frame Size:", &cfg.FrameSize},
		{"Mask (x,y,r):", &cfg.Mask},
		{"TWChart Address:", &cfg.TWChartAddr},
		{"Session Name:", &cfg.SessionName},
		{"Probes Input:", &cfg.ProbesInput},
	}

	var validateForm func()
	simulateCheck := widget.NewCheck("Simulate device", func(checked bool) {
		cfg.Simulate = checked
		validateForm()
	})

	submitButton := widget.NewButton("Submit", func() {
		if cfg.RotationPort == transport.SerialPortNone {
			cfg.RotationPort = ""
		}
		cw.saveConfigToPreferences(cfg)
		cw.OnSubmit()
		window.Close()
	})
	submitButton.Disable()

	validateForm = func() {
		if validConfig(cfg) {
			submitButton.Enable()
		} else {
			submitButton.Disable()
		}
	}

	rows := container.NewVBox(
		container.NewGridWithColumns(2, widget.NewLabel("Serial Port:"), serialEntry),
		container.NewGridWithColumns(2, widget.NewLabel("Rotation Mount:"), rotationEntry),
	)
	for _, e := range entries {
		entry := widget.NewEntry()
		entry.Bind(binding.BindString(e.value))
		entry.OnChanged = func(_ string) { validateForm() }
		rows.Add(container.NewGridWithColumns(2, widget.NewLabel(e.label), entry))
	}
	rows.Add(simulateCheck)

	serialEntry.OnChanged = func(_ string) { validateForm() }
	// Initial validation
	simulateCheck.SetChecked(cfg.Simulate)
	validateForm()

	form := container.NewVBox(
		widget.NewCard("Configuration", "", rows),
		container.NewHBox(
			widget.NewButton("Cancel", func() {
				window.Close()
				cw.app.Quit()
			}),
			submitButton,
		),
	)

	window.SetContent(form)
}

func showError(app fyne.App, window fyne.Window, err error) {
	d := dialog.NewError(err, window)
	d.SetOnClosed(func() {
		app.Quit()
	})
	d.Show()
}
