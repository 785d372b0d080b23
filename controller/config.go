package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/calvinmclean/endolight/acquisition"
	"github.com/calvinmclean/endolight/eventlog"
	"github.com/calvinmclean/endolight/firmware/scheduler"
	"github.com/calvinmclean/endolight/imaging"
	"github.com/calvinmclean/endolight/rotation"
	"github.com/calvinmclean/endolight/sim"
	"github.com/calvinmclean/endolight/transport"
	"github.com/calvinmclean/endolight/twchart"
)

const (
	DefaultOutputDir = "output"
	DefaultBaudRate  = "115200"
	DefaultProbes    = "1=PD Red,2=PD Green,3=PD Blue"
	DefaultFrameSize = "1280x1024"

	// StoreFile is the name of the SQLite event store in the output directory
	StoreFile = "endolight.db"
)

var ErrNoSerialPort = errors.New("SERIAL_PORT is required unless SIMULATE=true")

// Config has everything needed to assemble a Runner. Values are strings, as entered by the
// operator, and are validated by NewFromConfig.
type Config struct {
	SerialPort   string
	BaudRate     string
	RotationPort string
	OutputDir    string
	SessionName  string
	TWChartAddr  string
	ProbesInput  string
	MQTTBroker   string
	Mask         string
	FrameSource  string
	FrameSize    string
	Simulate     bool
}

// ConfigFromEnv reads the Config from environment variables, applying defaults
func ConfigFromEnv() Config {
	cfg := Config{
		SerialPort:   os.Getenv("SERIAL_PORT"),
		BaudRate:     os.Getenv("BAUD_RATE"),
		RotationPort: os.Getenv("ROTATION_PORT"),
		OutputDir:    os.Getenv("OUTPUT_DIR"),
		SessionName:  os.Getenv("SESSION_NAME"),
		TWChartAddr:  os.Getenv("TWCHART_ADDR"),
		ProbesInput:  os.Getenv("PROBES"),
		MQTTBroker:   os.Getenv("MQTT_BROKER"),
		Mask:         os.Getenv("MASK"),
		FrameSource:  os.Getenv("FRAME_SOURCE"),
		FrameSize:    os.Getenv("FRAME_SIZE"),
		Simulate:     os.Getenv("SIMULATE") == "true",
	}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.BaudRate == "" {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.ProbesInput == "" {
		cfg.ProbesInput = DefaultProbes
	}
	if cfg.FrameSize == "" {
		cfg.FrameSize = DefaultFrameSize
	}
	// running without a device means simulating one
	if cfg.SerialPort == transport.SerialPortNone {
		cfg.SerialPort = ""
		cfg.Simulate = true
	}
}

// ParseFrameSize parses a frame size in the format "WIDTHxHEIGHT"
func ParseFrameSize(s string) (width, height int, err error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid frame size %q: expected WIDTHxHEIGHT", s)
	}
	width, err = strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid frame width %q: %w", w, err)
	}
	height, err = strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid frame height %q: %w", h, err)
	}
	return width, height, nil
}

// NewFromEnv assembles a Runner from ConfigFromEnv
func NewFromEnv() (*Runner, error) {
	return NewFromConfig(ConfigFromEnv())
}

// NewFromConfig opens the event sinks, the device link, the rotation mount and the frame source
// and assembles a Runner that owns them. Anything opened before a failure is closed again.
func NewFromConfig(cfg Config) (_ *Runner, err error) {
	cfg.applyDefaults()

	var closers []io.Closer
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}()

	session := cfg.SessionName
	if session == "" {
		session = uuid.NewString()
	}

	logger, loggerClosers, err := openLoggers(cfg, session)
	closers = append(closers, loggerClosers...)
	if err != nil {
		return nil, err
	}

	var (
		port   transport.Port
		source acquisition.FrameSource
	)
	if cfg.Simulate {
		s, err := sim.New(scheduler.DefaultDepth, sim.CameraConfig{FrameInterval: sim.DefaultFrameInterval})
		if err != nil {
			return nil, fmt.Errorf("error creating simulator: %w", err)
		}
		port, source = s.Port.Host(), s.Camera
	} else {
		if cfg.SerialPort == "" {
			return nil, ErrNoSerialPort
		}

		baudRate, err := strconv.Atoi(cfg.BaudRate)
		if err != nil {
			return nil, fmt.Errorf("invalid baud rate %q: %w", cfg.BaudRate, err)
		}

		port, err = transport.Open(cfg.SerialPort, transport.PortOptions{BaudRate: baudRate})
		if err != nil {
			return nil, fmt.Errorf("error opening serial port %q: %w", cfg.SerialPort, err)
		}

		var sourceCloser io.Closer
		source, sourceCloser, err = openFrameSource(cfg)
		if err != nil {
			port.Close()
			return nil, err
		}
		closers = append(closers, sourceCloser)
	}

	link := transport.NewLink(port, 0)
	closers = append(closers, link)

	var mount rotation.Mount = rotation.NoopMount{}
	if cfg.RotationPort != "" {
		m, err := rotation.OpenSerialMount(cfg.RotationPort)
		if err != nil {
			return nil, fmt.Errorf("error initializing rotation mount: %w", err)
		}
		closers = append(closers, m)
		mount = m
	}

	var circle *imaging.Circle
	if cfg.Mask != "" {
		c, err := imaging.ParseCircle(cfg.Mask)
		if err != nil {
			return nil, err
		}
		circle = &c
	}

	ctrl, err := New(link, mount, logger)
	if err != nil {
		return nil, err
	}

	r := NewRunner(ctrl, circle, logger)
	r.source = source
	r.link = link
	r.closers = closers

	return r, nil
}

// openLoggers opens every configured event sink. The returned closers must be closed even when
// an error is returned.
func openLoggers(cfg Config, session string) (eventlog.Logger, []io.Closer, error) {
	var (
		loggers eventlog.Multi
		closers []io.Closer
	)

	file, err := eventlog.CreateFile(cfg.OutputDir, session)
	if err != nil {
		return nil, closers, err
	}
	loggers = append(loggers, file)
	closers = append(closers, file)

	store, err := eventlog.OpenStore(filepath.Join(cfg.OutputDir, StoreFile), session)
	if err != nil {
		return nil, closers, fmt.Errorf("error opening event store: %w", err)
	}
	loggers = append(loggers, store)
	closers = append(closers, store)

	if cfg.MQTTBroker != "" {
		m, err := eventlog.DialMQTT(cfg.MQTTBroker, "endolight-"+session, "endolight/"+session)
		if err != nil {
			return nil, closers, err
		}
		loggers = append(loggers, m)
		closers = append(closers, m)
	}

	if cfg.TWChartAddr != "" {
		probes, err := twchart.ParseProbes(cfg.ProbesInput)
		if err != nil {
			return nil, closers, fmt.Errorf("error parsing probes: %w", err)
		}

		a, err := twchart.NewAnnotator(context.Background(), cfg.TWChartAddr, session, probes)
		if err != nil {
			return nil, closers, fmt.Errorf("error creating TWChart session: %w", err)
		}
		loggers = append(loggers, a)
		closers = append(closers, a)
	}

	return loggers, closers, nil
}

// openFrameSource opens the raw frame stream named by FrameSource, "-" meaning stdin
func openFrameSource(cfg Config) (acquisition.FrameSource, io.Closer, error) {
	if cfg.FrameSource == "" {
		return nil, nil, errors.New("FRAME_SOURCE is required unless SIMULATE=true")
	}

	width, height, err := ParseFrameSize(cfg.FrameSize)
	if err != nil {
		return nil, nil, err
	}

	var f *os.File
	if cfg.FrameSource == "-" {
		f = os.Stdin
	} else {
		f, err = os.Open(cfg.FrameSource)
		if err != nil {
			return nil, nil, fmt.Errorf("error opening frame source: %w", err)
		}
	}

	src, err := acquisition.NewRawSource(f, width, height)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return src, f, nil
}
