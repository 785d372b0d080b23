// Package commands is the rotation mount's serial command table. Each command is a flag byte
// followed by a fixed number of input bytes.
package commands

import (
	"encoding/binary"
	"errors"
)

type Command struct {
	Flag        byte
	InputSize   uint
	Run         func(Controller, []byte) error
	Description string
}

// Controller is used to control the rotation mount
type Controller interface {
	SetAngle(centidegrees uint16) error
	Home() error
	Debug()
	Verbose()
	Move(steps int32)

	// I/O
	ReadByte() (byte, error)
}

var ErrUnknownCommand = errors.New("unknown command")

var (
	SetAngleCommand = &Command{
		Flag:      'A',
		InputSize: 2,
		Run: func(c Controller, input []byte) error {
			return c.SetAngle(binary.LittleEndian.Uint16(input))
		},
		Description: "Move to an absolute angle. Input: centidegrees, 2 bytes little-endian.",
	}
	HomeCommand = &Command{
		Flag:      'Z',
		InputSize: 0,
		Run: func(c Controller, _ []byte) error {
			return c.Home()
		},
		Description: "Drive to the endstop and zero the angle. Prints \"homed\" when done.",
	}
	DebugCommand = &Command{
		Flag:      'D',
		InputSize: 0,
		Run: func(c Controller, _ []byte) error {
			c.Debug()
			return nil
		},
		Description: "Print the current state.",
	}
	VerboseCommand = &Command{
		Flag:      'V',
		InputSize: 0,
		Run: func(c Controller, _ []byte) error {
			c.Verbose()
			return nil
		},
		Description: "Enable verbose output.",
	}
	StepCommand = &Command{
		Flag:      's',
		InputSize: 2,
		Run: func(c Controller, b []byte) error {
			s := int32(1)
			if b[0] == '-' {
				s = -1
			} else if b[0] != '+' {
				return errors.New("invalid input")
			}

			v := b2i(b[1])
			if v == 0 {
				return errors.New("invalid input")
			}

			c.Move(int32(v) * s)

			return nil
		},
		Description: "Move stepper motor by steps. Input: '+' or '-', then step count (1-9).",
	}
	MicroStepCommand = &Command{
		Flag:      0x1B,
		InputSize: 2,
		Run: func(c Controller, b []byte) error {
			if b[0] != '[' {
				return errors.New("invalid input")
			}
			switch b[1] {
			case 'C':
				c.Move(5)
			case 'D':
				c.Move(-5)
			}
			return nil
		},
		Description: "Move stepper motor by a few steps. Use left and right arrow keys.",
	}
	HelpCommand = &Command{
		Flag:        'H',
		InputSize:   0,
		Description: "Show all available commands and their descriptions.",
		Run: func(c Controller, b []byte) error {
			println("Available Commands:")
			for _, cmd := range commands {
				println(flagString(cmd.Flag) + ": " + cmd.Description)
			}
			return nil
		},
	}
)

func flagString(flag byte) string {
	if flag >= 32 && flag <= 126 {
		return string(flag)
	}
	return "0x" + string("0123456789ABCDEF"[(flag>>4)&0xF]) + string("0123456789ABCDEF"[flag&0xF])
}

func b2i(b byte) uint {
	v := uint(b - '0')
	if v < 1 || v > 9 {
		return 0
	}
	return v
}

var commands = []*Command{
	SetAngleCommand,
	HomeCommand,
	DebugCommand,
	VerboseCommand,
	StepCommand,
	MicroStepCommand,
}

var cmdMap = func() map[byte]*Command {
	m := map[byte]*Command{
		HelpCommand.Flag: HelpCommand,
	}
	for _, cmd := range commands {
		m[cmd.Flag] = cmd
	}
	return m
}()

// Lookup returns the command for a flag byte
func Lookup(flag byte) (*Command, bool) {
	cmd, ok := cmdMap[flag]
	return cmd, ok
}

// Next reads one flag byte and its input and runs the command. Read errors other than for the
// flag byte are retried so a command is never cut short.
func Next(c Controller) error {
	cmdIn, err := c.ReadByte()
	if err != nil {
		return ReadError{err}
	}

	cmd, ok := Lookup(cmdIn)
	if !ok {
		return ErrUnknownCommand
	}

	in := make([]byte, cmd.InputSize)
	for i := 0; i < int(cmd.InputSize); {
		b, err := c.ReadByte()
		if err != nil {
			continue
		}

		in[i] = b
		i++
	}

	return cmd.Run(c, in)
}

// Run processes commands forever
func Run(c Controller) {
	for {
		err := Next(c)
		switch {
		case err == nil, errors.Is(err, ErrUnknownCommand):
		case isReadError(err):
		default:
			println("error:", err.Error())
		}
	}
}

// ReadError wraps errors from Controller.ReadByte so Run can skip them quietly
type ReadError struct {
	Err error
}

func (e ReadError) Error() string {
	return "read error: " + e.Err.Error()
}

func isReadError(err error) bool {
	var re ReadError
	return errors.As(err, &re)
}
