package commands

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	input []byte
	calls []string
}

func (f *fakeController) SetAngle(centidegrees uint16) error {
	f.calls = append(f.calls, fmt.Sprintf("SetAngle(%d)", centidegrees))
	if centidegrees >= 36000 {
		return errors.New("out of range")
	}
	return nil
}

func (f *fakeController) Home() error {
	f.calls = append(f.calls, "Home")
	return nil
}

func (f *fakeController) Debug() {
	f.calls = append(f.calls, "Debug")
}

func (f *fakeController) Verbose() {
	f.calls = append(f.calls, "Verbose")
}

func (f *fakeController) Move(steps int32) {
	f.calls = append(f.calls, fmt.Sprintf("Move(%d)", steps))
}

func (f *fakeController) ReadByte() (byte, error) {
	if len(f.input) == 0 {
		return 0, io.EOF
	}
	b := f.input[0]
	f.input = f.input[1:]
	return b, nil
}

func TestNext(t *testing.T) {
	tests := []struct {
		name        string
		input       []byte
		expected    []string
		expectedErr string
	}{
		{"SetAngle", []byte{'A', 0x94, 0x11}, []string{"SetAngle(4500)"}, ""},
		{"SetAngleError", []byte{'A', 0xA0, 0x8C}, []string{"SetAngle(36000)"}, "out of range"},
		{"Home", []byte("Z"), []string{"Home"}, ""},
		{"Debug", []byte("D"), []string{"Debug"}, ""},
		{"Verbose", []byte("V"), []string{"Verbose"}, ""},
		{"StepForward", []byte("s+4"), []string{"Move(4)"}, ""},
		{"StepBackward", []byte("s-9"), []string{"Move(-9)"}, ""},
		{"StepInvalidSign", []byte("s*4"), nil, "invalid input"},
		{"StepInvalidCount", []byte("s+0"), nil, "invalid input"},
		{"ArrowRight", []byte{0x1B, '[', 'C'}, []string{"Move(5)"}, ""},
		{"ArrowLeft", []byte{0x1B, '[', 'D'}, []string{"Move(-5)"}, ""},
		{"Help", []byte("H"), nil, ""},
		{"Unknown", []byte("q"), nil, ErrUnknownCommand.Error()},
		{"ReadError", nil, nil, "read error: EOF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeController{input: tt.input}

			err := Next(c)
			if tt.expectedErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.expectedErr, err.Error())
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.expected, c.calls)
			assert.Empty(t, c.input)
		})
	}
}

func TestLookup(t *testing.T) {
	for _, cmd := range commands {
		found, ok := Lookup(cmd.Flag)
		assert.True(t, ok)
		assert.Same(t, cmd, found)
	}

	_, ok := Lookup('H')
	assert.True(t, ok)

	_, ok = Lookup('x')
	assert.False(t, ok)
}

func TestFlagString(t *testing.T) {
	assert.Equal(t, "A", flagString('A'))
	assert.Equal(t, "0x1B", flagString(0x1B))
}

func TestIsReadError(t *testing.T) {
	assert.True(t, isReadError(fmt.Errorf("wrapped: %w", ReadError{io.EOF})))
	assert.False(t, isReadError(io.EOF))
}
