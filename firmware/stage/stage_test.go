package stage

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStepper struct {
	moves []int32
}

func (f *fakeStepper) Move(steps int32) {
	f.moves = append(f.moves, steps)
}

// fakeEndstop is pressed once it has been polled after the given number of steps
type fakeEndstop struct {
	stepper *fakeStepper
	after   int
}

func (f *fakeEndstop) Get() bool {
	return len(f.stepper.moves) >= f.after
}

func newTestStage(t *testing.T, cfg Config) (*Stage, *fakeStepper) {
	t.Helper()

	stepper := &fakeStepper{}
	s, err := New(stepper, &fakeEndstop{stepper, 3}, bytes.NewReader(nil), cfg)
	require.NoError(t, err)
	s.sleep = func(time.Duration) {}

	return s, stepper
}

func TestNew(t *testing.T) {
	t.Run("InvalidStepsPerDegree", func(t *testing.T) {
		_, err := New(&fakeStepper{}, nil, nil, Config{})
		assert.Error(t, err)
	})

	t.Run("DefaultHomeMaxSteps", func(t *testing.T) {
		s, err := New(&fakeStepper{}, nil, nil, Config{StepsPerDegree: 2})
		require.NoError(t, err)
		assert.Equal(t, int32(720), s.cfg.HomeMaxSteps)
	})
}

func TestHome(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		s, stepper := newTestStage(t, Config{StepsPerDegree: 10})
		s.Move(25)
		stepper.moves = nil

		require.NoError(t, s.Home())
		assert.True(t, s.Homed())
		assert.Equal(t, int32(0), s.Position())
		assert.Equal(t, []int32{-1, -1, -1}, stepper.moves)
	})

	t.Run("NotReached", func(t *testing.T) {
		stepper := &fakeStepper{}
		s, err := New(stepper, &fakeEndstop{stepper, 100}, nil, Config{StepsPerDegree: 10, HomeMaxSteps: 5})
		require.NoError(t, err)

		assert.ErrorIs(t, s.Home(), ErrHomeFailed)
		assert.False(t, s.Homed())
		assert.Len(t, stepper.moves, 5)
	})

	t.Run("NoEndstop", func(t *testing.T) {
		s, err := New(&fakeStepper{}, nil, nil, Config{StepsPerDegree: 10})
		require.NoError(t, err)
		assert.ErrorIs(t, s.Home(), ErrNoEndstop)
	})
}

func TestSetAngle(t *testing.T) {
	t.Run("NotHomed", func(t *testing.T) {
		s, _ := newTestStage(t, Config{StepsPerDegree: 10})
		assert.ErrorIs(t, s.SetAngle(100), ErrNotHomed)
	})

	tests := []struct {
		name     string
		cfg      Config
		angles   []uint16
		expected []int32
		position int32
	}{
		{
			"Forward",
			Config{StepsPerDegree: 10},
			[]uint16{4500},
			[]int32{450},
			450,
		},
		{
			"BackwardWithBacklash",
			Config{StepsPerDegree: 10, BacklashSteps: 20},
			[]uint16{4500, 2250},
			[]int32{450, -245, 20},
			225,
		},
		{
			"BackwardNoBacklash",
			Config{StepsPerDegree: 10},
			[]uint16{4500, 2250},
			[]int32{450, -225},
			225,
		},
		{
			"RemainderCarried",
			Config{StepsPerDegree: 1.5},
			[]uint16{100, 200, 300, 400},
			[]int32{2, 1, 2, 1},
			6,
		},
		{
			"SameAngle",
			Config{StepsPerDegree: 10},
			[]uint16{1000, 1000},
			[]int32{100},
			100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, stepper := newTestStage(t, tt.cfg)
			require.NoError(t, s.Home())
			stepper.moves = nil

			for _, a := range tt.angles {
				require.NoError(t, s.SetAngle(a))
			}

			assert.Equal(t, tt.expected, stepper.moves)
			assert.Equal(t, tt.position, s.Position())
			assert.Equal(t, tt.angles[len(tt.angles)-1], s.Angle())
		})
	}

	t.Run("OutOfRange", func(t *testing.T) {
		s, _ := newTestStage(t, Config{StepsPerDegree: 10})
		require.NoError(t, s.Home())
		assert.Error(t, s.SetAngle(36000))
	})
}

func TestMove(t *testing.T) {
	s, stepper := newTestStage(t, Config{StepsPerDegree: 10})
	require.NoError(t, s.Home())
	require.NoError(t, s.SetAngle(1000))
	stepper.moves = nil

	s.Move(-3)
	assert.Equal(t, []int32{-3}, stepper.moves)
	assert.Equal(t, int32(97), s.Position())
	assert.Equal(t, uint16(1000), s.Angle())
}

func TestReadByte(t *testing.T) {
	stepper := &fakeStepper{}
	s, err := New(stepper, nil, bytes.NewReader([]byte("Z")), Config{StepsPerDegree: 1})
	require.NoError(t, err)

	b, err := s.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('Z'), b)
}
