package sim

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinmclean/endolight"
	"github.com/calvinmclean/endolight/firmware/scheduler"
	"github.com/calvinmclean/endolight/imaging"
)

func TestPort(t *testing.T) {
	p := NewPort()
	host, device := p.Host(), p.Device()

	_, err := host.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, device.Buffered())

	buf := make([]byte, 8)
	n, err := device.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	// the device end never blocks
	n, err = device.Read(buf)
	assert.NoError(t, err)
	assert.Zero(t, n)

	assert.Zero(t, host.TryRead(buf))

	_, err = device.Write([]byte("xyz"))
	require.NoError(t, err)
	n, err = host.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(buf[:n]))

	_, _ = device.Write([]byte("discard me"))
	host.Discard()
	assert.Zero(t, host.TryRead(buf))

	t.Run("CloseWakesRead", func(t *testing.T) {
		done := make(chan error)
		go func() {
			_, err := host.Read(buf)
			done <- err
		}()

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, host.Close())

		select {
		case err := <-done:
			assert.ErrorIs(t, err, io.EOF)
		case <-time.After(time.Second):
			t.Fatal("Read did not return after Close")
		}

		_, err = host.Write([]byte("a"))
		assert.ErrorIs(t, err, io.ErrClosedPipe)
	})
}

func newTestDevice(t *testing.T, depth int) (*Device, *Loopback) {
	t.Helper()
	p := NewPort()
	d, err := NewDevice(p.Device(), depth)
	require.NoError(t, err)
	return d, NewLoopback(p)
}

func TestDeviceFires(t *testing.T) {
	d, link := newTestDevice(t, 2)

	var cmd endolight.PulseCommand
	cmd.SetWidth(endolight.FieldOdd, 0, 1000)
	cmd.SetWidth(endolight.FieldOdd, 4, 2000)
	cmd.SetWidth(endolight.FieldEven, 14, 3000)
	for fid := range int32(3) {
		cmd.FrameID = fid
		require.NoError(t, link.Send(cmd))
	}

	require.NoError(t, d.Poll())
	assert.Equal(t, scheduler.StateArmed, d.Scheduler().State())

	odd := d.Field(endolight.FieldOdd)
	assert.Equal(t, 1*time.Millisecond, odd[0])
	assert.Equal(t, 2*time.Millisecond, odd[4])
	assert.Zero(t, odd[14])

	even := d.Field(endolight.FieldEven)
	assert.Equal(t, 3*time.Millisecond, even[14])
	assert.Zero(t, even[0])

	// the reading for frame 0 is published when frame 1 starts
	_, ok := link.TryReceive()
	assert.False(t, ok)

	d.Field(endolight.FieldOdd)
	require.NoError(t, d.Poll())

	r, ok := link.TryReceive()
	require.True(t, ok)
	assert.EqualValues(t, 0, r.FrameID)
	// channels 0 and 4 land on photodiodes 0 and 1; channel 14 on photodiode 2
	assert.Equal(t, [2 * endolight.NumPhotoDiodes]uint16{1000, 1000, 0, 0, 0, 1000}, r.Voltages)
}

func TestDeviceUnderrun(t *testing.T) {
	d, link := newTestDevice(t, 1)

	require.NoError(t, link.Send(endolight.PulseCommand{FrameID: 0}))
	require.NoError(t, d.Poll())

	d.Field(endolight.FieldOdd)
	d.Field(endolight.FieldEven)
	d.Field(endolight.FieldOdd)
	require.NoError(t, d.Poll())

	r, ok := link.TryReceive()
	require.True(t, ok)
	assert.EqualValues(t, 0, r.FrameID)

	r, ok = link.TryReceive()
	require.True(t, ok)
	assert.True(t, r.IsError())
	assert.EqualValues(t, 1, d.Scheduler().Stats.Underruns.Load())

	t.Run("Reset", func(t *testing.T) {
		require.NoError(t, link.Reset())
		require.NoError(t, d.Poll())
		assert.Equal(t, scheduler.StateUninitialized, d.Scheduler().State())
		assert.Zero(t, d.Scheduler().QueuedCommands())
	})
}

func TestNewDeviceDefaultDepth(t *testing.T) {
	d, link := newTestDevice(t, 0)

	for fid := range int32(scheduler.DefaultDepth - 1) {
		require.NoError(t, link.Send(endolight.PulseCommand{FrameID: fid}))
	}
	require.NoError(t, d.Poll())
	assert.Equal(t, scheduler.StateUninitialized, d.Scheduler().State())

	require.NoError(t, link.Send(endolight.PulseCommand{FrameID: scheduler.DefaultDepth - 1}))
	require.NoError(t, d.Poll())
	assert.Equal(t, scheduler.StateArmed, d.Scheduler().State())
}

func TestCamera(t *testing.T) {
	s, err := New(1, CameraConfig{Width: 8, Height: 6})
	require.NoError(t, err)
	link := NewLoopback(s.Port)

	fieldMeans := func(f imaging.Frame) (odd, even float32) {
		o, e, err := imaging.Deinterlace(f)
		require.NoError(t, err)
		om, err := imaging.MaskedChannelMeans(o, imaging.FullMask(8, 6))
		require.NoError(t, err)
		em, err := imaging.MaskedChannelMeans(e, imaging.FullMask(8, 6))
		require.NoError(t, err)
		return om.Average(), em.Average()
	}

	// unarmed devices are dark
	f, err := s.Camera.Next(context.Background())
	require.NoError(t, err)
	odd, even := fieldMeans(f)
	assert.Zero(t, odd)
	assert.Zero(t, even)

	// one full pulse in the odd field reads as DefaultGain exposure
	var cmd endolight.PulseCommand
	cmd.SetWidth(endolight.FieldOdd, 0, 14000)
	for i := range endolight.NumLaserDiodes {
		cmd.SetWidth(endolight.FieldEven, i, 14000)
	}
	require.NoError(t, link.Send(cmd))

	f, err = s.Camera.Next(context.Background())
	require.NoError(t, err)
	odd, even = fieldMeans(f)
	assert.InDelta(t, 256*0.25/1.25, odd, 1)
	assert.InDelta(t, 256*3.75/4.75, even, 1)
	assert.Greater(t, even, odd)

	t.Run("Cancelled", func(t *testing.T) {
		cam := NewCamera(s.Device, CameraConfig{FrameInterval: time.Hour})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := cam.Next(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
