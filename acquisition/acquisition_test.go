package acquisition

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawSource(t *testing.T) {
	// two 2x1 frames and a partial third
	data := []byte{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
		13, 14,
	}
	src, err := NewRawSource(bytes.NewReader(data), 2, 1)
	require.NoError(t, err)

	ctx := context.Background()

	f, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, data[:6], f.Pix)

	f, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, data[6:12], f.Pix)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRawSourceCancelled(t *testing.T) {
	src, err := NewRawSource(bytes.NewReader(make([]byte, 6)), 2, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRawSourceInvalidSize(t *testing.T) {
	_, err := NewRawSource(bytes.NewReader(nil), 0, 10)
	assert.Error(t, err)
}
