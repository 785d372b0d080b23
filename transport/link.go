// Package transport carries fixed-size Pulse Command and Monitor Reading records between the host
// and the device over a serial byte stream.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/calvinmclean/endolight"
)

// DefaultQueueSize is the capacity of each direction's hand-off queue
const DefaultQueueSize = 32

var (
	ErrQueueFull = errors.New("transport queue full")
	ErrClosed    = errors.New("transport closed")
)

// Port is the minimal interface needed for a serial port. go.bug.st/serial's Port satisfies it.
type Port interface {
	io.ReadWriter
	io.Closer
}

// Stats is a snapshot of the Link's counters
type Stats struct {
	Sent     uint64
	Received uint64
	Dropped  uint64
}

// Link is a bounded bidirectional channel of records backed by a Port. Send and TryReceive never
// block and are safe to call from any goroutine. Run performs the actual I/O.
type Link struct {
	port Port
	tx   chan endolight.PulseCommand
	rx   chan endolight.MonitorReading

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
}

// NewLink creates a Link over port. queueSize <= 0 uses DefaultQueueSize.
func NewLink(port Port, queueSize int) *Link {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Link{
		port: port,
		tx:   make(chan endolight.PulseCommand, queueSize),
		rx:   make(chan endolight.MonitorReading, queueSize),
	}
}

// Send queues a command for transmission. It returns ErrQueueFull instead of blocking.
func (l *Link) Send(cmd endolight.PulseCommand) error {
	if l.closed.Load() {
		return ErrClosed
	}
	select {
	case l.tx <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// TryReceive returns the oldest received reading, if one is available
func (l *Link) TryReceive() (endolight.MonitorReading, bool) {
	select {
	case r := <-l.rx:
		return r, true
	default:
		return endolight.MonitorReading{}, false
	}
}

// Reset discards everything queued in both directions and queues a RESET command
func (l *Link) Reset() error {
	for {
		select {
		case <-l.tx:
			continue
		case <-l.rx:
			continue
		default:
		}
		break
	}
	return l.Send(endolight.ResetCommand())
}

// Stats returns the current counters
func (l *Link) Stats() Stats {
	return Stats{
		Sent:     l.sent.Load(),
		Received: l.received.Load(),
		Dropped:  l.dropped.Load(),
	}
}

// Run drains queued commands to the port and frames incoming bytes into readings until ctx is
// cancelled or the port fails. Commands still queued when ctx is cancelled are written before
// Run returns.
func (l *Link) Run(ctx context.Context) error {
	chunks := make(chan []byte)
	readErrChan := make(chan error, 1)

	// the blocking Read does not interfere with the loop below which awaits
	// commands, chunks and cancellation
	go func() {
		defer close(chunks)
		buf := make([]byte, 256)
		for {
			n, err := l.port.Read(buf)
			if err != nil {
				if !l.closed.Load() {
					readErrChan <- err
				}
				return
			}
			if n == 0 {
				if ctx.Err() != nil {
					return
				}
				continue
			}

			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	framer := NewFramer(endolight.MonitorReadingSize)
	out := make([]byte, 0, endolight.PulseCommandSize)

	for {
		select {
		case <-ctx.Done():
			err := l.flush(out)
			if err != nil {
				return err
			}
			return ctx.Err()

		case err := <-readErrChan:
			return fmt.Errorf("error reading serial port: %w", err)

		case chunk, ok := <-chunks:
			if !ok {
				return l.readerStopped(ctx, readErrChan)
			}
			_, _ = framer.Write(chunk)
			for rec, ok := framer.Next(); ok; rec, ok = framer.Next() {
				var r endolight.MonitorReading
				_ = r.UnmarshalBinary(rec)
				l.deliver(r)
			}

		case cmd := <-l.tx:
			err := l.write(out, cmd)
			if err != nil {
				return err
			}
		}
	}
}

func (l *Link) write(out []byte, cmd endolight.PulseCommand) error {
	out, _ = cmd.AppendBinary(out[:0])
	_, err := l.port.Write(out)
	if err != nil {
		return fmt.Errorf("error writing serial port: %w", err)
	}
	l.sent.Add(1)
	return nil
}

// readerStopped returns why the reader goroutine exited. A read error is sent before chunks is
// closed, so it wins over a nil ctx.Err().
func (l *Link) readerStopped(ctx context.Context, readErrChan <-chan error) error {
	select {
	case err := <-readErrChan:
		return fmt.Errorf("error reading serial port: %w", err)
	default:
	}

	if l.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// flush writes every queued command without waiting for more
func (l *Link) flush(out []byte) error {
	for {
		select {
		case cmd := <-l.tx:
			if l.closed.Load() {
				return nil
			}
			err := l.write(out, cmd)
			if err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (l *Link) deliver(r endolight.MonitorReading) {
	select {
	case l.rx <- r:
		l.received.Add(1)
	default:
		l.dropped.Add(1)
	}
}

// Close closes the underlying port. Further calls to Send fail with ErrClosed.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.closeErr = l.port.Close()
	})
	return l.closeErr
}
