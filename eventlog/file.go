package eventlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// File writes events as text lines. Lines are buffered and flushed by Flush and Close.
type File struct {
	mu    sync.Mutex
	w     *bufio.Writer
	c     io.Closer
	start time.Time
	now   func() time.Time
}

var _ Logger = &File{}

// NewFile creates a File logger writing to w. If w is an io.Closer it is closed by Close.
func NewFile(w io.Writer) *File {
	f := &File{
		w:   bufio.NewWriter(w),
		now: time.Now,
	}
	if c, ok := w.(io.Closer); ok {
		f.c = c
	}
	f.start = f.now()
	return f
}

// CreateFile opens a new log file named after the session in dir, appending if it exists
func CreateFile(dir, session string) (*File, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("error creating log directory: %w", err)
	}

	path := filepath.Join(dir, session+".log")
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	return NewFile(fh), nil
}

// Log implements Logger.
func (f *File) Log(tag Tag, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	line := FormatLine(Event{Elapsed: f.now().Sub(f.start), Tag: tag, Payload: payload})
	_, _ = f.w.WriteString(line)
	_ = f.w.WriteByte('\n')
}

// Flush writes buffered lines to the underlying writer
func (f *File) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w.Flush()
}

// Close flushes and closes the underlying writer
func (f *File) Close() error {
	err := f.Flush()
	if f.c != nil {
		if cerr := f.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
