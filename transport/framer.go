package transport

// Framer splits a byte stream into fixed-size records. There are no delimiters or checksums, so
// a lost or extra byte shifts every following record.
type Framer struct {
	size int
	buf  []byte
	off  int
}

// NewFramer creates a Framer for records of size bytes
func NewFramer(size int) *Framer {
	return &Framer{size: size, buf: make([]byte, 0, 4*size)}
}

// Write buffers p. It never returns an error.
func (f *Framer) Write(p []byte) (int, error) {
	if f.off > 0 {
		n := copy(f.buf, f.buf[f.off:])
		f.buf = f.buf[:n]
		f.off = 0
	}
	f.buf = append(f.buf, p...)
	return len(p), nil
}

// Next returns the next complete record. The returned slice is only valid until the next call to
// Write or Reset.
func (f *Framer) Next() ([]byte, bool) {
	if f.Buffered() < f.size {
		return nil, false
	}
	rec := f.buf[f.off : f.off+f.size]
	f.off += f.size
	return rec, true
}

// Buffered returns the number of bytes not yet returned by Next
func (f *Framer) Buffered() int {
	return len(f.buf) - f.off
}

// Reset discards buffered bytes
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.off = 0
}
