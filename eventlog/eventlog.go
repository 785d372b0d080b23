// Package eventlog records the audit trail of an illumination session: every emitted command,
// received reading and control event, one tab-delimited timestamped line per event.
package eventlog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tag identifies the kind of event
type Tag string

const (
	TagMode        Tag = "MODE"
	TagSynced      Tag = "SYNCED"
	TagBuffer      Tag = "BUFF"
	TagValues      Tag = "VALS"
	TagPulseWidths Tag = "PWS"
	TagPhotoDiodes Tag = "PDV"
	TagError       Tag = "ERR"
	TagRotation    Tag = "ROTN"
	TagGrab        Tag = "GRAB"
	TagMask        Tag = "MASK"
	TagReset       Tag = "RESET"
)

// Logger receives events. Implementations must be safe for concurrent use and must not block
// the caller on slow I/O for longer than a buffered write.
type Logger interface {
	Log(tag Tag, payload string)
}

// Event is a single parsed log line
type Event struct {
	Elapsed time.Duration
	Tag     Tag
	Payload string
}

// Nop discards every event
type Nop struct{}

var _ Logger = Nop{}

// Log implements Logger.
func (Nop) Log(Tag, string) {}

// Multi fans each event out to every Logger
type Multi []Logger

var _ Logger = Multi{}

// Log implements Logger.
func (m Multi) Log(tag Tag, payload string) {
	for _, l := range m {
		l.Log(tag, payload)
	}
}

// FormatElapsed formats a duration since session start as [mmm:ss:mmm]
func FormatElapsed(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = -ms
	}
	return fmt.Sprintf("[%03d:%02d:%03d]", ms/60000, ms/1000%60, ms%1000)
}

// FormatLine formats an event as a log line without the trailing newline
func FormatLine(e Event) string {
	return FormatElapsed(e.Elapsed) + "\t" + string(e.Tag) + "\t" + e.Payload
}

var ErrInvalidLine = errors.New("invalid log line")

// ParseLine parses a line written by FormatLine
func ParseLine(line string) (Event, error) {
	ts, rest, ok := strings.Cut(strings.TrimRight(line, "\r\n"), "\t")
	if !ok || len(ts) < 2 || ts[0] != '[' || ts[len(ts)-1] != ']' {
		return Event{}, fmt.Errorf("%w: %q", ErrInvalidLine, line)
	}

	parts := strings.Split(ts[1:len(ts)-1], ":")
	if len(parts) != 3 {
		return Event{}, fmt.Errorf("%w: bad timestamp %q", ErrInvalidLine, ts)
	}
	var vals [3]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return Event{}, fmt.Errorf("%w: bad timestamp %q", ErrInvalidLine, ts)
		}
		vals[i] = v
	}

	tag, payload, _ := strings.Cut(rest, "\t")
	return Event{
		Elapsed: time.Duration(vals[0])*time.Minute + time.Duration(vals[1])*time.Second + time.Duration(vals[2])*time.Millisecond,
		Tag:     Tag(tag),
		Payload: payload,
	}, nil
}
