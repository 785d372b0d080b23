package eventlog

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{0, "[000:00:000]"},
		{1500 * time.Millisecond, "[000:01:500]"},
		{61*time.Second + 7*time.Millisecond, "[001:01:007]"},
		{125 * time.Minute, "[125:00:000]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatElapsed(tt.d))
		})
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected Event
		wantErr  bool
	}{
		{
			"PulseWidths",
			"[001:02:003]\tPWS\t4,2800,2380",
			Event{Elapsed: time.Minute + 2*time.Second + 3*time.Millisecond, Tag: TagPulseWidths, Payload: "4,2800,2380"},
			false,
		},
		{
			"EmptyPayload",
			"[000:00:010]\tSYNCED\t\n",
			Event{Elapsed: 10 * time.Millisecond, Tag: TagSynced},
			false,
		},
		{"NoTimestamp", "PWS\t1,2", Event{}, true},
		{"BadTimestamp", "[aa:00:000]\tPWS\t1", Event{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := ParseLine(tt.line)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLine)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, e)
		})
	}
}

func TestFileLogger(t *testing.T) {
	var buf bytes.Buffer
	f := NewFile(&buf)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	f.start = start
	f.now = func() time.Time { return now }

	f.Log(TagMode, "WLE")
	now = now.Add(1234 * time.Millisecond)
	f.Log(TagError, "")
	require.NoError(t, f.Close())

	expected := "[000:00:000]\tMODE\tWLE\n[000:01:234]\tERR\t\n"
	assert.Equal(t, expected, buf.String())

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		_, err := ParseLine(line)
		assert.NoError(t, err)
	}
}

func TestCreateFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	f, err := CreateFile(dir, "session")
	require.NoError(t, err)
	f.Log(TagGrab, "1")
	require.NoError(t, f.Close())
	assert.FileExists(t, filepath.Join(dir, "session.log"))
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Log(tag Tag, payload string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Tag: tag, Payload: payload})
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, Nop{}, b}.Log(TagBuffer, "6")

	expected := []Event{{Tag: TagBuffer, Payload: "6"}}
	assert.Equal(t, expected, a.events)
	assert.Equal(t, expected, b.events)
}

func TestStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	s, err := OpenStore(path, "session-1")
	require.NoError(t, err)

	s.Log(TagMode, "SYNC")
	s.Log(TagPulseWidths, "0,14000")
	s.Log(TagSynced, "")
	s.Log(TagPulseWidths, "1,0")
	require.NoError(t, s.Close())

	// logging after close is ignored
	s.Log(TagError, "")

	// reopen to check migrations are idempotent and data persisted
	s, err = OpenStore(path, "session-2")
	require.NoError(t, err)
	defer s.Close()

	events, err := s.Events(context.Background(), "session-1", TagPulseWidths)
	require.NoError(t, err)

	got := make([]string, 0, len(events))
	for _, e := range events {
		got = append(got, string(e.Tag)+" "+e.Payload)
	}
	if diff := cmp.Diff([]string{"PWS 0,14000", "PWS 1,0"}, got); diff != "" {
		t.Errorf("unexpected events (-want +got):\n%s", diff)
	}

	all, err := s.Events(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := s.Events(context.Background(), "session-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQueryEventsDirect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := OpenStore(path, "direct")
	require.NoError(t, err)
	s.Log(TagGrab, "1")
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	events, err := QueryEvents(context.Background(), db, "direct")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, TagGrab, events[0].Tag)
}

type published struct {
	topic    string
	retained bool
	payload  interface{}
}

type fakePublisher struct {
	published []published
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.published = append(p.published, published{topic, retained, payload})
	return nil
}

func TestMQTT(t *testing.T) {
	p := &fakePublisher{}
	m := NewMQTT(p, "endolight/session/")

	m.Log(TagMode, "WLE")
	m.Log(TagPulseWidths, "1,2,3")
	m.Log(TagError, "")

	expected := []published{
		{"endolight/session/mode", true, "WLE"},
		{"endolight/session/err", false, ""},
	}
	assert.Equal(t, expected, p.published)
	assert.NoError(t, m.Close())
}
