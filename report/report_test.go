package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinmclean/endolight/eventlog"
)

func testEvents() []eventlog.Event {
	ms := time.Millisecond
	return []eventlog.Event{
		{Elapsed: 0, Tag: eventlog.TagMode, Payload: "OFF"},
		{Elapsed: 1 * ms, Tag: eventlog.TagMode, Payload: "SYNC"},
		{Elapsed: 2 * ms, Tag: eventlog.TagGrab, Payload: "0"},
		{Elapsed: 3 * ms, Tag: eventlog.TagPulseWidths, Payload: "0,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000,14000"},
		{Elapsed: 40 * ms, Tag: eventlog.TagGrab, Payload: "1"},
		{Elapsed: 41 * ms, Tag: eventlog.TagSynced, Payload: ""},
		{Elapsed: 41 * ms, Tag: eventlog.TagBuffer, Payload: "14"},
		{Elapsed: 42 * ms, Tag: eventlog.TagPhotoDiodes, Payload: "0,5000,5000,5000,5000,5000,5000"},
		{Elapsed: 43 * ms, Tag: eventlog.TagPulseWidths, Payload: "not a command"},
		{Elapsed: 70 * ms, Tag: eventlog.TagMode, Payload: "LSCI"},
		{Elapsed: 71 * ms, Tag: eventlog.TagValues, Payload: "128.000000"},
		{Elapsed: 72 * ms, Tag: eventlog.TagRotation, Payload: "0.200000"},
		{Elapsed: 80 * ms, Tag: eventlog.TagError, Payload: ""},
		{Elapsed: 90 * ms, Tag: eventlog.TagReset, Payload: "8"},
	}
}

func TestBuild(t *testing.T) {
	r := Build("test", testEvents())

	expected := Summary{
		Duration:    90 * time.Millisecond,
		Frames:      2,
		Commands:    1,
		Readings:    1,
		Errors:      1,
		Resets:      1,
		Offset:      14,
		SyncedAfter: 41 * time.Millisecond,
		Modes: []ModeChange{
			{0, "OFF"},
			{time.Millisecond, "SYNC"},
			{70 * time.Millisecond, "LSCI"},
		},
	}
	if diff := cmp.Diff(expected, r.Summary); diff != "" {
		t.Errorf("unexpected summary (-want +got):\n%s", diff)
	}

	require.Len(t, r.widths, 1)
	assert.Equal(t, []float64{15 * 14, 15 * 14}, r.widths[0].values)
	require.Len(t, r.voltages, 1)
	assert.Len(t, r.voltages[0].values, 6)
	require.Len(t, r.intensity, 1)
	assert.Equal(t, []float64{128}, r.intensity[0].values)
	require.Len(t, r.rotation, 1)
}

func TestRender(t *testing.T) {
	r := Build("test", testEvents())

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	assert.Contains(t, buf.String(), "Measured Intensity")
	assert.Contains(t, buf.String(), "Photodiodes")
}

func TestWriteSummary(t *testing.T) {
	r := Build("test", testEvents())

	var buf bytes.Buffer
	require.NoError(t, r.WriteSummary(&buf))

	expected := `Session: test
Duration: 90ms
Frames: 2
Commands: 1
Readings: 1
Errors: 1
Resets: 1
Synced after 41ms with offset 14
[000:00:000]	OFF
[000:00:001]	SYNC
[000:00:070]	LSCI
`
	assert.Equal(t, expected, buf.String())
}
