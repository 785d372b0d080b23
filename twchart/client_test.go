package twchart

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/calvinmclean/twchart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinmclean/endolight/eventlog"
)

func TestJSON(t *testing.T) {
	rawJSON := "{\"id\":\"d4kdisifn76c73dkrju0\",\"Session\":{\"Name\":\"Colon 12\",\"Date\":\"2025-11-27T16:06:26.504207-07:00\",\"StartTime\":\"0001-01-01T00:00:00Z\",\"Probes\":[{\"Name\":\"PD Red\",\"Position\":1},{\"Name\":\"PD Green\",\"Position\":2}],\"Stages\":null,\"Events\":null,\"Data\":null},\"UploadedAt\":\"2025-11-27T23:06:26.60698014Z\"}"
	var s session
	err := json.Unmarshal([]byte(rawJSON), &s)
	require.NoError(t, err)
}

func TestParseProbes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Probes
		wantErr  bool
	}{
		{
			"Valid",
			"1=PD Red, 2=PD Green,3=PD Blue",
			Probes{
				{Name: "PD Red", Position: 1},
				{Name: "PD Green", Position: 2},
				{Name: "PD Blue", Position: 3},
			},
			false,
		},
		{"MissingName", "1", nil, true},
		{"BadPosition", "a=Red", nil, true},
		{"ZeroPosition", "0=Red", nil, true},
		{"OutOfRange", "4=Extra", nil, true},
		{"Duplicate", "1=Red,1=Green", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probes, err := ParseProbes(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, probes)
		})
	}
}

func TestClientActions(t *testing.T) {
	type request struct {
		path string
		body string
	}
	var (
		mu       sync.Mutex
		requests []request
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		requests = append(requests, request{r.URL.Path, string(body)})
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	t.Run("NoSession", func(t *testing.T) {
		assert.ErrorIs(t, c.AddEvent(context.Background(), "SYNCED", time.Now()), ErrNoSession)
		assert.ErrorIs(t, c.SetStartTime(context.Background(), time.Now()), ErrNoSession)
		assert.Empty(t, requests)
	})

	c.sessionID = "abc"
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, c.AddStage(context.Background(), "WLE", now))
	require.NoError(t, c.AddEvent(context.Background(), "SYNCED", now))
	require.NoError(t, c.Done(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 3)
	assert.Equal(t, "/sessions/abc/add-stage", requests[0].path)
	assert.Contains(t, requests[0].body, `"WLE"`)
	assert.Equal(t, "/sessions/abc/add-event", requests[1].path)
	assert.Contains(t, requests[1].body, `"SYNCED"`)
	assert.Equal(t, "/sessions/abc/done", requests[2].path)
	assert.Contains(t, requests[2].body, `"time"`)
}

type fakeClient struct {
	mu        sync.Mutex
	calls     []string
	createErr error
}

func (c *fakeClient) record(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, s)
}

func (c *fakeClient) CreateSession(_ context.Context, name string, probes Probes) (string, error) {
	c.record("create " + name)
	return "id", c.createErr
}

func (c *fakeClient) SetStartTime(context.Context, time.Time) error {
	c.record("start")
	return nil
}

func (c *fakeClient) AddEvent(_ context.Context, note string, _ time.Time) error {
	c.record("event " + note)
	return nil
}

func (c *fakeClient) AddStage(_ context.Context, name string, _ time.Time) error {
	c.record("stage " + name)
	return nil
}

func (c *fakeClient) Done(context.Context) error {
	c.record("done")
	return nil
}

func TestAnnotator(t *testing.T) {
	client := &fakeClient{}
	a, err := newAnnotator(context.Background(), client, "session", Probes{{Name: "PD Red", Position: twchart.ProbePosition(1)}})
	require.NoError(t, err)

	a.Log(eventlog.TagMode, "SYNC")
	a.Log(eventlog.TagPulseWidths, "0,14000")
	a.Log(eventlog.TagSynced, "")
	a.Log(eventlog.TagBuffer, "16")
	a.Log(eventlog.TagMode, "WLE")
	a.Log(eventlog.TagError, "")
	a.Log(eventlog.TagReset, "8")
	require.NoError(t, a.Close())

	// ignored after close
	a.Log(eventlog.TagMode, "OFF")

	expected := []string{
		"create session",
		"start",
		"stage SYNC",
		"event Synced",
		"event Pipeline offset 16",
		"stage WLE",
		"event Device underrun",
		"event Device reset after 8 errors",
		"done",
	}
	assert.Equal(t, expected, client.calls)
}

func TestAnnotatorCreateError(t *testing.T) {
	_, err := newAnnotator(context.Background(), &fakeClient{createErr: errors.New("unavailable")}, "session", nil)
	assert.Error(t, err)
}
