// Package twchart records illumination sessions in a TWChart server: each mode change becomes a
// stage and sync and device faults become events, so a session can be reviewed alongside its
// monitoring data.
package twchart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/calvinmclean/babyapi"
	"github.com/calvinmclean/twchart"

	"github.com/calvinmclean/endolight"
)

// session actions are POST endpoints under /sessions/{id}
const (
	actionAddEvent = "add-event"
	actionAddStage = "add-stage"
	actionDone     = "done"
)

var ErrNoSession = errors.New("no session created")

// Probes names the monitoring channels of a session
type Probes []twchart.Probe

// Client is a TWChart API client bound to one session once CreateSession succeeds
type Client struct {
	api       *babyapi.Client[*session]
	sessionID string
}

type session struct {
	// NilResource provides Render/Bind, which the client never uses
	*babyapi.NilResource
	twchart.Session
}

func (s session) GetID() string {
	return s.Session.GetID()
}

func NewClient(addr string) *Client {
	return &Client{api: babyapi.NewClient[*session](addr, "/sessions")}
}

// CreateSession creates a new session and uses it for all later requests
func (c *Client) CreateSession(ctx context.Context, name string, probes Probes) (string, error) {
	resp, err := c.api.Post(ctx, &session{
		Session: twchart.Session{
			Name:   name,
			Date:   time.Now(),
			Probes: probes,
		},
	})
	if err != nil {
		return "", fmt.Errorf("error creating session %q: %w", name, err)
	}

	c.sessionID = resp.Data.GetID()
	return c.sessionID, nil
}

// SessionID returns the current session's ID, empty before CreateSession
func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) SetStartTime(ctx context.Context, startTime time.Time) error {
	if c.sessionID == "" {
		return ErrNoSession
	}

	_, err := c.api.Patch(ctx, c.sessionID, &session{Session: twchart.Session{StartTime: startTime}})
	if err != nil {
		return fmt.Errorf("error setting start time: %w", err)
	}
	return nil
}

func (c *Client) AddEvent(ctx context.Context, note string, now time.Time) error {
	return c.post(ctx, actionAddEvent, twchart.Event{Note: note, Time: now})
}

func (c *Client) AddStage(ctx context.Context, name string, now time.Time) error {
	return c.post(ctx, actionAddStage, twchart.Stage{Name: name, Start: now})
}

// Done marks the session finished at the current time
func (c *Client) Done(ctx context.Context) error {
	return c.post(ctx, actionDone, struct {
		Time time.Time `json:"time"`
	}{time.Now()})
}

// post sends body to a session action, which answers 204 No Content
func (c *Client) post(ctx context.Context, action string, body any) error {
	if c.sessionID == "" {
		return ErrNoSession
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", action, err)
	}

	url, err := c.api.URL(c.sessionID)
	if err != nil {
		return fmt.Errorf("error building %s URL: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/"+action, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("error creating %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.api.MakeGenericRequest(req, nil)
	if err != nil {
		return fmt.Errorf("error making %s request: %w", action, err)
	}
	if resp.Response.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected %s status code %d: %v", action, resp.Response.StatusCode, resp.Body)
	}

	return nil
}

// ParseProbes parses "1=Name,2=Name,..." where each position is a photodiode channel counted
// from 1. Positions must be unique.
func ParseProbes(input string) (Probes, error) {
	var probes Probes
	seen := map[twchart.ProbePosition]bool{}

	for entry := range strings.SplitSeq(input, ",") {
		posStr, name, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid probe entry: %q", entry)
		}
		posStr = strings.TrimSpace(posStr)

		n, err := strconv.Atoi(posStr)
		if err != nil || n < 1 || n > endolight.NumPhotoDiodes {
			return nil, fmt.Errorf("invalid probe position: %q", posStr)
		}

		pos := twchart.ProbePosition(n)
		if seen[pos] {
			return nil, fmt.Errorf("duplicate probe position: %d", n)
		}
		seen[pos] = true

		probes = append(probes, twchart.Probe{Name: strings.TrimSpace(name), Position: pos})
	}

	return probes, nil
}
