package twchart

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/calvinmclean/endolight/eventlog"
)

const (
	annotationQueueSize = 64
	requestTimeout      = 5 * time.Second
)

// SessionClient is the part of Client used by Annotator
type SessionClient interface {
	CreateSession(ctx context.Context, name string, probes Probes) (string, error)
	SetStartTime(ctx context.Context, startTime time.Time) error
	AddEvent(ctx context.Context, note string, now time.Time) error
	AddStage(ctx context.Context, name string, now time.Time) error
	Done(ctx context.Context) error
}

var _ SessionClient = &Client{}

type annotation struct {
	tag     eventlog.Tag
	payload string
	at      time.Time
}

// Annotator is an eventlog.Logger that turns mode changes into session stages and sync and
// device faults into session events. Requests are made from a background goroutine so Log never
// waits on the network; annotations are dropped if the queue is full.
type Annotator struct {
	client  SessionClient
	now     func() time.Time
	queue   chan annotation
	done    chan struct{}
	started bool

	mu     sync.RWMutex
	closed bool
}

var _ eventlog.Logger = &Annotator{}

// NewAnnotator creates a session named name on the TWChart server at addr
func NewAnnotator(ctx context.Context, addr, name string, probes Probes) (*Annotator, error) {
	return newAnnotator(ctx, NewClient(addr), name, probes)
}

func newAnnotator(ctx context.Context, client SessionClient, name string, probes Probes) (*Annotator, error) {
	_, err := client.CreateSession(ctx, name, probes)
	if err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	a := &Annotator{
		client: client,
		now:    time.Now,
		queue:  make(chan annotation, annotationQueueSize),
		done:   make(chan struct{}),
	}
	go a.run()

	return a, nil
}

// Log implements eventlog.Logger.
func (a *Annotator) Log(tag eventlog.Tag, payload string) {
	switch tag {
	case eventlog.TagMode, eventlog.TagSynced, eventlog.TagBuffer, eventlog.TagError, eventlog.TagReset:
	default:
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}

	select {
	case a.queue <- annotation{tag, payload, a.now()}:
	default:
	}
}

func (a *Annotator) run() {
	defer close(a.done)
	for an := range a.queue {
		err := a.send(an)
		if err != nil {
			log.Printf("error recording %s in TWChart: %v", an.tag, err)
		}
	}
}

func (a *Annotator) send(an annotation) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch an.tag {
	case eventlog.TagMode:
		// the session starts with the first light
		if !a.started {
			a.started = true
			err := a.client.SetStartTime(ctx, an.at)
			if err != nil {
				return err
			}
		}
		return a.client.AddStage(ctx, an.payload, an.at)
	case eventlog.TagSynced:
		return a.client.AddEvent(ctx, "Synced", an.at)
	case eventlog.TagBuffer:
		return a.client.AddEvent(ctx, "Pipeline offset "+an.payload, an.at)
	case eventlog.TagError:
		return a.client.AddEvent(ctx, "Device underrun", an.at)
	case eventlog.TagReset:
		return a.client.AddEvent(ctx, "Device reset after "+an.payload+" errors", an.at)
	}
	return nil
}

// Close sends the queued annotations and marks the session done
func (a *Annotator) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return a.client.Done(ctx)
}
