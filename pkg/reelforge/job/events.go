package job

import (
	"sync"
	"time"
)

// EventType enumerates the kinds of state changes the bus carries. These
// map directly onto the WebSocket frame "type" field in the API layer.
type EventType string

const (
	EventCreated   EventType = "job_created"
	EventCancelled EventType = "job_cancelled"
	EventPaused    EventType = "job_paused"
	EventResumed   EventType = "job_resumed"
	EventUpdate    EventType = "job_update"
)

// Event is one state-change notification published by the scheduler.
type Event struct {
	Type      EventType `json:"type"`
	JobID     string    `json:"job_id"`
	Status    Status    `json:"status,omitempty"`
	Stage     Stage     `json:"stage,omitempty"`
	Progress  int       `json:"progress,omitempty"`
	At        time.Time `json:"at"`
}

// backlogSize bounds the number of buffered events per subscriber; once
// a subscriber's buffer is full, further events are dropped for it while
// the subscriber itself stays registered.
const backlogSize = 256

// Bus is a single-publisher, many-subscriber fan-out of job events.
// Within a single job, events are totally ordered for every subscriber
// connected at publication time; across jobs no ordering is guaranteed.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int

	// lastProgress coalesces progress updates to at most one per 500ms
	// per job, per spec's coalescing rule.
	lastProgress map[string]time.Time
	// lastState records the last published status/stage per job so
	// Publish can tell a pure progress tick from a transition: only
	// ticks that repeat the prior status/stage are eligible for
	// coalescing, so a terminal completion/failure/cancellation is
	// never dropped for landing inside the coalescing window.
	lastState map[string]jobState
}

type jobState struct {
	Status Status
	Stage  Stage
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers:  make(map[int]chan Event),
		lastProgress: make(map[string]time.Time),
		lastState:    make(map[string]jobState),
	}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed by Unsubscribe, never by
// the publisher, so callers must always defer the returned func.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, backlogSize)
	b.subscribers[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(c)
		}
	}
}

// progressCoalesceWindow is the minimum spacing between published
// progress-only updates for the same job.
const progressCoalesceWindow = 500 * time.Millisecond

// Publish fans an event out to every current subscriber. Progress-only
// updates (EventUpdate with no status/stage change implied) are
// coalesced per job; everything else always publishes. Slow subscribers
// whose buffer is full have the event dropped for them rather than
// blocking the publisher.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	if ev.Type == EventUpdate {
		state := jobState{Status: ev.Status, Stage: ev.Stage}
		prev, sawState := b.lastState[ev.JobID]
		b.lastState[ev.JobID] = state
		if sawState && prev == state {
			last, ok := b.lastProgress[ev.JobID]
			if ok && ev.At.Sub(last) < progressCoalesceWindow {
				b.mu.Unlock()
				return
			}
		}
		b.lastProgress[ev.JobID] = ev.At
	}
	subs := make([]chan Event, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// Backlog full: drop for this slow subscriber only.
		}
	}
}
