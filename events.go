package swarm

import (
	"sync"
	"time"
)

// TaskEventType identifies a lifecycle notification.
type TaskEventType string

const (
	// EventTransition marks a task entering a new status
	EventTransition TaskEventType = "transition"
	// EventAttempt marks the outcome of one generate+verify cycle
	EventAttempt TaskEventType = "attempt"
	// EventTerminal marks a task reaching a terminal status
	EventTerminal TaskEventType = "terminal"
)

// TaskEvent is one entry in the orchestrator's lifecycle feed.
type TaskEvent struct {
	Type      TaskEventType `json:"type"`
	TaskID    string        `json:"task_id"`
	Status    TaskStatus    `json:"status"`
	Strategy  StrategyTag   `json:"strategy,omitempty"`
	Backend   string        `json:"backend,omitempty"`
	Attempt   int           `json:"attempt,omitempty"`
	Quality   float64       `json:"quality,omitempty"`
	Accepted  bool          `json:"accepted,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// eventFeedBuffer is the capacity of the lifecycle channel. Publishing never
// blocks task execution; events beyond the buffer are dropped.
const eventFeedBuffer = 100

// eventMessageLimit caps how much of an error or rejection reason an event
// carries.
const eventMessageLimit = 200

// eventFeed fans lifecycle events out to an optional consumer channel.
type eventFeed struct {
	mu     sync.RWMutex
	ch     chan TaskEvent
	closed bool
}

func newEventFeed() *eventFeed {
	return &eventFeed{ch: make(chan TaskEvent, eventFeedBuffer)}
}

// publish delivers an event without blocking. Events are dropped when the
// buffer is full or the feed is closed.
func (f *eventFeed) publish(ev TaskEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ev.Message = truncate(ev.Message, eventMessageLimit)

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- ev:
	default:
	}
}

// events exposes the feed for consumers.
func (f *eventFeed) events() <-chan TaskEvent {
	return f.ch
}

// close ends the feed. Safe to call once all publishers have returned.
func (f *eventFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
}
