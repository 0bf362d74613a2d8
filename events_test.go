package swarm

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestEventFeedPublish(t *testing.T) {
	feed := newEventFeed()

	feed.publish(TaskEvent{Type: EventTransition, TaskID: "t1", Status: StatusAnalyzing})

	select {
	case ev := <-feed.events():
		AssertEqual(t, EventTransition, ev.Type, "type")
		AssertEqual(t, "t1", ev.TaskID, "task id")
		AssertEqual(t, StatusAnalyzing, ev.Status, "status")
		if ev.Timestamp.IsZero() {
			t.Error("Expected the feed to stamp a timestamp")
		}
	default:
		t.Fatal("Expected a buffered event")
	}
}

func TestEventFeedKeepsExplicitTimestamp(t *testing.T) {
	feed := newEventFeed()
	stamp := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	feed.publish(TaskEvent{Type: EventTerminal, TaskID: "t1", Timestamp: stamp})

	ev := <-feed.events()
	AssertEqual(t, stamp, ev.Timestamp, "explicit timestamp")
}

func TestEventFeedClipsLongMessages(t *testing.T) {
	feed := newEventFeed()
	long := strings.Repeat("x", eventMessageLimit+50)

	feed.publish(TaskEvent{Type: EventAttempt, TaskID: "t1", Message: long})

	ev := <-feed.events()
	AssertEqual(t, eventMessageLimit, len(ev.Message), "message length")
	if !strings.HasSuffix(ev.Message, "...") {
		t.Error("Expected a clipped message to end with an ellipsis")
	}
}

func TestEventFeedDropsWhenFull(t *testing.T) {
	feed := newEventFeed()

	// Publishing past the buffer must never block the publisher.
	for i := 0; i < eventFeedBuffer+25; i++ {
		feed.publish(TaskEvent{Type: EventAttempt, TaskID: fmt.Sprintf("t%d", i)})
	}

	var received int
	for {
		select {
		case <-feed.events():
			received++
			continue
		default:
		}
		break
	}
	AssertEqual(t, eventFeedBuffer, received, "buffered events")
}

func TestEventFeedClose(t *testing.T) {
	feed := newEventFeed()
	feed.close()

	// Publishing after close is a no-op, not a panic.
	feed.publish(TaskEvent{Type: EventTransition, TaskID: "t1"})

	if _, ok := <-feed.events(); ok {
		t.Error("Expected the channel to be closed")
	}
	feed.close()
}
