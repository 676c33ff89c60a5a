package hub

import (
	"context"
	"testing"
	"time"

	"github.com/motionforge/renderline/internal/wire"
)

func successEvent(sourceID string) wire.JobEvent {
	return wire.JobEvent{
		Message:    "video render complete",
		VideoURL:   "https://cdn.test/" + sourceID + ".mp4",
		SourceID:   sourceID,
		SourceType: wire.SourceTypeCanvas,
		Status:     wire.JobStatusSuccess,
	}
}

func TestDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	dispatcher.Publish("user-1", successEvent("doc-a"))

	select {
	case received := <-stream:
		if received.SourceID != "doc-a" {
			t.Fatalf("expected doc-a, got %s", received.SourceID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected job event within deadline")
	}
}

func TestDispatcherIsolatedByUser(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otherCtx, otherCancel := context.WithCancel(context.Background())
	defer otherCancel()

	userStream, cleanup := dispatcher.Subscribe(ctx, "user-2")
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(otherCtx, "user-3")
	defer otherCleanup()

	dispatcher.Publish("user-3", successEvent("doc-c"))

	select {
	case <-userStream:
		t.Fatal("did not expect an event for an unrelated user")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case event := <-otherStream:
		if event.SourceID != "doc-c" {
			t.Fatalf("expected doc-c, received %s", event.SourceID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected job event for subscribed user")
	}
}

func TestDispatcherFansOutToEveryChannel(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, firstCleanup := dispatcher.Subscribe(ctx, "user-1")
	defer firstCleanup()
	second, secondCleanup := dispatcher.Subscribe(ctx, "user-1")
	defer secondCleanup()

	dispatcher.Publish("user-1", successEvent("doc-a"))

	for _, stream := range []<-chan wire.JobEvent{first, second} {
		select {
		case event := <-stream:
			if event.SourceID != "doc-a" {
				t.Fatalf("unexpected event %+v", event)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatal("expected every channel to receive the event")
		}
	}
}

func TestDispatcherCleanupDetachesSubscriber(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, cleanup := dispatcher.Subscribe(ctx, "user-1")
	if got := dispatcher.SubscriberCount("user-1"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	cleanup()
	if got := dispatcher.SubscriberCount("user-1"); got != 0 {
		t.Fatalf("expected subscriber removed, got %d", got)
	}

	// Publishing with no subscribers is a no-op.
	dispatcher.Publish("user-1", successEvent("doc-a"))
}

func TestDispatcherContextCancelDetachesSubscriber(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	cancel()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if dispatcher.SubscriberCount("user-1") == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected context cancellation to detach the subscriber")
}
