package events

import "testing"

func TestBusDeliversToMatchingSubscribers(t *testing.T) {
	bus := NewBus()
	state := bus.Subscribe(EventPlaybackState)
	many := bus.SubscribeMany(EventPlaybackState, EventTrackChanged)

	bus.Publish(EventTrackChanged, Payload{"track_id": "t1"})

	select {
	case p := <-many:
		if p["type"] != EventTrackChanged {
			t.Fatalf("unexpected type %v", p["type"])
		}
		if p["track_id"] != "t1" {
			t.Fatalf("unexpected payload %v", p)
		}
	default:
		t.Fatal("expected multi-type subscriber to receive track change")
	}

	select {
	case p := <-state:
		t.Fatalf("state subscriber should not receive track change: %v", p)
	default:
	}
}

func TestBusPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventProgress)

	for i := 0; i < cap(sub)+10; i++ {
		bus.Publish(EventProgress, Payload{"i": i})
	}
	if len(sub) != cap(sub) {
		t.Fatalf("expected full buffer, got %d/%d", len(sub), cap(sub))
	}
}

func TestBusUnsubscribeClosesOnce(t *testing.T) {
	bus := NewBus()
	sub := bus.SubscribeMany(EventPlaybackState, EventQueueChanged)

	bus.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatal("expected closed subscriber")
	}

	// A second unsubscribe must not panic on double close.
	bus.Unsubscribe(sub)
	bus.Publish(EventQueueChanged, nil)
}
