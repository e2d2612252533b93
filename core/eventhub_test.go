package core

import "testing"

func TestEventHubPublishDeliversToSubscriber(t *testing.T) {
	h := NewEventHub(4)
	sub := h.Subscribe("entity.spawn")

	h.Publish("entity.spawn", "e1")

	select {
	case ev := <-sub.C():
		if ev.Topic != "entity.spawn" || ev.Data != "e1" {
			t.Fatalf("got event %+v", ev)
		}
	default:
		t.Fatal("expected the subscriber to receive the published event")
	}
}

func TestEventHubPublishIgnoresOtherTopics(t *testing.T) {
	h := NewEventHub(4)
	sub := h.Subscribe("entity.spawn")
	h.Publish("entity.despawn", "e1")

	select {
	case ev := <-sub.C():
		t.Fatalf("did not expect an event on a different topic: %+v", ev)
	default:
	}
}

func TestEventHubPublishWithNoSubscribersIsNoOp(t *testing.T) {
	h := NewEventHub(4)
	h.Publish("nobody.listening", 42) // must not panic or block
}

func TestEventHubDropsEventOnFullBuffer(t *testing.T) {
	h := NewEventHub(1)
	sub := h.Subscribe("chunk.generate")

	h.Publish("chunk.generate", "first")
	h.Publish("chunk.generate", "second") // buffer full, dropped

	ev := <-sub.C()
	if ev.Data != "first" {
		t.Fatalf("got %+v, want the first event to have survived", ev)
	}
	select {
	case ev := <-sub.C():
		t.Fatalf("did not expect a second event, got %+v", ev)
	default:
	}
}

func TestEventHubCloseUnsubscribes(t *testing.T) {
	h := NewEventHub(4)
	sub := h.Subscribe("durability.destroy")
	if h.SubscriberCount("durability.destroy") != 1 {
		t.Fatal("expected one subscriber before Close()")
	}

	sub.Close()
	if h.SubscriberCount("durability.destroy") != 0 {
		t.Fatal("expected zero subscribers after Close()")
	}
}

func TestEventHubProcessCloseTearsDownAllSubscriptions(t *testing.T) {
	h := NewEventHub(4)
	sub := h.Subscribe("entity.spawn")
	h.Close()

	_, open := <-sub.C()
	if open {
		t.Fatal("expected the subscription channel to be closed by hub.Close()")
	}
}
