package events

import (
	"testing"

	"github.com/jscyril/golang_midi_player/api"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	positions := bus.Subscribe(api.EventPositionUpdate)
	ended := bus.Subscribe(api.EventSongEnded)

	bus.Publish(api.AudioEvent{Type: api.EventPositionUpdate, Payload: 512})

	select {
	case ev := <-positions:
		if ev.Payload.(int) != 512 {
			t.Errorf("payload = %v, want 512", ev.Payload)
		}
	default:
		t.Fatal("position subscriber did not receive event")
	}

	select {
	case ev := <-ended:
		t.Fatalf("song-ended subscriber received unrelated event %v", ev)
	default:
	}
}

func TestSubscribeAllReceivesEveryType(t *testing.T) {
	bus := NewEventBus()
	all := bus.SubscribeAll()

	bus.Publish(api.AudioEvent{Type: api.EventStateChange})
	bus.Publish(api.AudioEvent{Type: api.EventSettingChanged})

	for i := 0; i < 2; i++ {
		select {
		case <-all:
		default:
			t.Fatalf("expected event %d on SubscribeAll channel", i)
		}
	}

	// Close must not panic on channels registered under several types
	bus.Close()
	if _, ok := <-all; ok {
		t.Error("channel should be closed after Close")
	}
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	_ = bus.Subscribe(api.EventPositionUpdate)
	for i := 0; i < 100; i++ {
		bus.Publish(api.AudioEvent{Type: api.EventPositionUpdate, Payload: i})
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(api.EventError)
	bus.Unsubscribe(ch)
	bus.Publish(api.AudioEvent{Type: api.EventError})

	select {
	case <-ch:
		t.Error("unsubscribed channel received an event")
	default:
	}
}

func TestForward(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	started := bus.Subscribe(api.EventSongStarted)
	src := make(chan api.AudioEvent, 1)
	src <- api.AudioEvent{Type: api.EventSongStarted, Payload: "a.mid"}
	close(src)

	bus.Forward(src)

	select {
	case ev := <-started:
		if ev.Payload != "a.mid" {
			t.Errorf("payload = %v", ev.Payload)
		}
	default:
		t.Fatal("forwarded event not published")
	}
}
