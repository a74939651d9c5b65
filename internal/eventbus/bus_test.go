package eventbus

import "testing"

func TestBusPublishSubscribe(t *testing.T) {
	bus := New[string]()
	ch := bus.Subscribe()
	bus.Publish("epoch done")
	if v := <-ch; v != "epoch done" {
		t.Fatalf("expected event, got %v", v)
	}
	bus.Unsubscribe(ch)
}

func TestBusDropsWhenSubscriberLags(t *testing.T) {
	bus := New[int]()
	ch := bus.Subscribe()
	for i := 0; i < 20; i++ {
		bus.Publish(i)
	}
	// the channel buffer holds 8; the rest must have been dropped silently
	var got int
	for {
		select {
		case <-ch:
			got++
			continue
		default:
		}
		break
	}
	if got != 8 {
		t.Fatalf("buffered %d events, want 8", got)
	}
}

func TestBusClose(t *testing.T) {
	bus := New[int]()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
	bus.Publish(1)
	if ch := bus.Subscribe(); ch == nil {
		t.Fatalf("subscribe after close must return a closed channel")
	}
}

func TestBusUnsubscribeAfterClose(t *testing.T) {
	bus := New[int]()
	ch := bus.Subscribe()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Unsubscribe after Close: %v", r)
		}
	}()
	bus.Unsubscribe(ch)
}
