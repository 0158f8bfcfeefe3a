package events

import (
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, done chan Event) Event {
	t.Helper()
	select {
	case ev := <-done:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventAdviceEmitted, func(ev Event) { got <- ev })

	bus.PublishAdvice("BTCUSDT", "long", "no_trade", "partial_long", "abc123")

	ev := waitFor(t, got)
	if ev.Type != EventAdviceEmitted {
		t.Errorf("event type = %s, want %s", ev.Type, EventAdviceEmitted)
	}
	if ev.Data["symbol"] != "BTCUSDT" {
		t.Errorf("symbol = %v, want BTCUSDT", ev.Data["symbol"])
	}
	if ev.Data["short_decision"] != "long" {
		t.Errorf("short_decision = %v, want long", ev.Data["short_decision"])
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestSubscribeIgnoresOtherTypes(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventThresholdsReloaded, func(ev Event) { got <- ev })

	bus.PublishStateCleared("ETHUSDT")

	select {
	case ev := <-got:
		t.Errorf("unexpected event delivered: %s", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	var mu sync.Mutex
	var seen []EventType
	done := make(chan struct{}, 3)
	bus.SubscribeAll(func(ev Event) {
		mu.Lock()
		seen = append(seen, ev.Type)
		mu.Unlock()
		done <- struct{}{}
	})

	bus.PublishDataSource("binance", false, "timeout")
	bus.PublishDataSource("binance", true, "")
	bus.PublishError("fetcher", "poll failed", nil)

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Errorf("saw %d events, want 3", len(seen))
	}
}

func TestPublishDataSourceDirection(t *testing.T) {
	bus := NewEventBus()
	down := make(chan Event, 1)
	up := make(chan Event, 1)
	bus.Subscribe(EventDataSourceDown, func(ev Event) { down <- ev })
	bus.Subscribe(EventDataSourceRecovered, func(ev Event) { up <- ev })

	bus.PublishDataSource("binance", false, "circuit open")
	ev := waitFor(t, down)
	if ev.Data["reason"] != "circuit open" {
		t.Errorf("reason = %v", ev.Data["reason"])
	}

	bus.PublishDataSource("binance", true, "")
	ev = waitFor(t, up)
	if ev.Data["source"] != "binance" {
		t.Errorf("source = %v", ev.Data["source"])
	}
}

func TestStateClearedScope(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventStateCleared, func(ev Event) { got <- ev })

	bus.PublishStateCleared("")
	ev := waitFor(t, got)
	if ev.Data["scope"] != "all" {
		t.Errorf("scope = %v, want all", ev.Data["scope"])
	}
}

func TestSubscriberCount(t *testing.T) {
	bus := NewEventBus()
	if n := bus.SubscriberCount(EventAdviceEmitted); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
	bus.Subscribe(EventAdviceEmitted, func(Event) {})
	bus.SubscribeAll(func(Event) {})
	if n := bus.SubscriberCount(EventAdviceEmitted); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}
