package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventAdviceEmitted       EventType = "ADVICE_EMITTED"
	EventAlignmentConflict   EventType = "ALIGNMENT_CONFLICT"
	EventThresholdsReloaded  EventType = "THRESHOLDS_RELOADED"
	EventStateCleared        EventType = "STATE_CLEARED"
	EventDataSourceDown      EventType = "DATA_SOURCE_DOWN"
	EventDataSourceRecovered EventType = "DATA_SOURCE_RECOVERED"
	EventServiceStarted      EventType = "SERVICE_STARTED"
	EventServiceStopped      EventType = "SERVICE_STOPPED"
	EventError               EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishAdvice publishes an advice emitted event. The payload carries the
// per-horizon decisions plus alignment so subscribers never re-derive them.
func (eb *EventBus) PublishAdvice(symbol string, shortDecision, mediumDecision, alignmentType, thresholdsVersion string) {
	eb.Publish(Event{
		Type: EventAdviceEmitted,
		Data: map[string]interface{}{
			"symbol":             symbol,
			"short_decision":     shortDecision,
			"medium_decision":    mediumDecision,
			"alignment_type":     alignmentType,
			"thresholds_version": thresholdsVersion,
		},
	})
}

// PublishAlignmentConflict publishes a conflict between the two horizons
func (eb *EventBus) PublishAlignmentConflict(symbol, alignmentType, recommendedAction string) {
	eb.Publish(Event{
		Type: EventAlignmentConflict,
		Data: map[string]interface{}{
			"symbol":             symbol,
			"alignment_type":     alignmentType,
			"recommended_action": recommendedAction,
		},
	})
}

// PublishThresholdsReloaded publishes a threshold reload outcome
func (eb *EventBus) PublishThresholdsReloaded(version string, err error) {
	data := map[string]interface{}{
		"version": version,
		"success": err == nil,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventThresholdsReloaded,
		Data: data,
	})
}

// PublishStateCleared publishes a decision-state wipe
func (eb *EventBus) PublishStateCleared(symbol string) {
	scope := symbol
	if scope == "" {
		scope = "all"
	}
	eb.Publish(Event{
		Type: EventStateCleared,
		Data: map[string]interface{}{
			"scope": scope,
		},
	})
}

// PublishDataSource publishes a data-source availability transition
func (eb *EventBus) PublishDataSource(source string, up bool, reason string) {
	eventType := EventDataSourceDown
	if up {
		eventType = EventDataSourceRecovered
	}
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"source": source,
			"reason": reason,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}

// SubscriberCount returns the number of subscribers that would see an event
// of the given type.
func (eb *EventBus) SubscriberCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers[eventType]) + len(eb.allSubs)
}
