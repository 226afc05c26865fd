package events

import (
	"sync"
	"time"
)

// EventType identifies orchestrator events
type EventType string

const (
	EventCycleCompleted   EventType = "CYCLE_COMPLETED"
	EventTradeExecuted    EventType = "TRADE_EXECUTED"
	EventTradeRejected    EventType = "TRADE_REJECTED"
	EventPendingCreated   EventType = "PENDING_CREATED"
	EventPendingResolved  EventType = "PENDING_RESOLVED"
	EventAutoPause        EventType = "AUTO_PAUSE"
	EventEmergencyPause   EventType = "EMERGENCY_PAUSE"
	EventEmergencyStopAll EventType = "EMERGENCY_STOP_ALL"
	EventProfileApplied   EventType = "PROFILE_APPLIED"
	EventError            EventType = "ERROR"
)

// Event is one system event
type Event struct {
	Type      EventType      `json:"type"`
	ModelID   int64          `json:"model_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Subscriber handles events. Subscribers run on their own goroutine per
// event; a slow subscriber never blocks a publisher.
type Subscriber func(Event)

// Bus fans events out to subscribers
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish sends an event to all matching subscribers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishTradeExecuted publishes a fill event
func (b *Bus) PublishTradeExecuted(modelID int64, coin, side, quantity, price, status string) {
	b.Publish(Event{
		Type:    EventTradeExecuted,
		ModelID: modelID,
		Data: map[string]any{
			"coin":     coin,
			"side":     side,
			"quantity": quantity,
			"price":    price,
			"status":   status,
		},
	})
}

// PublishTradeRejected publishes a risk denial event
func (b *Bus) PublishTradeRejected(modelID int64, coin, reason string) {
	b.Publish(Event{
		Type:    EventTradeRejected,
		ModelID: modelID,
		Data: map[string]any{
			"coin":   coin,
			"reason": reason,
		},
	})
}

// PublishPendingCreated publishes a queue entry event
func (b *Bus) PublishPendingCreated(modelID, pendingID int64, coin string) {
	b.Publish(Event{
		Type:    EventPendingCreated,
		ModelID: modelID,
		Data: map[string]any{
			"pending_id": pendingID,
			"coin":       coin,
		},
	})
}

// PublishPendingResolved publishes a queue transition event
func (b *Bus) PublishPendingResolved(modelID, pendingID int64, status string) {
	b.Publish(Event{
		Type:    EventPendingResolved,
		ModelID: modelID,
		Data: map[string]any{
			"pending_id": pendingID,
			"status":     status,
		},
	})
}

// PublishError publishes an error event
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]any{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{Type: EventError, Data: data})
}
