package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventTypeNewTrade        EventType = "NewTrade"
	EventTypeOrderCancelled  EventType = "OrderCancelled"
	EventTypeOrderbookChange EventType = "OrderbookChange"
)

// Event is the envelope delivered to subscribed listeners
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// NewTradeEvent is published for every executed trade. Trade reporters and
// market-data publishers consume these; the book itself keeps no trades.
type NewTradeEvent struct {
	TradeID     uuid.UUID
	Instrument  string
	BuyOrderID  uuid.UUID
	SellOrderID uuid.UUID
	TakerSide   string
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Timestamp   time.Time
}

// OrderCancelledEvent is published when a resting order is pulled from the
// book before it filled. RemainingQuantity is what was still open.
type OrderCancelledEvent struct {
	OrderID           uuid.UUID
	Instrument        string
	Side              string
	Price             decimal.Decimal
	RemainingQuantity decimal.Decimal
	Timestamp         time.Time
}

// OrderbookChangeEvent is published when a price level's resting size
// changes: an order rests ("add"), is removed ("remove"), or shrinks by a
// partial fill ("update").
type OrderbookChangeEvent struct {
	Instrument string
	Side       string
	Action     string
	Price      decimal.Decimal
	NewSize    decimal.Decimal
	OldSize    decimal.Decimal
	Timestamp  time.Time
}

type EventListener func(event Event)

// EventBus fans events out to per-type listener lists. Listeners run on
// their own goroutines so a slow consumer cannot stall the matching worker.
type EventBus struct {
	listeners map[EventType][]EventListener
	mu        sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		listeners: make(map[EventType][]EventListener),
	}
}

func (eb *EventBus) Subscribe(eventType EventType, listener EventListener) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.listeners[eventType] = append(eb.listeners[eventType], listener)
}

func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	listeners := eb.listeners[event.Type]
	eb.mu.RUnlock()

	for _, listener := range listeners {
		go listener(event)
	}
}

// Unsubscribe removes all listeners for a specific event type
func (eb *EventBus) Unsubscribe(eventType EventType) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	delete(eb.listeners, eventType)
}

// ListenerCount returns the number of listeners for an event type
func (eb *EventBus) ListenerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.listeners[eventType])
}
