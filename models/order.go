package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidOrder is returned when an order fails validation before it
// reaches the book. The book is never mutated for a rejected order.
var ErrInvalidOrder = errors.New("invalid order")

// OrderSide represents the side of an order (buy or sell)
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus represents the current status of an order
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Order represents a limit order submitted to the matching engine.
// Prices and quantities are decimals, never floats, so repeated partial
// fills cannot accumulate rounding drift.
type Order struct {
	ID             uuid.UUID       `json:"id"`
	ClientID       string          `json:"client_id"`
	Instrument     string          `json:"instrument"`
	Side           OrderSide       `json:"side"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	// Sequence is the arrival sequence number assigned by the matching
	// engine. It is the time-priority tiebreaker among orders resting at
	// the same price and is unique for the lifetime of the engine.
	Sequence  uint64      `json:"sequence"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewOrder creates a new limit order with default values
func NewOrder(clientID, instrument string, side OrderSide, price, quantity decimal.Decimal) *Order {
	now := time.Now()
	return &Order{
		ID:             uuid.New(),
		ClientID:       clientID,
		Instrument:     instrument,
		Side:           side,
		Price:          price,
		Quantity:       quantity,
		FilledQuantity: decimal.Zero,
		Status:         OrderStatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks the order fields. All failures wrap ErrInvalidOrder so
// callers can classify rejections with errors.Is.
func (o *Order) Validate() error {
	if o.ClientID == "" {
		return fmt.Errorf("%w: missing client_id", ErrInvalidOrder)
	}
	if o.Instrument == "" {
		return fmt.Errorf("%w: missing instrument", ErrInvalidOrder)
	}
	if o.Side != OrderSideBuy && o.Side != OrderSideSell {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, o.Side)
	}
	if o.Price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: price %s must be positive", ErrInvalidOrder, o.Price)
	}
	if o.Quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: quantity %s must be positive", ErrInvalidOrder, o.Quantity)
	}
	if o.FilledQuantity.GreaterThan(o.Quantity) {
		return fmt.Errorf("%w: filled quantity %s exceeds quantity %s",
			ErrInvalidOrder, o.FilledQuantity, o.Quantity)
	}
	return nil
}

// IsValid reports whether the order passes validation
func (o *Order) IsValid() bool {
	return o.Validate() == nil
}

// RemainingQuantity returns the unfilled quantity of the order
func (o *Order) RemainingQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// IsFilled checks if the order is completely filled
func (o *Order) IsFilled() bool {
	return o.FilledQuantity.Equal(o.Quantity)
}

// IsPartiallyFilled checks if the order is partially filled
func (o *Order) IsPartiallyFilled() bool {
	return o.FilledQuantity.GreaterThan(decimal.Zero) && o.FilledQuantity.LessThan(o.Quantity)
}

// CanBeFilled checks if the order can still trade (is open or partially filled)
func (o *Order) CanBeFilled() bool {
	return o.Status == OrderStatusOpen || o.Status == OrderStatusPartiallyFilled
}

// Fill updates the order with a fill amount and recomputes its status.
// The quantity must not exceed the remaining quantity.
func (o *Order) Fill(quantity decimal.Decimal) error {
	if quantity.GreaterThan(o.RemainingQuantity()) {
		return fmt.Errorf("fill of %s exceeds remaining quantity %s on order %s",
			quantity, o.RemainingQuantity(), o.ID)
	}
	o.FilledQuantity = o.FilledQuantity.Add(quantity)
	o.UpdatedAt = time.Now()

	if o.IsFilled() {
		o.Status = OrderStatusFilled
	} else if o.IsPartiallyFilled() {
		o.Status = OrderStatusPartiallyFilled
	}
	return nil
}

// Cancel marks the order as cancelled
func (o *Order) Cancel() {
	o.Status = OrderStatusCancelled
	o.UpdatedAt = time.Now()
}

// Reject marks the order as rejected
func (o *Order) Reject() {
	o.Status = OrderStatusRejected
	o.UpdatedAt = time.Now()
}
