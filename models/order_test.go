package models

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestNewOrder(t *testing.T) {
	clientID := "client-123"
	instrument := "BTC-USD"
	side := OrderSideBuy
	price := decimal.NewFromInt(70000)
	quantity := decimal.NewFromFloat(1.5)

	order := NewOrder(clientID, instrument, side, price, quantity)

	if order.ClientID != clientID {
		t.Errorf("Expected ClientID %s, got %s", clientID, order.ClientID)
	}
	if order.Instrument != instrument {
		t.Errorf("Expected Instrument %s, got %s", instrument, order.Instrument)
	}
	if order.Side != side {
		t.Errorf("Expected Side %s, got %s", side, order.Side)
	}
	if !order.Price.Equal(price) {
		t.Errorf("Expected Price %s, got %s", price, order.Price)
	}
	if !order.Quantity.Equal(quantity) {
		t.Errorf("Expected Quantity %s, got %s", quantity, order.Quantity)
	}
	if !order.FilledQuantity.IsZero() {
		t.Errorf("Expected FilledQuantity to be zero, got %s", order.FilledQuantity)
	}
	if order.Status != OrderStatusOpen {
		t.Errorf("Expected Status %s, got %s", OrderStatusOpen, order.Status)
	}
	if order.ID == uuid.Nil {
		t.Error("Expected ID to be generated")
	}
}

func TestOrderValidate(t *testing.T) {
	tests := []struct {
		name  string
		order *Order
		valid bool
	}{
		{
			name: "valid limit order",
			order: &Order{
				ClientID:   "client-1",
				Instrument: "BTC-USD",
				Side:       OrderSideBuy,
				Price:      decimal.NewFromInt(70000),
				Quantity:   decimal.NewFromInt(1),
			},
			valid: true,
		},
		{
			name: "missing client id",
			order: &Order{
				Instrument: "BTC-USD",
				Side:       OrderSideBuy,
				Price:      decimal.NewFromInt(70000),
				Quantity:   decimal.NewFromInt(1),
			},
			valid: false,
		},
		{
			name: "missing instrument",
			order: &Order{
				ClientID: "client-1",
				Side:     OrderSideSell,
				Price:    decimal.NewFromInt(70000),
				Quantity: decimal.NewFromInt(1),
			},
			valid: false,
		},
		{
			name: "unknown side",
			order: &Order{
				ClientID:   "client-1",
				Instrument: "BTC-USD",
				Side:       OrderSide("short"),
				Price:      decimal.NewFromInt(70000),
				Quantity:   decimal.NewFromInt(1),
			},
			valid: false,
		},
		{
			name: "zero quantity",
			order: &Order{
				ClientID:   "client-1",
				Instrument: "BTC-USD",
				Side:       OrderSideSell,
				Price:      decimal.NewFromInt(100),
				Quantity:   decimal.Zero,
			},
			valid: false,
		},
		{
			name: "negative quantity",
			order: &Order{
				ClientID:   "client-1",
				Instrument: "BTC-USD",
				Side:       OrderSideSell,
				Price:      decimal.NewFromInt(100),
				Quantity:   decimal.NewFromInt(-5),
			},
			valid: false,
		},
		{
			name: "zero price",
			order: &Order{
				ClientID:   "client-1",
				Instrument: "BTC-USD",
				Side:       OrderSideBuy,
				Price:      decimal.Zero,
				Quantity:   decimal.NewFromInt(1),
			},
			valid: false,
		},
		{
			name: "filled quantity exceeds quantity",
			order: &Order{
				ClientID:       "client-1",
				Instrument:     "BTC-USD",
				Side:           OrderSideBuy,
				Price:          decimal.NewFromInt(100),
				Quantity:       decimal.NewFromInt(1),
				FilledQuantity: decimal.NewFromInt(2),
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.order.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected order to be valid, got %v", err)
			}
			if !tt.valid {
				if err == nil {
					t.Fatal("Expected validation error, got nil")
				}
				if !errors.Is(err, ErrInvalidOrder) {
					t.Errorf("Expected error to wrap ErrInvalidOrder, got %v", err)
				}
			}
			if tt.order.IsValid() != tt.valid {
				t.Errorf("Expected IsValid() = %v", tt.valid)
			}
		})
	}
}

func TestOrderFill(t *testing.T) {
	order := NewOrder("client-1", "BTC-USD", OrderSideBuy,
		decimal.NewFromInt(50000), decimal.NewFromInt(10))

	if err := order.Fill(decimal.NewFromInt(4)); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if order.Status != OrderStatusPartiallyFilled {
		t.Errorf("Expected status %s, got %s", OrderStatusPartiallyFilled, order.Status)
	}
	if !order.RemainingQuantity().Equal(decimal.NewFromInt(6)) {
		t.Errorf("Expected remaining 6, got %s", order.RemainingQuantity())
	}
	if !order.IsPartiallyFilled() {
		t.Error("Expected order to be partially filled")
	}

	if err := order.Fill(decimal.NewFromInt(6)); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if order.Status != OrderStatusFilled {
		t.Errorf("Expected status %s, got %s", OrderStatusFilled, order.Status)
	}
	if !order.IsFilled() {
		t.Error("Expected order to be filled")
	}
	if !order.RemainingQuantity().IsZero() {
		t.Errorf("Expected zero remaining, got %s", order.RemainingQuantity())
	}
}

func TestOrderFillExceedsRemaining(t *testing.T) {
	order := NewOrder("client-1", "BTC-USD", OrderSideSell,
		decimal.NewFromInt(100), decimal.NewFromInt(5))

	if err := order.Fill(decimal.NewFromInt(6)); err == nil {
		t.Error("Expected error when filling more than remaining quantity")
	}
	if !order.FilledQuantity.IsZero() {
		t.Errorf("Overfill must not mutate the order, got filled %s", order.FilledQuantity)
	}
}

func TestOrderCancelAndReject(t *testing.T) {
	order := NewOrder("client-1", "BTC-USD", OrderSideBuy,
		decimal.NewFromInt(100), decimal.NewFromInt(1))

	order.Cancel()
	if order.Status != OrderStatusCancelled {
		t.Errorf("Expected status %s, got %s", OrderStatusCancelled, order.Status)
	}
	if order.CanBeFilled() {
		t.Error("Cancelled order must not be fillable")
	}

	order = NewOrder("client-1", "BTC-USD", OrderSideBuy,
		decimal.NewFromInt(100), decimal.NewFromInt(1))
	order.Reject()
	if order.Status != OrderStatusRejected {
		t.Errorf("Expected status %s, got %s", OrderStatusRejected, order.Status)
	}
}
