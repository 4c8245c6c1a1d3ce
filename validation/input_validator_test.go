package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/marketsim/matching-engine/models"
)

func TestValidatePrice(t *testing.T) {
	v := NewDefaultInputValidator()

	tests := []struct {
		name    string
		price   string
		wantErr error
	}{
		{"valid price", "50000", nil},
		{"valid decimal price", "50000.12345678", nil},
		{"minimum price", "0.00000001", nil},
		{"zero price", "0", ErrInvalidPrice},
		{"negative price", "-10", ErrInvalidPrice},
		{"too many decimals", "0.123456789", ErrPricePrecisionExceeded},
		{"above maximum", "1000000001", ErrPriceOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidatePrice(decimal.RequireFromString(tt.price))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidatePrice(%s) = %v, want %v", tt.price, err, tt.wantErr)
			}
		})
	}
}

func TestValidateQuantity(t *testing.T) {
	v := NewDefaultInputValidator()

	tests := []struct {
		name     string
		quantity string
		wantErr  error
	}{
		{"valid quantity", "1.5", nil},
		{"minimum quantity", "0.00000001", nil},
		{"zero quantity", "0", ErrInvalidQuantity},
		{"negative quantity", "-1", ErrInvalidQuantity},
		{"above maximum", "1000000001", ErrQuantityOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateQuantity(decimal.RequireFromString(tt.quantity))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateQuantity(%s) = %v, want %v", tt.quantity, err, tt.wantErr)
			}
		})
	}
}

func TestValidateClientID(t *testing.T) {
	v := NewDefaultInputValidator()

	tests := []struct {
		name     string
		clientID string
		wantErr  error
	}{
		{"valid client id", "client-123", nil},
		{"valid with underscore", "client_abc", nil},
		{"empty", "", ErrInvalidClientID},
		{"too long", strings.Repeat("a", 65), ErrInvalidClientID},
		{"illegal characters", "client!@#", ErrInvalidClientID},
		{"whitespace", "client 1", ErrInvalidClientID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateClientID(tt.clientID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateClientID(%q) = %v, want %v", tt.clientID, err, tt.wantErr)
			}
		})
	}
}

func TestValidateInstrument(t *testing.T) {
	v := NewDefaultInputValidator()

	tests := []struct {
		name       string
		instrument string
		wantErr    error
	}{
		{"valid instrument", "BTC-USD", nil},
		{"valid alphanumeric", "BTCUSDT", nil},
		{"empty", "", ErrInvalidInstrument},
		{"lowercase", "btc-usd", ErrInvalidInstrument},
		{"too long", strings.Repeat("A", 21), ErrInvalidInstrument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateInstrument(tt.instrument)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateInstrument(%q) = %v, want %v", tt.instrument, err, tt.wantErr)
			}
		})
	}
}

func TestValidateOrder(t *testing.T) {
	v := NewDefaultInputValidator()

	valid := models.NewOrder("client-1", "BTC-USD", models.OrderSideBuy,
		decimal.RequireFromString("50000"), decimal.RequireFromString("1"))
	if err := v.ValidateOrder(valid); err != nil {
		t.Errorf("Expected valid order, got %v", err)
	}

	invalid := models.NewOrder("client-1", "BTC-USD", models.OrderSideSell,
		decimal.RequireFromString("100"), decimal.Zero)
	err := v.ValidateOrder(invalid)
	if err == nil {
		t.Fatal("Expected validation error for zero quantity")
	}
	if !errors.Is(err, models.ErrInvalidOrder) {
		t.Errorf("Expected error to wrap models.ErrInvalidOrder, got %v", err)
	}
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("Expected ErrInvalidQuantity, got %v", err)
	}
}

func TestValidateOrderCustomConfig(t *testing.T) {
	config := DefaultValidationConfig()
	config.MaxPrice = decimal.RequireFromString("1000")
	v := NewInputValidator(config)

	order := models.NewOrder("client-1", "BTC-USD", models.OrderSideBuy,
		decimal.RequireFromString("2000"), decimal.RequireFromString("1"))
	if err := v.ValidateOrder(order); !errors.Is(err, ErrPriceOutOfRange) {
		t.Errorf("Expected ErrPriceOutOfRange with custom config, got %v", err)
	}
}
