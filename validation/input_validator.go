package validation

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/marketsim/matching-engine/models"
)

const (
	MaxPricePrecision = 8

	MaxClientIDLength   = 64
	MaxInstrumentLength = 20

	ClientIDPattern   = `^[a-zA-Z0-9_-]+$`
	InstrumentPattern = `^[A-Z0-9-]+$`
)

var (
	clientIDRegex   = regexp.MustCompile(ClientIDPattern)
	instrumentRegex = regexp.MustCompile(InstrumentPattern)

	// Price and quantity bounds for a sane book. Anything outside is
	// rejected before it can touch the matching engine.
	MinPrice    = decimal.New(1, -8) // 0.00000001
	MaxPrice    = decimal.New(1, 9)  // 1e9
	MinQuantity = decimal.New(1, -8)
	MaxQuantity = decimal.New(1, 9)

	// All sentinels wrap models.ErrInvalidOrder so callers can classify
	// any rejection with a single errors.Is check.
	ErrInvalidPrice           = fmt.Errorf("%w: non-positive price", models.ErrInvalidOrder)
	ErrPricePrecisionExceeded = fmt.Errorf("%w: price precision exceeds %d decimals", models.ErrInvalidOrder, MaxPricePrecision)
	ErrPriceOutOfRange        = fmt.Errorf("%w: price out of valid range", models.ErrInvalidOrder)
	ErrInvalidQuantity        = fmt.Errorf("%w: non-positive quantity", models.ErrInvalidOrder)
	ErrQuantityOutOfRange     = fmt.Errorf("%w: quantity out of valid range", models.ErrInvalidOrder)
	ErrInvalidClientID        = fmt.Errorf("%w: invalid client_id format or length", models.ErrInvalidOrder)
	ErrInvalidInstrument      = fmt.Errorf("%w: invalid instrument format or length", models.ErrInvalidOrder)
	ErrInvalidSide            = fmt.Errorf("%w: invalid order side", models.ErrInvalidOrder)
)

// ValidationConfig bounds what the validator accepts
type ValidationConfig struct {
	MaxPricePrecision   int32
	MinPrice            decimal.Decimal
	MaxPrice            decimal.Decimal
	MinQuantity         decimal.Decimal
	MaxQuantity         decimal.Decimal
	MaxClientIDLength   int
	MaxInstrumentLength int
}

func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		MaxPricePrecision:   MaxPricePrecision,
		MinPrice:            MinPrice,
		MaxPrice:            MaxPrice,
		MinQuantity:         MinQuantity,
		MaxQuantity:         MaxQuantity,
		MaxClientIDLength:   MaxClientIDLength,
		MaxInstrumentLength: MaxInstrumentLength,
	}
}

// InputValidator checks order fields against configured bounds before they
// reach the book. Rejection happens with no side effect on the book.
type InputValidator struct {
	config *ValidationConfig
}

func NewInputValidator(config *ValidationConfig) *InputValidator {
	if config == nil {
		config = DefaultValidationConfig()
	}
	return &InputValidator{config: config}
}

// NewDefaultInputValidator creates a validator with default configuration
func NewDefaultInputValidator() *InputValidator {
	return NewInputValidator(nil)
}

// ValidatePrice checks positivity, precision, and range
func (v *InputValidator) ValidatePrice(price decimal.Decimal) error {
	if price.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidPrice
	}
	if price.Exponent() < -v.config.MaxPricePrecision {
		return ErrPricePrecisionExceeded
	}
	if price.LessThan(v.config.MinPrice) || price.GreaterThan(v.config.MaxPrice) {
		return ErrPriceOutOfRange
	}
	return nil
}

// ValidateQuantity checks positivity and range
func (v *InputValidator) ValidateQuantity(quantity decimal.Decimal) error {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidQuantity
	}
	if quantity.LessThan(v.config.MinQuantity) || quantity.GreaterThan(v.config.MaxQuantity) {
		return ErrQuantityOutOfRange
	}
	return nil
}

// ValidateClientID checks length and character set
func (v *InputValidator) ValidateClientID(clientID string) error {
	if clientID == "" || len(clientID) > v.config.MaxClientIDLength {
		return ErrInvalidClientID
	}
	if !clientIDRegex.MatchString(clientID) {
		return ErrInvalidClientID
	}
	return nil
}

// ValidateInstrument checks length and character set
func (v *InputValidator) ValidateInstrument(instrument string) error {
	if instrument == "" || len(instrument) > v.config.MaxInstrumentLength {
		return ErrInvalidInstrument
	}
	if !instrumentRegex.MatchString(instrument) {
		return ErrInvalidInstrument
	}
	return nil
}

// ValidateSide checks the order side
func (v *InputValidator) ValidateSide(side models.OrderSide) error {
	if side != models.OrderSideBuy && side != models.OrderSideSell {
		return ErrInvalidSide
	}
	return nil
}

// ValidateOrder runs every field check. The first failure is returned and
// the order must not be submitted to the book.
func (v *InputValidator) ValidateOrder(order *models.Order) error {
	if err := v.ValidateClientID(order.ClientID); err != nil {
		return err
	}
	if err := v.ValidateInstrument(order.Instrument); err != nil {
		return err
	}
	if err := v.ValidateSide(order.Side); err != nil {
		return err
	}
	if err := v.ValidatePrice(order.Price); err != nil {
		return err
	}
	if err := v.ValidateQuantity(order.Quantity); err != nil {
		return err
	}
	return nil
}
