package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrPaymentsDisabled = errors.New("payments are not configured")
	ErrInvalidAmount    = errors.New("invalid payment amount")

	// ErrCheckoutCompleted means the customer paid before the session could be closed.
	ErrCheckoutCompleted = errors.New("checkout already completed")
)

// CheckoutRequest describes a one-off payment for a single booking.
type CheckoutRequest struct {
	BookingID      string
	Title          string
	Price          decimal.Decimal
	Currency       string
	CustomerEmail  string
	ExpiresAt      time.Time
	IdempotencyKey string
}

type Checkout struct {
	SessionID string
	URL       string
	ExpiresAt time.Time
}

type Provider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)
	// ExpireCheckout closes an open session so it can no longer be paid. Closing a session
	// that already expired is not an error.
	ExpireCheckout(ctx context.Context, sessionID string) error
}

type disabled struct{}

// Disabled is the provider used when no payment processor is configured. Priced event types
// cannot be booked through it.
func Disabled() Provider { return disabled{} }

func (disabled) CreateCheckout(context.Context, CheckoutRequest) (Checkout, error) {
	return Checkout{}, ErrPaymentsDisabled
}

// No sessions can be open without a processor.
func (disabled) ExpireCheckout(context.Context, string) error { return nil }

// Currencies Stripe charges in whole units.
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// MinorUnits converts a price to the integer amount a processor expects, e.g. 12.50 EUR -> 1250
// and 1500 JPY -> 1500. Prices with more precision than the currency allows are rejected.
func MinorUnits(price decimal.Decimal, currency string) (int64, error) {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return 0, fmt.Errorf("%w: currency %q", ErrInvalidAmount, currency)
	}
	if !price.IsPositive() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, price)
	}
	exp := int32(2)
	if zeroDecimal[currency] {
		exp = 0
	}
	minor := price.Shift(exp)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s %s has too many decimals", ErrInvalidAmount, price, strings.ToUpper(currency))
	}
	return minor.IntPart(), nil
}
