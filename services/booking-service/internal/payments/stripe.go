package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
)

// Stripe rejects checkout sessions that expire sooner than this.
const minSessionLifetime = 31 * time.Minute

type StripeConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
}

type StripeProvider struct {
	cfg StripeConfig
	now func() time.Time

	// Stripe API calls, replaced in tests.
	newSession    func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	expireSession func(string, *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error)
	getSession    func(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	return &StripeProvider{
		cfg:           cfg,
		now:           time.Now,
		newSession:    session.New,
		expireSession: session.Expire,
		getSession:    session.Get,
	}
}

func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if strings.TrimSpace(p.cfg.SecretKey) == "" {
		return Checkout{}, ErrPaymentsDisabled
	}
	params, err := p.checkoutParams(req)
	if err != nil {
		return Checkout{}, err
	}
	params.Context = ctx

	// stripe-go reads the key from a package global.
	stripe.Key = p.cfg.SecretKey
	sess, err := p.newSession(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("stripe checkout session: %w", err)
	}
	return Checkout{
		SessionID: sess.ID,
		URL:       sess.URL,
		ExpiresAt: time.Unix(sess.ExpiresAt, 0).UTC(),
	}, nil
}

// ExpireCheckout closes an open session. Stripe refuses to expire a session that is no longer
// open, so on failure the session is read back to tell a completed payment from one that lapsed.
func (p *StripeProvider) ExpireCheckout(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(p.cfg.SecretKey) == "" {
		return ErrPaymentsDisabled
	}
	stripe.Key = p.cfg.SecretKey

	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	sess, err := p.expireSession(sessionID, params)
	if err == nil {
		if sess != nil && sess.Status == stripe.CheckoutSessionStatusComplete {
			return ErrCheckoutCompleted
		}
		return nil
	}

	getParams := &stripe.CheckoutSessionParams{}
	getParams.Context = ctx
	current, getErr := p.getSession(sessionID, getParams)
	if getErr != nil {
		return fmt.Errorf("stripe expire session %s: %w", sessionID, err)
	}
	switch current.Status {
	case stripe.CheckoutSessionStatusComplete:
		return ErrCheckoutCompleted
	case stripe.CheckoutSessionStatusExpired:
		return nil
	default:
		return fmt.Errorf("stripe expire session %s: %w", sessionID, err)
	}
}

func (p *StripeProvider) checkoutParams(req CheckoutRequest) (*stripe.CheckoutSessionParams, error) {
	amount, err := MinorUnits(req.Price, req.Currency)
	if err != nil {
		return nil, err
	}
	expires := req.ExpiresAt
	if earliest := p.now().Add(minSessionLifetime); expires.Before(earliest) {
		expires = earliest
	}
	metadata := map[string]string{"booking_id": req.BookingID}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.cfg.SuccessURL),
		CancelURL:         stripe.String(p.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.BookingID),
		ExpiresAt:         stripe.Int64(expires.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Title),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	return params, nil
}
