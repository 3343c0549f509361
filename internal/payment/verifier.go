package payment

import (
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

// Verifier authenticates a raw webhook body against its signature header.
type Verifier interface {
	Verify(payload []byte, header string) error
}

type stripeVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewStripeVerifier(secret string, tolerance time.Duration) Verifier {
	return &stripeVerifier{secret: secret, tolerance: tolerance}
}

// Verify checks the signature and the timestamp window. An unset secret
// rejects everything.
func (v *stripeVerifier) Verify(payload []byte, header string) error {
	if v.secret == "" {
		return fmt.Errorf("%w: webhook secret not configured", ErrUnauthorizedEvent)
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, header, v.secret, v.tolerance); err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorizedEvent, err)
	}
	return nil
}
