package payment

import (
	"encoding/json"

	"checkout-be/internal/checkout"
)

// MetadataCheckoutKey is the metadata field that carries the checkout key on
// the session and on the payment intent the session creates.
const MetadataCheckoutKey = "checkout_key"

type SessionRequest struct {
	Key   string
	Items []checkout.LineItem
	Email string
}

// Session is the hosted payment page returned by the processor.
type Session struct {
	ID  string
	URL string
}

type RedirectTarget struct {
	URL         string `json:"url"`
	CheckoutKey string `json:"checkoutKey"`
}

type Outcome string

const (
	OutcomeProcessed    Outcome = "processed"
	OutcomeAcknowledged Outcome = "acknowledged"
	OutcomeIgnored      Outcome = "ignored"
)

// HandledEvent is what the webhook endpoint answers with. Every value maps to
// a 2xx response.
type HandledEvent struct {
	EventID     string          `json:"eventId"`
	Type        string          `json:"type"`
	Kind        Kind            `json:"kind"`
	Outcome     Outcome         `json:"outcome"`
	CheckoutKey string          `json:"checkoutKey,omitempty"`
	OrderID     *uint           `json:"orderId,omitempty"`
	Object      json.RawMessage `json:"object,omitempty"`
}
