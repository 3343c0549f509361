package payment

import "errors"

var (
	// -- Initiator --
	ErrValidation      = errors.New("invalid checkout request")
	ErrExternalService = errors.New("payment processor request failed")
	ErrForbidden       = errors.New("checkout belongs to another user")

	// -- Reconciler --
	ErrUnauthorizedEvent  = errors.New("event signature verification failed")
	ErrMalformedEvent     = errors.New("malformed event")
	ErrUnknownCorrelation = errors.New("unknown checkout correlation")
	ErrDownstreamFailure  = errors.New("order creation failed")
)
