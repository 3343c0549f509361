package httptransport

import (
	"context"
	"errors"
	"net/http"

	"checkout-be/internal/checkout"
	"checkout-be/internal/payment"
)

var (
	ErrUnauthenticated = errors.New("missing user identity")
	ErrBadRequest      = errors.New("bad request")
)

// Kind is the machine-readable error name sent in error responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, payment.ErrValidation),
		errors.Is(err, ErrBadRequest):
		return "invalid_request"

	case errors.Is(err, payment.ErrMalformedEvent):
		return "malformed_event"

	case errors.Is(err, payment.ErrUnauthorizedEvent):
		return "unauthorized_event"

	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"

	case errors.Is(err, payment.ErrForbidden):
		return "forbidden"

	case errors.Is(err, checkout.ErrNotFound):
		return "not_found"

	case errors.Is(err, payment.ErrExternalService):
		return "payment_processor"

	case errors.Is(err, payment.ErrDownstreamFailure):
		return "downstream_failure"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, payment.ErrValidation),
		errors.Is(err, payment.ErrMalformedEvent),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest

	case errors.Is(err, payment.ErrUnauthorizedEvent),
		errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized

	case errors.Is(err, payment.ErrForbidden):
		return http.StatusForbidden

	case errors.Is(err, checkout.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, payment.ErrExternalService):
		return http.StatusBadGateway

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	// the processor retries delivery on any 5xx
	case errors.Is(err, payment.ErrDownstreamFailure):
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
