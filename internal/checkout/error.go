package checkout

import "errors"

var (
	// -- Validation --
	ErrNoItems     = errors.New("checkout has no items")
	ErrInvalidItem = errors.New("invalid checkout item")

	// -- Store state --
	ErrNotFound     = errors.New("checkout not found")
	ErrNotPending   = errors.New("checkout is not pending")
	ErrDuplicateKey = errors.New("checkout key already exists")
	ErrClaimLost    = errors.New("checkout claim no longer held")

	// -- Constants (External Systems) --
	PgUniqueViolation = "23505"
)
