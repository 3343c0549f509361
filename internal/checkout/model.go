package checkout

import (
	"fmt"
	"math"
	"time"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusFulfilled  Status = "FULFILLED"
	StatusExpired    Status = "EXPIRED"
)

// LineItem is one cart row. UnitPrice is in the minor currency unit.
type LineItem struct {
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
}

func (i LineItem) Subtotal() int64 {
	return i.UnitPrice * i.Quantity
}

// Total is the only place a checkout amount is computed. The stored total and
// the amounts sent to the payment processor both derive from the same
// UnitPrice and Quantity fields.
func Total(items []LineItem) int64 {
	var total int64
	for _, item := range items {
		total += item.Subtotal()
	}
	return total
}

// ValidateItems rejects empty carts, unnamed items, negative prices,
// non-positive quantities and totals that do not fit in an int64.
func ValidateItems(items []LineItem) error {
	if len(items) == 0 {
		return ErrNoItems
	}

	var total int64
	for i, item := range items {
		switch {
		case item.Name == "":
			return fmt.Errorf("%w: item %d has no name", ErrInvalidItem, i)
		case item.UnitPrice < 0:
			return fmt.Errorf("%w: item %d has negative price", ErrInvalidItem, i)
		case item.Quantity <= 0:
			return fmt.Errorf("%w: item %d quantity must be greater than zero", ErrInvalidItem, i)
		case item.UnitPrice > 0 && item.Quantity > math.MaxInt64/item.UnitPrice:
			return fmt.Errorf("%w: item %d amount overflows", ErrInvalidItem, i)
		}

		sub := item.Subtotal()
		if total > math.MaxInt64-sub {
			return fmt.Errorf("%w: total amount overflows", ErrInvalidItem)
		}
		total += sub
	}
	return nil
}

// Identity is the authenticated user that started a checkout.
type Identity struct {
	UserID uint
	Email  string
}

// Descriptor binds one checkout attempt to the cart and the user that
// started it. Items and Total never change after Save.
type Descriptor struct {
	Key         string     `json:"key"`
	SessionID   string     `json:"session_id,omitempty"`
	UserID      uint       `json:"user_id"`
	Items       []LineItem `json:"items"`
	Total       int64      `json:"total"`
	Currency    string     `json:"currency"`
	Status      Status     `json:"status"`
	OrderID     *uint      `json:"order_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	FulfilledAt *time.Time `json:"fulfilled_at,omitempty"`
}

// claimable reports whether a claim at now may take the entry.
// A PROCESSING entry whose lease ran out is claimable again.
func (d *Descriptor) claimable(now time.Time, lease time.Duration) bool {
	switch d.Status {
	case StatusPending:
		return true
	case StatusProcessing:
		return d.ClaimedAt != nil && d.ClaimedAt.Before(now.Add(-lease))
	default:
		return false
	}
}

// heldBy reports whether the entry is still PROCESSING under the claim taken
// at claimedAt.
func (d *Descriptor) heldBy(claimedAt time.Time) bool {
	return d.Status == StatusProcessing && d.ClaimedAt != nil && d.ClaimedAt.Equal(claimedAt)
}

// claimTime is the claim token. Postgres keeps microseconds, so both stores
// truncate to keep tokens comparable after a round trip.
func claimTime() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
