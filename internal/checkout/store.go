package checkout

import (
	"context"
	"time"
)

// Store keeps descriptors keyed by checkout key. Every transition is atomic
// per key, so concurrent webhook deliveries of the same key see at most one
// successful Claim.
//
//	PENDING --Claim--> PROCESSING --Fulfill--> FULFILLED
//	                   PROCESSING --Release--> PENDING
//	PENDING --Expire / ExpirePending--> EXPIRED
type Store interface {
	Save(ctx context.Context, d *Descriptor) error
	AttachSession(ctx context.Context, key, sessionID string) error
	Get(ctx context.Context, key string) (*Descriptor, error)

	// Claim moves a PENDING entry (or a PROCESSING one whose lease expired)
	// to PROCESSING and returns it. It fails with ErrNotFound or ErrNotPending.
	// The returned ClaimedAt is the claim token for Fulfill and Release.
	Claim(ctx context.Context, key string, lease time.Duration) (*Descriptor, error)

	// Fulfill and Release only act while the entry is still held under
	// claimedAt. A holder whose lease was taken over gets ErrClaimLost.
	Fulfill(ctx context.Context, key string, claimedAt time.Time, orderID uint) error
	Release(ctx context.Context, key string, claimedAt time.Time) error

	Expire(ctx context.Context, key string) error
	ExpirePending(ctx context.Context, before time.Time) (int64, error)
}
