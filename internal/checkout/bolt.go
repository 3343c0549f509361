package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
)

const bucketName = "checkouts"

// BoltStore keeps descriptors in a single embedded file. bolt serializes
// writable transactions, which makes every transition below atomic per key.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Save(ctx context.Context, d *Descriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if d.Status == "" {
		d.Status = StatusPending
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b.Get([]byte(d.Key)) != nil {
			return ErrDuplicateKey
		}
		return put(b, d)
	})
}

func (s *BoltStore) AttachSession(ctx context.Context, key, sessionID string) error {
	return s.mutate(ctx, key, func(d *Descriptor) error {
		d.SessionID = sessionID
		return nil
	})
}

func (s *BoltStore) Get(ctx context.Context, key string) (*Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var d *Descriptor
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		d, err = get(tx.Bucket([]byte(bucketName)), key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *BoltStore) Claim(ctx context.Context, key string, lease time.Duration) (*Descriptor, error) {
	var claimed Descriptor
	err := s.mutate(ctx, key, func(d *Descriptor) error {
		now := claimTime()
		if !d.claimable(now, lease) {
			return fmt.Errorf("%w: status %s", ErrNotPending, d.Status)
		}
		d.Status = StatusProcessing
		d.ClaimedAt = &now
		claimed = *d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

func (s *BoltStore) Fulfill(ctx context.Context, key string, claimedAt time.Time, orderID uint) error {
	return s.mutate(ctx, key, func(d *Descriptor) error {
		if !d.heldBy(claimedAt) {
			return fmt.Errorf("%w: status %s", ErrClaimLost, d.Status)
		}
		now := time.Now().UTC()
		d.Status = StatusFulfilled
		d.OrderID = &orderID
		d.FulfilledAt = &now
		return nil
	})
}

func (s *BoltStore) Release(ctx context.Context, key string, claimedAt time.Time) error {
	return s.mutate(ctx, key, func(d *Descriptor) error {
		if !d.heldBy(claimedAt) {
			return fmt.Errorf("%w: status %s", ErrClaimLost, d.Status)
		}
		d.Status = StatusPending
		d.ClaimedAt = nil
		return nil
	})
}

func (s *BoltStore) Expire(ctx context.Context, key string) error {
	return s.mutate(ctx, key, func(d *Descriptor) error {
		if d.Status != StatusPending {
			return fmt.Errorf("%w: status %s", ErrNotPending, d.Status)
		}
		d.Status = StatusExpired
		return nil
	})
}

func (s *BoltStore) ExpirePending(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var expired int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		// Collect first: bolt does not allow Put while ForEach iterates.
		var stale []*Descriptor
		err := b.ForEach(func(_, v []byte) error {
			var d Descriptor
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			if d.Status == StatusPending && d.CreatedAt.Before(before) {
				stale = append(stale, &d)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, d := range stale {
			d.Status = StatusExpired
			if err := put(b, d); err != nil {
				return err
			}
		}
		expired = int64(len(stale))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}

// mutate loads key, applies fn and writes the result back in one transaction.
// Nothing is written when fn returns an error.
func (s *BoltStore) mutate(ctx context.Context, key string, fn func(d *Descriptor) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		d, err := get(b, key)
		if err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
		return put(b, d)
	})
}

func get(b *bolt.Bucket, key string) (*Descriptor, error) {
	v := b.Get([]byte(key))
	if v == nil {
		return nil, ErrNotFound
	}

	var d Descriptor
	if err := json.Unmarshal(v, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func put(b *bolt.Bucket, d *Descriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return b.Put([]byte(d.Key), data)
}
