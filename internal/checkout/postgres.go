package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const descriptorColumns = `
	checkout_key, session_id, user_id, items, total, currency,
	status, order_id, created_at, claimed_at, fulfilled_at`

type postgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) Store {
	return &postgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDescriptor(row rowScanner) (*Descriptor, error) {
	var (
		d           Descriptor
		sessionID   sql.NullString
		items       []byte
		status      string
		orderID     sql.NullInt64
		claimedAt   sql.NullTime
		fulfilledAt sql.NullTime
	)

	err := row.Scan(
		&d.Key, &sessionID, &d.UserID, &items, &d.Total, &d.Currency,
		&status, &orderID, &d.CreatedAt, &claimedAt, &fulfilledAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &d.Items); err != nil {
		return nil, fmt.Errorf("decode checkout items: %w", err)
	}

	d.SessionID = sessionID.String
	d.Status = Status(status)
	if orderID.Valid {
		id := uint(orderID.Int64)
		d.OrderID = &id
	}
	if claimedAt.Valid {
		d.ClaimedAt = &claimedAt.Time
	}
	if fulfilledAt.Valid {
		d.FulfilledAt = &fulfilledAt.Time
	}
	return &d, nil
}

func (s *postgresStore) Save(ctx context.Context, d *Descriptor) error {
	items, err := json.Marshal(d.Items)
	if err != nil {
		return fmt.Errorf("encode checkout items: %w", err)
	}

	if d.Status == "" {
		d.Status = StatusPending
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkout_correlations (
			checkout_key, user_id, items, total, currency, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		d.Key, d.UserID, items, d.Total, d.Currency, string(d.Status), d.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == PgUniqueViolation {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (s *postgresStore) AttachSession(ctx context.Context, key, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE checkout_correlations
		SET session_id = $2
		WHERE checkout_key = $1
	`, key, sessionID)
	if err != nil {
		return err
	}
	return expectOneRow(res, ErrNotFound)
}

func (s *postgresStore) Get(ctx context.Context, key string) (*Descriptor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+descriptorColumns+` FROM checkout_correlations WHERE checkout_key = $1`,
		key,
	)

	d, err := scanDescriptor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// Claim is a single conditional UPDATE, so two deliveries racing on the same
// key cannot both see a claimable row.
func (s *postgresStore) Claim(ctx context.Context, key string, lease time.Duration) (*Descriptor, error) {
	now := claimTime()

	row := s.db.QueryRowContext(ctx, `
		UPDATE checkout_correlations
		SET status = $2, claimed_at = $3
		WHERE checkout_key = $1
		  AND (status = $4 OR (status = $2 AND claimed_at < $5))
		RETURNING`+descriptorColumns,
		key, string(StatusProcessing), now, string(StatusPending), now.Add(-lease),
	)

	d, err := scanDescriptor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missingOrNotPending(ctx, key)
	}
	return d, err
}

func (s *postgresStore) Fulfill(ctx context.Context, key string, claimedAt time.Time, orderID uint) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE checkout_correlations
		SET status = $2, order_id = $3, fulfilled_at = $4
		WHERE checkout_key = $1 AND status = $5 AND claimed_at = $6
	`, key, string(StatusFulfilled), orderID, time.Now().UTC(), string(StatusProcessing), claimedAt)
	if err != nil {
		return err
	}
	return s.stillHeld(ctx, res, key)
}

func (s *postgresStore) Release(ctx context.Context, key string, claimedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE checkout_correlations
		SET status = $2, claimed_at = NULL
		WHERE checkout_key = $1 AND status = $3 AND claimed_at = $4
	`, key, string(StatusPending), string(StatusProcessing), claimedAt)
	if err != nil {
		return err
	}
	return s.stillHeld(ctx, res, key)
}

func (s *postgresStore) Expire(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE checkout_correlations
		SET status = $2
		WHERE checkout_key = $1 AND status = $3
	`, key, string(StatusExpired), string(StatusPending))
	if err != nil {
		return err
	}
	return s.transitioned(ctx, res, key)
}

func (s *postgresStore) ExpirePending(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE checkout_correlations
		SET status = $1
		WHERE status = $2 AND created_at < $3
	`, string(StatusExpired), string(StatusPending), before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// transitioned turns a zero-row conditional update into ErrNotFound or ErrNotPending.
func (s *postgresStore) transitioned(ctx context.Context, res sql.Result, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.missingOrNotPending(ctx, key)
	}
	return nil
}

// stillHeld turns a zero-row fenced update into ErrNotFound or ErrClaimLost.
func (s *postgresStore) stillHeld(ctx context.Context, res sql.Result, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.missingOr(ctx, key, ErrClaimLost)
	}
	return nil
}

func (s *postgresStore) missingOrNotPending(ctx context.Context, key string) error {
	return s.missingOr(ctx, key, ErrNotPending)
}

func (s *postgresStore) missingOr(ctx context.Context, key string, stateErr error) error {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM checkout_correlations WHERE checkout_key = $1`, key,
	).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return err
	default:
		return fmt.Errorf("%w: status %s", stateErr, status)
	}
}

func expectOneRow(res sql.Result, zeroErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return zeroErr
	}
	return nil
}
