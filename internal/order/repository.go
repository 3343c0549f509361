package order

import (
	"context"
	"database/sql"
	"errors"

	"checkout-be/internal/logger"

	"go.uber.org/zap"
)

type Repository interface {
	// CreateOrderTx inserts the order and its items in one transaction and
	// sets order.ID. When an order for the same checkout key already exists
	// nothing is written, order.ID is set to the existing id and created is false.
	CreateOrderTx(ctx context.Context, order *Order) (created bool, err error)

	GetOrderByCheckoutKey(ctx context.Context, checkoutKey string) (*Order, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateOrderTx(ctx context.Context, order *Order) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	// 1. Insert order
	var id uint
	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			user_id, checkout_key, status, total, currency, created_at
		) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (checkout_key) DO NOTHING
		RETURNING id
	`,
		order.UserID,
		order.CheckoutKey,
		order.Status,
		order.Total,
		order.Currency,
		order.CreatedAt,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		// 1b. Order already created by an earlier delivery
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM orders WHERE checkout_key = $1
		`, order.CheckoutKey).Scan(&id)
		if err != nil {
			return false, err
		}

		logger.L().Info("order already exists for checkout",
			zap.String("checkout_key", order.CheckoutKey),
			zap.Uint("order_id", id),
		)
		order.ID = id
		return false, tx.Commit()
	}
	if err != nil {
		return false, err
	}

	// 2. Insert order items
	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, product_name, unit_price, quantity, subtotal
			) VALUES ($1,$2,$3,$4,$5)
		`,
			id,
			item.ProductName,
			item.UnitPrice,
			item.Quantity,
			item.Subtotal,
		)
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	order.ID = id
	return true, nil
}

func (r *repository) GetOrderByCheckoutKey(ctx context.Context, checkoutKey string) (*Order, error) {
	var o Order
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, checkout_key, status, total, currency, created_at
		FROM orders
		WHERE checkout_key = $1
	`, checkoutKey).Scan(
		&o.ID, &o.UserID, &o.CheckoutKey, &o.Status, &o.Total, &o.Currency, &o.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_name, unit_price, quantity, subtotal
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ProductName, &item.UnitPrice, &item.Quantity, &item.Subtotal); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &o, nil
}
