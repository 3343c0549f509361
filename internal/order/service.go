package order

import (
	"context"
	"fmt"
	"time"

	"checkout-be/internal/checkout"
	"checkout-be/internal/logger"

	"go.uber.org/zap"
)

type Service interface {
	Create(ctx context.Context, d *checkout.Descriptor, userID uint) (*Order, error)
	GetByCheckoutKey(ctx context.Context, checkoutKey string) (*Order, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{
		repo: repo,
		now:  time.Now,
	}
}

// Create turns a claimed checkout into a PAID order. The total is recomputed
// from the descriptor items rather than trusted from the descriptor.
func (s *service) Create(ctx context.Context, d *checkout.Descriptor, userID uint) (*Order, error) {
	log := logger.FromCtx(ctx)

	if d == nil || d.Key == "" {
		return nil, fmt.Errorf("%w: missing checkout", ErrInvalidOrder)
	}
	if userID == 0 {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidOrder)
	}
	if err := checkout.ValidateItems(d.Items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}

	items := make([]OrderItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, OrderItem{
			ProductName: it.Name,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			Subtotal:    it.Subtotal(),
		})
	}

	o := &Order{
		UserID:      userID,
		CheckoutKey: d.Key,
		Total:       checkout.Total(d.Items),
		Currency:    d.Currency,
		Status:      StatusPaid,
		Items:       items,
		CreatedAt:   s.now().UTC(),
	}

	created, err := s.repo.CreateOrderTx(ctx, o)
	if err != nil {
		log.Error("failed to create order",
			zap.String("checkout_key", d.Key),
			zap.Uint("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}

	log.Info("order created",
		zap.Uint("order_id", o.ID),
		zap.String("checkout_key", d.Key),
		zap.Int64("total", o.Total),
		zap.Bool("new", created),
	)
	return o, nil
}

func (s *service) GetByCheckoutKey(ctx context.Context, checkoutKey string) (*Order, error) {
	return s.repo.GetOrderByCheckoutKey(ctx, checkoutKey)
}
