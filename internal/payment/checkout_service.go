package payment

import (
	"context"
	"errors"
	"fmt"

	"checkout-be/internal/checkout"
	"checkout-be/internal/logger"
	"checkout-be/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CheckoutService interface {
	InitiateCheckout(ctx context.Context, items []checkout.LineItem, identity checkout.Identity) (*RedirectTarget, error)
	GetCheckout(ctx context.Context, key string, identity checkout.Identity) (*checkout.Descriptor, error)
}

type checkoutService struct {
	store    checkout.Store
	gateway  Gateway
	currency string
	metrics  *metrics.Registry
	newKey   func() string
}

func NewCheckoutService(store checkout.Store, gateway Gateway, currency string, reg *metrics.Registry) CheckoutService {
	return &checkoutService{
		store:    store,
		gateway:  gateway,
		currency: currency,
		metrics:  reg,
		newKey:   uuid.NewString,
	}
}

func (s *checkoutService) InitiateCheckout(
	ctx context.Context,
	items []checkout.LineItem,
	identity checkout.Identity,
) (*RedirectTarget, error) {

	log := logger.FromCtx(ctx).With(zap.Uint("user_id", identity.UserID))

	// 1. Validate before anything leaves the process
	if identity.UserID == 0 || identity.Email == "" {
		return nil, fmt.Errorf("%w: missing identity", ErrValidation)
	}
	if err := checkout.ValidateItems(items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	// 2. Build descriptor
	d := &checkout.Descriptor{
		Key:      s.newKey(),
		UserID:   identity.UserID,
		Items:    items,
		Total:    checkout.Total(items),
		Currency: s.currency,
		Status:   checkout.StatusPending,
	}
	log = log.With(zap.String("checkout_key", d.Key))

	// 3. Persist before the session exists
	if err := s.store.Save(ctx, d); err != nil {
		log.Error("failed to save checkout", zap.Error(err))
		return nil, err
	}

	// 4. Hosted payment page
	timer := metrics.StartTimer()
	sess, err := s.gateway.CreateCheckoutSession(ctx, SessionRequest{
		Key:   d.Key,
		Items: items,
		Email: identity.Email,
	})
	timer.Record(s.metrics, "gateway.create_session")
	if err != nil {
		s.metrics.Counter("checkout.failed").Inc()
		if expErr := s.store.Expire(ctx, d.Key); expErr != nil {
			log.Warn("failed to expire checkout after gateway error", zap.Error(expErr))
		}
		if !errors.Is(err, ErrExternalService) {
			err = fmt.Errorf("%w: %w", ErrExternalService, err)
		}
		return nil, err
	}

	// 5. The key already travels in session metadata; the session id is informational
	if err := s.store.AttachSession(ctx, d.Key, sess.ID); err != nil {
		log.Warn("failed to attach session to checkout",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}

	s.metrics.Counter("checkout.initiated").Inc()
	log.Info("checkout initiated",
		zap.String("session_id", sess.ID),
		zap.Int64("total", d.Total),
	)

	return &RedirectTarget{URL: sess.URL, CheckoutKey: d.Key}, nil
}

func (s *checkoutService) GetCheckout(
	ctx context.Context,
	key string,
	identity checkout.Identity,
) (*checkout.Descriptor, error) {

	d, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if d.UserID != identity.UserID {
		return nil, ErrForbidden
	}
	return d, nil
}
