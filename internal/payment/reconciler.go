package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"checkout-be/internal/checkout"
	"checkout-be/internal/logger"
	"checkout-be/internal/metrics"
	"checkout-be/internal/order"

	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

// OrderCreator is the order collaborator. Reconciler calls it at most once
// per checkout key.
type OrderCreator interface {
	Create(ctx context.Context, d *checkout.Descriptor, userID uint) (*order.Order, error)
}

// EventSink observes events that have no order side effect.
type EventSink interface {
	Observe(ctx context.Context, event *stripe.Event)
}

// LogSink is the default EventSink; it writes each observed event to the log.
type LogSink struct{}

// Observe logs the event id and type, plus invoice totals for paid invoices.
func (LogSink) Observe(ctx context.Context, event *stripe.Event) {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
	}

	if KindOf(string(event.Type)) == KindInvoicePaymentSucceeded && event.Data != nil {
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err == nil {
			fields = append(fields,
				zap.String("invoice_id", inv.ID),
				zap.Int64("amount_paid", inv.AmountPaid),
				zap.String("currency", string(inv.Currency)),
			)
		}
	}

	logger.FromCtx(ctx).Info("payment event observed", fields...)
}

type Reconciler struct {
	verifier Verifier
	store    checkout.Store
	orders   OrderCreator
	sink     EventSink
	lease    time.Duration
	metrics  *metrics.Registry
}

func NewReconciler(
	verifier Verifier,
	store checkout.Store,
	orders OrderCreator,
	sink EventSink,
	lease time.Duration,
	reg *metrics.Registry,
) *Reconciler {
	if sink == nil {
		sink = LogSink{}
	}
	return &Reconciler{
		verifier: verifier,
		store:    store,
		orders:   orders,
		sink:     sink,
		lease:    lease,
		metrics:  reg,
	}
}

// HandleNotification is the only way a webhook body reaches the dispatcher.
// Nothing is decoded before Verify succeeds.
func (r *Reconciler) HandleNotification(ctx context.Context, payload []byte, header string) (*HandledEvent, error) {
	r.metrics.Counter("webhook.received").Inc()
	defer metrics.StartTimer().Record(r.metrics, "webhook.handle")
	log := logger.FromCtx(ctx)

	if err := r.verifier.Verify(payload, header); err != nil {
		r.metrics.Counter("webhook.unauthorized").Inc()
		log.Warn("webhook rejected", zap.Error(err))
		return nil, err
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		r.metrics.Counter("webhook.failed").Inc()
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if event.Data == nil {
		r.metrics.Counter("webhook.failed").Inc()
		return nil, fmt.Errorf("%w: missing data", ErrMalformedEvent)
	}

	res := &HandledEvent{
		EventID: event.ID,
		Type:    string(event.Type),
		Kind:    KindOf(string(event.Type)),
		Object:  event.Data.Raw,
	}
	log = log.With(
		zap.String("event_id", res.EventID),
		zap.String("type", res.Type),
	)

	var err error
	switch res.Kind {
	case KindPaymentSucceeded:
		err = r.paymentSucceeded(ctx, log, &event, res)
	case KindInvoicePaymentSucceeded:
		r.sink.Observe(ctx, &event)
		res.Outcome = OutcomeAcknowledged
	case KindCheckoutExpired:
		err = r.checkoutExpired(ctx, log, &event, res)
	default:
		res.Outcome = OutcomeIgnored
	}
	if err != nil {
		r.metrics.Counter("webhook.failed").Inc()
		return nil, err
	}

	switch res.Outcome {
	case OutcomeIgnored:
		r.metrics.Counter("webhook.ignored").Inc()
	default:
		r.metrics.Counter("webhook.processed").Inc()
	}

	log.Info("webhook handled",
		zap.String("outcome", string(res.Outcome)),
		zap.String("checkout_key", res.CheckoutKey),
	)
	return res, nil
}

func (r *Reconciler) paymentSucceeded(ctx context.Context, log *zap.Logger, event *stripe.Event, res *HandledEvent) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	key := pi.Metadata[MetadataCheckoutKey]
	if key == "" {
		log.Info("payment intent carries no checkout key", zap.String("payment_intent", pi.ID))
		res.Outcome = OutcomeIgnored
		return nil
	}
	res.CheckoutKey = key
	log = log.With(zap.String("checkout_key", key))

	// 1. Claim (atomic; concurrent deliveries of the same key get ErrNotPending)
	d, err := r.store.Claim(ctx, key, r.lease)
	if errors.Is(err, checkout.ErrNotFound) || errors.Is(err, checkout.ErrNotPending) {
		log.Info("payment for unknown or consumed checkout acknowledged",
			zap.Error(fmt.Errorf("%w: %w", ErrUnknownCorrelation, err)),
		)
		res.Outcome = OutcomeIgnored
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim checkout: %w", err)
	}

	if pi.Amount != 0 && pi.Amount != d.Total {
		log.Warn("paid amount differs from checkout total",
			zap.Int64("paid", pi.Amount),
			zap.Int64("total", d.Total),
		)
	}

	// ClaimedAt fences Release and Fulfill: once the lease is taken over by a
	// later delivery, this one can no longer move the entry.
	token := *d.ClaimedAt

	// 2. Order; on failure put the key back so the redelivery can retry
	o, err := r.orders.Create(ctx, d, d.UserID)
	if err != nil {
		r.release(ctx, log, key, token)
		log.Error("order creation failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrDownstreamFailure, err)
	}

	// 3. Mark consumed
	err = r.store.Fulfill(ctx, key, token, o.ID)
	switch {
	case errors.Is(err, checkout.ErrClaimLost):
		// the newer holder reaches the same order through the checkout_key constraint
		log.Warn("claim taken over before fulfill",
			zap.Uint("order_id", o.ID),
			zap.Error(err),
		)
	case err != nil:
		log.Error("failed to mark checkout fulfilled",
			zap.Uint("order_id", o.ID),
			zap.Error(err),
		)
		r.release(ctx, log, key, token)
		return fmt.Errorf("%w: %w", ErrDownstreamFailure, err)
	}

	res.Outcome = OutcomeProcessed
	res.OrderID = &o.ID
	return nil
}

// release hands the key back for a redelivery. A lost claim is left to its
// new holder.
func (r *Reconciler) release(ctx context.Context, log *zap.Logger, key string, token time.Time) {
	err := r.store.Release(ctx, key, token)
	switch {
	case err == nil:
	case errors.Is(err, checkout.ErrClaimLost):
		log.Info("claim already taken over, not released", zap.Error(err))
	default:
		log.Error("failed to release checkout", zap.Error(err))
	}
}

func (r *Reconciler) checkoutExpired(ctx context.Context, log *zap.Logger, event *stripe.Event, res *HandledEvent) error {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	key := cs.ClientReferenceID
	if key == "" {
		key = cs.Metadata[MetadataCheckoutKey]
	}
	res.CheckoutKey = key

	if key == "" {
		res.Outcome = OutcomeIgnored
		return nil
	}

	err := r.store.Expire(ctx, key)
	switch {
	case errors.Is(err, checkout.ErrNotFound), errors.Is(err, checkout.ErrNotPending):
		log.Info("expiry for unknown or settled checkout ignored", zap.String("checkout_key", key))
		res.Outcome = OutcomeIgnored
		return nil
	case err != nil:
		return fmt.Errorf("expire checkout: %w", err)
	}

	res.Outcome = OutcomeProcessed
	return nil
}
