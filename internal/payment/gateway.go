package payment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"checkout-be/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"go.uber.org/zap"
)

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
}

type StripeConfig struct {
	SecretKey    string
	Currency     string
	SuccessURL   string
	CancelURL    string
	ProductImage string

	// APIURL overrides the processor endpoint; empty means the public API.
	APIURL            string
	HTTPClient        *http.Client
	MaxNetworkRetries int64
}

type sessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeGateway struct {
	sessions     sessionCreator
	currency     string
	successURL   string
	cancelURL    string
	productImage string
}

// ----------------- Constructor -----------------

func NewStripeGateway(cfg StripeConfig) Gateway {
	if cfg.SecretKey == "" {
		logger.L().Warn("Stripe secret key is empty")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     logger.Stripe(),
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}

	return &stripeGateway{
		sessions: session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
		currency:     cfg.Currency,
		successURL:   cfg.SuccessURL,
		cancelURL:    cfg.CancelURL,
		productImage: cfg.ProductImage,
	}
}

// ----------------- CreateCheckoutSession -----------------

func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("checkout_key", req.Key),
		zap.Int("items", len(req.Items)),
	)

	params := g.sessionParams(req)
	params.Context = ctx

	log.Info("Creating Stripe checkout session")

	s, err := g.sessions.New(params)
	if err != nil {
		log.Error("Stripe checkout session failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrExternalService, err)
	}

	log.Info("Stripe checkout session created", zap.String("session_id", s.ID))

	return &Session{ID: s.ID, URL: s.URL}, nil
}

// sessionParams builds one line item per cart row, in cart order. The unit
// amount and quantity are the same fields checkout.Total sums, so the charge
// and the stored total cannot drift apart.
func (g *stripeGateway) sessionParams(req SessionRequest) *stripe.CheckoutSessionParams {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:   stripe.String(item.Name),
					Images: stripe.StringSlice([]string{g.productImage}),
				},
				UnitAmount: stripe.Int64(item.UnitPrice),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:          lineItems,
		SuccessURL:         stripe.String(g.successURL),
		CancelURL:          stripe.String(g.cancelURL),
		CustomerEmail:      stripe.String(req.Email),
		ClientReferenceID:  stripe.String(req.Key),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetadataCheckoutKey: req.Key},
		},
	}
	params.AddMetadata(MetadataCheckoutKey, req.Key)
	params.SetIdempotencyKey(req.Key)

	return params
}
