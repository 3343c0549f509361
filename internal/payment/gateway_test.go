package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"checkout-be/internal/checkout"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewStripeGateway(StripeConfig{
		SecretKey:    "sk_test_123",
		Currency:     "vnd",
		SuccessURL:   "https://shop.test/success",
		CancelURL:    "https://shop.test/cancel",
		ProductImage: "https://shop.test/img.png",
		APIURL:       srv.URL,
		HTTPClient:   srv.Client(),
	})
}

func TestStripeGateway_CreateCheckoutSession(t *testing.T) {
	req := SessionRequest{
		Key:   "key-1",
		Email: "buyer@example.com",
		Items: []checkout.LineItem{
			{Name: "A", UnitPrice: 1000, Quantity: 2},
			{Name: "B", UnitPrice: 500, Quantity: 1},
		},
	}

	t.Run("Success", func(t *testing.T) {
		var form url.Values
		var idempotencyKey, auth string

		gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
			require.NoError(t, r.ParseForm())
			form = r.PostForm
			idempotencyKey = r.Header.Get("Idempotency-Key")
			auth = r.Header.Get("Authorization")

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://pay.test/cs_test_1"}`))
		})

		sess, err := gw.CreateCheckoutSession(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "cs_test_1", sess.ID)
		assert.Equal(t, "https://pay.test/cs_test_1", sess.URL)

		assert.Equal(t, "key-1", idempotencyKey)
		assert.Equal(t, "Bearer sk_test_123", auth)

		assert.Equal(t, "payment", form.Get("mode"))
		assert.Equal(t, "card", form.Get("payment_method_types[0]"))
		assert.Equal(t, "buyer@example.com", form.Get("customer_email"))
		assert.Equal(t, "https://shop.test/success", form.Get("success_url"))
		assert.Equal(t, "https://shop.test/cancel", form.Get("cancel_url"))
		assert.Equal(t, "key-1", form.Get("client_reference_id"))
		assert.Equal(t, "key-1", form.Get("metadata[checkout_key]"))
		assert.Equal(t, "key-1", form.Get("payment_intent_data[metadata][checkout_key]"))

		// line items keep cart order
		assert.Equal(t, "A", form.Get("line_items[0][price_data][product_data][name]"))
		assert.Equal(t, "1000", form.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "2", form.Get("line_items[0][quantity]"))
		assert.Equal(t, "vnd", form.Get("line_items[0][price_data][currency]"))
		assert.Equal(t, "https://shop.test/img.png", form.Get("line_items[0][price_data][product_data][images][0]"))
		assert.Equal(t, "B", form.Get("line_items[1][price_data][product_data][name]"))
		assert.Equal(t, "500", form.Get("line_items[1][price_data][unit_amount]"))
		assert.Equal(t, "1", form.Get("line_items[1][quantity]"))
	})

	t.Run("Processor rejects", func(t *testing.T) {
		gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid currency"}}`))
		})

		sess, err := gw.CreateCheckoutSession(context.Background(), req)
		assert.Nil(t, sess)
		assert.ErrorIs(t, err, ErrExternalService)

		var stripeErr *stripe.Error
		require.True(t, errors.As(err, &stripeErr))
		assert.Equal(t, http.StatusBadRequest, stripeErr.HTTPStatusCode)
	})

	t.Run("Processor unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		gw := NewStripeGateway(StripeConfig{
			SecretKey: "sk_test_123",
			Currency:  "vnd",
			APIURL:    srv.URL,
		})

		_, err := gw.CreateCheckoutSession(context.Background(), req)
		assert.ErrorIs(t, err, ErrExternalService)
	})
}

func TestStripeGateway_SessionParams(t *testing.T) {
	gw := &stripeGateway{currency: "usd", productImage: "img"}

	params := gw.sessionParams(SessionRequest{
		Key:   "key-9",
		Items: []checkout.LineItem{{Name: "A", UnitPrice: 0, Quantity: 3}},
	})

	require.Len(t, params.LineItems, 1)
	assert.Equal(t, int64(0), *params.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, int64(3), *params.LineItems[0].Quantity)
	assert.Equal(t, "key-9", *params.IdempotencyKey)
	assert.Equal(t, "key-9", params.Metadata[MetadataCheckoutKey])
}
