package payment

type Kind string

const (
	KindPaymentSucceeded        Kind = "payment_succeeded"
	KindInvoicePaymentSucceeded Kind = "invoice_payment_succeeded"
	KindCheckoutExpired         Kind = "checkout_expired"
	KindOther                   Kind = "other"
)

// eventKinds lists every processor event type the reconciler acts on.
// Anything else resolves to KindOther.
var eventKinds = map[string]Kind{
	"payment_intent.succeeded":  KindPaymentSucceeded,
	"invoice.payment_succeeded": KindInvoicePaymentSucceeded,
	"checkout.session.expired":  KindCheckoutExpired,
}

func KindOf(eventType string) Kind {
	if k, ok := eventKinds[eventType]; ok {
		return k
	}
	return KindOther
}
