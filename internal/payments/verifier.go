package payments

import (
	"context"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/disrupton/collaborators/internal/domain"
)

// Verifier checks that an unlock's payment reference points at something
// real. Charging happens upstream; this service only refuses references that
// demonstrably do not exist.
type Verifier interface {
	VerifyRef(ctx context.Context, ref string) error
}

// OpaqueVerifier accepts any non-empty reference. This is the default:
// payment references are treated as opaque identifiers.
type OpaqueVerifier struct{}

func NewOpaqueVerifier() *OpaqueVerifier {
	return &OpaqueVerifier{}
}

func (v *OpaqueVerifier) VerifyRef(ctx context.Context, ref string) error {
	return nil
}

// StripeVerifier looks the reference up as a PaymentIntent when a Stripe key
// is configured.
type StripeVerifier struct {
	api *client.API
}

func NewStripeVerifier(secretKey string) *StripeVerifier {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeVerifier{api: api}
}

func (v *StripeVerifier) VerifyRef(ctx context.Context, ref string) error {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	}
	if _, err := v.api.PaymentIntents.Get(ref, params); err != nil {
		return domain.NewValidationError("payment_ref", "unknown payment reference")
	}
	return nil
}
