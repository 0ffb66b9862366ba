package refunds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/stripe/stripe-go/v82"

	"refundsaga/pkg/money"
)

// StripeProvider refunds payment intents through the Stripe API
type StripeProvider struct {
	client *stripe.Client
}

// NewStripeProvider creates a Stripe provider for the given secret key
func NewStripeProvider(secretKey string) *StripeProvider {
	return &StripeProvider{client: stripe.NewClient(secretKey)}
}

// NewStripeProviderWithClient wraps an already configured client
func NewStripeProviderWithClient(client *stripe.Client) *StripeProvider {
	return &StripeProvider{client: client}
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) Refund(ctx context.Context, req ProviderRequest) (*ProviderResult, error) {
	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(req.ProviderPaymentRef),
		Amount:        stripe.Int64(money.ToMinor(req.Amount, req.Currency)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
		Metadata: map[string]string{
			"refund_id": req.IdempotencyKey,
			"reason":    truncate(req.Reason, 500),
		},
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	refund, err := p.client.V1Refunds.Create(ctx, params)
	if err != nil {
		if isAlreadyRefunded(err) {
			return p.findExisting(ctx, req)
		}
		return nil, classifyStripeError(err)
	}
	return stripeResult(refund)
}

// findExisting resolves charge_already_refunded. Outside Stripe's idempotency
// window a retry of a refund that went through is answered with that error
// instead of the original refund, so the refund is looked up by the
// refund_id stamped in its metadata. A payment refunded by anything else
// stays retryable for an operator to settle.
func (p *StripeProvider) findExisting(ctx context.Context, req ProviderRequest) (*ProviderResult, error) {
	list := p.client.V1Refunds.List(ctx, &stripe.RefundListParams{
		PaymentIntent: stripe.String(req.ProviderPaymentRef),
	})
	for refund, err := range list {
		if err != nil {
			return nil, classifyStripeError(err)
		}
		if refund.Metadata["refund_id"] == req.IdempotencyKey {
			return stripeResult(refund)
		}
	}
	return nil, Transient(string(stripe.ErrorCodeChargeAlreadyRefunded),
		fmt.Errorf("payment %s already refunded by another refund", req.ProviderPaymentRef))
}

func isAlreadyRefunded(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeChargeAlreadyRefunded
}

func (p *StripeProvider) Lookup(ctx context.Context, providerRefundRef string) (*ProviderResult, error) {
	refund, err := p.client.V1Refunds.Retrieve(ctx, providerRefundRef, nil)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return stripeResult(refund)
}

// stripeResult maps a Stripe refund object onto the provider result. A
// refund Stripe marks failed or canceled after accepting it is a decline.
func stripeResult(refund *stripe.Refund) (*ProviderResult, error) {
	currency := strings.ToUpper(string(refund.Currency))
	result := &ProviderResult{
		ProviderRefundRef: refund.ID,
		Amount:            money.FromMinor(refund.Amount, currency),
	}

	switch refund.Status {
	case stripe.RefundStatusSucceeded:
		return result, nil
	case stripe.RefundStatusPending, stripe.RefundStatusRequiresAction:
		result.Pending = true
		return result, nil
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		code := string(refund.FailureReason)
		if code == "" {
			code = string(refund.Status)
		}
		return nil, Declined(code, fmt.Errorf("stripe refund %s is %s", refund.ID, refund.Status))
	}
	result.Pending = true
	return result, nil
}

// classifyStripeError sorts Stripe failures into declines and retryable
// errors. Network failures and anything unrecognised stay retryable.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return Transient("network", err)
	}

	code := string(stripeErr.Code)
	if code == "" {
		code = string(stripeErr.Type)
	}

	switch {
	case stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
		stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
		stripeErr.Type == stripe.ErrorTypeAPI:
		return Transient(code, err)
	case stripeErr.Type == stripe.ErrorTypeCard,
		stripeErr.Type == stripe.ErrorTypeInvalidRequest,
		stripeErr.Type == stripe.ErrorTypeIdempotency:
		return Declined(code, err)
	}
	return Transient(code, err)
}

// truncate caps s at n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
