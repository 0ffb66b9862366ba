package refunds

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ProviderRequest is one refund call to a payment provider. IdempotencyKey is
// the refund id, so repeating a call never refunds twice.
type ProviderRequest struct {
	IdempotencyKey     string
	ProviderPaymentRef string
	Amount             decimal.Decimal
	Currency           string
	Reason             string
}

// ProviderResult describes the provider-side refund. Pending means the
// provider accepted the refund but has not settled it yet.
type ProviderResult struct {
	ProviderRefundRef string
	Amount            decimal.Decimal
	Pending           bool
}

// Provider is the payment provider adapter boundary. Errors are classified
// with ErrTransientProvider or ErrDeclined; anything unclassified is treated
// as transient.
type Provider interface {
	Name() string
	Refund(ctx context.Context, req ProviderRequest) (*ProviderResult, error)
	Lookup(ctx context.Context, providerRefundRef string) (*ProviderResult, error)
}

// ProviderError is a classified provider failure. Code is the provider's
// machine-readable reason, used as the failure reason on declines.
type ProviderError struct {
	Class error
	Code  string
	Err   error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %v", e.Class, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{e.Class, e.Err}
}

// Declined wraps err as a terminal provider rejection
func Declined(code string, err error) error {
	return &ProviderError{Class: ErrDeclined, Code: code, Err: err}
}

// Transient wraps err as a provider failure worth retrying
func Transient(code string, err error) error {
	return &ProviderError{Class: ErrTransientProvider, Code: code, Err: err}
}

// IsDeclined reports whether err is a terminal provider rejection
func IsDeclined(err error) bool {
	return errors.Is(err, ErrDeclined)
}

// failureReason extracts the reason recorded on a FAILED refund
func failureReason(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Code != "" {
		return pe.Code
	}
	return err.Error()
}

// Providers resolves the adapter for a refund by provider name
type Providers struct {
	byName   map[string]Provider
	fallback Provider
}

// NewProviders registers adapters; fallback serves names nobody registered
func NewProviders(fallback Provider, others ...Provider) *Providers {
	p := &Providers{byName: make(map[string]Provider), fallback: fallback}
	if fallback != nil {
		p.byName[fallback.Name()] = fallback
	}
	for _, other := range others {
		p.byName[other.Name()] = other
	}
	return p
}

// For returns the adapter registered under name, or the fallback
func (p *Providers) For(name string) Provider {
	if provider, ok := p.byName[name]; ok {
		return provider
	}
	return p.fallback
}
