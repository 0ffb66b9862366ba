package refunds

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Payment references with these prefixes make the simulated provider
// misbehave, so local runs can exercise every saga path
const (
	SimulateDecline = "decline_"
	SimulateTimeout = "timeout_"
	SimulatePending = "pending_"
	SimulateFlaky   = "flaky_"
)

// SimulatedProvider is a deterministic in-process provider for development
// and tests. It honours idempotency keys like a real provider.
type SimulatedProvider struct {
	name string

	mu    sync.Mutex
	byKey map[string]*ProviderResult
	byRef map[string]*ProviderResult
	calls map[string]int
}

// NewSimulatedProvider creates a simulated provider registered under name
func NewSimulatedProvider(name string) *SimulatedProvider {
	if name == "" {
		name = "simulated"
	}
	return &SimulatedProvider{
		name:  name,
		byKey: make(map[string]*ProviderResult),
		byRef: make(map[string]*ProviderResult),
		calls: make(map[string]int),
	}
}

func (p *SimulatedProvider) Name() string { return p.name }

func (p *SimulatedProvider) Refund(ctx context.Context, req ProviderRequest) (*ProviderResult, error) {
	p.mu.Lock()
	p.calls[req.IdempotencyKey]++
	calls := p.calls[req.IdempotencyKey]
	if existing, ok := p.byKey[req.IdempotencyKey]; ok {
		result := *existing
		p.mu.Unlock()
		return &result, nil
	}
	p.mu.Unlock()

	ref := req.ProviderPaymentRef
	switch {
	case strings.HasPrefix(ref, SimulateDecline):
		return nil, Declined("charge_not_refundable", errors.New("simulated decline"))
	case strings.HasPrefix(ref, SimulateTimeout):
		<-ctx.Done()
		return nil, Transient("timeout", ctx.Err())
	case strings.HasPrefix(ref, SimulateFlaky) && calls == 1:
		return nil, Transient("api_error", errors.New("simulated outage"))
	}

	result := &ProviderResult{
		ProviderRefundRef: "re_sim_" + strings.ReplaceAll(req.IdempotencyKey, "-", ""),
		Amount:            req.Amount,
		Pending:           strings.HasPrefix(ref, SimulatePending),
	}

	p.mu.Lock()
	p.byKey[req.IdempotencyKey] = result
	p.byRef[result.ProviderRefundRef] = result
	p.mu.Unlock()

	out := *result
	return &out, nil
}

// Lookup returns the refund's current state. A pending refund settles on the
// first lookup.
func (p *SimulatedProvider) Lookup(_ context.Context, providerRefundRef string) (*ProviderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, ok := p.byRef[providerRefundRef]
	if !ok {
		return nil, Declined("resource_missing", errors.New("no such refund: "+providerRefundRef))
	}
	result.Pending = false

	out := *result
	return &out, nil
}

// Calls returns how many refund calls were made with key
func (p *SimulatedProvider) Calls(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[key]
}

// Refunded returns the total refunded through the provider for key
func (p *SimulatedProvider) Refunded(key string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	if result, ok := p.byKey[key]; ok {
		return result.Amount
	}
	return decimal.Zero
}
