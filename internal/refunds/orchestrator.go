package refunds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"refundsaga/internal/saga"
	"refundsaga/internal/shared/constants"
	"refundsaga/pkg/cache"
	"refundsaga/pkg/logger"
)

// OrchestratorConfig holds payment-side processing settings
type OrchestratorConfig struct {
	ProviderTimeout time.Duration
	Now             func() time.Time
}

// DefaultOrchestratorConfig returns default processing settings
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		ProviderTimeout: 10 * time.Second,
		Now:             func() time.Time { return time.Now().UTC() },
	}
}

// Orchestrator drives refunds on the payment side: it records each request
// once, calls the provider and publishes the outcome. Refunds left PENDING by
// a transient failure are re-driven by the Reconciler.
type Orchestrator struct {
	repo      Repository
	providers *Providers
	publisher saga.Publisher
	cache     cache.Service
	logger    *logger.Logger
	config    OrchestratorConfig
}

// NewOrchestrator creates a refund orchestrator. cacheService may be nil.
func NewOrchestrator(repo Repository, providers *Providers, publisher saga.Publisher, cacheService cache.Service, log *logger.Logger, config OrchestratorConfig) *Orchestrator {
	if config.Now == nil {
		config.Now = DefaultOrchestratorConfig().Now
	}
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = DefaultOrchestratorConfig().ProviderTimeout
	}
	return &Orchestrator{
		repo:      repo,
		providers: providers,
		publisher: publisher,
		cache:     cacheService,
		logger:    log,
		config:    config,
	}
}

// Handlers returns the orchestrator's subscriptions keyed by event kind
func (o *Orchestrator) Handlers() map[saga.Kind]saga.Handler {
	return map[saga.Kind]saga.Handler{
		saga.KindRefundRequested: saga.OnRequested(o.OnRefundRequested),
	}
}

// OnRefundRequested handles one delivery of a refund request. A refund id
// seen before is never sent to the provider again once it has an outcome;
// the recorded outcome is re-published instead.
func (o *Orchestrator) OnRefundRequested(ctx context.Context, evt saga.RefundRequested) error {
	if err := evt.Validate(); err != nil {
		return err
	}

	created, refund, err := o.repo.CreateIfAbsent(ctx, NewFromRequest(evt, o.config.Now()))
	if err != nil {
		o.logger.ErrorWithContext(ctx, "Failed to record refund request", err, map[string]interface{}{
			"refund_id":  evt.RefundID.String(),
			"booking_id": evt.BookingID.String(),
		})
		return saga.Redeliver(err)
	}

	if !created {
		if !refund.Matches(evt) {
			err := fmt.Errorf("%w: refund %s belongs to booking %s, amount %s", ErrRefundMismatch, refund.ID, refund.BookingID, refund.Amount)
			o.logger.LogOperationalAlert(ctx, "Refund request conflicts with recorded refund", err, map[string]interface{}{
				"refund_id":  evt.RefundID.String(),
				"booking_id": evt.BookingID.String(),
			})
			return err
		}
		if refund.Status.IsTerminal() {
			o.logger.LogStaleEvent(ctx, evt.Kind().String(), refund.ID.String(), refund.BookingID.String(),
				"refund already "+refund.Status.String()+", re-publishing outcome")
			return o.publishOutcome(ctx, refund)
		}
	} else {
		o.logger.LogRefundRequested(ctx, refund.ID.String(), refund.BookingID.String(), refund.Amount.String(), refund.Currency)
	}

	return o.Process(ctx, refund)
}

// Process makes one provider attempt for a PENDING refund and persists the
// result. Transient failures leave the refund PENDING and return nil.
func (o *Orchestrator) Process(ctx context.Context, refund *Refund) error {
	if refund.Status.IsTerminal() {
		return o.publishOutcome(ctx, refund)
	}

	result, callErr := o.callProvider(ctx, refund)
	now := o.config.Now()

	switch {
	case callErr == nil && !result.Pending:
		if err := refund.MarkSucceeded(result.ProviderRefundRef, result.Amount, now); err != nil {
			return err
		}
	case callErr == nil:
		ref := result.ProviderRefundRef
		refund.ProviderRefundRef = &ref
		refund.NoteAttempt("provider refund pending", now)
	case IsDeclined(callErr):
		if err := refund.MarkFailed(failureReason(callErr), now); err != nil {
			return err
		}
	default:
		refund.NoteAttempt(callErr.Error(), now)
	}

	if _, err := o.repo.Save(ctx, refund); err != nil {
		o.logger.ErrorWithContext(ctx, "Failed to persist refund attempt", err, map[string]interface{}{
			"refund_id": refund.ID.String(),
			"status":    refund.Status.String(),
		})
		return saga.Redeliver(err)
	}
	o.invalidate(ctx, refund)

	if !refund.Status.IsTerminal() {
		detail := "provider refund pending"
		if refund.LastError != nil {
			detail = *refund.LastError
		}
		o.logger.LogRefundOutcome(ctx, refund.ID.String(), refund.BookingID.String(), StatusPending.String(), detail)
		return nil
	}

	return o.publishOutcome(ctx, refund)
}

// callProvider polls a refund the provider already knows about, otherwise
// creates it. Both run under the provider timeout.
func (o *Orchestrator) callProvider(ctx context.Context, refund *Refund) (*ProviderResult, error) {
	provider := o.providers.For(refund.Provider)
	if provider == nil {
		return nil, Transient("no_provider", fmt.Errorf("no adapter for provider %q", refund.Provider))
	}

	callCtx, cancel := context.WithTimeout(ctx, o.config.ProviderTimeout)
	defer cancel()

	start := time.Now()
	var (
		result *ProviderResult
		err    error
	)
	if refund.ProviderRefundRef != nil && *refund.ProviderRefundRef != "" {
		result, err = provider.Lookup(callCtx, *refund.ProviderRefundRef)
	} else {
		result, err = provider.Refund(callCtx, ProviderRequest{
			IdempotencyKey:     refund.ID.String(),
			ProviderPaymentRef: refund.ProviderPaymentRef,
			Amount:             refund.Amount,
			Currency:           refund.Currency,
			Reason:             refund.Reason,
		})
	}
	o.logger.LogProviderCall(ctx, provider.Name(), refund.ID.String(), time.Since(start), err)

	if err == nil && result == nil {
		err = Transient("empty_response", errors.New("provider returned no result"))
	}
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !IsDeclined(err) {
		err = Transient("timeout", err)
	}
	return result, err
}

func (o *Orchestrator) publishOutcome(ctx context.Context, refund *Refund) error {
	evt, err := refund.OutcomeEvent(o.config.Now())
	if err != nil {
		return err
	}
	if err := o.publisher.Publish(ctx, evt); err != nil {
		o.logger.ErrorWithContext(ctx, "Failed to publish refund outcome", err, map[string]interface{}{
			"refund_id": refund.ID.String(),
			"status":    refund.Status.String(),
		})
		// the refund is terminal, so the redelivery only re-publishes
		return saga.Redeliver(err)
	}

	detail := ""
	if refund.FailureReason != nil {
		detail = *refund.FailureReason
	} else if refund.ProviderRefundRef != nil {
		detail = *refund.ProviderRefundRef
	}
	o.logger.LogRefundOutcome(ctx, refund.ID.String(), refund.BookingID.String(), refund.Status.String(), detail)
	return nil
}

func (o *Orchestrator) invalidate(ctx context.Context, refund *Refund) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Delete(ctx, constants.BuildRefundDetailKey(refund.ID.String())); err != nil {
		o.logger.WarnWithContext(ctx, "Failed to invalidate refund cache", map[string]interface{}{
			"refund_id": refund.ID.String(),
			"error":     err.Error(),
		})
	}
}
