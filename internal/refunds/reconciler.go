package refunds

import (
	"context"
	"time"

	"refundsaga/internal/saga"
	"refundsaga/internal/shared/constants"
	"refundsaga/pkg/logger"
)

// ReconcilerConfig holds payment-side sweep settings
type ReconcilerConfig struct {
	StaleAfter time.Duration
	BatchSize  int
	LockTTL    time.Duration
	Now        func() time.Time
}

// Reconciler re-drives refunds stuck in PENDING after a transient provider
// failure. Each refund is processed under the same per-refund lock the event
// consumers take, so a sweep never races a redelivery.
type Reconciler struct {
	repo         Repository
	orchestrator *Orchestrator
	locker       saga.KeyLocker
	logger       *logger.Logger
	config       ReconcilerConfig
}

// NewReconciler creates a payment-side reconciler
func NewReconciler(repo Repository, orchestrator *Orchestrator, locker saga.KeyLocker, log *logger.Logger, config ReconcilerConfig) *Reconciler {
	if config.Now == nil {
		config.Now = func() time.Time { return time.Now().UTC() }
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 30 * time.Second
	}
	return &Reconciler{repo: repo, orchestrator: orchestrator, locker: locker, logger: log, config: config}
}

// Sweep makes one provider attempt per stale refund and returns how many
// reached an outcome
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	stale, err := r.repo.ListStalePending(ctx, r.config.Now().Add(-r.config.StaleAfter), r.config.BatchSize)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for i := range stale {
		refund := &stale[i]
		done, err := r.redrive(ctx, refund)
		if err != nil {
			r.logger.WarnWithContext(ctx, "Refund re-drive failed", map[string]interface{}{
				"refund_id": refund.ID.String(),
				"error":     err.Error(),
			})
			continue
		}
		if done {
			resolved++
		}
	}

	if len(stale) > 0 {
		r.logger.InfoWithContext(ctx, "Pending refunds re-driven", map[string]interface{}{
			"candidates": len(stale),
			"resolved":   resolved,
		})
	}
	return resolved, nil
}

func (r *Reconciler) redrive(ctx context.Context, candidate *Refund) (bool, error) {
	unlock, err := r.locker.TryLock(ctx, constants.BuildRefundLockKey(candidate.ID.String()), r.config.LockTTL)
	if err != nil {
		// a consumer holds it
		return false, nil
	}
	defer unlock(context.WithoutCancel(ctx))

	// re-read under the lock
	refund, err := r.repo.FindByID(ctx, candidate.ID)
	if err != nil {
		return false, err
	}
	if refund.Status.IsTerminal() {
		return false, nil
	}

	if err := r.orchestrator.Process(ctx, refund); err != nil {
		return false, err
	}
	return refund.Status.IsTerminal(), nil
}
