package bookings

import (
	"context"
	"time"

	"refundsaga/internal/saga"
	"refundsaga/pkg/logger"
)

// ReconcilerConfig holds booking-side sweep settings
type ReconcilerConfig struct {
	StaleAfter time.Duration
	MaxBackoff time.Duration
	BatchSize  int
	Now        func() time.Time
}

// DefaultReconcilerConfig returns default sweep settings
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		StaleAfter: 5 * time.Minute,
		MaxBackoff: 6 * time.Hour,
		BatchSize:  100,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// Reconciler re-publishes refund requests for bookings stuck in
// REFUND_PENDING. The payment side deduplicates on refund id, so a request
// that was already processed only re-emits its recorded outcome.
type Reconciler struct {
	repo      Repository
	publisher saga.Publisher
	logger    *logger.Logger
	config    ReconcilerConfig
}

// NewReconciler creates a booking-side reconciler
func NewReconciler(repo Repository, publisher saga.Publisher, log *logger.Logger, config ReconcilerConfig) *Reconciler {
	if config.Now == nil {
		config.Now = DefaultReconcilerConfig().Now
	}
	return &Reconciler{repo: repo, publisher: publisher, logger: log, config: config}
}

// Sweep re-publishes every due request and returns how many went out. The
// store only returns requests whose backoff has elapsed, so a batch is never
// filled by bookings that are still waiting.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	now := r.config.Now()
	candidates, err := r.repo.ListStaleRefundPending(ctx, now.Add(-r.config.StaleAfter), r.config.BatchSize)
	if err != nil {
		return 0, err
	}

	republished := 0
	for i := range candidates {
		booking := &candidates[i]
		if booking.RefundID == nil {
			continue
		}

		evt := refundRequestedEvent(booking, now)
		if err := r.publisher.Publish(ctx, evt); err != nil {
			r.logger.ErrorWithContext(ctx, "Failed to re-publish refund request", err, map[string]interface{}{
				"booking_id": booking.ID.String(),
				"refund_id":  evt.RefundID.String(),
			})
			continue
		}
		republished++

		booking.NoteRefundRequested(now, r.nextStaleFrom(booking.RefundRequestCount+1, now))
		if _, err := r.repo.Save(ctx, booking); err != nil {
			// an outcome may have landed meanwhile; the next sweep re-reads
			r.logger.WarnWithContext(ctx, "Could not record refund re-publish", map[string]interface{}{
				"booking_id": booking.ID.String(),
				"error":      err.Error(),
			})
		}
	}

	if republished > 0 {
		r.logger.InfoWithContext(ctx, "Refund requests re-published", map[string]interface{}{
			"count":      republished,
			"candidates": len(candidates),
		})
	}
	return republished, nil
}

// nextStaleFrom places the stale window so the request is due again
// backoff(requests) after now
func (r *Reconciler) nextStaleFrom(requests int, now time.Time) time.Time {
	return now.Add(r.backoff(requests) - r.config.StaleAfter)
}

func (r *Reconciler) backoff(requests int) time.Duration {
	wait := r.config.StaleAfter
	for i := 1; i < requests; i++ {
		wait *= 2
		if r.config.MaxBackoff > 0 && wait >= r.config.MaxBackoff {
			return r.config.MaxBackoff
		}
	}
	return wait
}
