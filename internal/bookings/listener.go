package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"refundsaga/internal/saga"
	"refundsaga/pkg/logger"
)

// RefundListener reconciles bookings with refund outcomes published by the
// payment domain. Every handler is idempotent on refund id: a booking that is
// no longer waiting on that refund is left alone and the event acknowledged.
type RefundListener struct {
	repo   Repository
	logger *logger.Logger
	now    func() time.Time
}

// NewRefundListener creates a new booking-side refund listener
func NewRefundListener(repo Repository, log *logger.Logger, now func() time.Time) *RefundListener {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &RefundListener{repo: repo, logger: log, now: now}
}

// Handlers returns the listener's subscriptions keyed by event kind
func (l *RefundListener) Handlers() map[saga.Kind]saga.Handler {
	return map[saga.Kind]saga.Handler{
		saga.KindRefundSucceeded: saga.OnSucceeded(l.OnRefundSucceeded),
		saga.KindRefundFailed:    saga.OnFailed(l.OnRefundFailed),
	}
}

// OnRefundSucceeded moves REFUND_PENDING → REFUNDED
func (l *RefundListener) OnRefundSucceeded(ctx context.Context, evt saga.RefundSucceeded) error {
	return l.apply(ctx, evt, "SUCCEEDED", func(booking *Booking, now time.Time) error {
		return booking.MarkRefunded(evt.ProviderRefundRef, evt.RefundedAmount, now)
	})
}

// OnRefundFailed moves REFUND_PENDING → REFUND_FAILED
func (l *RefundListener) OnRefundFailed(ctx context.Context, evt saga.RefundFailed) error {
	return l.apply(ctx, evt, "FAILED", func(booking *Booking, now time.Time) error {
		return booking.MarkRefundFailed(evt.FailureReason, now)
	})
}

func (l *RefundListener) apply(ctx context.Context, evt saga.Event, outcome string, transition func(*Booking, time.Time) error) error {
	h := evt.Common()
	fields := map[string]interface{}{
		"kind":       evt.Kind().String(),
		"refund_id":  h.RefundID.String(),
		"booking_id": h.BookingID.String(),
	}

	booking, err := l.repo.FindByID(ctx, h.BookingID)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			// nothing to retry against
			l.logger.ErrorWithContext(ctx, "Refund event for unknown booking dropped", err, fields)
			return nil
		}
		l.logger.ErrorWithContext(ctx, "Failed to load booking for refund event", err, fields)
		return saga.Redeliver(err)
	}

	if !booking.HasActiveRefund(h.RefundID) {
		l.logger.LogStaleEvent(ctx, evt.Kind().String(), h.RefundID.String(), h.BookingID.String(), staleReason(booking))
		return nil
	}

	if err := transition(booking, l.now()); err != nil {
		l.logger.LogStaleEvent(ctx, evt.Kind().String(), h.RefundID.String(), h.BookingID.String(), err.Error())
		return nil
	}

	if _, err := l.repo.Save(ctx, booking); err != nil {
		l.logger.ErrorWithContext(ctx, "Failed to persist refund outcome", err, fields)
		return saga.Redeliver(err)
	}

	l.logger.LogRefundOutcome(ctx, h.RefundID.String(), h.BookingID.String(), outcome, booking.Status.String())
	return nil
}

func staleReason(booking *Booking) string {
	if booking.Status != StatusRefundPending {
		return fmt.Sprintf("booking is %s", booking.Status)
	}
	active := "none"
	if booking.RefundID != nil {
		active = booking.RefundID.String()
	}
	return fmt.Sprintf("booking waits on refund %s", active)
}
