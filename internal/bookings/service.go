package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"refundsaga/internal/cancellation"
	"refundsaga/internal/saga"
	"refundsaga/pkg/logger"
)

// Service interface defines the contract for the booking lifecycle
type Service interface {
	// RequestCancellation is the only transition driven synchronously by a caller
	RequestCancellation(ctx context.Context, req CancelRequest) (*CancellationResult, error)
	QuoteRefund(ctx context.Context, bookingID uuid.UUID) (*cancellation.Decision, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error)
	GetBookingByRefundID(ctx context.Context, refundID uuid.UUID) (*Booking, error)

	// Operator actions
	RetryRefund(ctx context.Context, req RetryRequest) (*Booking, error)
}

// ServiceConfig holds lifecycle settings
type ServiceConfig struct {
	MaxSaveAttempts int
	Now             func() time.Time
	NewRefundID     func() uuid.UUID
}

// DefaultServiceConfig returns default lifecycle settings
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxSaveAttempts: 3,
		Now:             func() time.Time { return time.Now().UTC() },
		NewRefundID:     uuid.New,
	}
}

// service implements the Service interface
type service struct {
	repo      Repository
	publisher saga.Publisher
	logger    *logger.Logger
	config    ServiceConfig
}

// NewService creates a new booking lifecycle service
func NewService(repo Repository, publisher saga.Publisher, log *logger.Logger, config ServiceConfig) Service {
	if config.MaxSaveAttempts < 1 {
		config.MaxSaveAttempts = 1
	}
	if config.Now == nil {
		config.Now = DefaultServiceConfig().Now
	}
	if config.NewRefundID == nil {
		config.NewRefundID = uuid.New
	}
	return &service{
		repo:      repo,
		publisher: publisher,
		logger:    log,
		config:    config,
	}
}

// RequestCancellation checks ownership and state, evaluates the policy and
// moves the booking to CANCELLED, or straight on to REFUND_PENDING when money
// is owed, in a single conditional write. The refund request is published
// after the write; a failed publish is picked up by the reconciler.
func (s *service) RequestCancellation(ctx context.Context, req CancelRequest) (*CancellationResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var result *CancellationResult
	err := s.withRetry(ctx, req.BookingID, func(booking *Booking, now time.Time) error {
		if !booking.IsOwnedBy(req.RequesterID) {
			return ErrNotOwner
		}

		decision, err := s.evaluate(booking, now)
		if err != nil {
			return err
		}

		if err := booking.Cancel(req.Reason, decision, now); err != nil {
			return err
		}

		result = &CancellationResult{Booking: booking, Decision: decision}
		if decision.RequiresRefund() {
			refundID := s.config.NewRefundID()
			if err := booking.BeginRefund(refundID, now); err != nil {
				return err
			}
			result.RefundID = &refundID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	booking := result.Booking
	refundID := ""
	if result.RefundID != nil {
		refundID = result.RefundID.String()
	}
	s.logger.LogCancellation(ctx, booking.ID.String(), req.RequesterID.String(),
		string(result.Decision.Tier), result.Decision.Amount.String(), refundID)

	if result.RefundRequested() {
		result.RequestPublished = s.publishRefundRequest(ctx, booking)
	}

	return result, nil
}

// QuoteRefund evaluates the policy for a booking without changing it
func (s *service) QuoteRefund(ctx context.Context, bookingID uuid.UUID) (*cancellation.Decision, error) {
	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	decision, err := s.evaluate(booking, s.config.Now())
	if err != nil {
		return nil, err
	}
	return &decision, nil
}

// GetBooking retrieves a booking by ID
func (s *service) GetBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error) {
	return s.repo.FindByID(ctx, bookingID)
}

// GetBookingByRefundID retrieves the booking a refund belongs to
func (s *service) GetBookingByRefundID(ctx context.Context, refundID uuid.UUID) (*Booking, error) {
	return s.repo.FindByRefundID(ctx, refundID)
}

// RetryRefund starts a fresh refund for a booking whose last refund failed.
// The new refund gets a new correlation id so the payment side treats it as a
// separate request.
func (s *service) RetryRefund(ctx context.Context, req RetryRequest) (*Booking, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var previous *uuid.UUID
	var updated *Booking
	err := s.withRetry(ctx, req.BookingID, func(booking *Booking, now time.Time) error {
		if booking.Status != StatusRefundFailed {
			return fmt.Errorf("%w: booking %s is %s", ErrRefundNotRetryable, booking.ID, booking.Status)
		}
		previous = booking.RefundID
		updated = booking
		return booking.BeginRefund(s.config.NewRefundID(), now)
	})
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"booking_id":  updated.ID.String(),
		"refund_id":   updated.RefundID.String(),
		"operator_id": req.OperatorID,
		"note":        req.Note,
	}
	if previous != nil {
		fields["previous_refund_id"] = previous.String()
	}
	s.logger.InfoWithContext(ctx, "Refund Retry Requested", fields)

	s.publishRefundRequest(ctx, updated)
	return updated, nil
}

// evaluate checks the booking can still be cancelled at now and runs the policy
func (s *service) evaluate(booking *Booking, now time.Time) (cancellation.Decision, error) {
	switch {
	case booking.Status == StatusCompleted:
		return cancellation.Decision{}, fmt.Errorf("%w: booking %s", ErrBookingCompleted, booking.ID)
	case booking.Status.IsCancelled():
		return cancellation.Decision{}, fmt.Errorf("%w: booking %s is %s", ErrAlreadyCancelled, booking.ID, booking.Status)
	case !booking.Status.CanBeCancelled():
		return cancellation.Decision{}, fmt.Errorf("%w: booking %s is %s", ErrNotCancellable, booking.ID, booking.Status)
	}

	if !now.Before(booking.CheckIn) {
		return cancellation.Decision{}, fmt.Errorf("%w: booking %s checked in at %s", ErrCheckInPassed, booking.ID, booking.CheckIn.Format(time.RFC3339))
	}

	return cancellation.ComputeRefund(cancellation.Input{
		Total:    booking.TotalAmount,
		Currency: booking.Currency,
		CheckIn:  booking.CheckIn,
		Now:      now,
		Policy:   booking.Policy,
	})
}

// withRetry runs read → mutate → conditional write, re-reading and
// re-evaluating when another writer got there first
func (s *service) withRetry(ctx context.Context, bookingID uuid.UUID, mutate func(*Booking, time.Time) error) error {
	for attempt := 1; ; attempt++ {
		booking, err := s.repo.FindByID(ctx, bookingID)
		if err != nil {
			return err
		}

		if err := mutate(booking, s.config.Now()); err != nil {
			return err
		}

		_, err = s.repo.Save(ctx, booking)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConcurrentModification) || attempt >= s.config.MaxSaveAttempts {
			return err
		}

		s.logger.WarnWithContext(ctx, "Booking changed during update, retrying", map[string]interface{}{
			"booking_id": bookingID.String(),
			"attempt":    attempt,
		})
	}
}

// publishRefundRequest reports whether the request reached the channel
func (s *service) publishRefundRequest(ctx context.Context, booking *Booking) bool {
	evt := refundRequestedEvent(booking, s.config.Now())
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.LogOperationalAlert(ctx, "Refund request publish failed, reconciliation will re-publish", err, map[string]interface{}{
			"booking_id": booking.ID.String(),
			"refund_id":  evt.RefundID.String(),
		})
		return false
	}

	s.logger.LogRefundRequested(ctx, evt.RefundID.String(), booking.ID.String(), evt.Amount.String(), evt.Currency)
	return true
}

// refundRequestedEvent builds the request for the booking's active refund
func refundRequestedEvent(booking *Booking, now time.Time) saga.RefundRequested {
	reason := "booking cancelled by customer"
	if booking.CancellationReason != nil && *booking.CancellationReason != "" {
		reason = *booking.CancellationReason
	}

	return saga.RefundRequested{
		Header: saga.Header{
			RefundID:  *booking.RefundID,
			BookingID: booking.ID,
			PaymentID: booking.PaymentID,
			Currency:  booking.Currency,
			Provider:  booking.PaymentProvider,
			Timestamp: now,
		},
		Amount:             booking.RefundAmount,
		Reason:             reason,
		ProviderPaymentRef: booking.ProviderPaymentRef,
	}
}
