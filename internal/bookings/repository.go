package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the booking store. Save is a conditional write on Version and
// fails with ErrConcurrentModification when the row moved underneath the caller.
type Repository interface {
	Create(ctx context.Context, booking *Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	FindByRefundID(ctx context.Context, refundID uuid.UUID) (*Booking, error)
	Save(ctx context.Context, booking *Booking) (*Booking, error)

	// Reconciliation. Returns REFUND_PENDING bookings whose stale window
	// started before staleBefore, oldest first, so backoff is applied before
	// the limit.
	ListStaleRefundPending(ctx context.Context, staleBefore time.Time, limit int) ([]Booking, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, booking *Booking) error {
	if booking.Version == 0 {
		booking.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(booking).Error; err != nil {
		return fmt.Errorf("%w: create booking: %w", ErrStore, err)
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, id)
		}
		return nil, fmt.Errorf("%w: find booking %s: %w", ErrStore, id, err)
	}
	return &booking, nil
}

func (r *repository) FindByRefundID(ctx context.Context, refundID uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).Where("refund_id = ?", refundID).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: refund %s", ErrBookingNotFound, refundID)
		}
		return nil, fmt.Errorf("%w: find booking by refund %s: %w", ErrStore, refundID, err)
	}
	return &booking, nil
}

// Save writes every mutable column in one UPDATE guarded by the version the
// caller read. Identity, schedule and payment references never change after
// creation and are left out.
func (r *repository) Save(ctx context.Context, booking *Booking) (*Booking, error) {
	updates := map[string]interface{}{
		"status":                booking.Status,
		"cancellation_reason":   booking.CancellationReason,
		"cancelled_at":          booking.CancelledAt,
		"refund_tier":           booking.RefundTier,
		"refund_amount":         booking.RefundAmount,
		"refund_id":             booking.RefundID,
		"refund_requested_at":   booking.RefundRequestedAt,
		"refund_request_count":  booking.RefundRequestCount,
		"refund_stale_from":     booking.RefundStaleFrom,
		"provider_refund_ref":   booking.ProviderRefundRef,
		"refunded_amount":       booking.RefundedAmount,
		"refund_failure_reason": booking.RefundFailureReason,
		"refund_resolved_at":    booking.RefundResolvedAt,
		"updated_at":            booking.UpdatedAt,
		"version":               booking.Version + 1,
	}

	result := r.db.WithContext(ctx).
		Model(&Booking{}).
		Where("id = ? AND version = ?", booking.ID, booking.Version).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: save booking %s: %w", ErrStore, booking.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: booking %s at version %d", ErrConcurrentModification, booking.ID, booking.Version)
	}

	booking.Version++
	return booking, nil
}

func (r *repository) ListStaleRefundPending(ctx context.Context, staleBefore time.Time, limit int) ([]Booking, error) {
	var bookings []Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND refund_stale_from < ?", StatusRefundPending, staleBefore).
		Order("refund_stale_from ASC").
		Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list stale refunds: %w", ErrStore, err)
	}
	return bookings, nil
}
