package refunds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the refund store. CreateIfAbsent is the deduplication point
// for redelivered requests; Save is a conditional write on Version.
type Repository interface {
	// CreateIfAbsent inserts refund unless a row with its id exists. It
	// returns whether the row was created and the stored record either way.
	CreateIfAbsent(ctx context.Context, refund *Refund) (bool, *Refund, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Refund, error)
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]Refund, error)
	Save(ctx context.Context, refund *Refund) (*Refund, error)

	// Reconciliation
	ListStalePending(ctx context.Context, lastTouchedBefore time.Time, limit int) ([]Refund, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateIfAbsent(ctx context.Context, refund *Refund) (bool, *Refund, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(refund)
	if result.Error != nil {
		return false, nil, fmt.Errorf("%w: create refund %s: %w", ErrStore, refund.ID, result.Error)
	}
	if result.RowsAffected == 1 {
		return true, refund, nil
	}

	existing, err := r.FindByID(ctx, refund.ID)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*Refund, error) {
	var refund Refund
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&refund).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRefundNotFound, id)
		}
		return nil, fmt.Errorf("%w: find refund %s: %w", ErrStore, id, err)
	}
	return &refund, nil
}

func (r *repository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]Refund, error) {
	var refunds []Refund
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&refunds).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list refunds for booking %s: %w", ErrStore, bookingID, err)
	}
	return refunds, nil
}

// Save writes the mutable columns guarded by the version the caller read
func (r *repository) Save(ctx context.Context, refund *Refund) (*Refund, error) {
	updates := map[string]interface{}{
		"status":              refund.Status,
		"provider_refund_ref": refund.ProviderRefundRef,
		"refunded_amount":     refund.RefundedAmount,
		"failure_reason":      refund.FailureReason,
		"attempts":            refund.Attempts,
		"last_error":          refund.LastError,
		"last_attempt_at":     refund.LastAttemptAt,
		"processed_at":        refund.ProcessedAt,
		"updated_at":          refund.UpdatedAt,
		"version":             refund.Version + 1,
	}

	result := r.db.WithContext(ctx).
		Model(&Refund{}).
		Where("id = ? AND version = ?", refund.ID, refund.Version).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: save refund %s: %w", ErrStore, refund.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: refund %s at version %d", ErrConcurrentModification, refund.ID, refund.Version)
	}

	refund.Version++
	return refund, nil
}

func (r *repository) ListStalePending(ctx context.Context, lastTouchedBefore time.Time, limit int) ([]Refund, error) {
	var refunds []Refund
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", StatusPending, lastTouchedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&refunds).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list stale refunds: %w", ErrStore, err)
	}
	return refunds, nil
}
