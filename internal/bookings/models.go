package bookings

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"refundsaga/internal/cancellation"
)

// Booking defines the main booking structure. It is never deleted;
// cancellation and refund reconciliation are status transitions.
type Booking struct {
	ID          uuid.UUID           `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID      uuid.UUID           `gorm:"type:uuid;index;not null" json:"user_id"`
	CheckIn     time.Time           `gorm:"not null" json:"check_in"`
	CheckOut    time.Time           `gorm:"not null" json:"check_out"`
	TotalAmount decimal.Decimal     `gorm:"type:numeric(14,4);not null" json:"total_amount"`
	Currency    string              `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Status      Status              `gorm:"type:varchar(20);index;not null;check:status IN ('PENDING','CONFIRMED','CANCELLED','REFUND_PENDING','REFUNDED','REFUND_FAILED','COMPLETED');default:'CONFIRMED'" json:"status"`
	Policy      cancellation.Policy `gorm:"embedded;embeddedPrefix:policy_" json:"policy"`

	// Payment back-references copied into refund requests
	PaymentID          string `gorm:"type:varchar(128);not null" json:"payment_id"`
	PaymentProvider    string `gorm:"type:varchar(32);not null" json:"payment_provider"`
	ProviderPaymentRef string `gorm:"type:varchar(255);not null" json:"provider_payment_ref"`

	// Cancellation
	CancellationReason *string         `gorm:"type:text" json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	RefundTier         string          `gorm:"type:varchar(10)" json:"refund_tier,omitempty"`
	RefundAmount       decimal.Decimal `gorm:"type:numeric(14,4);not null;default:0" json:"refund_amount"`

	// Active refund and its last known outcome. The payment domain owns the
	// authoritative refund record.
	RefundID            *uuid.UUID          `gorm:"type:uuid;uniqueIndex" json:"refund_id,omitempty"`
	RefundRequestedAt   *time.Time          `json:"refund_requested_at,omitempty"`
	RefundRequestCount  int                 `gorm:"not null;default:0" json:"refund_request_count"`
	RefundStaleFrom     *time.Time          `json:"refund_stale_from,omitempty"`
	ProviderRefundRef   *string             `gorm:"type:varchar(255)" json:"provider_refund_ref,omitempty"`
	RefundedAmount      decimal.NullDecimal `gorm:"type:numeric(14,4)" json:"refunded_amount"`
	RefundFailureReason *string             `gorm:"type:text" json:"refund_failure_reason,omitempty"`
	RefundResolvedAt    *time.Time          `json:"refund_resolved_at,omitempty"`

	Version   int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name for Booking
func (Booking) TableName() string {
	return "bookings"
}

// IsOwnedBy checks booking ownership
func (b *Booking) IsOwnedBy(userID uuid.UUID) bool {
	return b.UserID == userID
}

// HasActiveRefund reports whether refundID is the refund the booking waits on
func (b *Booking) HasActiveRefund(refundID uuid.UUID) bool {
	return b.Status == StatusRefundPending && b.RefundID != nil && *b.RefundID == refundID
}

// Cancel records a cancellation decided by the policy engine
func (b *Booking) Cancel(reason string, decision cancellation.Decision, now time.Time) error {
	if err := b.transition(StatusCancelled); err != nil {
		return err
	}
	if reason != "" {
		b.CancellationReason = &reason
	}
	b.CancelledAt = &now
	b.RefundTier = string(decision.Tier)
	b.RefundAmount = decision.Amount
	b.UpdatedAt = now
	return nil
}

// BeginRefund attaches a new refund correlation id and waits for its outcome
func (b *Booking) BeginRefund(refundID uuid.UUID, now time.Time) error {
	if !b.RefundAmount.IsPositive() {
		return fmt.Errorf("booking %s has nothing to refund", b.ID)
	}
	if err := b.transition(StatusRefundPending); err != nil {
		return err
	}
	b.RefundID = &refundID
	b.RefundRequestedAt = &now
	b.RefundRequestCount = 1
	b.RefundStaleFrom = &now
	b.ProviderRefundRef = nil
	b.RefundedAmount = decimal.NullDecimal{}
	b.RefundFailureReason = nil
	b.RefundResolvedAt = nil
	b.UpdatedAt = now
	return nil
}

// MarkRefunded applies a successful refund outcome
func (b *Booking) MarkRefunded(providerRefundRef string, refunded decimal.Decimal, now time.Time) error {
	if err := b.transition(StatusRefunded); err != nil {
		return err
	}
	b.ProviderRefundRef = &providerRefundRef
	b.RefundedAmount = decimal.NewNullDecimal(refunded)
	b.RefundResolvedAt = &now
	b.UpdatedAt = now
	return nil
}

// MarkRefundFailed applies a failed refund outcome
func (b *Booking) MarkRefundFailed(reason string, now time.Time) error {
	if err := b.transition(StatusRefundFailed); err != nil {
		return err
	}
	b.RefundFailureReason = &reason
	b.RefundResolvedAt = &now
	b.UpdatedAt = now
	return nil
}

// NoteRefundRequested records a re-publish of the active refund request.
// staleFrom is where the reconciler's stale window restarts; pushing it past
// now is how backoff is stored.
func (b *Booking) NoteRefundRequested(now, staleFrom time.Time) {
	b.RefundRequestedAt = &now
	b.RefundRequestCount++
	b.RefundStaleFrom = &staleFrom
	b.UpdatedAt = now
}

func (b *Booking) transition(next Status) error {
	if !b.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s → %s", ErrIllegalTransition, b.Status, next)
	}
	b.Status = next
	return nil
}
