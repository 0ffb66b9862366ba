package refunds

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"refundsaga/internal/saga"
)

// Refund is the payment domain's record of one refund request, keyed by the
// saga's refund id. At most one row exists per refund id.
type Refund struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"refund_id"`
	BookingID          uuid.UUID       `gorm:"type:uuid;index;not null" json:"booking_id"`
	PaymentID          string          `gorm:"type:varchar(128);not null" json:"payment_id"`
	Amount             decimal.Decimal `gorm:"type:numeric(14,4);not null" json:"amount"`
	Currency           string          `gorm:"type:varchar(3);not null" json:"currency"`
	Reason             string          `gorm:"type:text" json:"reason,omitempty"`
	Provider           string          `gorm:"type:varchar(32);not null" json:"provider"`
	ProviderPaymentRef string          `gorm:"type:varchar(255);not null" json:"provider_payment_ref"`
	Status             Status          `gorm:"type:varchar(20);index;not null;check:status IN ('PENDING','SUCCEEDED','FAILED');default:'PENDING'" json:"status"`

	// Outcome
	ProviderRefundRef *string             `gorm:"type:varchar(255)" json:"provider_refund_ref,omitempty"`
	RefundedAmount    decimal.NullDecimal `gorm:"type:numeric(14,4)" json:"refunded_amount"`
	FailureReason     *string             `gorm:"type:text" json:"failure_reason,omitempty"`

	// Provider attempts
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	LastError     *string    `gorm:"type:text" json:"last_error,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	Version     int64      `gorm:"not null;default:1" json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// TableName sets the table name for Refund
func (Refund) TableName() string {
	return "refunds"
}

// NewFromRequest builds a PENDING refund for a request event
func NewFromRequest(evt saga.RefundRequested, now time.Time) *Refund {
	return &Refund{
		ID:                 evt.RefundID,
		BookingID:          evt.BookingID,
		PaymentID:          evt.PaymentID,
		Amount:             evt.Amount,
		Currency:           evt.Currency,
		Reason:             evt.Reason,
		Provider:           evt.Provider,
		ProviderPaymentRef: evt.ProviderPaymentRef,
		Status:             StatusPending,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Matches reports whether a redelivered request describes this refund
func (r *Refund) Matches(evt saga.RefundRequested) bool {
	return r.BookingID == evt.BookingID &&
		r.PaymentID == evt.PaymentID &&
		r.Currency == evt.Currency &&
		r.Amount.Equal(evt.Amount)
}

// MarkSucceeded records money returned by the provider
func (r *Refund) MarkSucceeded(providerRefundRef string, refunded decimal.Decimal, now time.Time) error {
	if r.Status != StatusPending {
		return fmt.Errorf("%w: refund %s is %s", ErrRefundFinal, r.ID, r.Status)
	}
	r.Status = StatusSucceeded
	r.ProviderRefundRef = &providerRefundRef
	r.RefundedAmount = decimal.NewNullDecimal(refunded)
	r.LastError = nil
	r.ProcessedAt = &now
	r.UpdatedAt = now
	return nil
}

// MarkFailed records a terminal provider rejection
func (r *Refund) MarkFailed(reason string, now time.Time) error {
	if r.Status != StatusPending {
		return fmt.Errorf("%w: refund %s is %s", ErrRefundFinal, r.ID, r.Status)
	}
	r.Status = StatusFailed
	r.FailureReason = &reason
	r.ProcessedAt = &now
	r.UpdatedAt = now
	return nil
}

// NoteAttempt records a provider call that left the refund PENDING
func (r *Refund) NoteAttempt(cause string, now time.Time) {
	r.Attempts++
	r.LastError = &cause
	r.LastAttemptAt = &now
	r.UpdatedAt = now
}

// OutcomeEvent builds the saga event for a refund with a final outcome
func (r *Refund) OutcomeEvent(now time.Time) (saga.Event, error) {
	header := saga.Header{
		RefundID:  r.ID,
		BookingID: r.BookingID,
		PaymentID: r.PaymentID,
		Currency:  r.Currency,
		Provider:  r.Provider,
		Timestamp: now,
	}

	switch r.Status {
	case StatusSucceeded:
		ref := ""
		if r.ProviderRefundRef != nil {
			ref = *r.ProviderRefundRef
		}
		return saga.RefundSucceeded{
			Header:            header,
			RefundedAmount:    r.RefundedAmount.Decimal,
			ProviderRefundRef: ref,
		}, nil
	case StatusFailed:
		reason := ""
		if r.FailureReason != nil {
			reason = *r.FailureReason
		}
		return saga.RefundFailed{
			Header:          header,
			AttemptedAmount: r.Amount,
			FailureReason:   reason,
		}, nil
	}
	return nil, fmt.Errorf("refund %s has no outcome yet", r.ID)
}
