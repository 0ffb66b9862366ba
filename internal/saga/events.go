// Package saga defines the refund saga's event contracts and the channel
// abstraction both domains publish and subscribe through. Events are
// immutable values correlated by refund id; delivery is at-least-once.
package saga

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"refundsaga/internal/shared/apperror"
)

// Kind tags an event variant. It doubles as the routing key and topic suffix.
type Kind string

const (
	KindRefundRequested Kind = "refund.requested"
	KindRefundSucceeded Kind = "refund.succeeded"
	KindRefundFailed    Kind = "refund.failed"
)

// Kinds lists every event kind
var Kinds = []Kind{KindRefundRequested, KindRefundSucceeded, KindRefundFailed}

// IsValid checks if the kind is known
func (k Kind) IsValid() bool {
	switch k {
	case KindRefundRequested, KindRefundSucceeded, KindRefundFailed:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

var ErrInvalidEvent = apperror.New(apperror.KindValidation, http.StatusBadRequest, "invalid saga event")

// Event is implemented by the three refund event variants
type Event interface {
	Kind() Kind
	// CorrelationID is the refund id shared by every event of one saga
	CorrelationID() uuid.UUID
	Common() Header
	Validate() error
}

// Header carries the fields every refund event has
type Header struct {
	RefundID  uuid.UUID `json:"refund_id" validate:"required"`
	BookingID uuid.UUID `json:"booking_id" validate:"required"`
	PaymentID string    `json:"payment_id" validate:"required,max=128"`
	Currency  string    `json:"currency" validate:"required,len=3,uppercase"`
	Provider  string    `json:"provider" validate:"required,max=32"`
	Timestamp time.Time `json:"timestamp"`
}

// RefundRequested asks the payment domain to return money for a cancelled booking
type RefundRequested struct {
	Header
	Amount             decimal.Decimal `json:"amount"`
	Reason             string          `json:"reason" validate:"max=500"`
	ProviderPaymentRef string          `json:"provider_payment_ref" validate:"required,max=255"`
}

// RefundSucceeded reports money returned by the provider. RefundedAmount may
// differ from the requested amount when the provider adjusts it.
type RefundSucceeded struct {
	Header
	RefundedAmount    decimal.Decimal `json:"amount"`
	ProviderRefundRef string          `json:"provider_refund_ref" validate:"required,max=255"`
}

// RefundFailed reports a terminal refund failure
type RefundFailed struct {
	Header
	AttemptedAmount decimal.Decimal `json:"amount"`
	FailureReason   string          `json:"failure_reason" validate:"required,max=1000"`
}

func (e RefundRequested) Kind() Kind               { return KindRefundRequested }
func (e RefundRequested) CorrelationID() uuid.UUID { return e.RefundID }
func (e RefundRequested) Common() Header           { return e.Header }

func (e RefundSucceeded) Kind() Kind               { return KindRefundSucceeded }
func (e RefundSucceeded) CorrelationID() uuid.UUID { return e.RefundID }
func (e RefundSucceeded) Common() Header           { return e.Header }

func (e RefundFailed) Kind() Kind               { return KindRefundFailed }
func (e RefundFailed) CorrelationID() uuid.UUID { return e.RefundID }
func (e RefundFailed) Common() Header           { return e.Header }

func (e RefundRequested) Validate() error {
	if err := validateStruct(e); err != nil {
		return err
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: requested amount must be positive, got %s", ErrInvalidEvent, e.Amount)
	}
	return nil
}

func (e RefundSucceeded) Validate() error {
	if err := validateStruct(e); err != nil {
		return err
	}
	if e.RefundedAmount.IsNegative() {
		return fmt.Errorf("%w: refunded amount must not be negative, got %s", ErrInvalidEvent, e.RefundedAmount)
	}
	return nil
}

func (e RefundFailed) Validate() error {
	if err := validateStruct(e); err != nil {
		return err
	}
	if !e.AttemptedAmount.IsPositive() {
		return fmt.Errorf("%w: attempted amount must be positive, got %s", ErrInvalidEvent, e.AttemptedAmount)
	}
	return nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validateStruct(evt Event) error {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	if err := validate.Struct(evt); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEvent, evt.Kind(), err)
	}
	if evt.Common().Timestamp.IsZero() {
		return fmt.Errorf("%w: %s: missing timestamp", ErrInvalidEvent, evt.Kind())
	}
	return nil
}
