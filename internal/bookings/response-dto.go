package bookings

import (
	"github.com/google/uuid"

	"refundsaga/internal/cancellation"
)

// CancellationResult is returned synchronously to the cancelling caller. The
// refund itself completes asynchronously and is queryable by RefundID.
type CancellationResult struct {
	Booking          *Booking              `json:"booking"`
	Decision         cancellation.Decision `json:"decision"`
	RefundID         *uuid.UUID            `json:"refund_id,omitempty"`
	RequestPublished bool                  `json:"refund_request_published"`
}

// RefundRequested reports whether the cancellation started a refund saga
func (r *CancellationResult) RefundRequested() bool {
	return r.RefundID != nil
}
