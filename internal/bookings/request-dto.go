package bookings

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"refundsaga/internal/shared/apperror"
)

var ErrInvalidRequest = apperror.New(apperror.KindValidation, http.StatusBadRequest, "invalid request")

// CancelRequest asks to cancel a booking on behalf of RequesterID
type CancelRequest struct {
	BookingID   uuid.UUID `json:"booking_id" validate:"required"`
	RequesterID uuid.UUID `json:"requester_id" validate:"required"`
	Reason      string    `json:"reason" validate:"max=500"`
}

// RetryRequest asks to re-run a failed refund
type RetryRequest struct {
	BookingID  uuid.UUID `json:"booking_id" validate:"required"`
	OperatorID string    `json:"operator_id" validate:"required,max=128"`
	Note       string    `json:"note" validate:"max=500"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validateRequest(req interface{}) error {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
