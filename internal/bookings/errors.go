package bookings

import (
	"net/http"

	"refundsaga/internal/shared/apperror"
)

var (
	ErrBookingNotFound        = apperror.New(apperror.KindNotFound, http.StatusNotFound, "booking not found")
	ErrNotOwner               = apperror.New(apperror.KindPrecondition, http.StatusForbidden, "booking does not belong to requester")
	ErrAlreadyCancelled       = apperror.New(apperror.KindPrecondition, http.StatusConflict, "booking is already cancelled")
	ErrBookingCompleted       = apperror.New(apperror.KindPrecondition, http.StatusConflict, "booking is already completed")
	ErrNotCancellable         = apperror.New(apperror.KindPrecondition, http.StatusConflict, "booking cannot be cancelled in its current status")
	ErrCheckInPassed          = apperror.New(apperror.KindPrecondition, http.StatusUnprocessableEntity, "check-in time has passed")
	ErrIllegalTransition      = apperror.New(apperror.KindPrecondition, http.StatusConflict, "illegal booking status transition")
	ErrRefundNotRetryable     = apperror.New(apperror.KindPrecondition, http.StatusConflict, "only bookings in REFUND_FAILED can be retried")
	ErrConcurrentModification = apperror.New(apperror.KindConcurrentModification, http.StatusConflict, "booking was modified concurrently")
	ErrStore                  = apperror.New(apperror.KindPersistence, http.StatusInternalServerError, "booking store failure")
)
