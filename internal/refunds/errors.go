package refunds

import (
	"net/http"

	"refundsaga/internal/shared/apperror"
)

var (
	ErrRefundNotFound         = apperror.New(apperror.KindNotFound, http.StatusNotFound, "refund not found")
	ErrRefundMismatch         = apperror.New(apperror.KindValidation, http.StatusConflict, "refund id reused for a different request")
	ErrRefundFinal            = apperror.New(apperror.KindPrecondition, http.StatusConflict, "refund already has an outcome")
	ErrConcurrentModification = apperror.New(apperror.KindConcurrentModification, http.StatusConflict, "refund was modified concurrently")
	ErrStore                  = apperror.New(apperror.KindPersistence, http.StatusInternalServerError, "refund store failure")

	// Provider outcomes
	ErrTransientProvider = apperror.New(apperror.KindTransientProvider, http.StatusBadGateway, "payment provider unavailable")
	ErrDeclined          = apperror.New(apperror.KindDeclined, http.StatusUnprocessableEntity, "refund declined by payment provider")
)
