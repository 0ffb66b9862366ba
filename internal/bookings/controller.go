package bookings

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"refundsaga/internal/shared/middleware"
	"refundsaga/internal/shared/utils/response"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

// RetryRefundBody is the operator's payload for a refund retry
type RetryRefundBody struct {
	Note string `json:"note" binding:"max=500"`
}

// GetBooking handles GET /api/v1/ops/bookings/:id
func (c *Controller) GetBooking(ctx *gin.Context) {
	bookingID, ok := bookingIDParam(ctx)
	if !ok {
		return
	}

	booking, err := c.service.GetBooking(ctx.Request.Context(), bookingID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Booking retrieved successfully", booking, nil)
}

// QuoteRefund handles GET /api/v1/ops/bookings/:id/refund-quote
func (c *Controller) QuoteRefund(ctx *gin.Context) {
	bookingID, ok := bookingIDParam(ctx)
	if !ok {
		return
	}

	decision, err := c.service.QuoteRefund(ctx.Request.Context(), bookingID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Refund quote computed", decision, nil)
}

// RetryRefund handles POST /api/v1/ops/bookings/:id/refund-retry
func (c *Controller) RetryRefund(ctx *gin.Context) {
	bookingID, ok := bookingIDParam(ctx)
	if !ok {
		return
	}

	var body RetryRefundBody
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&body); err != nil {
			response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
			return
		}
	}

	operatorID, _ := ctx.Get(middleware.ContextUserID)
	operator, _ := operatorID.(string)

	booking, err := c.service.RetryRefund(ctx.Request.Context(), RetryRequest{
		BookingID:  bookingID,
		OperatorID: operator,
		Note:       body.Note,
	})
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusAccepted, "Refund retry requested", gin.H{
		"booking_id": booking.ID,
		"refund_id":  booking.RefundID,
		"status":     booking.Status,
	}, nil)
}

func bookingIDParam(ctx *gin.Context) (uuid.UUID, bool) {
	bookingID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid booking ID", nil, nil)
		return uuid.Nil, false
	}
	return bookingID, true
}
