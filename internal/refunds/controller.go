package refunds

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"refundsaga/internal/shared/utils/response"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

// GetRefund handles GET /api/v1/ops/refunds/:id
func (c *Controller) GetRefund(ctx *gin.Context) {
	refundID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid refund ID", nil, nil)
		return
	}

	refund, err := c.service.GetRefund(ctx.Request.Context(), refundID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Refund retrieved successfully", refund, nil)
}

// ListByBooking handles GET /api/v1/ops/refunds?booking_id=
func (c *Controller) ListByBooking(ctx *gin.Context) {
	bookingID, err := uuid.Parse(ctx.Query("booking_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "booking_id query parameter is required", nil, nil)
		return
	}

	refunds, err := c.service.ListByBooking(ctx.Request.Context(), bookingID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Refunds retrieved successfully", refunds, nil)
}

// SetupOpsRoutes configures the operator refund routes
func SetupOpsRoutes(rg *gin.RouterGroup, controller *Controller) {
	refunds := rg.Group("/refunds")
	{
		refunds.GET("", controller.ListByBooking) // GET /api/v1/ops/refunds?booking_id=
		refunds.GET("/:id", controller.GetRefund) // GET /api/v1/ops/refunds/:id
	}
}
