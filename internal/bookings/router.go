package bookings

import (
	"github.com/gin-gonic/gin"
)

// SetupOpsRoutes configures the operator booking routes. rg is expected to
// carry authentication and role checks already.
func SetupOpsRoutes(rg *gin.RouterGroup, controller *Controller) {
	bookings := rg.Group("/bookings")
	{
		bookings.GET("/:id", controller.GetBooking)                // GET /api/v1/ops/bookings/:id
		bookings.GET("/:id/refund-quote", controller.QuoteRefund)  // GET /api/v1/ops/bookings/:id/refund-quote
		bookings.POST("/:id/refund-retry", controller.RetryRefund) // POST /api/v1/ops/bookings/:id/refund-retry
	}
}

// Route definitions for reference:
//
// BOOKING LOOKUP
// GET    /api/v1/ops/bookings/:id                     - Booking with its active refund
//
// REFUND QUOTE
// GET    /api/v1/ops/bookings/:id/refund-quote        - Policy evaluation at the current time, no state change
//
// REFUND RETRY
// POST   /api/v1/ops/bookings/:id/refund-retry        - REFUND_FAILED → REFUND_PENDING with a new refund id
// Request body: { "note": "customer re-verified card" }
