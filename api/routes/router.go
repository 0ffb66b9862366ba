// api/routes/router.go
package routes

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"refundsaga/internal/app"
	"refundsaga/internal/bookings"
	"refundsaga/internal/refunds"
	"refundsaga/internal/shared/middleware"
	"refundsaga/internal/shared/utils/response"
)

// Router holds all route dependencies
type Router struct {
	app *app.App
}

// NewRouter creates a new router instance
func NewRouter(a *app.App) *Router {
	return &Router{app: a}
}

// SweepResult reports one reconciliation sweep
type SweepResult struct {
	Name      string `json:"name"`
	Processed int    `json:"processed"`
	Error     string `json:"error,omitempty"`
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check and basic info endpoints
	r.setupHealthRoutes(engine)

	// Operator surface, behind a token
	api := engine.Group(r.app.Config.GetAPIBasePath())
	ops := api.Group("/ops")
	ops.Use(
		middleware.JWTAuth(r.app.Config, r.app.Logger),
		middleware.RequireRoles(middleware.RoleAdmin, middleware.RoleOperator),
	)
	{
		if r.app.Bookings != nil {
			bookings.SetupOpsRoutes(ops, bookings.NewController(r.app.Bookings))
		}
		if r.app.Refunds != nil {
			refunds.SetupOpsRoutes(ops, refunds.NewController(r.app.Refunds))
		}

		ops.POST("/reconcile", middleware.RequireRoles(middleware.RoleAdmin), r.reconcile) // POST /api/v1/ops/reconcile
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	service := r.app.Config.Saga.ProducerName

	engine.GET("/health", func(c *gin.Context) {
		// Perform health checks
		if err := r.app.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   service,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   service,
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.app.Config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.app.Config.APIVersion,
			"role":        r.app.Config.Saga.Role,
			"event_bus":   r.app.Config.Saga.EventBus,
			"timestamp":   time.Now(),
		})
	})
}

// reconcile runs every sweep of this role once, outside the schedule
func (r *Router) reconcile(c *gin.Context) {
	sweepers := r.app.Sweepers()
	names := make([]string, 0, len(sweepers))
	for name := range sweepers {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]SweepResult, 0, len(names))
	failed := false
	for _, name := range names {
		processed, err := sweepers[name].Sweep(c.Request.Context())
		result := SweepResult{Name: name, Processed: processed}
		if err != nil {
			failed = true
			result.Error = err.Error()
			r.app.Logger.ErrorWithContext(c.Request.Context(), "Manual reconciliation sweep failed", err, map[string]interface{}{
				"job":          name,
				"requested_by": c.GetString(middleware.ContextUserID),
			})
		}
		results = append(results, result)
	}

	if failed {
		response.RespondJSON(c, "error", http.StatusInternalServerError, "Reconciliation finished with errors", results, nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "Reconciliation finished", results, nil)
}
