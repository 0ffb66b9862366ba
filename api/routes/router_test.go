package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"

	"refundsaga/internal/app"
	"refundsaga/internal/bookings"
	"refundsaga/internal/cancellation"
	"refundsaga/internal/messaging"
	"refundsaga/internal/shared/config"
	"refundsaga/internal/shared/database"
	"refundsaga/internal/shared/middleware"
	"refundsaga/pkg/logger"
)

const testSecret = "test-secret"

type RouterSuite struct {
	suite.Suite
	Engine *gin.Engine
	App    *app.App
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	cfg := config.Load()
	cfg.Saga.Role = config.RoleAll
	cfg.Saga.EventBus = config.BusMemory
	cfg.Saga.StoreDriver = config.StoreMemory
	cfg.Provider.Default = "simulated"
	cfg.Provider.StripeSecretKey = ""
	cfg.JWT.Secret = testSecret

	log := logger.Discard()
	a, err := app.Assemble(cfg, log, &database.DB{}, messaging.NewMemoryChannel("test", 3, log))
	s.Require().NoError(err)

	s.App = a
	s.Engine = gin.New()
	NewRouter(a).SetupRoutes(s.Engine)
}

func (s *RouterSuite) token(role string) string {
	tok, err := middleware.IssueToken(testSecret, "op-1", role, time.Hour)
	s.Require().NoError(err)
	return "Bearer " + tok
}

func (s *RouterSuite) do(method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	s.Engine.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) TestHealthRoutes() {
	w := s.do(http.MethodGet, "/health", "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("healthy", gjson.Get(w.Body.String(), "status").String())

	w = s.do(http.MethodGet, "/status", "")
	s.Equal("all", gjson.Get(w.Body.String(), "role").String())
	s.Equal("memory", gjson.Get(w.Body.String(), "event_bus").String())
}

func (s *RouterSuite) TestOpsRequiresToken() {
	path := "/api/v1/ops/refunds?booking_id=" + uuid.NewString()

	w := s.do(http.MethodGet, path, "")
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, path, s.token("USER"))
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, path, s.token(middleware.RoleOperator))
	s.Equal(http.StatusOK, w.Code)
	s.Equal(0, len(gjson.Get(w.Body.String(), "data").Array()))
}

func (s *RouterSuite) TestBookingQuote() {
	booking := &bookings.Booking{
		ID:                 uuid.New(),
		UserID:             uuid.New(),
		CheckIn:            time.Now().UTC().Add(30 * 24 * time.Hour),
		CheckOut:           time.Now().UTC().Add(31 * 24 * time.Hour),
		TotalAmount:        decimal.RequireFromString("80.00"),
		Currency:           "EUR",
		Status:             bookings.StatusConfirmed,
		Policy:             cancellation.DefaultPolicy(),
		PaymentID:          "pay_9",
		PaymentProvider:    "simulated",
		ProviderPaymentRef: "pi_9",
	}
	s.Require().NoError(s.App.BookingRepo.Create(s.T().Context(), booking))

	w := s.do(http.MethodGet, "/api/v1/ops/bookings/"+booking.ID.String()+"/refund-quote", s.token(middleware.RoleOperator))
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("FULL", gjson.Get(w.Body.String(), "data.tier").String())

	w = s.do(http.MethodGet, "/api/v1/ops/bookings/"+uuid.NewString(), s.token(middleware.RoleOperator))
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("NOT_FOUND", gjson.Get(w.Body.String(), "errors.kind").String())
}

func (s *RouterSuite) TestReconcileIsAdminOnly() {
	w := s.do(http.MethodPost, "/api/v1/ops/reconcile", s.token(middleware.RoleOperator))
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/v1/ops/reconcile", s.token(middleware.RoleAdmin))
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	names := gjson.Get(w.Body.String(), "data.#.name").Array()
	s.Require().Len(names, 2)
	s.Equal(app.SweepBookingRequests, names[0].String())
	s.Equal(app.SweepPendingRefunds, names[1].String())
}
