// Package app assembles the saga components for a process role. The server
// and sagactl share it so both run with identical wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"refundsaga/internal/bookings"
	"refundsaga/internal/messaging"
	"refundsaga/internal/refunds"
	"refundsaga/internal/saga"
	"refundsaga/internal/shared/config"
	"refundsaga/internal/shared/database"
	"refundsaga/internal/shared/jobs"
	"refundsaga/pkg/cache"
	"refundsaga/pkg/lock"
	"refundsaga/pkg/logger"
	"refundsaga/pkg/obs"
)

// Sweep job names
const (
	SweepBookingRequests = "booking-refund-requests"
	SweepPendingRefunds  = "payment-pending-refunds"
)

// App holds the components a process runs. Booking fields are nil unless the
// role runs the booking side, payment fields likewise.
type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *database.DB
	Channel saga.Channel
	Cache   cache.Service
	Locker  saga.KeyLocker

	// Booking side
	BookingRepo       bookings.Repository
	Bookings          bookings.Service
	Listener          *bookings.RefundListener
	BookingReconciler *bookings.Reconciler

	// Payment side
	RefundRepo       refunds.Repository
	Refunds          refunds.Service
	Orchestrator     *refunds.Orchestrator
	RefundReconciler *refunds.Reconciler
}

// New connects the stores and the event channel for cfg's role
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		return nil, err
	}

	channel, err := messaging.New(cfg, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("event channel: %w", err)
	}

	return Assemble(cfg, log, db, channel)
}

// Assemble builds the components on already opened connections
func Assemble(cfg *config.Config, log *logger.Logger, db *database.DB, channel saga.Channel) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  log,
		DB:      db,
		Channel: channel,
		Locker:  lock.NewLocalLocker(),
	}
	if db.Redis != nil {
		a.Cache = cache.NewService(db.Redis, log)
		a.Locker = lock.NewRedisLocker(db.Redis)
	}

	if cfg.RunsBooking() {
		a.BookingRepo = bookings.NewMemoryRepository()
		if db.Bookings != nil {
			a.BookingRepo = bookings.NewRepository(db.Bookings)
		}

		a.Bookings = bookings.NewService(a.BookingRepo, channel, log, bookings.ServiceConfig{
			MaxSaveAttempts: cfg.Saga.MaxSaveAttempts,
		})
		a.Listener = bookings.NewRefundListener(a.BookingRepo, log, nil)

		reconcileCfg := bookings.DefaultReconcilerConfig()
		reconcileCfg.StaleAfter = cfg.Saga.StaleAfter
		reconcileCfg.MaxBackoff = cfg.Saga.MaxBackoff
		reconcileCfg.BatchSize = cfg.Saga.ReconcileBatch
		a.BookingReconciler = bookings.NewReconciler(a.BookingRepo, channel, log, reconcileCfg)
	}

	if cfg.RunsPayment() {
		var refundRepo refunds.Repository = refunds.NewMemoryRepository()
		if db.Payments != nil {
			refundRepo = refunds.NewRepository(db.Payments)
		}
		a.RefundRepo = refundRepo

		providers, err := newProviders(cfg.Provider)
		if err != nil {
			return nil, err
		}

		orchestratorCfg := refunds.DefaultOrchestratorConfig()
		orchestratorCfg.ProviderTimeout = cfg.Saga.ProviderTimeout
		a.Orchestrator = refunds.NewOrchestrator(refundRepo, providers, channel, a.Cache, log, orchestratorCfg)
		a.Refunds = refunds.NewService(refundRepo, a.Cache)
		a.RefundReconciler = refunds.NewReconciler(refundRepo, a.Orchestrator, a.Locker, log, refunds.ReconcilerConfig{
			StaleAfter: cfg.Saga.StaleAfter,
			BatchSize:  cfg.Saga.ReconcileBatch,
			LockTTL:    cfg.Saga.LockTTL,
		})
	}

	return a, nil
}

// newProviders registers the simulated provider always and Stripe when a
// key is configured. The configured default serves unknown provider names.
func newProviders(cfg config.ProviderConfig) (*refunds.Providers, error) {
	simulated := refunds.NewSimulatedProvider("simulated")

	switch cfg.Default {
	case "stripe":
		if cfg.StripeSecretKey == "" {
			return nil, errors.New("stripe provider needs STRIPE_SECRET_KEY")
		}
		return refunds.NewProviders(refunds.NewStripeProvider(cfg.StripeSecretKey), simulated), nil
	case "simulated", "":
		if cfg.StripeSecretKey != "" {
			return refunds.NewProviders(simulated, refunds.NewStripeProvider(cfg.StripeSecretKey)), nil
		}
		return refunds.NewProviders(simulated), nil
	}
	return nil, fmt.Errorf("unknown payment provider %q", cfg.Default)
}

// Subscribe registers this role's handlers on the channel. Every handler is
// traced and serialized per refund id.
func (a *App) Subscribe() {
	var subscriptions []map[saga.Kind]saga.Handler
	if a.Listener != nil {
		subscriptions = append(subscriptions, a.Listener.Handlers())
	}
	if a.Orchestrator != nil {
		subscriptions = append(subscriptions, a.Orchestrator.Handlers())
	}

	tracer := obs.Tracer()
	for _, handlers := range subscriptions {
		for kind, handler := range handlers {
			a.Channel.Subscribe(kind, saga.Traced(tracer, saga.Serialize(a.Locker, a.Config.Saga.LockTTL, handler)))
		}
	}
}

// Sweepers returns the reconciliation sweeps this role runs
func (a *App) Sweepers() map[string]jobs.Sweeper {
	sweepers := make(map[string]jobs.Sweeper)
	if a.BookingReconciler != nil {
		sweepers[SweepBookingRequests] = a.BookingReconciler
	}
	if a.RefundReconciler != nil {
		sweepers[SweepPendingRefunds] = a.RefundReconciler
	}
	return sweepers
}

// HealthCheck pings the stores and Redis
func (a *App) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return a.DB.HealthCheck(ctx)
}

// Close stops the channel and closes the connections
func (a *App) Close() error {
	var errs []error
	if a.Channel != nil {
		if err := a.Channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
