package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"refundsaga/pkg/logger"
)

// Sweeper is a periodic job that reports how many items it handled
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SweepFunc adapts a function to Sweeper
type SweepFunc func(ctx context.Context) (int, error)

func (f SweepFunc) Sweep(ctx context.Context) (int, error) { return f(ctx) }

// Scheduler runs the reconciliation sweeps in the background
type Scheduler struct {
	sched  gocron.Scheduler
	logger *logger.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a stopped scheduler
func NewScheduler(log *logger.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{sched: sched, logger: log, ctx: ctx, cancel: cancel}, nil
}

// Every registers sweeper to run at interval, starting as soon as the
// scheduler starts. A run still in progress when the next one is due is
// skipped rather than overlapped.
func (s *Scheduler) Every(name string, interval time.Duration, sweeper Sweeper) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			s.Run(s.ctx, name, sweeper)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Run executes one sweep and logs its result
func (s *Scheduler) Run(ctx context.Context, name string, sweeper Sweeper) (int, error) {
	start := time.Now()
	n, err := sweeper.Sweep(ctx)
	if err != nil {
		s.logger.ErrorWithContext(ctx, "Sweep failed", err, map[string]interface{}{
			"job":      name,
			"duration": time.Since(start).String(),
		})
		return n, err
	}

	if n > 0 {
		s.logger.InfoWithContext(ctx, "Sweep completed", map[string]interface{}{
			"job":      name,
			"handled":  n,
			"duration": time.Since(start).String(),
		})
	}
	return n, nil
}

// Start starts all registered jobs
func (s *Scheduler) Start() {
	log.Printf("🕒 Starting %d background jobs...", len(s.sched.Jobs()))
	s.sched.Start()
}

// Stop cancels in-flight sweeps and waits for them to return
func (s *Scheduler) Stop() error {
	log.Println("🛑 Stopping background jobs...")
	s.cancel()
	return s.sched.Shutdown()
}
