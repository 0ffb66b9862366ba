package bookings

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"refundsaga/internal/cancellation"
	"refundsaga/internal/saga"
	"refundsaga/pkg/logger"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []saga.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt saga.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) requested() []saga.RefundRequested {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []saga.RefundRequested
	for _, evt := range p.events {
		if r, ok := evt.(saga.RefundRequested); ok {
			out = append(out, r)
		}
	}
	return out
}

func confirmedBooking(checkInIn time.Duration) *Booking {
	return &Booking{
		ID:                 uuid.New(),
		UserID:             uuid.New(),
		CheckIn:            testNow.Add(checkInIn),
		CheckOut:           testNow.Add(checkInIn + 48*time.Hour),
		TotalAmount:        decimal.RequireFromString("100.00"),
		Currency:           "USD",
		Status:             StatusConfirmed,
		Policy:             cancellation.DefaultPolicy(),
		PaymentID:          "pay_123",
		PaymentProvider:    "stripe",
		ProviderPaymentRef: "pi_123",
	}
}

func newTestService(repo Repository, pub saga.Publisher) Service {
	return NewService(repo, pub, logger.Discard(), ServiceConfig{
		MaxSaveAttempts: 3,
		Now:             func() time.Time { return testNow },
		NewRefundID:     uuid.New,
	})
}

// flakyRepository fails the first saves with a concurrent modification after
// letting a competing write through
type flakyRepository struct {
	Repository
	conflicts  int
	onConflict func(ctx context.Context, booking *Booking)
	saves      int
}

func (f *flakyRepository) Save(ctx context.Context, booking *Booking) (*Booking, error) {
	f.saves++
	if f.conflicts > 0 {
		f.conflicts--
		if f.onConflict != nil {
			f.onConflict(ctx, booking)
		}
		return nil, ErrConcurrentModification
	}
	return f.Repository.Save(ctx, booking)
}

type brokenRepository struct {
	Repository
	findErr error
	saveErr error
}

func (b *brokenRepository) FindByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	if b.findErr != nil {
		return nil, b.findErr
	}
	return b.Repository.FindByID(ctx, id)
}

func (b *brokenRepository) Save(ctx context.Context, booking *Booking) (*Booking, error) {
	if b.saveErr != nil {
		return nil, b.saveErr
	}
	return b.Repository.Save(ctx, booking)
}

var errDatabaseDown = errors.New("connection refused")
