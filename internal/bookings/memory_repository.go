package bookings

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps bookings in process. It backs STORE_DRIVER=memory and
// tests, with the same version semantics as the Postgres store.
type MemoryRepository struct {
	mu       sync.RWMutex
	bookings map[uuid.UUID]Booking
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{bookings: make(map[uuid.UUID]Booking)}
}

func (m *MemoryRepository) Create(_ context.Context, booking *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	if _, exists := m.bookings[booking.ID]; exists {
		return fmt.Errorf("%w: booking %s already exists", ErrStore, booking.ID)
	}
	if booking.Version == 0 {
		booking.Version = 1
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = now
	}
	m.bookings[booking.ID] = *booking
	return nil
}

func (m *MemoryRepository) FindByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	booking, ok := m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, id)
	}
	return &booking, nil
}

func (m *MemoryRepository) FindByRefundID(_ context.Context, refundID uuid.UUID) (*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, booking := range m.bookings {
		if booking.RefundID != nil && *booking.RefundID == refundID {
			return &booking, nil
		}
	}
	return nil, fmt.Errorf("%w: refund %s", ErrBookingNotFound, refundID)
}

func (m *MemoryRepository) Save(_ context.Context, booking *Booking) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.bookings[booking.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, booking.ID)
	}
	if stored.Version != booking.Version {
		return nil, fmt.Errorf("%w: booking %s at version %d", ErrConcurrentModification, booking.ID, booking.Version)
	}

	booking.Version++
	m.bookings[booking.ID] = *booking
	return booking, nil
}

func (m *MemoryRepository) ListStaleRefundPending(_ context.Context, staleBefore time.Time, limit int) ([]Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stale []Booking
	for _, booking := range m.bookings {
		if booking.Status == StatusRefundPending && booking.RefundStaleFrom != nil && booking.RefundStaleFrom.Before(staleBefore) {
			stale = append(stale, booking)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].RefundStaleFrom.Before(*stale[j].RefundStaleFrom)
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}
