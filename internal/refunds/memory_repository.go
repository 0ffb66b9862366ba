package refunds

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps refunds in process with the same deduplication and
// version semantics as the Postgres store
type MemoryRepository struct {
	mu      sync.RWMutex
	refunds map[uuid.UUID]Refund
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{refunds: make(map[uuid.UUID]Refund)}
}

func (m *MemoryRepository) CreateIfAbsent(_ context.Context, refund *Refund) (bool, *Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.refunds[refund.ID]; ok {
		return false, &existing, nil
	}
	if refund.Version == 0 {
		refund.Version = 1
	}
	m.refunds[refund.ID] = *refund
	return true, refund, nil
}

func (m *MemoryRepository) FindByID(_ context.Context, id uuid.UUID) (*Refund, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	refund, ok := m.refunds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRefundNotFound, id)
	}
	return &refund, nil
}

func (m *MemoryRepository) FindByBookingID(_ context.Context, bookingID uuid.UUID) ([]Refund, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Refund
	for _, refund := range m.refunds {
		if refund.BookingID == bookingID {
			out = append(out, refund)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) Save(_ context.Context, refund *Refund) (*Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.refunds[refund.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRefundNotFound, refund.ID)
	}
	if stored.Version != refund.Version {
		return nil, fmt.Errorf("%w: refund %s at version %d", ErrConcurrentModification, refund.ID, refund.Version)
	}

	refund.Version++
	m.refunds[refund.ID] = *refund
	return refund, nil
}

func (m *MemoryRepository) ListStalePending(_ context.Context, lastTouchedBefore time.Time, limit int) ([]Refund, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stale []Refund
	for _, refund := range m.refunds {
		if refund.Status == StatusPending && refund.UpdatedAt.Before(lastTouchedBefore) {
			stale = append(stale, refund)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}
