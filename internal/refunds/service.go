package refunds

import (
	"context"

	"github.com/google/uuid"

	"refundsaga/internal/shared/constants"
	"refundsaga/pkg/cache"
)

// Service interface defines refund queries for operators
type Service interface {
	GetRefund(ctx context.Context, refundID uuid.UUID) (*Refund, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]Refund, error)
}

type service struct {
	repo  Repository
	cache cache.Service
}

// NewService creates a refund query service. cacheService may be nil.
func NewService(repo Repository, cacheService cache.Service) Service {
	return &service{repo: repo, cache: cacheService}
}

// GetRefund reads a refund through the cache. The orchestrator drops the
// entry when the refund reaches an outcome.
func (s *service) GetRefund(ctx context.Context, refundID uuid.UUID) (*Refund, error) {
	if s.cache == nil {
		return s.repo.FindByID(ctx, refundID)
	}

	var refund Refund
	err := s.cache.GetOrSet(ctx, constants.BuildRefundDetailKey(refundID.String()), constants.TTL_REFUND_STATUS,
		func() (interface{}, error) {
			return s.repo.FindByID(ctx, refundID)
		}, &refund)
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (s *service) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]Refund, error) {
	return s.repo.FindByBookingID(ctx, bookingID)
}
