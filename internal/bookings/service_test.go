package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refundsaga/internal/cancellation"
	"refundsaga/internal/shared/apperror"
)

func TestRequestCancellationFullRefund(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	booking := confirmedBooking(7 * 24 * time.Hour)
	require.NoError(t, repo.Create(ctx, booking))

	result, err := svc.RequestCancellation(ctx, CancelRequest{
		BookingID:   booking.ID,
		RequesterID: booking.UserID,
		Reason:      "change of plans",
	})
	require.NoError(t, err)

	assert.Equal(t, cancellation.TierFull, result.Decision.Tier)
	assert.True(t, decimal.RequireFromString("100").Equal(result.Decision.Amount))
	require.NotNil(t, result.RefundID)
	assert.True(t, result.RequestPublished)

	stored, err := repo.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRefundPending, stored.Status)
	assert.Equal(t, *result.RefundID, *stored.RefundID)
	assert.Equal(t, 1, stored.RefundRequestCount)
	assert.Equal(t, int64(2), stored.Version)

	events := pub.requested()
	require.Len(t, events, 1)
	assert.Equal(t, *result.RefundID, events[0].RefundID)
	assert.Equal(t, booking.ID, events[0].BookingID)
	assert.Equal(t, "pay_123", events[0].PaymentID)
	assert.Equal(t, "pi_123", events[0].ProviderPaymentRef)
	assert.Equal(t, "change of plans", events[0].Reason)
	assert.True(t, decimal.RequireFromString("100").Equal(events[0].Amount))
}

func TestRequestCancellationPartialRefund(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	booking := confirmedBooking(36 * time.Hour)
	require.NoError(t, repo.Create(ctx, booking))

	result, err := svc.RequestCancellation(ctx, CancelRequest{BookingID: booking.ID, RequesterID: booking.UserID})
	require.NoError(t, err)

	assert.Equal(t, cancellation.TierPartial, result.Decision.Tier)
	assert.Equal(t, "50", result.Decision.Amount.String())

	events := pub.requested()
	require.Len(t, events, 1)
	assert.Equal(t, "booking cancelled by customer", events[0].Reason)
}

func TestRequestCancellationWithoutRefund(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	booking := confirmedBooking(12 * time.Hour)
	require.NoError(t, repo.Create(ctx, booking))

	result, err := svc.RequestCancellation(ctx, CancelRequest{BookingID: booking.ID, RequesterID: booking.UserID})
	require.NoError(t, err)

	assert.Equal(t, cancellation.TierNone, result.Decision.Tier)
	assert.True(t, result.Decision.Amount.IsZero())
	assert.Nil(t, result.RefundID)
	assert.False(t, result.RequestPublished)
	assert.Empty(t, pub.events)

	stored, err := repo.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Nil(t, stored.RefundID)
}

func TestRequestCancellationRejectsAlreadyCancelled(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	booking := confirmedBooking(7 * 24 * time.Hour)
	booking.Status = StatusCancelled
	require.NoError(t, repo.Create(ctx, booking))

	_, err := svc.RequestCancellation(ctx, CancelRequest{BookingID: booking.ID, RequesterID: booking.UserID})
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.ErrorIs(t, err, apperror.ErrPrecondition)

	stored, err := repo.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
	assert.Empty(t, pub.events)
}

func TestRequestCancellationPreconditions(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name    string
		mutate  func(*Booking)
		request func(*Booking) CancelRequest
		wantErr error
	}{
		{
			name: "not owner",
			request: func(b *Booking) CancelRequest {
				return CancelRequest{BookingID: b.ID, RequesterID: uuid.New()}
			},
			wantErr: ErrNotOwner,
		},
		{
			name:    "completed",
			mutate:  func(b *Booking) { b.Status = StatusCompleted },
			wantErr: ErrBookingCompleted,
		},
		{
			name:    "refund in flight",
			mutate:  func(b *Booking) { b.Status = StatusRefundPending },
			wantErr: ErrAlreadyCancelled,
		},
		{
			name:    "pending confirmation",
			mutate:  func(b *Booking) { b.Status = StatusPending },
			wantErr: ErrNotCancellable,
		},
		{
			name:    "check-in passed",
			mutate:  func(b *Booking) { b.CheckIn = testNow.Add(-time.Hour) },
			wantErr: ErrCheckInPassed,
		},
		{
			name:    "check-in now",
			mutate:  func(b *Booking) { b.CheckIn = testNow },
			wantErr: ErrCheckInPassed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := NewMemoryRepository()
			pub := &recordingPublisher{}
			svc := newTestService(repo, pub)

			booking := confirmedBooking(7 * 24 * time.Hour)
			if tc.mutate != nil {
				tc.mutate(booking)
			}
			require.NoError(t, repo.Create(ctx, booking))

			req := CancelRequest{BookingID: booking.ID, RequesterID: booking.UserID}
			if tc.request != nil {
				req = tc.request(booking)
			}

			_, err := svc.RequestCancellation(ctx, req)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.ErrorIs(t, err, apperror.ErrPrecondition)
			assert.Empty(t, pub.events)

			stored, err := repo.FindByID(ctx, booking.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(1), stored.Version, "booking must be unchanged")
		})
	}
}

func TestRequestCancellationNotFoundAndInvalid(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryRepository(), &recordingPublisher{})

	_, err := svc.RequestCancellation(ctx, CancelRequest{BookingID: uuid.New(), RequesterID: uuid.New()})
	assert.ErrorIs(t, err, ErrBookingNotFound)
	kind, ok := apperror.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, apperror.KindNotFound, kind)

	_, err = svc.RequestCancellation(ctx, CancelRequest{RequesterID: uuid.New()})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestRequestCancellationSurvivesPublishFailure(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	svc := newTestService(repo, pub)

	booking := confirmedBooking(7 * 24 * time.Hour)
	require.NoError(t, repo.Create(ctx, booking))

	result, err := svc.RequestCancellation(ctx, CancelRequest{BookingID: booking.ID, RequesterID: booking.UserID})
	require.NoError(t, err)
	assert.True(t, result.RefundRequested())
	assert.False(t, result.RequestPublished)

	stored, err := repo.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRefundPending, stored.Status, "the reconciler re-publishes from this state")
}

func TestRequestCancellationRetriesConcurrentModification(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryRepository()
	booking := confirmedBooking(7 * 24 * time.Hour)
	require.NoError(t, mem.Create(ctx, booking))

	repo := &flakyRepository{Repository: mem, conflicts: 1}
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	result, err := svc.RequestCancellation(ctx, CancelRequest{BookingID: booking.ID, RequesterID: booking.UserID})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.saves)
	assert.Equal(t, StatusRefundPending, result.Booking.Status)
	assert.Len(t, pub.requested(), 1)
}

func TestRequestCancellationReevaluatesAfterConflict(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryRepository()
	booking := confirmedBooking(7 * 24 * time.Hour)
	require.NoError(t, mem.Create(ctx, booking))

	// a competing request cancels the booking between our read and write
	repo := &flakyRepository{Repository: mem, conflicts: 1}
	repo.onConflict = func(ctx context.Context, _ *Booking) {
		competing, err := mem.FindByID(ctx, booking.ID)
		require.NoError(t, err)
		competing.Status = StatusCancelled
		_, err = mem.Save(ctx, competing)
		require.NoError(t, err)
	}
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	_, err := svc.RequestCancellation(ctx, CancelRequest{BookingID: booking.ID, RequesterID: booking.UserID})
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.Empty(t, pub.events)
}

func TestRequestCancellationGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryRepository()
	booking := confirmedBooking(7 * 24 * time.Hour)
	require.NoError(t, mem.Create(ctx, booking))

	repo := &flakyRepository{Repository: mem, conflicts: 10}
	svc := newTestService(repo, &recordingPublisher{})

	_, err := svc.RequestCancellation(ctx, CancelRequest{BookingID: booking.ID, RequesterID: booking.UserID})
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.Equal(t, 3, repo.saves)
}

func TestQuoteRefundDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	svc := newTestService(repo, &recordingPublisher{})

	booking := confirmedBooking(36 * time.Hour)
	require.NoError(t, repo.Create(ctx, booking))

	decision, err := svc.QuoteRefund(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, cancellation.TierPartial, decision.Tier)
	assert.InDelta(t, 36.0, decision.HoursLeft, 0.001)

	stored, err := repo.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
}

func TestRetryRefund(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	booking := confirmedBooking(7 * 24 * time.Hour)
	require.NoError(t, repo.Create(ctx, booking))

	result, err := svc.RequestCancellation(ctx, CancelRequest{BookingID: booking.ID, RequesterID: booking.UserID})
	require.NoError(t, err)
	firstRefund := *result.RefundID

	_, err = svc.RetryRefund(ctx, RetryRequest{BookingID: booking.ID, OperatorID: "ops-1"})
	assert.ErrorIs(t, err, ErrRefundNotRetryable, "refund still pending")

	stored, err := repo.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	require.NoError(t, stored.MarkRefundFailed("card_declined", testNow))
	_, err = repo.Save(ctx, stored)
	require.NoError(t, err)

	retried, err := svc.RetryRefund(ctx, RetryRequest{BookingID: booking.ID, OperatorID: "ops-1", Note: "customer updated card"})
	require.NoError(t, err)
	assert.Equal(t, StatusRefundPending, retried.Status)
	require.NotNil(t, retried.RefundID)
	assert.NotEqual(t, firstRefund, *retried.RefundID)
	assert.Nil(t, retried.RefundFailureReason)

	events := pub.requested()
	require.Len(t, events, 2)
	assert.Equal(t, *retried.RefundID, events[1].RefundID)
}

func TestRetryRefundRequiresOperator(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), &recordingPublisher{})

	_, err := svc.RetryRefund(context.Background(), RetryRequest{BookingID: uuid.New()})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
