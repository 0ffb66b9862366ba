package saga

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"refundsaga/internal/shared/constants"
)

// KeyLocker grants short exclusive leases on a key. TryLock returns an error
// when the key is already held.
type KeyLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, err error)
}

// Serialize wraps next so only one delivery per refund id is processed at a
// time across all consumers. A busy key is redelivered later.
func Serialize(locker KeyLocker, ttl time.Duration, next Handler) Handler {
	return func(ctx context.Context, evt Event) error {
		key := constants.BuildRefundLockKey(evt.CorrelationID().String())
		unlock, err := locker.TryLock(ctx, key, ttl)
		if err != nil {
			return Redeliver(fmt.Errorf("refund %s busy: %w", evt.CorrelationID(), err))
		}
		defer unlock(context.WithoutCancel(ctx))

		return next(ctx, evt)
	}
}

// Traced wraps next in a consumer span tagged with the correlation keys
func Traced(tracer trace.Tracer, next Handler) Handler {
	return func(ctx context.Context, evt Event) error {
		h := evt.Common()
		ctx, span := tracer.Start(ctx, "saga.consume "+evt.Kind().String(),
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("saga.kind", evt.Kind().String()),
				attribute.String("saga.refund_id", h.RefundID.String()),
				attribute.String("saga.booking_id", h.BookingID.String()),
			),
		)
		defer span.End()

		err := next(ctx, evt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("saga.disposition", DispositionOf(err).String()))
		return err
	}
}
