package saga

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace/noop"

	"refundsaga/internal/shared/apperror"
)

func header() Header {
	return Header{
		RefundID:  uuid.New(),
		BookingID: uuid.New(),
		PaymentID: "pay_123",
		Currency:  "USD",
		Provider:  "stripe",
		Timestamp: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func requested() RefundRequested {
	return RefundRequested{
		Header:             header(),
		Amount:             decimal.RequireFromString("50.00"),
		Reason:             "change of plans",
		ProviderPaymentRef: "pi_123",
	}
}

func TestEncodeWireShape(t *testing.T) {
	evt := requested()

	data, env, err := Encode(context.Background(), evt, "refundsaga-booking")
	require.NoError(t, err)

	assert.Equal(t, KindRefundRequested, env.Kind)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, "refund.requested", gjson.GetBytes(data, "kind").String())
	assert.Equal(t, "refundsaga-booking", gjson.GetBytes(data, "producer").String())
	assert.Equal(t, evt.RefundID.String(), gjson.GetBytes(data, "payload.refund_id").String())
	assert.Equal(t, evt.BookingID.String(), gjson.GetBytes(data, "payload.booking_id").String())
	assert.Equal(t, "pay_123", gjson.GetBytes(data, "payload.payment_id").String())
	// amounts travel as decimal strings
	assert.Equal(t, gjson.String, gjson.GetBytes(data, "payload.amount").Type)
	assert.Equal(t, "50", gjson.GetBytes(data, "payload.amount").String())
	assert.Equal(t, "pi_123", gjson.GetBytes(data, "payload.provider_payment_ref").String())
	assert.True(t, gjson.GetBytes(data, "payload.timestamp").Exists())
}

func TestDecodeRestoresVariant(t *testing.T) {
	failed := RefundFailed{Header: header(), AttemptedAmount: decimal.RequireFromString("12.34"), FailureReason: "card_declined"}

	data, _, err := Encode(context.Background(), failed, "refundsaga-payment")
	require.NoError(t, err)

	evt, env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, KindRefundFailed, env.Kind)

	got, ok := evt.(RefundFailed)
	require.True(t, ok)
	assert.Equal(t, failed.RefundID, got.CorrelationID())
	assert.True(t, failed.AttemptedAmount.Equal(got.AttemptedAmount))
	assert.Equal(t, "card_declined", got.FailureReason)
	assert.True(t, failed.Timestamp.Equal(got.Timestamp))
}

func TestDecodeRejectsBadMessages(t *testing.T) {
	_, _, err := Decode([]byte("{not json"))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, _, err = Decode([]byte(`{"kind":"refund.reversed","version":1,"payload":{}}`))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, _, err = Decode([]byte(`{"kind":"refund.requested","version":9,"payload":{}}`))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	payload, _ := json.Marshal(RefundSucceeded{Header: header(), RefundedAmount: decimal.NewFromInt(5)})
	raw, _ := json.Marshal(Envelope{Kind: KindRefundSucceeded, Version: 1, Payload: payload})
	_, _, err = Decode(raw)
	assert.ErrorIs(t, err, ErrInvalidEvent, "missing provider refund ref")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestValidate(t *testing.T) {
	evt := requested()
	assert.NoError(t, evt.Validate())

	zeroAmount := requested()
	zeroAmount.Amount = decimal.Zero
	assert.ErrorIs(t, zeroAmount.Validate(), ErrInvalidEvent)

	noRefund := requested()
	noRefund.RefundID = uuid.Nil
	assert.ErrorIs(t, noRefund.Validate(), ErrInvalidEvent)

	lowerCurrency := requested()
	lowerCurrency.Currency = "usd"
	assert.ErrorIs(t, lowerCurrency.Validate(), ErrInvalidEvent)

	noTimestamp := requested()
	noTimestamp.Timestamp = time.Time{}
	assert.ErrorIs(t, noTimestamp.Validate(), ErrInvalidEvent)

	_, _, err := Encode(context.Background(), zeroAmount, "x")
	assert.ErrorIs(t, err, ErrInvalidEvent)

	negative := RefundSucceeded{Header: header(), RefundedAmount: decimal.NewFromInt(-1), ProviderRefundRef: "re_1"}
	assert.ErrorIs(t, negative.Validate(), ErrInvalidEvent)
}

func TestDispositionOf(t *testing.T) {
	assert.Equal(t, Ack, DispositionOf(nil))
	assert.Equal(t, Requeue, DispositionOf(Redeliver(errors.New("db down"))))
	assert.Equal(t, DeadLetter, DispositionOf(errors.New("poison")))
}

func TestDispatchPrefersRedeliver(t *testing.T) {
	var calls int
	fail := func(context.Context, Event) error { calls++; return errors.New("poison") }
	retry := func(context.Context, Event) error { calls++; return Redeliver(errors.New("db down")) }
	ok := func(context.Context, Event) error { calls++; return nil }

	err := Dispatch(context.Background(), []Handler{fail, retry, ok}, requested())
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrRedeliver)

	assert.NoError(t, Dispatch(context.Background(), []Handler{ok}, requested()))
}

func TestTypedAdapters(t *testing.T) {
	var seen RefundRequested
	h := OnRequested(func(_ context.Context, e RefundRequested) error {
		seen = e
		return nil
	})

	evt := requested()
	require.NoError(t, h(context.Background(), evt))
	assert.Equal(t, evt.RefundID, seen.RefundID)

	err := OnSucceeded(func(context.Context, RefundSucceeded) error { return nil })(context.Background(), evt)
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, DeadLetter, DispositionOf(err))
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, errors.New("held")
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released = append(l.released, key)
		return nil
	}, nil
}

func TestSerialize(t *testing.T) {
	locker := &fakeLocker{held: map[string]bool{}}
	evt := requested()

	var inside bool
	h := Serialize(locker, time.Second, func(ctx context.Context, e Event) error {
		inside = true
		// a concurrent delivery of the same refund is pushed back
		err := Serialize(locker, time.Second, func(context.Context, Event) error { return nil })(ctx, e)
		assert.ErrorIs(t, err, ErrRedeliver)
		return nil
	})

	require.NoError(t, h(context.Background(), evt))
	assert.True(t, inside)
	require.Len(t, locker.released, 1)
	assert.True(t, strings.HasSuffix(locker.released[0], evt.RefundID.String()))
}

func TestTracedPassesResultThrough(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	want := Redeliver(errors.New("busy"))

	err := Traced(tracer, func(context.Context, Event) error { return want })(context.Background(), requested())
	assert.Equal(t, want, err)
}
