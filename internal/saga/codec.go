package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"refundsaga/internal/shared/apperror"
)

// EnvelopeVersion is bumped on breaking payload changes
const EnvelopeVersion = 1

var (
	ErrMalformedEnvelope = apperror.New(apperror.KindValidation, http.StatusBadRequest, "malformed event envelope")
	ErrUnknownKind       = apperror.New(apperror.KindValidation, http.StatusBadRequest, "unknown event kind")
)

// Envelope is the wire wrapper around every event. Headers carry trace
// context between services.
type Envelope struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Version    int               `json:"version"`
	Producer   string            `json:"producer"`
	OccurredAt time.Time         `json:"occurred_at"`
	Headers    map[string]string `json:"headers,omitempty"`
	Payload    json.RawMessage   `json:"payload"`
}

// Encode validates evt and wraps it in a fresh envelope
func Encode(ctx context.Context, evt Event, producer string) ([]byte, Envelope, error) {
	if err := evt.Validate(); err != nil {
		return nil, Envelope{}, err
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, Envelope{}, fmt.Errorf("marshal %s payload: %w", evt.Kind(), err)
	}

	env := Envelope{
		ID:         uuid.NewString(),
		Kind:       evt.Kind(),
		Version:    EnvelopeVersion,
		Producer:   producer,
		OccurredAt: time.Now().UTC(),
		Headers:    map[string]string{},
		Payload:    payload,
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(env.Headers))

	data, err := json.Marshal(env)
	if err != nil {
		return nil, Envelope{}, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, env, nil
}

// Decode parses and validates a wire message
func Decode(data []byte) (Event, Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, env, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Version > EnvelopeVersion {
		return nil, env, fmt.Errorf("%w: unsupported version %d", ErrMalformedEnvelope, env.Version)
	}

	evt, err := decodePayload(env.Kind, env.Payload)
	if err != nil {
		return nil, env, err
	}
	if err := evt.Validate(); err != nil {
		return nil, env, err
	}
	return evt, env, nil
}

func decodePayload(kind Kind, payload json.RawMessage) (Event, error) {
	switch kind {
	case KindRefundRequested:
		var evt RefundRequested
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, kind, err)
		}
		return evt, nil
	case KindRefundSucceeded:
		var evt RefundSucceeded
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, kind, err)
		}
		return evt, nil
	case KindRefundFailed:
		var evt RefundFailed
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, kind, err)
		}
		return evt, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// ContextFrom restores the producer's trace context onto ctx
func ContextFrom(ctx context.Context, env Envelope) context.Context {
	if len(env.Headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(env.Headers))
}
