// Package messaging provides the saga.Channel implementations: Kafka,
// RabbitMQ and an in-process queue for development and tests.
package messaging

import (
	"context"
	"sync"

	"refundsaga/internal/saga"
	"refundsaga/pkg/logger"
)

// router holds subscriptions and turns one raw message into a disposition
type router struct {
	mu       sync.RWMutex
	handlers map[saga.Kind][]saga.Handler
	logger   *logger.Logger
}

func newRouter(log *logger.Logger) *router {
	return &router{handlers: make(map[saga.Kind][]saga.Handler), logger: log}
}

func (r *router) Subscribe(kind saga.Kind, handler saga.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = append(r.handlers[kind], handler)
}

func (r *router) kinds() []saga.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]saga.Kind, 0, len(r.handlers))
	for _, kind := range saga.Kinds {
		if len(r.handlers[kind]) > 0 {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// deliver decodes data and runs the handlers for its kind. Messages that
// cannot be decoded are dead-lettered; kinds nobody subscribed to are acked.
func (r *router) deliver(ctx context.Context, data []byte) saga.Disposition {
	evt, env, err := saga.Decode(data)
	if err != nil {
		r.logger.LogOperationalAlert(ctx, "Undecodable saga message", err, map[string]interface{}{
			"message_id": env.ID,
			"kind":       string(env.Kind),
		})
		return saga.DeadLetter
	}

	r.mu.RLock()
	handlers := r.handlers[evt.Kind()]
	r.mu.RUnlock()
	if len(handlers) == 0 {
		return saga.Ack
	}

	ctx = saga.ContextFrom(ctx, env)
	err = saga.Dispatch(ctx, handlers, evt)
	disposition := saga.DispositionOf(err)

	fields := map[string]interface{}{
		"message_id": env.ID,
		"kind":       evt.Kind().String(),
		"refund_id":  evt.CorrelationID().String(),
		"producer":   env.Producer,
	}
	switch disposition {
	case saga.Requeue:
		fields["error"] = err.Error()
		r.logger.WarnWithContext(ctx, "Saga message will be redelivered", fields)
	case saga.DeadLetter:
		r.logger.LogOperationalAlert(ctx, "Saga message rejected by handler", err, fields)
	default:
		r.logger.DebugWithContext(ctx, "Saga message handled", fields)
	}
	return disposition
}
