package saga

import (
	"context"
	"errors"
	"fmt"
)

// Handler processes one delivered event. Returning nil acknowledges the
// message. Returning an error wrapped with Redeliver asks the channel to
// deliver it again; any other error acknowledges it and raises an alert.
type Handler func(ctx context.Context, evt Event) error

// Publisher publishes events with at-least-once semantics
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Channel is a publish/subscribe transport with manual acknowledgment.
// Subscribe must be called before Start.
type Channel interface {
	Publisher
	Subscribe(kind Kind, handler Handler)
	Start(ctx context.Context) error
	Close() error
}

// ErrRedeliver marks a handler failure that a later delivery may fix
var ErrRedeliver = errors.New("redeliver")

// Redeliver wraps err so the channel does not acknowledge the message
func Redeliver(err error) error {
	return fmt.Errorf("%w: %w", ErrRedeliver, err)
}

// Disposition is what a channel does with a message after its handlers ran
type Disposition int

const (
	Ack Disposition = iota
	Requeue
	DeadLetter
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case DeadLetter:
		return "dead-letter"
	}
	return "unknown"
}

// DispositionOf maps a handler result to a channel action
func DispositionOf(err error) Disposition {
	switch {
	case err == nil:
		return Ack
	case errors.Is(err, ErrRedeliver):
		return Requeue
	default:
		return DeadLetter
	}
}

// Dispatch runs every handler registered for evt's kind. All handlers run
// even if one fails; a redeliver request wins over other failures.
func Dispatch(ctx context.Context, handlers []Handler, evt Event) error {
	var result error
	for _, h := range handlers {
		err := h(ctx, evt)
		if err == nil {
			continue
		}
		if result == nil || (errors.Is(err, ErrRedeliver) && !errors.Is(result, ErrRedeliver)) {
			result = err
		}
	}
	return result
}

// OnRequested adapts a typed handler for RefundRequested
func OnRequested(fn func(context.Context, RefundRequested) error) Handler {
	return func(ctx context.Context, evt Event) error {
		e, ok := evt.(RefundRequested)
		if !ok {
			return fmt.Errorf("%w: expected %s, got %s", ErrUnknownKind, KindRefundRequested, evt.Kind())
		}
		return fn(ctx, e)
	}
}

// OnSucceeded adapts a typed handler for RefundSucceeded
func OnSucceeded(fn func(context.Context, RefundSucceeded) error) Handler {
	return func(ctx context.Context, evt Event) error {
		e, ok := evt.(RefundSucceeded)
		if !ok {
			return fmt.Errorf("%w: expected %s, got %s", ErrUnknownKind, KindRefundSucceeded, evt.Kind())
		}
		return fn(ctx, e)
	}
}

// OnFailed adapts a typed handler for RefundFailed
func OnFailed(fn func(context.Context, RefundFailed) error) Handler {
	return func(ctx context.Context, evt Event) error {
		e, ok := evt.(RefundFailed)
		if !ok {
			return fmt.Errorf("%w: expected %s, got %s", ErrUnknownKind, KindRefundFailed, evt.Kind())
		}
		return fn(ctx, e)
	}
}
