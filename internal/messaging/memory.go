package messaging

import (
	"context"
	"sync"

	"refundsaga/internal/saga"
	"refundsaga/pkg/logger"
)

type memoryMessage struct {
	data     []byte
	attempts int
}

// MemoryChannel is an in-process saga.Channel with the same delivery
// contract as the brokers: encoded messages, redelivery on request and a
// dead-letter list. Tests drive it synchronously with DeliverPending.
type MemoryChannel struct {
	*router

	producer        string
	maxRedeliveries int

	mu          sync.Mutex
	queue       []memoryMessage
	deadLetters [][]byte
	notify      chan struct{}
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewMemoryChannel creates an in-process channel. A message asking for
// redelivery more than maxRedeliveries times is dead-lettered.
func NewMemoryChannel(producer string, maxRedeliveries int, log *logger.Logger) *MemoryChannel {
	return &MemoryChannel{
		router:          newRouter(log),
		producer:        producer,
		maxRedeliveries: maxRedeliveries,
		notify:          make(chan struct{}, 1),
	}
}

func (c *MemoryChannel) Publish(ctx context.Context, evt saga.Event) error {
	data, _, err := saga.Encode(ctx, evt, c.producer)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.queue = append(c.queue, memoryMessage{data: data})
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// DeliverPending delivers queued messages, including ones published or
// requeued while delivering, until the queue is empty. It returns the
// number of deliveries made.
func (c *MemoryChannel) DeliverPending(ctx context.Context) int {
	delivered := 0
	for {
		if ctx.Err() != nil {
			return delivered
		}

		c.mu.Lock()
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return delivered
		}
		msg := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		delivered++
		switch c.deliver(ctx, msg.data) {
		case saga.Requeue:
			msg.attempts++
			c.mu.Lock()
			if msg.attempts > c.maxRedeliveries {
				c.deadLetters = append(c.deadLetters, msg.data)
			} else {
				c.queue = append(c.queue, msg)
			}
			c.mu.Unlock()
		case saga.DeadLetter:
			c.mu.Lock()
			c.deadLetters = append(c.deadLetters, msg.data)
			c.mu.Unlock()
		}
	}
}

// Pending returns the number of queued messages
func (c *MemoryChannel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// DeadLetters returns the raw messages that were dead-lettered
func (c *MemoryChannel) DeadLetters() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.deadLetters))
	copy(out, c.deadLetters)
	return out
}

// Start delivers in the background whenever something is published
func (c *MemoryChannel) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		for {
			c.DeliverPending(ctx)
			select {
			case <-ctx.Done():
				return
			case <-c.notify:
			}
		}
	}()
	return nil
}

func (c *MemoryChannel) Close() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	return nil
}
