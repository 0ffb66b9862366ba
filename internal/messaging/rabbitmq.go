package messaging

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"refundsaga/internal/saga"
	"refundsaga/internal/shared/config"
	"refundsaga/pkg/logger"
)

// RabbitChannel is the RabbitMQ saga.Channel. Events go to a topic exchange
// routed by kind; each process consumes one durable queue bound to the kinds
// it subscribed to, with a dead-letter exchange behind it.
type RabbitChannel struct {
	*router

	config   config.RabbitMQConfig
	producer string

	conn   *amqp.Connection
	pubMu  sync.Mutex
	pubCh  *amqp.Channel
	consCh *amqp.Channel

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRabbitChannel dials RabbitMQ and declares the exchanges
func NewRabbitChannel(cfg config.RabbitMQConfig, producerName string, log *logger.Logger) (*RabbitChannel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	closeAll := func() {
		_ = pubCh.Close()
		_ = conn.Close()
	}
	if err := pubCh.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := pubCh.ExchangeDeclare(cfg.DeadLetter, "topic", true, false, false, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("declare dlx: %w", err)
	}
	if err := pubCh.Confirm(false); err != nil {
		closeAll()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	return &RabbitChannel{
		router:   newRouter(log),
		config:   cfg,
		producer: producerName,
		conn:     conn,
		pubCh:    pubCh,
	}, nil
}

// Publish waits for the broker to confirm the message
func (rc *RabbitChannel) Publish(ctx context.Context, evt saga.Event) error {
	data, env, err := saga.Encode(ctx, evt, rc.producer)
	if err != nil {
		return err
	}

	rc.pubMu.Lock()
	confirm, err := rc.pubCh.PublishWithDeferredConfirmWithContext(ctx, rc.config.Exchange, evt.Kind().String(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Type:         env.Kind.String(),
		AppId:        env.Producer,
		Timestamp:    env.OccurredAt,
		Headers:      amqp.Table{"refund_id": evt.CorrelationID().String()},
		Body:         data,
	})
	rc.pubMu.Unlock()
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Kind(), err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", evt.Kind(), err)
	}
	if !acked {
		return fmt.Errorf("broker nacked %s for refund %s", evt.Kind(), evt.CorrelationID())
	}
	return nil
}

// Start declares the process queue, binds the subscribed kinds and consumes
func (rc *RabbitChannel) Start(ctx context.Context) error {
	kinds := rc.kinds()
	if len(kinds) == 0 {
		return nil
	}

	ch, err := rc.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}

	args := amqp.Table{"x-dead-letter-exchange": rc.config.DeadLetter}
	q, err := ch.QueueDeclare(rc.config.Queue, true, false, false, false, args)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare queue failed: %w", err)
	}
	for _, kind := range kinds {
		if err := ch.QueueBind(q.Name, kind.String(), rc.config.Exchange, false, nil); err != nil {
			_ = ch.Close()
			return fmt.Errorf("bind queue to key=%s failed: %w", kind, err)
		}
	}

	dlq := rc.config.DeadLetter + ".q"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare dlq failed: %w", err)
	}
	if err := ch.QueueBind(dlq, "#", rc.config.DeadLetter, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("bind dlq failed: %w", err)
	}

	prefetch := rc.config.Prefetch
	if prefetch <= 0 {
		prefetch = 8
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set qos failed: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	msgs, err := ch.ConsumeWithContext(ctx, q.Name, rc.producer, false, false, false, false, nil)
	if err != nil {
		cancel()
		_ = ch.Close()
		return fmt.Errorf("consume failed: %w", err)
	}

	rc.consCh = ch
	rc.cancel = cancel
	rc.done = make(chan struct{})
	log.Printf("📥 Consuming saga queue %s for %v", q.Name, kinds)

	go func() {
		defer close(rc.done)
		rc.run(ctx, msgs)
	}()
	return nil
}

func (rc *RabbitChannel) run(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				return
			}
			rc.settle(ctx, d, rc.deliver(ctx, d.Body))
		}
	}
}

// acknowledger is the part of amqp.Delivery settle uses
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (rc *RabbitChannel) settle(ctx context.Context, d acknowledger, disposition saga.Disposition) {
	var err error
	switch disposition {
	case saga.Ack:
		err = d.Ack(false)
	case saga.Requeue:
		// let the cause clear before the broker hands it out again
		select {
		case <-time.After(rc.config.RequeueDelay):
		case <-ctx.Done():
		}
		err = d.Nack(false, true)
	default:
		// routed to the dead-letter exchange
		err = d.Nack(false, false)
	}
	if err != nil {
		log.Printf("📥 Failed to settle delivery (%s): %v", disposition, err)
	}
}

func (rc *RabbitChannel) Close() error {
	if rc.cancel != nil {
		rc.cancel()
		<-rc.done
	}
	if rc.consCh != nil {
		_ = rc.consCh.Close()
	}
	if rc.pubCh != nil {
		_ = rc.pubCh.Close()
	}
	if rc.conn != nil {
		return rc.conn.Close()
	}
	return nil
}
