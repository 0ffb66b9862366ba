package messaging

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"refundsaga/internal/saga"
	"refundsaga/internal/shared/config"
	"refundsaga/pkg/logger"
)

// KafkaChannel is the Kafka saga.Channel. Offsets are only marked once a
// message is acked or parked on the dead-letter topic, so a crash mid-handler
// means the message is consumed again.
type KafkaChannel struct {
	*router

	publisher *kafkaPublisher
	config    config.KafkaConfig

	newGroup      func() (sarama.ConsumerGroup, error)
	consumerGroup sarama.ConsumerGroup
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewKafkaChannel connects the producer. The consumer group is only created
// by Start, and only if something subscribed.
func NewKafkaChannel(cfg config.KafkaConfig, producerName string, log *logger.Logger) (*KafkaChannel, error) {
	publisher, err := newKafkaPublisher(cfg, producerName)
	if err != nil {
		return nil, err
	}

	channel := &KafkaChannel{
		router:    newRouter(log),
		publisher: publisher,
		config:    cfg,
	}
	channel.newGroup = func() (sarama.ConsumerGroup, error) {
		return sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, newSaramaConsumerConfig())
	}
	return channel, nil
}

func newSaramaConsumerConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Consumer.Group.Session.Timeout = 30 * time.Second
	saramaConfig.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	saramaConfig.Consumer.Retry.Backoff = 100 * time.Millisecond
	saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	saramaConfig.Consumer.Return.Errors = true

	// requests published before the first start must not be skipped
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second

	return saramaConfig
}

func (kc *KafkaChannel) Publish(ctx context.Context, evt saga.Event) error {
	return kc.publisher.Publish(ctx, evt)
}

// Start launches the consumer workers for the subscribed kinds
func (kc *KafkaChannel) Start(ctx context.Context) error {
	kinds := kc.kinds()
	if len(kinds) == 0 {
		return nil
	}

	topics := make([]string, len(kinds))
	for i, kind := range kinds {
		topics[i] = TopicFor(kc.config.TopicPrefix, kind)
	}

	group, err := kc.newGroup()
	if err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	kc.consumerGroup = group

	ctx, cancel := context.WithCancel(ctx)
	kc.cancel = cancel

	go kc.handleErrors()

	workers := kc.config.Workers
	if workers < 1 {
		workers = 1
	}
	log.Printf("📥 Starting %d saga consumer workers for topics: %v", workers, topics)
	for i := 0; i < workers; i++ {
		kc.wg.Add(1)
		go func(workerID int) {
			defer kc.wg.Done()
			kc.runWorker(ctx, workerID, topics)
		}(i)
	}
	return nil
}

func (kc *KafkaChannel) runWorker(ctx context.Context, workerID int, topics []string) {
	handler := &consumerGroupHandler{channel: kc, workerID: workerID}

	for {
		select {
		case <-ctx.Done():
			log.Printf("📥 Worker %d shutting down", workerID)
			return
		default:
			if err := kc.consumerGroup.Consume(ctx, topics, handler); err != nil {
				log.Printf("📥 Worker %d error consuming messages: %v", workerID, err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (kc *KafkaChannel) handleErrors() {
	for err := range kc.consumerGroup.Errors() {
		log.Printf("📥 Consumer group error: %v", err)
	}
}

func (kc *KafkaChannel) Close() error {
	log.Println("📥 Stopping saga Kafka channel...")
	var errs []error
	if kc.cancel != nil {
		kc.cancel()
		kc.wg.Wait()
	}
	if kc.consumerGroup != nil {
		if err := kc.consumerGroup.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close consumer group: %w", err))
		}
	}
	if err := kc.publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing Kafka channel: %v", errs)
	}
	log.Println("📥 Saga Kafka channel stopped")
	return nil
}

// handle runs one message to a final disposition. Redelivery requests are
// retried in place with exponential backoff; a message that keeps asking is
// dead-lettered. It reports whether the offset may be marked.
func (kc *KafkaChannel) handle(ctx context.Context, message *sarama.ConsumerMessage) bool {
	backoff := kc.config.RetryBackoff

	for attempt := 0; ; attempt++ {
		disposition := kc.deliver(ctx, message.Value)
		switch disposition {
		case saga.Ack:
			return true
		case saga.DeadLetter:
			return kc.park(message, "rejected by handler")
		}

		if attempt >= kc.config.MaxRetries {
			return kc.park(message, fmt.Sprintf("still failing after %d retries", kc.config.MaxRetries))
		}

		delay := backoff * time.Duration(1<<attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			// rebalance or shutdown: leave it unmarked for the next owner
			return false
		}
	}
}

func (kc *KafkaChannel) park(message *sarama.ConsumerMessage, reason string) bool {
	if err := kc.publisher.deadLetter(message, reason); err != nil {
		kc.logger.LogOperationalAlert(context.Background(), "Failed to dead-letter saga message", err, map[string]interface{}{
			"topic":     message.Topic,
			"partition": message.Partition,
			"offset":    message.Offset,
		})
		return false
	}
	return true
}

type consumerGroupHandler struct {
	channel  *KafkaChannel
	workerID int
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Printf("📥 Worker %d: Consumer group session started", h.workerID)
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Printf("📥 Worker %d: Consumer group session ended", h.workerID)
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}
			if !h.channel.handle(session.Context(), message) {
				// later offsets must not be committed past this one
				return fmt.Errorf("message at %s/%d/%d left unhandled", message.Topic, message.Partition, message.Offset)
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
