package messaging

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"

	"refundsaga/internal/saga"
	"refundsaga/internal/shared/config"
)

// Kafka message headers
const (
	HeaderKind      = "saga-kind"
	HeaderMessageID = "saga-message-id"
	HeaderProducer  = "saga-producer"
	HeaderError     = "saga-error"
	HeaderSource    = "saga-source-topic"
)

// TopicFor returns the topic events of kind are published to
func TopicFor(prefix string, kind saga.Kind) string {
	return prefix + "." + kind.String()
}

// DeadLetterTopic returns the topic rejected messages are parked on
func DeadLetterTopic(prefix string) string {
	return prefix + ".dlq"
}

// newSaramaProducerConfig mirrors the notification producer settings:
// idempotent writes, all in-sync replicas and hash partitioning on the key
func newSaramaProducerConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Timeout = 10 * time.Second
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Producer.MaxMessageBytes = 1000000 // 1MB
	saramaConfig.Net.MaxOpenRequests = 1

	// every event of one refund lands on one partition, in order
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	return saramaConfig
}

// kafkaPublisher publishes encoded events keyed by refund id
type kafkaPublisher struct {
	producer sarama.SyncProducer
	prefix   string
	name     string
}

func newKafkaPublisher(cfg config.KafkaConfig, producerName string) (*kafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, newSaramaProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	log.Printf("📤 Kafka saga producer created successfully")
	return &kafkaPublisher{producer: producer, prefix: cfg.TopicPrefix, name: producerName}, nil
}

func (p *kafkaPublisher) Publish(ctx context.Context, evt saga.Event) error {
	data, env, err := saga.Encode(ctx, evt, p.name)
	if err != nil {
		return err
	}

	topic := TopicFor(p.prefix, evt.Kind())
	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(evt.CorrelationID().String()),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderKind), Value: []byte(env.Kind)},
			{Key: []byte(HeaderMessageID), Value: []byte(env.ID)},
			{Key: []byte(HeaderProducer), Value: []byte(env.Producer)},
		},
		Timestamp: env.OccurredAt,
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send %s to Kafka: %w", evt.Kind(), err)
	}

	log.Printf("📤 Saga event published to Kafka - Topic: %s, Partition: %d, Offset: %d, Refund: %s",
		topic, partition, offset, evt.CorrelationID())
	return nil
}

// deadLetter parks a rejected message with the reason attached
func (p *kafkaPublisher) deadLetter(message *sarama.ConsumerMessage, reason string) error {
	headers := make([]sarama.RecordHeader, 0, len(message.Headers)+2)
	for _, h := range message.Headers {
		if h != nil {
			headers = append(headers, *h)
		}
	}
	headers = append(headers,
		sarama.RecordHeader{Key: []byte(HeaderError), Value: []byte(reason)},
		sarama.RecordHeader{Key: []byte(HeaderSource), Value: []byte(message.Topic)},
	)

	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:   DeadLetterTopic(p.prefix),
		Key:     sarama.ByteEncoder(message.Key),
		Value:   sarama.ByteEncoder(message.Value),
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter message from %s: %w", message.Topic, err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}
