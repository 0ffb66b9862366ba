package messaging

import (
	"fmt"

	"refundsaga/internal/saga"
	"refundsaga/internal/shared/config"
	"refundsaga/pkg/logger"
)

// memoryMaxRedeliveries bounds redelivery on the in-process channel
const memoryMaxRedeliveries = 5

// New builds the channel selected by EVENT_BUS
func New(cfg *config.Config, log *logger.Logger) (saga.Channel, error) {
	switch cfg.Saga.EventBus {
	case config.BusKafka:
		return NewKafkaChannel(cfg.Kafka, cfg.Saga.ProducerName, log)
	case config.BusRabbitMQ:
		return NewRabbitChannel(cfg.RabbitMQ, cfg.Saga.ProducerName, log)
	case config.BusMemory:
		return NewMemoryChannel(cfg.Saga.ProducerName, memoryMaxRedeliveries, log), nil
	}
	return nil, fmt.Errorf("unknown event bus %q", cfg.Saga.EventBus)
}
