// Package kafka общие настройки Kafka writer для сервисов
package kafka

import (
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// Config содержит конфигурацию для подключения к Kafka.
// Brokers зависят от среды выполнения: локально localhost:19092, в Docker kafka:9092.
type Config struct {
	Brokers []string
	Topic   string
	// WriteTimeout таймаут записи одного батча, 0 = 10s
	WriteTimeout time.Duration
}

// Validate проверяет, что есть куда писать
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka brokers are required")
	}
	if c.Topic == "" {
		return errors.New("kafka topic is required")
	}
	return nil
}

// NewWriter создаёт kafka.Writer с балансировкой LeastBytes.
// Запись синхронная: ошибка брокера возвращается из WriteMessages.
func NewWriter(cfg Config) *kafka.Writer {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           timeout,
		AllowAutoTopicCreation: true,
	}
}
