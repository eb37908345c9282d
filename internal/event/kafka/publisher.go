package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	platformkafka "github.com/shestoi/vnpay-gateway/platform/kafka"
	platformobservability "github.com/shestoi/vnpay-gateway/platform/observability"

	"github.com/shestoi/vnpay-gateway/internal/repository"
)

const (
	// EventTypeTransactionUpdated тип события о смене состояния транзакции
	EventTypeTransactionUpdated = "payment.transaction.updated"
	eventVersion                = 1
)

// TransactionEvent тело сообщения в топике
type TransactionEvent struct {
	EventID           string `json:"event_id"`
	EventType         string `json:"event_type"`
	EventVersion      int    `json:"event_version"`
	OccurredAt        string `json:"occurred_at"`
	TransactionID     string `json:"transaction_id"`
	Reference         string `json:"reference"`
	Provider          string `json:"provider"`
	State             string `json:"state"`
	StateMessage      string `json:"state_message,omitempty"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	ProviderReference string `json:"provider_reference,omitempty"`
	PosOrderID        string `json:"pos_order_id,omitempty"`
}

// messageWriter часть kafka.Writer, нужная публикатору
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TransactionPublisher публикует изменения транзакций в Kafka
type TransactionPublisher struct {
	logger *zap.Logger
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewTransactionPublisher создаёт publisher поверх kafka.Writer
func NewTransactionPublisher(logger *zap.Logger, cfg platformkafka.Config) (*TransactionPublisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newTransactionPublisher(logger, platformkafka.NewWriter(cfg), cfg.Topic), nil
}

func newTransactionPublisher(logger *zap.Logger, writer messageWriter, topic string) *TransactionPublisher {
	return &TransactionPublisher{
		logger: logger,
		writer: writer,
		topic:  topic,
		now:    time.Now,
	}
}

// Close закрывает Kafka writer
func (p *TransactionPublisher) Close() error {
	return p.writer.Close()
}

// PublishTransactionUpdated отправляет событие, ключ сообщения reference транзакции
func (p *TransactionPublisher) PublishTransactionUpdated(ctx context.Context, tx repository.Transaction) error {
	logger := platformobservability.L(ctx, p.logger).With(
		zap.String("topic", p.topic),
		zap.String("reference", tx.Reference),
	)

	message, err := p.buildMessage(ctx, tx)
	if err != nil {
		logger.Error("failed to marshal transaction event", zap.Error(err))
		return err
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		logger.Error("failed to publish transaction event", zap.Error(err))
		return err
	}

	logger.Info("transaction event published", zap.String("state", string(tx.State)))
	return nil
}

func (p *TransactionPublisher) buildMessage(ctx context.Context, tx repository.Transaction) (kafka.Message, error) {
	event := TransactionEvent{
		EventID:           uuid.New().String(),
		EventType:         EventTypeTransactionUpdated,
		EventVersion:      eventVersion,
		OccurredAt:        p.now().UTC().Format(time.RFC3339),
		TransactionID:     tx.ID,
		Reference:         tx.Reference,
		Provider:          tx.ProviderCode,
		State:             string(tx.State),
		StateMessage:      tx.StateMessage,
		Amount:            tx.Amount.String(),
		Currency:          tx.Currency,
		ProviderReference: tx.ProviderReference,
		PosOrderID:        tx.PosOrderID,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}

	carrier := &headerCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return kafka.Message{
		Key:     []byte(tx.Reference),
		Value:   value,
		Headers: carrier.headers,
	}, nil
}
