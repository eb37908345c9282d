package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/shestoi/vnpay-gateway/internal/repository"
)

// NoOpPublisher используется, когда KAFKA_BROKERS не задан: события только логируются
type NoOpPublisher struct {
	logger *zap.Logger
}

// NewNoOpPublisher создаёт publisher-заглушку
func NewNoOpPublisher(logger *zap.Logger) *NoOpPublisher {
	return &NoOpPublisher{logger: logger}
}

// PublishTransactionUpdated пишет событие в debug лог
func (p *NoOpPublisher) PublishTransactionUpdated(ctx context.Context, tx repository.Transaction) error {
	p.logger.Debug("kafka disabled, transaction event skipped",
		zap.String("reference", tx.Reference),
		zap.String("state", string(tx.State)),
	)
	return nil
}
