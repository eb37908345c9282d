package service

import (
	"context"

	"github.com/shestoi/vnpay-gateway/internal/qr"
	"github.com/shestoi/vnpay-gateway/internal/repository"
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=EventPublisher --dir=. --output=./mocks --outpkg=mocks

// EventPublisher публикует события об изменении транзакций
type EventPublisher interface {
	// PublishTransactionUpdated отправляет событие payment.transaction.updated
	PublishTransactionUpdated(ctx context.Context, tx repository.Transaction) error
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=QRProvisioner --dir=. --output=./mocks --outpkg=mocks

// QRProvisioner удалённый сервис выпуска QR кодов.
// Реализация обязана проверить подпись ответа до того, как вернуть результат.
type QRProvisioner interface {
	Create(ctx context.Context, req qr.CreateRequest) (qr.CreateResult, error)
}
