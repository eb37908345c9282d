package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	platformobservability "github.com/shestoi/vnpay-gateway/platform/observability"

	"github.com/shestoi/vnpay-gateway/internal/provider"
	"github.com/shestoi/vnpay-gateway/internal/signature"
)

// Ack ответ шлюзу VNPay на IPN
type Ack struct {
	Code    string `json:"RspCode"`
	Message string `json:"Message"`
}

// Коды ответа VNPay IPN
var (
	AckConfirmSuccess   = Ack{Code: "00", Message: "Confirm Success"}
	AckOrderNotFound    = Ack{Code: "01", Message: "Order Not Found"}
	AckAlreadyConfirmed = Ack{Code: "02", Message: "Order already confirmed"}
	AckInvalidAmount    = Ack{Code: "04", Message: "invalid amount"}
	AckInvalidChecksum  = Ack{Code: "97", Message: "Invalid Checksum"}
	AckUnknownError     = Ack{Code: "99", Message: "Unknown error"}
)

// WebhookService обрабатывает IPN redirect-оплаты VNPay
type WebhookService struct {
	transactions *TransactionService
	providers    *provider.Registry
	metrics      *Metrics
	logger       *zap.Logger
}

// NewWebhookService создаёт обработчик IPN
func NewWebhookService(transactions *TransactionService, providers *provider.Registry, metrics *Metrics, logger *zap.Logger) *WebhookService {
	return &WebhookService{
		transactions: transactions,
		providers:    providers,
		metrics:      metrics,
		logger:       logger,
	}
}

// HandleIPN проверяет и применяет уведомление.
// Порядок: адрес отправителя, поиск транзакции, подпись, повтор, сумма и код результата.
// Единственная ошибка наружу ErrUnauthorizedSource: на неё ничего не отвечаем.
func (s *WebhookService) HandleIPN(ctx context.Context, remoteAddr string, fields signature.Fields) (ack Ack, err error) {
	started := time.Now()
	logger := platformobservability.L(ctx, s.logger).With(zap.String("reference", fields["vnp_TxnRef"]))
	defer func() {
		if err == nil {
			s.metrics.NotificationHandled(ctx, ChannelWeb, ack.Code, started)
		}
	}()

	p, err := s.providers.Get(provider.CodeVNPay)
	if err != nil {
		logger.Error("vnpay provider is not configured", zap.Error(err))
		return AckUnknownError, nil
	}

	if !p.Allows(remoteAddr) {
		logger.Warn("ipn from unauthorized address dropped", zap.String("remote_addr", remoteAddr))
		return Ack{}, ErrUnauthorizedSource
	}

	ref, ok := fields.Get("vnp_TxnRef")
	if !ok || ref == "" {
		verr := &ValidationError{Field: "vnp_TxnRef", Message: "is required"}
		logger.Warn("ipn rejected", zap.Error(verr))
		return AckOrderNotFound, nil
	}

	tx, err := s.transactions.Resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrUnknownReference) {
			logger.Warn("ipn for unknown transaction", zap.Error(err))
			return AckOrderNotFound, nil
		}
		logger.Error("failed to resolve transaction", zap.Error(err))
		return AckUnknownError, nil
	}

	if err := signature.VNPayWeb.Verify(fields, p.Secret); err != nil {
		logger.Warn("ipn signature verification failed", zap.Error(err))
		if ferr := s.transactions.Fail(ctx, tx, MsgInvalidSignature); ferr != nil {
			logger.Error("failed to record invalid signature", zap.Error(ferr))
		}
		return AckInvalidChecksum, nil
	}

	if tx.State.Terminal() {
		logger.Info("ipn replay for processed transaction", zap.String("state", string(tx.State)))
		return AckAlreadyConfirmed, nil
	}

	updated, err := s.transactions.ApplyNotification(ctx, tx, fields, VNPayWebRules)
	switch {
	case err == nil:
		logger.Info("ipn applied", zap.String("state", string(updated.State)))
		return AckConfirmSuccess, nil
	case errors.Is(err, ErrMissingAmount), errors.Is(err, ErrAmountMismatch):
		return AckInvalidAmount, nil
	case errors.Is(err, ErrAlreadyProcessed):
		logger.Info("ipn lost race to concurrent notification")
		return AckAlreadyConfirmed, nil
	default:
		logger.Error("failed to apply ipn", zap.Error(err))
		return AckUnknownError, nil
	}
}
