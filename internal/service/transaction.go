package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	platformobservability "github.com/shestoi/vnpay-gateway/platform/observability"

	"github.com/shestoi/vnpay-gateway/internal/money"
	"github.com/shestoi/vnpay-gateway/internal/reference"
	"github.com/shestoi/vnpay-gateway/internal/repository"
	"github.com/shestoi/vnpay-gateway/internal/signature"
)

// Диагностические сообщения, которые сохраняются в state_message
const (
	MsgInvalidSignature = "Received data with invalid signature."
	MsgInvalidAmount    = "Received data with invalid amount."
	MsgAbandoned        = "The customer left the payment page."
	MsgCustomerCanceled = "The customer canceled the payment."
	MsgExpiredQR        = "Received payment for expired QR. Aborting."
	msgInvalidCodeFmt   = "Received data with invalid response code: %s"
)

// DefaultMaxAttempts сколько раз генерировать reference заново при гонке за уникальность
const DefaultMaxAttempts = 32

// GatewayRules как читать уведомление конкретного шлюза
type GatewayRules struct {
	AmountField            string
	AmountScale            int64 // во сколько раз сумма в уведомлении больше суммы транзакции
	ResponseCodeField      string
	ProviderReferenceField string
	SuccessCode            string
	CancelCode             string // пусто: у шлюза нет кода отмены
}

var (
	// VNPayWebRules уведомления redirect-оплаты: сумма в минорных единицах x100
	VNPayWebRules = GatewayRules{
		AmountField:            "vnp_Amount",
		AmountScale:            100,
		ResponseCodeField:      "vnp_ResponseCode",
		ProviderReferenceField: "vnp_TxnRef",
		SuccessCode:            "00",
		CancelCode:             "24",
	}

	// VNPayQRRules уведомления оплаты по QR: сумма как есть
	VNPayQRRules = GatewayRules{
		AmountField:            "amount",
		AmountScale:            1,
		ResponseCodeField:      "code",
		ProviderReferenceField: "qrTrace",
		SuccessCode:            "00",
	}
)

// TransactionService создание транзакций и их переходы по уведомлениям.
// Состояние меняется только условным UPDATE из pending, поэтому конкурентные уведомления безопасны без локов.
type TransactionService struct {
	repo        repository.TransactionRepository
	generator   *reference.Generator
	publisher   EventPublisher
	logger      *zap.Logger
	maxAttempts int
}

// NewTransactionService создаёт сервис транзакций
func NewTransactionService(
	repo repository.TransactionRepository,
	generator *reference.Generator,
	publisher EventPublisher,
	logger *zap.Logger,
	maxAttempts int,
) *TransactionService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &TransactionService{
		repo:        repo,
		generator:   generator,
		publisher:   publisher,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// CreateTransactionInput данные новой транзакции
type CreateTransactionInput struct {
	ProviderCode string
	Amount       decimal.Decimal
	Currency     string
	Prefix       string
	Separator    string
	Derived      string
	PosOrderID   string
}

// CreateTransaction создаёт pending транзакцию с новым reference.
// Если reference успели занять между чтением и вставкой, генерация повторяется.
func (s *TransactionService) CreateTransaction(ctx context.Context, input CreateTransactionInput) (repository.Transaction, error) {
	logger := platformobservability.L(ctx, s.logger)
	req := reference.Request{Prefix: input.Prefix, Separator: input.Separator, Derived: input.Derived}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		ref, err := s.generator.Next(ctx, req)
		if err != nil {
			return repository.Transaction{}, fmt.Errorf("failed to generate reference: %w", err)
		}

		tx, err := s.repo.Create(ctx, repository.Transaction{
			Reference:    ref,
			ProviderCode: input.ProviderCode,
			Amount:       input.Amount,
			Currency:     input.Currency,
			State:        repository.StatePending,
			PosOrderID:   input.PosOrderID,
		})
		if errors.Is(err, repository.ErrAlreadyExists) {
			logger.Debug("reference taken concurrently, retrying",
				zap.String("reference", ref),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return repository.Transaction{}, fmt.Errorf("failed to create transaction: %w", err)
		}

		logger.Info("transaction created",
			zap.String("reference", tx.Reference),
			zap.String("provider", tx.ProviderCode),
			zap.String("amount", tx.Amount.String()),
			zap.String("currency", tx.Currency),
		)
		return tx, nil
	}

	return repository.Transaction{}, fmt.Errorf("failed to create transaction: reference still taken after %d attempts: %w",
		s.maxAttempts, repository.ErrAlreadyExists)
}

// Resolve находит ровно одну транзакцию по reference
func (s *TransactionService) Resolve(ctx context.Context, ref string) (repository.Transaction, error) {
	if ref == "" {
		return repository.Transaction{}, fmt.Errorf("%w: empty reference", ErrUnknownReference)
	}
	found, err := s.repo.FindByReference(ctx, ref)
	if err != nil {
		return repository.Transaction{}, fmt.Errorf("failed to find transaction: %w", err)
	}
	switch len(found) {
	case 0:
		return repository.Transaction{}, fmt.Errorf("%w: %s", ErrUnknownReference, ref)
	case 1:
		return found[0], nil
	default:
		return repository.Transaction{}, fmt.Errorf("%w: %d transactions share reference %s", ErrUnknownReference, len(found), ref)
	}
}

// Transition переводит pending транзакцию в терминальное состояние.
// ErrAlreadyProcessed: транзакция уже терминальна или её успел перевести конкурентный запрос.
func (s *TransactionService) Transition(ctx context.Context, tx repository.Transaction, to repository.TransactionState, message string) (repository.Transaction, error) {
	if tx.State.Terminal() {
		return tx, ErrAlreadyProcessed
	}

	applied, err := s.repo.UpdateState(ctx, repository.StateUpdate{
		ID:      tx.ID,
		From:    repository.StatePending,
		To:      to,
		Message: message,
	})
	if err != nil {
		return tx, fmt.Errorf("failed to update transaction state: %w", err)
	}
	if !applied {
		return tx, ErrAlreadyProcessed
	}

	tx.State = to
	tx.StateMessage = message

	logger := platformobservability.L(ctx, s.logger)
	logger.Info("transaction state changed",
		zap.String("reference", tx.Reference),
		zap.String("state", string(to)),
		zap.String("message", message),
	)

	// событие best effort: сбой брокера не влияет на ответ шлюзу
	if err := s.publisher.PublishTransactionUpdated(ctx, tx); err != nil {
		logger.Warn("failed to publish transaction event",
			zap.String("reference", tx.Reference),
			zap.Error(err),
		)
	}
	return tx, nil
}

// Fail переводит транзакцию в error, если она ещё pending. Уже обработанная транзакция не трогается.
func (s *TransactionService) Fail(ctx context.Context, tx repository.Transaction, message string) error {
	_, err := s.Transition(ctx, tx, repository.StateError, message)
	if errors.Is(err, ErrAlreadyProcessed) {
		return nil
	}
	return err
}

// CheckAmount сверяет сумму уведомления с суммой транзакции.
// При расхождении транзакция переводится в error до возврата ошибки.
func (s *TransactionService) CheckAmount(ctx context.Context, tx repository.Transaction, fields signature.Fields, rules GatewayRules) error {
	raw, ok := fields.Get(rules.AmountField)
	if !ok || raw == "" {
		if err := s.Fail(ctx, tx, MsgInvalidAmount); err != nil {
			return err
		}
		return ErrMissingAmount
	}

	claimed, err := money.Parse(raw)
	if err == nil {
		amount := money.FromMinor(claimed, rules.AmountScale)
		if money.Representable(amount, tx.Currency) && money.CompareAmounts(amount, tx.Amount, tx.Currency) == 0 {
			return nil
		}
	}

	platformobservability.L(ctx, s.logger).Warn("notification amount mismatch",
		zap.String("reference", tx.Reference),
		zap.String("expected", tx.Amount.String()),
		zap.String("claimed", raw),
	)
	if err := s.Fail(ctx, tx, MsgInvalidAmount); err != nil {
		return err
	}
	return ErrAmountMismatch
}

// SetProviderReference запоминает ссылку шлюза из уведомления и возвращает обновлённую транзакцию.
// Уже записанная ссылка не перезаписывается.
func (s *TransactionService) SetProviderReference(ctx context.Context, tx repository.Transaction, fields signature.Fields, rules GatewayRules) (repository.Transaction, error) {
	ref, ok := fields.Get(rules.ProviderReferenceField)
	if !ok || ref == "" {
		return tx, nil
	}
	if err := s.repo.SetProviderReference(ctx, tx.ID, ref); err != nil {
		return tx, fmt.Errorf("failed to set provider reference: %w", err)
	}
	if tx.ProviderReference == "" {
		tx.ProviderReference = ref
	}
	return tx, nil
}

// ApplyResponseCode применяет код результата: успех -> done, отмена -> cancelled, прочее -> error
func (s *TransactionService) ApplyResponseCode(ctx context.Context, tx repository.Transaction, code string, rules GatewayRules) (repository.Transaction, error) {
	switch {
	case code == rules.SuccessCode:
		return s.Transition(ctx, tx, repository.StateDone, "")
	case rules.CancelCode != "" && code == rules.CancelCode:
		return s.Transition(ctx, tx, repository.StateCancelled, MsgCustomerCanceled)
	default:
		return s.Transition(ctx, tx, repository.StateError, fmt.Sprintf(msgInvalidCodeFmt, code))
	}
}

// ApplyNotification полный переход по уведомлению redirect-оплаты:
// пустое уведомление -> cancelled, затем сумма, ссылка шлюза и код результата.
func (s *TransactionService) ApplyNotification(ctx context.Context, tx repository.Transaction, fields signature.Fields, rules GatewayRules) (repository.Transaction, error) {
	if tx.State.Terminal() {
		return tx, ErrAlreadyProcessed
	}
	if len(fields) == 0 {
		return s.Transition(ctx, tx, repository.StateCancelled, MsgAbandoned)
	}
	if err := s.CheckAmount(ctx, tx, fields, rules); err != nil {
		return tx, err
	}
	tx, err := s.SetProviderReference(ctx, tx, fields, rules)
	if err != nil {
		return tx, err
	}
	return s.ApplyResponseCode(ctx, tx, fields[rules.ResponseCodeField], rules)
}
