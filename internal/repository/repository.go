package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionState состояние платёжной транзакции
type TransactionState string

const (
	StatePending   TransactionState = "pending"
	StateDone      TransactionState = "done"
	StateCancelled TransactionState = "cancelled"
	StateError     TransactionState = "error"
)

// Terminal сообщает, что из состояния больше нет переходов
func (s TransactionState) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateError
}

// Transaction доменная модель одной попытки оплаты.
// Reference назначается один раз при создании и больше не меняется.
type Transaction struct {
	ID                string
	Reference         string
	ProviderCode      string
	Amount            decimal.Decimal
	Currency          string
	State             TransactionState
	ProviderReference string
	StateMessage      string
	PosOrderID        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// StateUpdate условное обновление состояния: применяется только если текущее состояние равно From
type StateUpdate struct {
	ID      string
	From    TransactionState
	To      TransactionState
	Message string
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=TransactionRepository --dir=. --output=./mocks --outpkg=mocks

// TransactionRepository хранилище транзакций.
// Уникальность reference обеспечивает само хранилище.
type TransactionRepository interface {
	// Create сохраняет новую транзакцию и возвращает её с заполненными ID и временем.
	// Возвращает ErrAlreadyExists, если reference уже занят
	Create(ctx context.Context, tx Transaction) (Transaction, error)

	// FindByReference возвращает все транзакции с данным reference (0 или 1 при живом ограничении)
	FindByReference(ctx context.Context, reference string) ([]Transaction, error)

	// ReferenceExists проверяет, занят ли reference
	ReferenceExists(ctx context.Context, reference string) (bool, error)

	// ReferencesWithPrefix возвращает все reference, начинающиеся с prefix (буквально, без шаблонов)
	ReferencesWithPrefix(ctx context.Context, prefix string) ([]string, error)

	// UpdateState применяет переход, если состояние всё ещё равно update.From.
	// Возвращает false, если переход уже применил кто-то другой
	UpdateState(ctx context.Context, update StateUpdate) (bool, error)

	// SetProviderReference записывает ссылку шлюза, пока она пуста или совпадает
	SetProviderReference(ctx context.Context, id, providerReference string) error
}

// PosOrderState состояние заказа кассы
type PosOrderState string

const (
	PosOrderDraft PosOrderState = "draft"
	PosOrderPaid  PosOrderState = "paid"
	PosOrderDone  PosOrderState = "done"
)

// Paid сообщает, что заказ уже оплачен
func (s PosOrderState) Paid() bool {
	return s == PosOrderPaid || s == PosOrderDone
}

// PosOrder заказ кассы, который оплачивается по QR
type PosOrder struct {
	ID        string
	Name      string
	Amount    decimal.Decimal
	Currency  string
	State     PosOrderState
	UpdatedAt time.Time
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=PosOrderRepository --dir=. --output=./mocks --outpkg=mocks

// PosOrderRepository хранилище заказов кассы
type PosOrderRepository interface {
	// Upsert создаёт заказ или обновляет сумму у неоплаченного
	Upsert(ctx context.Context, order PosOrder) error

	// GetByID возвращает ErrNotFound, если заказа нет
	GetByID(ctx context.Context, id string) (PosOrder, error)

	// MarkPaid переводит заказ в paid
	MarkPaid(ctx context.Context, id string) error
}

// QRSession выданное предложение оплаты по QR
type QRSession struct {
	OrderID   string
	Amount    decimal.Decimal
	ExpiresAt time.Time
	QRData    string
	CreatedAt time.Time
}

// Expired сообщает, что now уже позже срока сессии
func (s QRSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=QRSessionRepository --dir=. --output=./mocks --outpkg=mocks

// QRSessionRepository хранилище QR сессий
type QRSessionRepository interface {
	// Save сохраняет сессию
	Save(ctx context.Context, session QRSession) error

	// GetLatest возвращает самую свежую сессию заказа или ErrNotFound
	GetLatest(ctx context.Context, orderID string) (QRSession, error)
}

var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists нарушено ограничение уникальности
	ErrAlreadyExists = errors.New("already exists")
)
