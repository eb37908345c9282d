package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shestoi/vnpay-gateway/internal/repository"
)

// TransactionRepository реализует repository.TransactionRepository в памяти.
// Используется для локальной разработки (STORAGE_BACKEND=memory) и тестов.
type TransactionRepository struct {
	mu    sync.RWMutex
	byID  map[string]repository.Transaction
	byRef map[string]string
	now   func() time.Time
}

// NewTransactionRepository создаёт пустой in-memory репозиторий
func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		byID:  make(map[string]repository.Transaction),
		byRef: make(map[string]string),
		now:   time.Now,
	}
}

// Create сохраняет транзакцию, проверка уникальности reference под тем же локом
func (r *TransactionRepository) Create(ctx context.Context, tx repository.Transaction) (repository.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byRef[tx.Reference]; exists {
		return repository.Transaction{}, repository.ErrAlreadyExists
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.State == "" {
		tx.State = repository.StatePending
	}
	now := r.now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	r.byID[tx.ID] = tx
	r.byRef[tx.Reference] = tx.ID
	return tx, nil
}

// FindByReference возвращает 0 или 1 транзакцию
func (r *TransactionRepository) FindByReference(ctx context.Context, reference string) ([]repository.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byRef[reference]
	if !ok {
		return nil, nil
	}
	return []repository.Transaction{r.byID[id]}, nil
}

// ReferenceExists проверяет занятость reference
func (r *TransactionRepository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byRef[reference]
	return ok, nil
}

// ReferencesWithPrefix возвращает отсортированный список reference с префиксом
func (r *TransactionRepository) ReferencesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0)
	for ref := range r.byRef {
		if strings.HasPrefix(ref, prefix) {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	return refs, nil
}

// UpdateState compare-and-set по состоянию
func (r *TransactionRepository) UpdateState(ctx context.Context, update repository.StateUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.byID[update.ID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if tx.State != update.From {
		return false, nil
	}

	tx.State = update.To
	tx.StateMessage = update.Message
	tx.UpdatedAt = r.now().UTC()
	r.byID[tx.ID] = tx
	return true, nil
}

// SetProviderReference пишет ссылку шлюза один раз
func (r *TransactionRepository) SetProviderReference(ctx context.Context, id, providerReference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if tx.ProviderReference != "" {
		// уже записана, повтор с тем же значением не ошибка
		return nil
	}

	tx.ProviderReference = providerReference
	tx.UpdatedAt = r.now().UTC()
	r.byID[id] = tx
	return nil
}

// PosOrderRepository in-memory хранилище заказов кассы
type PosOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]repository.PosOrder
}

// NewPosOrderRepository создаёт пустое хранилище
func NewPosOrderRepository() *PosOrderRepository {
	return &PosOrderRepository{
		orders: make(map[string]repository.PosOrder),
	}
}

// Upsert создаёт заказ, у существующего неоплаченного обновляет сумму
func (r *PosOrderRepository) Upsert(ctx context.Context, order repository.PosOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.orders[order.ID]
	if ok && existing.State.Paid() {
		return nil
	}
	if order.State == "" {
		order.State = repository.PosOrderDraft
	}
	order.UpdatedAt = time.Now().UTC()
	r.orders[order.ID] = order
	return nil
}

// GetByID возвращает заказ или ErrNotFound
func (r *PosOrderRepository) GetByID(ctx context.Context, id string) (repository.PosOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return repository.PosOrder{}, repository.ErrNotFound
	}
	return order, nil
}

// MarkPaid переводит заказ в paid
func (r *PosOrderRepository) MarkPaid(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	order.State = repository.PosOrderPaid
	order.UpdatedAt = time.Now().UTC()
	r.orders[id] = order
	return nil
}

// QRSessionRepository in-memory хранилище QR сессий
type QRSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string][]repository.QRSession
}

// NewQRSessionRepository создаёт пустое хранилище
func NewQRSessionRepository() *QRSessionRepository {
	return &QRSessionRepository{
		sessions: make(map[string][]repository.QRSession),
	}
}

// Save добавляет сессию к заказу
func (r *QRSessionRepository) Save(ctx context.Context, session repository.QRSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	r.sessions[session.OrderID] = append(r.sessions[session.OrderID], session)
	return nil
}

// GetLatest возвращает последнюю сохранённую сессию заказа
func (r *QRSessionRepository) GetLatest(ctx context.Context, orderID string) (repository.QRSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.sessions[orderID]
	if len(list) == 0 {
		return repository.QRSession{}, repository.ErrNotFound
	}
	return list[len(list)-1], nil
}
