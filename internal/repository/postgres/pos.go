package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shestoi/vnpay-gateway/internal/repository"
)

// PosOrderRepository реализует repository.PosOrderRepository
type PosOrderRepository struct {
	pool *pgxpool.Pool
}

// NewPosOrderRepository создаёт репозиторий заказов кассы
func NewPosOrderRepository(pool *pgxpool.Pool) *PosOrderRepository {
	return &PosOrderRepository{pool: pool}
}

// Upsert создаёт заказ, а у неоплаченного обновляет сумму
func (r *PosOrderRepository) Upsert(ctx context.Context, order repository.PosOrder) error {
	if order.State == "" {
		order.State = repository.PosOrderDraft
	}
	if order.Currency == "" {
		order.Currency = "VND"
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO pos_orders (id, name, amount, currency, state)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   amount = EXCLUDED.amount,
		   currency = EXCLUDED.currency,
		   updated_at = now()
		 WHERE pos_orders.state = 'draft'`,
		order.ID, order.Name, order.Amount, order.Currency, string(order.State))
	if err != nil {
		return fmt.Errorf("failed to upsert pos order: %w", err)
	}
	return nil
}

// GetByID возвращает заказ или repository.ErrNotFound
func (r *PosOrderRepository) GetByID(ctx context.Context, id string) (repository.PosOrder, error) {
	var order repository.PosOrder
	var state string
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, amount, currency, state, updated_at
		 FROM pos_orders
		 WHERE id = $1`,
		id).Scan(&order.ID, &order.Name, &order.Amount, &order.Currency, &state, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.PosOrder{}, repository.ErrNotFound
		}
		return repository.PosOrder{}, fmt.Errorf("failed to get pos order: %w", err)
	}
	order.State = repository.PosOrderState(state)
	return order, nil
}

// MarkPaid переводит заказ в paid
func (r *PosOrderRepository) MarkPaid(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE pos_orders SET state = 'paid', updated_at = now() WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("failed to mark pos order paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// QRSessionRepository реализует repository.QRSessionRepository
type QRSessionRepository struct {
	pool *pgxpool.Pool
}

// NewQRSessionRepository создаёт репозиторий QR сессий
func NewQRSessionRepository(pool *pgxpool.Pool) *QRSessionRepository {
	return &QRSessionRepository{pool: pool}
}

// Save сохраняет сессию
func (r *QRSessionRepository) Save(ctx context.Context, session repository.QRSession) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO payment_qr_sessions (order_id, amount, expires_at, qr_data)
		 VALUES ($1, $2, $3, $4)`,
		session.OrderID, session.Amount, session.ExpiresAt, session.QRData)
	if err != nil {
		return fmt.Errorf("failed to save qr session: %w", err)
	}
	return nil
}

// GetLatest возвращает самую свежую сессию заказа
func (r *QRSessionRepository) GetLatest(ctx context.Context, orderID string) (repository.QRSession, error) {
	var session repository.QRSession
	err := r.pool.QueryRow(ctx,
		`SELECT order_id, amount, expires_at, qr_data, created_at
		 FROM payment_qr_sessions
		 WHERE order_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		orderID).Scan(&session.OrderID, &session.Amount, &session.ExpiresAt, &session.QRData, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.QRSession{}, repository.ErrNotFound
		}
		return repository.QRSession{}, fmt.Errorf("failed to get qr session: %w", err)
	}
	return session, nil
}
