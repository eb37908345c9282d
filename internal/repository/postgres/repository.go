package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shestoi/vnpay-gateway/internal/repository"
)

// uniqueViolation код ошибки PostgreSQL для нарушения UNIQUE
const uniqueViolation = "23505"

const transactionColumns = `id::text, reference, provider_code, amount, currency, state,
	provider_reference, state_message, pos_order_id, created_at, updated_at`

// TransactionRepository реализует repository.TransactionRepository используя PostgreSQL
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository создаёт новый PostgreSQL репозиторий транзакций
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{
		pool: pool,
	}
}

// Create вставляет транзакцию. Уникальность reference проверяет ограничение таблицы,
// нарушение превращается в repository.ErrAlreadyExists
func (r *TransactionRepository) Create(ctx context.Context, tx repository.Transaction) (repository.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.State == "" {
		tx.State = repository.StatePending
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO payment_transactions
		   (id, reference, provider_code, amount, currency, state, provider_reference, state_message, pos_order_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+transactionColumns,
		tx.ID, tx.Reference, tx.ProviderCode, tx.Amount, tx.Currency, string(tx.State),
		tx.ProviderReference, tx.StateMessage, tx.PosOrderID)

	created, err := scanTransaction(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.Transaction{}, repository.ErrAlreadyExists
		}
		return repository.Transaction{}, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return created, nil
}

// FindByReference возвращает все транзакции с reference
func (r *TransactionRepository) FindByReference(ctx context.Context, reference string) ([]repository.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM payment_transactions
		 WHERE reference = $1`,
		reference)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	result := make([]repository.Transaction, 0, 1)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ReferenceExists проверяет занятость reference
func (r *TransactionRepository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payment_transactions WHERE reference = $1)`,
		reference).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reference: %w", err)
	}
	return exists, nil
}

// ReferencesWithPrefix ищет reference по LIKE, спецсимволы префикса экранируются
func (r *TransactionRepository) ReferencesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT reference
		 FROM payment_transactions
		 WHERE reference LIKE $1 ESCAPE '\'
		 ORDER BY reference`,
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to query references: %w", err)
	}
	defer rows.Close()

	refs := make([]string, 0)
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

// UpdateState условный UPDATE: строка меняется только если state всё ещё равен From
func (r *TransactionRepository) UpdateState(ctx context.Context, update repository.StateUpdate) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payment_transactions
		 SET state = $3, state_message = $4, updated_at = now()
		 WHERE id = $1 AND state = $2`,
		update.ID, string(update.From), string(update.To), update.Message)
	if err != nil {
		return false, fmt.Errorf("failed to update transaction state: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// 0 строк: либо транзакции нет, либо переход уже применён
	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payment_transactions WHERE id = $1)`,
		update.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction: %w", err)
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return false, nil
}

// SetProviderReference пишет ссылку шлюза, пока она пустая
func (r *TransactionRepository) SetProviderReference(ctx context.Context, id, providerReference string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE payment_transactions
		 SET provider_reference = $2, updated_at = now()
		 WHERE id = $1 AND provider_reference = ''`,
		id, providerReference)
	if err != nil {
		return fmt.Errorf("failed to set provider reference: %w", err)
	}
	return nil
}

func scanTransaction(row pgx.Row) (repository.Transaction, error) {
	var tx repository.Transaction
	var state string
	err := row.Scan(&tx.ID, &tx.Reference, &tx.ProviderCode, &tx.Amount, &tx.Currency, &state,
		&tx.ProviderReference, &tx.StateMessage, &tx.PosOrderID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Transaction{}, repository.ErrNotFound
		}
		return repository.Transaction{}, err
	}
	tx.State = repository.TransactionState(state)
	return tx, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
