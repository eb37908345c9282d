package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shestoi/vnpay-gateway/internal/repository"
)

const (
	hashFieldAmount    = "amount"     // сумма сессии строкой decimal
	hashFieldExpiresAt = "expires_at" // срок действия, RFC3339Nano
	hashFieldQRData    = "qr_data"    // payload от провайдера
	hashFieldCreatedAt = "created_at"
)

// QRSessionRepository реализует repository.QRSessionRepository используя Redis hash.
// Ключ живёт дольше срока сессии на retention, чтобы просроченную сессию можно было найти и отклонить.
type QRSessionRepository struct {
	client    *redis.Client
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewQRSessionRepository создаёт Redis репозиторий QR сессий
func NewQRSessionRepository(client *redis.Client, retention time.Duration, logger *zap.Logger) *QRSessionRepository {
	return &QRSessionRepository{
		client:    client,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

func sessionKey(orderID string) string {
	return fmt.Sprintf("qr_session:%s", orderID)
}

// Save перезаписывает сессию заказа, последняя сохранённая считается актуальной
func (r *QRSessionRepository) Save(ctx context.Context, session repository.QRSession) error {
	key := sessionKey(session.OrderID)
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	ttl := session.ExpiresAt.Sub(r.now()) + r.retention
	if ttl < r.retention {
		ttl = r.retention
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		hashFieldAmount, session.Amount.String(),
		hashFieldExpiresAt, session.ExpiresAt.UTC().Format(time.RFC3339Nano),
		hashFieldQRData, session.QRData,
		hashFieldCreatedAt, createdAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("failed to save qr session in redis",
			zap.Error(err),
			zap.String("order_id", session.OrderID),
		)
		return fmt.Errorf("failed to save qr session: %w", err)
	}

	r.logger.Debug("qr session saved",
		zap.String("order_id", session.OrderID),
		zap.Time("expires_at", session.ExpiresAt),
		zap.Duration("ttl", ttl),
	)
	return nil
}

// GetLatest читает сессию заказа, redis.Nil превращается в repository.ErrNotFound
func (r *QRSessionRepository) GetLatest(ctx context.Context, orderID string) (repository.QRSession, error) {
	values, err := r.client.HGetAll(ctx, sessionKey(orderID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return repository.QRSession{}, repository.ErrNotFound
		}
		return repository.QRSession{}, fmt.Errorf("failed to get qr session: %w", err)
	}
	// HGETALL на отсутствующий ключ возвращает пустой hash, а не redis.Nil
	if len(values) == 0 {
		return repository.QRSession{}, repository.ErrNotFound
	}

	session := repository.QRSession{
		OrderID: orderID,
		QRData:  values[hashFieldQRData],
	}
	if session.Amount, err = decimal.NewFromString(values[hashFieldAmount]); err != nil {
		return repository.QRSession{}, fmt.Errorf("corrupted qr session amount: %w", err)
	}
	if session.ExpiresAt, err = time.Parse(time.RFC3339Nano, values[hashFieldExpiresAt]); err != nil {
		return repository.QRSession{}, fmt.Errorf("corrupted qr session expiry: %w", err)
	}
	if raw := values[hashFieldCreatedAt]; raw != "" {
		if session.CreatedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return repository.QRSession{}, fmt.Errorf("corrupted qr session created_at: %w", err)
		}
	}
	return session, nil
}
