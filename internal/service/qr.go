package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	platformobservability "github.com/shestoi/vnpay-gateway/platform/observability"

	"github.com/shestoi/vnpay-gateway/internal/clock"
	"github.com/shestoi/vnpay-gateway/internal/provider"
	"github.com/shestoi/vnpay-gateway/internal/qr"
	"github.com/shestoi/vnpay-gateway/internal/repository"
	"github.com/shestoi/vnpay-gateway/internal/signature"
)

// DefaultQRSessionTTL срок жизни выданного QR
const DefaultQRSessionTTL = 5 * time.Minute

// QRAck ответ VNPay-QR на уведомление об оплате
type QRAck struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Коды ответа VNPay-QR
const (
	QRCodeSuccess     = "00"
	QRCodeAlreadyPaid = "03"
	QRCodeFailure     = "04"
	QRCodeBadChecksum = "06"
	QRCodeWrongAmount = "07"
	QRCodeExpired     = "09"
)

const qrPosPrefix = "POS-"

// QRService выпуск QR для заказов кассы и обработка уведомлений об оплате по ним
type QRService struct {
	transactions *TransactionService
	orders       repository.PosOrderRepository
	sessions     repository.QRSessionRepository
	provisioner  QRProvisioner
	providers    *provider.Registry
	clock        clock.Clock
	sessionTTL   time.Duration
	metrics      *Metrics
	logger       *zap.Logger
}

// QRServiceDeps зависимости QRService
type QRServiceDeps struct {
	Transactions *TransactionService
	Orders       repository.PosOrderRepository
	Sessions     repository.QRSessionRepository
	Provisioner  QRProvisioner
	Providers    *provider.Registry
	Clock        clock.Clock
	SessionTTL   time.Duration
	Metrics      *Metrics
	Logger       *zap.Logger
}

// NewQRService создаёт сервис QR оплаты
func NewQRService(deps QRServiceDeps) *QRService {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.SessionTTL <= 0 {
		deps.SessionTTL = DefaultQRSessionTTL
	}
	return &QRService{
		transactions: deps.Transactions,
		orders:       deps.Orders,
		sessions:     deps.Sessions,
		provisioner:  deps.Provisioner,
		providers:    deps.Providers,
		clock:        deps.Clock,
		sessionTTL:   deps.SessionTTL,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
	}
}

// CreateQRInput заказ кассы, для которого нужен QR
type CreateQRInput struct {
	OrderID string
	Amount  decimal.Decimal
}

// CreateQROutput картинка и срок действия QR
type CreateQROutput struct {
	DataURI   string
	QRData    string
	ExpiresAt time.Time
}

// CreateSession регистрирует заказ, запрашивает QR у провайдера и сохраняет сессию.
// Любой сбой провайдера (сеть, код, подпись ответа) возвращается как ErrUpstreamUnavailable.
func (s *QRService) CreateSession(ctx context.Context, input CreateQRInput) (*CreateQROutput, error) {
	logger := platformobservability.L(ctx, s.logger).With(zap.String("order_id", input.OrderID))

	if input.OrderID == "" {
		return nil, &ValidationError{Field: "orderId", Message: "is required"}
	}
	if !input.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be positive"}
	}
	if _, err := s.providers.Get(provider.CodeVNPayQR); err != nil || s.provisioner == nil {
		return nil, fmt.Errorf("%w: vnpayqr is not configured", ErrUpstreamUnavailable)
	}

	if err := s.orders.Upsert(ctx, repository.PosOrder{
		ID:       input.OrderID,
		Amount:   input.Amount,
		Currency: "VND",
		State:    repository.PosOrderDraft,
	}); err != nil {
		return nil, fmt.Errorf("failed to register pos order: %w", err)
	}

	expiresAt := clock.InZone(s.clock).Add(s.sessionTTL)
	result, err := s.provisioner.Create(ctx, qr.CreateRequest{
		OrderID:   input.OrderID,
		Amount:    input.Amount,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		s.metrics.QRSessionCreated(ctx, "failed")
		logger.Warn("qr provisioning failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	dataURI, err := qr.RenderDataURI(result.Data, qr.DefaultImageSize)
	if err != nil {
		s.metrics.QRSessionCreated(ctx, "failed")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if err := s.sessions.Save(ctx, repository.QRSession{
		OrderID:   input.OrderID,
		Amount:    input.Amount,
		ExpiresAt: expiresAt,
		QRData:    result.Data,
	}); err != nil {
		s.metrics.QRSessionCreated(ctx, "failed")
		return nil, fmt.Errorf("failed to save qr session: %w", err)
	}

	s.metrics.QRSessionCreated(ctx, "ok")
	logger.Info("qr session created", zap.Time("expires_at", expiresAt))

	return &CreateQROutput{
		DataURI:   dataURI,
		QRData:    result.Data,
		ExpiresAt: expiresAt,
	}, nil
}

// HandleNotification обрабатывает уведомление об оплате по QR.
// Единственная ошибка наружу ErrUnauthorizedSource, всё остальное становится кодом ответа.
func (s *QRService) HandleNotification(ctx context.Context, remoteAddr string, fields signature.Fields) (ack QRAck, err error) {
	started := time.Now()
	logger := platformobservability.L(ctx, s.logger).With(zap.String("txn_id", fields["txnId"]))
	defer func() {
		if err == nil {
			s.metrics.NotificationHandled(ctx, ChannelQR, ack.Code, started)
		}
	}()

	p, err := s.providers.Get(provider.CodeVNPayQR)
	if err != nil {
		logger.Error("vnpayqr provider is not configured", zap.Error(err))
		return systemFailure(), nil
	}
	if !p.Allows(remoteAddr) {
		logger.Warn("qr ipn from unauthorized address dropped", zap.String("remote_addr", remoteAddr))
		return QRAck{}, ErrUnauthorizedSource
	}

	ack, herr := s.handle(ctx, p, fields, logger)
	if herr != nil {
		logger.Error("failed to process qr ipn", zap.Error(herr))
		return systemFailure(), nil
	}
	return ack, nil
}

func (s *QRService) handle(ctx context.Context, p provider.Provider, fields signature.Fields, logger *zap.Logger) (QRAck, error) {
	if err := signature.VNPayQRNotification.Verify(fields, p.Secret); err != nil {
		logger.Warn("qr ipn checksum verification failed", zap.Error(err))
		return QRAck{Code: QRCodeBadChecksum, Message: "Sai thông tin xác thực."}, nil
	}

	txnID := fields["txnId"]
	order, err := s.orders.GetByID(ctx, txnID)
	if errors.Is(err, repository.ErrNotFound) || txnID == "" {
		return QRAck{Code: QRCodeFailure, Message: "Không tìm thấy txnId trong hệ thống."}, nil
	}
	if err != nil {
		return QRAck{}, err
	}
	if order.State.Paid() {
		return QRAck{Code: QRCodeAlreadyPaid, Message: "Đơn hàng đã được thanh toán.", Data: map[string]any{"txnId": txnID}}, nil
	}

	tx, err := s.transactions.CreateTransaction(ctx, CreateTransactionInput{
		ProviderCode: provider.CodeVNPayQR,
		Amount:       order.Amount,
		Currency:     order.Currency,
		Derived:      qrPosPrefix + order.ID,
		Separator:    "-",
		PosOrderID:   order.ID,
	})
	if err != nil {
		return QRAck{}, err
	}

	if err := s.transactions.CheckAmount(ctx, tx, fields, VNPayQRRules); err != nil {
		if errors.Is(err, ErrMissingAmount) || errors.Is(err, ErrAmountMismatch) {
			return QRAck{Code: QRCodeWrongAmount, Message: "Số tiền không chính xác.", Data: map[string]any{"amount": order.Amount.StringFixed(0)}}, nil
		}
		return QRAck{}, err
	}

	if err := s.checkExpiry(ctx, tx, order.ID); err != nil {
		if errors.Is(err, ErrExpiredSession) {
			logger.Warn("payment for expired qr rejected", zap.String("reference", tx.Reference))
			return QRAck{Code: QRCodeExpired, Message: "QR hết hạn thanh toán."}, nil
		}
		return QRAck{}, err
	}

	tx, err = s.transactions.SetProviderReference(ctx, tx, fields, VNPayQRRules)
	if err != nil {
		return QRAck{}, err
	}

	code := fields[VNPayQRRules.ResponseCodeField]
	if _, err := s.transactions.ApplyResponseCode(ctx, tx, code, VNPayQRRules); err != nil {
		return QRAck{}, err
	}
	if code != VNPayQRRules.SuccessCode {
		return QRAck{Code: QRCodeFailure, Message: "Nhận dữ liệu với mã lỗi là: " + code}, nil
	}

	if err := s.orders.MarkPaid(ctx, order.ID); err != nil {
		return QRAck{}, fmt.Errorf("failed to mark pos order paid: %w", err)
	}
	logger.Info("qr payment settled", zap.String("reference", tx.Reference))
	return QRAck{Code: QRCodeSuccess, Message: "Đặt hàng thành công.", Data: map[string]any{"txnId": txnID}}, nil
}

// checkExpiry сравнивает текущее время в зоне шлюза со сроком последней сессии заказа.
// Нет сессии: срок не проверяется.
func (s *QRService) checkExpiry(ctx context.Context, tx repository.Transaction, orderID string) error {
	session, err := s.sessions.GetLatest(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load qr session: %w", err)
	}
	if !session.Expired(clock.InZone(s.clock)) {
		return nil
	}
	if err := s.transactions.Fail(ctx, tx, MsgExpiredQR); err != nil {
		return err
	}
	return ErrExpiredSession
}

func systemFailure() QRAck {
	return QRAck{Code: QRCodeFailure, Message: "Lỗi hệ thống khi xử lý thông tin."}
}
