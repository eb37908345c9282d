package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	platformobservability "github.com/shestoi/vnpay-gateway/platform/observability"

	"github.com/shestoi/vnpay-gateway/internal/provider"
	"github.com/shestoi/vnpay-gateway/internal/repository"
	"github.com/shestoi/vnpay-gateway/internal/service"
	"github.com/shestoi/vnpay-gateway/internal/signature"
)

const maxBodyBytes = 64 << 10

// Handler содержит HTTP-обработчики шлюза.
// Зависит от service слоя, но не знает о хранилищах и транспорте до VNPay.
type Handler struct {
	checkout *service.CheckoutService
	webhook  *service.WebhookService
	qr       *service.QRService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler создаёт новый HTTP handler
func NewHandler(checkout *service.CheckoutService, webhook *service.WebhookService, qr *service.QRService, logger *zap.Logger) *Handler {
	return &Handler{
		checkout: checkout,
		webhook:  webhook,
		qr:       qr,
		validate: validator.New(),
		logger:   logger,
	}
}

// CheckoutRequest запрос на оплату через страницу VNPay
type CheckoutRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency" validate:"required,len=3"`
	ReferencePrefix string          `json:"reference_prefix" validate:"omitempty,max=64"`
	Locale          string          `json:"locale" validate:"omitempty,oneof=vn en"`
}

// CheckoutResponse ссылка на оплату
type CheckoutResponse struct {
	Reference  string `json:"reference"`
	PaymentURL string `json:"payment_url"`
}

// TransactionResponse состояние транзакции
type TransactionResponse struct {
	Reference         string `json:"reference"`
	State             string `json:"state"`
	StateMessage      string `json:"state_message"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	ProviderReference string `json:"provider_reference"`
}

// QRRequest запрос кассы на выпуск QR
type QRRequest struct {
	OrderID string          `json:"orderId" validate:"required,max=64"`
	Amount  decimal.Decimal `json:"amount"`
}

// QRResponse data URI картинки или null
type QRResponse struct {
	Result *string `json:"result"`
	Error  string  `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// PostCheckout обрабатывает POST /payment/vnpay/checkout
func (h *Handler) PostCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.log(ctx)

	var req CheckoutRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	out, err := h.checkout.Checkout(ctx, service.CheckoutInput{
		Amount:          req.Amount,
		Currency:        req.Currency,
		ReferencePrefix: req.ReferencePrefix,
		Locale:          req.Locale,
		ClientIP:        remoteIP(r),
	})
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error()})
		case errors.Is(err, service.ErrUnsupportedCurrency):
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		case errors.Is(err, provider.ErrUnknownProvider):
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "vnpay is not configured"})
		default:
			logger.Error("checkout failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, CheckoutResponse{Reference: out.Reference, PaymentURL: out.PaymentURL})
}

// GetWebhook обрабатывает IPN redirect-оплаты: GET /payment/vnpay/webhook?vnp_...
func (h *Handler) GetWebhook(w http.ResponseWriter, r *http.Request) {
	ack, err := h.webhook.HandleIPN(r.Context(), remoteIP(r), queryFields(r.URL.Query()))
	if errors.Is(err, service.ErrUnauthorizedSource) {
		// чужому отправителю ничего не отвечаем
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// GetReturn возвращает покупателя со страницы VNPay на страницу статуса
func (h *Handler) GetReturn(w http.ResponseWriter, r *http.Request) {
	target := "/payment/status?reference=" + url.QueryEscape(r.URL.Query().Get("vnp_TxnRef"))
	http.Redirect(w, r, target, http.StatusFound)
}

// GetStatus обрабатывает GET /payment/status?reference=
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.GetTransaction(w, r, r.URL.Query().Get("reference"))
}

// GetTransaction обрабатывает GET /payment/transactions/{reference}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request, reference string) {
	tx, err := h.checkout.GetTransaction(r.Context(), reference)
	if errors.Is(err, service.ErrUnknownReference) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "transaction not found"})
		return
	}
	if err != nil {
		h.log(r.Context()).Error("failed to get transaction", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

// PostQR обрабатывает POST /pos/vnpay/qr
func (h *Handler) PostQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req QRRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, QRResponse{Error: "invalid JSON"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, QRResponse{Error: err.Error()})
		return
	}

	out, err := h.qr.CreateSession(ctx, service.CreateQRInput{OrderID: req.OrderID, Amount: req.Amount})
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, QRResponse{Error: verr.Error()})
			return
		}
		h.log(ctx).Warn("qr creation failed", zap.Error(err))
		writeJSON(w, http.StatusOK, QRResponse{})
		return
	}

	writeJSON(w, http.StatusOK, QRResponse{Result: &out.DataURI})
}

// PostQRIPN обрабатывает уведомление об оплате по QR
func (h *Handler) PostQRIPN(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusOK, service.QRAck{Code: service.QRCodeFailure, Message: "Lỗi hệ thống khi xử lý thông tin."})
		return
	}
	fields, err := signature.FieldsFromJSON(body)
	if err != nil {
		// разбор не удался: пустые поля не пройдут проверку подписи
		h.log(ctx).Warn("malformed qr ipn body", zap.Error(err))
		fields = signature.Fields{}
	}

	ack, err := h.qr.HandleNotification(ctx, remoteIP(r), fields)
	if errors.Is(err, service.ErrUnauthorizedSource) {
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// log logger запроса от HTTPMiddleware, без middleware базовый logger с полями трассировки
func (h *Handler) log(ctx context.Context) *zap.Logger {
	if l := platformobservability.LoggerFromContext(ctx); l != nil {
		return l
	}
	return platformobservability.L(ctx, h.logger)
}

func toTransactionResponse(tx repository.Transaction) TransactionResponse {
	return TransactionResponse{
		Reference:         tx.Reference,
		State:             string(tx.State),
		StateMessage:      tx.StateMessage,
		Amount:            tx.Amount.String(),
		Currency:          tx.Currency,
		ProviderReference: tx.ProviderReference,
	}
}

// queryFields берёт первое значение каждого параметра
func queryFields(values url.Values) signature.Fields {
	fields := make(signature.Fields, len(values))
	for k, v := range values {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return fields
}

// remoteIP адрес отправителя без порта. За RealIP в RemoteAddr уже лежит адрес из заголовков.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
