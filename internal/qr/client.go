// Package qr работает с API VNPay-QR: создание QR кода на оплату и отрисовка картинки.
package qr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/shestoi/vnpay-gateway/internal/signature"
)

// Постоянные поля запроса на создание QR
const (
	serviceCode   = "03"
	countryCode   = "VN"
	payType       = "03"
	currencyCode  = "704"
	masterMerCode = "A000000775"

	// ExpDateLayout формат expDate: yyMMddHHmm
	ExpDateLayout = "0601021504"

	// successCode код успешного ответа провайдера
	successCode = "00"
)

var (
	// ErrBadStatus провайдер ответил не 200
	ErrBadStatus = errors.New("qr provider returned non-200 status")
	// ErrRejected провайдер вернул код отличный от "00"
	ErrRejected = errors.New("qr provider rejected request")
)

// Merchant реквизиты мерчанта для VNPay-QR
type Merchant struct {
	AppID        string
	MerchantName string
	MerchantCode string
	MerchantType string
	TerminalID   string
	Secret       string
	CreateURL    string
}

// CreateRequest данные для выпуска QR
type CreateRequest struct {
	OrderID   string
	Amount    decimal.Decimal
	ExpiresAt time.Time // уже в зоне шлюза
}

// CreateResult проверенный ответ провайдера
type CreateResult struct {
	Code    string
	Message string
	Data    string // содержимое QR кода
	URL     string
}

// Client клиент провайдера QR. Повторов нет: ошибка сразу возвращается вызывающему,
// circuit breaker только отсекает запросы, пока провайдер лежит.
type Client struct {
	merchant Merchant
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewClient создаёт клиента с таймаутом timeout
func NewClient(merchant Merchant, timeout time.Duration, logger *zap.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "vnpayqr",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// отказ провайдера по бизнес-коду не повод размыкать цепь
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected) || errors.Is(err, signature.ErrChecksumMismatch)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("qr provider circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		merchant: merchant,
		client: &http.Client{
			Timeout: timeout,
		},
		breaker: breaker,
		logger:  logger,
	}
}

// BuildPayload собирает и подписывает тело запроса на создание QR
func (c *Client) BuildPayload(req CreateRequest) (signature.Fields, error) {
	fields := signature.Fields{
		"appId":         c.merchant.AppID,
		"merchantName":  c.merchant.MerchantName,
		"serviceCode":   serviceCode,
		"countryCode":   countryCode,
		"payloadFormat": "",
		"productId":     "",
		"tipAndFee":     "",
		"expDate":       req.ExpiresAt.Format(ExpDateLayout),
		"desc":          "",
		"mobile":        "",
		"consumerID":    "",
		"purpose":       "",
		"merchantCode":  c.merchant.MerchantCode,
		"terminalId":    c.merchant.TerminalID,
		"payType":       payType,
		"txnId":         req.OrderID,
		"billNumber":    req.OrderID,
		"amount":        req.Amount.String(),
		"ccy":           currencyCode,
		"masterMerCode": masterMerCode,
		"merchantType":  c.merchant.MerchantType,
	}

	checksum, err := signature.VNPayQRCreate.Sign(fields, c.merchant.Secret)
	if err != nil {
		return nil, err
	}
	fields["checksum"] = checksum
	return fields, nil
}

// Create отправляет запрос на создание QR и проверяет подпись ответа.
// Ответ без валидной подписи считается ошибкой, его data не используется.
func (c *Client) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	payload, err := c.BuildPayload(req)
	if err != nil {
		return CreateResult{}, fmt.Errorf("failed to sign qr request: %w", err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, payload)
	})
	if err != nil {
		c.logger.Warn("qr provider call failed",
			zap.String("order_id", req.OrderID),
			zap.Error(err),
		)
		return CreateResult{}, err
	}
	return out.(CreateResult), nil
}

func (c *Client) do(ctx context.Context, payload signature.Fields) (CreateResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return CreateResult{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.merchant.CreateURL, bytes.NewReader(body))
	if err != nil {
		return CreateResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	// провайдер принимает JSON только с text/plain
	httpReq.Header.Set("Content-Type", "text/plain")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return CreateResult{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return CreateResult{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return CreateResult{}, fmt.Errorf("%w: %d: %s", ErrBadStatus, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	fields, err := signature.FieldsFromJSON(raw)
	if err != nil {
		return CreateResult{}, err
	}

	result := CreateResult{
		Code:    fields["code"],
		Message: fields["message"],
		Data:    fields["data"],
		URL:     fields["url"],
	}
	if result.Code != successCode {
		return CreateResult{}, fmt.Errorf("%w: code=%s message=%s", ErrRejected, result.Code, result.Message)
	}

	if err := signature.VNPayQRCreateResponse.Verify(fields, c.merchant.Secret); err != nil {
		return CreateResult{}, fmt.Errorf("qr provider response: %w", err)
	}

	return result, nil
}
