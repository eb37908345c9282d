package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	platformobservability "github.com/shestoi/vnpay-gateway/platform/observability"

	"github.com/shestoi/vnpay-gateway/internal/clock"
	"github.com/shestoi/vnpay-gateway/internal/money"
	"github.com/shestoi/vnpay-gateway/internal/provider"
	"github.com/shestoi/vnpay-gateway/internal/repository"
	"github.com/shestoi/vnpay-gateway/internal/signature"
)

const (
	vnpayVersion      = "2.1.1"
	vnpayDateLayout   = "20060102150405"
	paymentURLTTL     = 30 * time.Minute
	webRefSeparator   = "c" // VNPay принимает в vnp_TxnRef только буквы и цифры
	returnPath        = "/payment/vnpay/return"
	defaultLocale     = "vn"
	supportedCurrency = "VND"
)

// CheckoutService создаёт транзакции redirect-оплаты и ссылки на страницу VNPay
type CheckoutService struct {
	transactions *TransactionService
	providers    *provider.Registry
	clock        clock.Clock
	baseURL      string
	tmnCode      string
	logger       *zap.Logger
}

// NewCheckoutService создаёт сервис оформления оплаты
func NewCheckoutService(transactions *TransactionService, providers *provider.Registry, c clock.Clock, baseURL, tmnCode string, logger *zap.Logger) *CheckoutService {
	if c == nil {
		c = clock.Real{}
	}
	return &CheckoutService{
		transactions: transactions,
		providers:    providers,
		clock:        c,
		baseURL:      strings.TrimRight(baseURL, "/"),
		tmnCode:      tmnCode,
		logger:       logger,
	}
}

// CheckoutInput параметры оплаты
type CheckoutInput struct {
	Amount          decimal.Decimal
	Currency        string
	ReferencePrefix string
	Locale          string
	ClientIP        string
}

// CheckoutOutput reference транзакции и URL для редиректа покупателя
type CheckoutOutput struct {
	Reference  string
	PaymentURL string
}

// Checkout создаёт pending транзакцию и подписанный URL оплаты
func (s *CheckoutService) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutOutput, error) {
	if !input.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be positive"}
	}
	currency := strings.ToUpper(input.Currency)
	if currency != supportedCurrency {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, input.Currency)
	}

	p, err := s.providers.Get(provider.CodeVNPay)
	if err != nil {
		return nil, err
	}

	tx, err := s.transactions.CreateTransaction(ctx, CreateTransactionInput{
		ProviderCode: provider.CodeVNPay,
		Amount:       input.Amount,
		Currency:     currency,
		Prefix:       input.ReferencePrefix,
		Separator:    webRefSeparator,
	})
	if err != nil {
		return nil, err
	}

	paymentURL, err := s.PaymentURL(p, tx, input.Locale, input.ClientIP)
	if err != nil {
		return nil, err
	}

	platformobservability.L(ctx, s.logger).Info("checkout created",
		zap.String("reference", tx.Reference),
		zap.String("amount", tx.Amount.String()),
	)
	return &CheckoutOutput{Reference: tx.Reference, PaymentURL: paymentURL}, nil
}

// PaymentURL собирает ссылку на оплату, подписанную HMAC-SHA512
func (s *CheckoutService) PaymentURL(p provider.Provider, tx repository.Transaction, locale, clientIP string) (string, error) {
	if locale != "en" {
		locale = defaultLocale
	}
	now := clock.InZone(s.clock)
	amount := money.ToMinor(tx.Amount, VNPayWebRules.AmountScale)

	params := signature.Fields{
		"vnp_Version":    vnpayVersion,
		"vnp_Command":    "pay",
		"vnp_TmnCode":    s.tmnCode,
		"vnp_Amount":     strconv.FormatInt(amount, 10),
		"vnp_CurrCode":   supportedCurrency,
		"vnp_TxnRef":     tx.Reference,
		"vnp_OrderInfo":  fmt.Sprintf("Thanh toan don hang %s voi so tien la %s VND", tx.Reference, tx.Amount.String()),
		"vnp_OrderType":  "billpayment",
		"vnp_Locale":     locale,
		"vnp_ReturnUrl":  s.baseURL + returnPath,
		"vnp_IpAddr":     clientIP,
		"vnp_CreateDate": now.Format(vnpayDateLayout),
		"vnp_ExpireDate": now.Add(paymentURLTTL).Format(vnpayDateLayout),
	}

	hash, err := signature.VNPayWeb.Sign(params, p.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign payment url: %w", err)
	}

	return p.Endpoints[provider.EndpointPayment] + "?" + signature.CanonicalQuery(params, signature.VNPayWeb.KeyPrefix) +
		"&vnp_SecureHash=" + hash, nil
}

// GetTransaction возвращает транзакцию для страницы статуса
func (s *CheckoutService) GetTransaction(ctx context.Context, ref string) (repository.Transaction, error) {
	return s.transactions.Resolve(ctx, ref)
}
