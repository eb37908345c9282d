package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shestoi/vnpay-gateway/internal/clock"
	"github.com/shestoi/vnpay-gateway/internal/provider"
	"github.com/shestoi/vnpay-gateway/internal/qr"
	"github.com/shestoi/vnpay-gateway/internal/reference"
	"github.com/shestoi/vnpay-gateway/internal/repository"
	"github.com/shestoi/vnpay-gateway/internal/repository/memory"
	"github.com/shestoi/vnpay-gateway/internal/service"
	"github.com/shestoi/vnpay-gateway/internal/service/mocks"
	"github.com/shestoi/vnpay-gateway/internal/signature"
)

const (
	testWebSecret = "WEBSECRET"
	testQRSecret  = "QRSECRET"
	// httptest.NewRequest ставит RemoteAddr 192.0.2.1:1234
	testClientIP = "192.0.2.1"
)

type testServer struct {
	router       http.Handler
	transactions *service.TransactionService
	provisioner  *mocks.QRProvisioner
}

type nopPublisher struct{}

func (nopPublisher) PublishTransactionUpdated(context.Context, repository.Transaction) error {
	return nil
}

func newTestServer(t *testing.T, webAllowed ...string) testServer {
	t.Helper()
	return newLoggedTestServer(t, zap.NewNop(), webAllowed...)
}

func newLoggedTestServer(t *testing.T, logger *zap.Logger, webAllowed ...string) testServer {
	t.Helper()
	fixed := clock.NewFixed(time.Date(2026, 5, 1, 10, 0, 0, 0, clock.Zone))

	registry := provider.NewRegistry(
		provider.Provider{
			Code:             provider.CodeVNPay,
			Secret:           testWebSecret,
			AllowedAddresses: webAllowed,
			Endpoints:        map[string]string{provider.EndpointPayment: "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"},
		},
		provider.Provider{Code: provider.CodeVNPayQR, Secret: testQRSecret},
	)

	txRepo := memory.NewTransactionRepository()
	transactions := service.NewTransactionService(txRepo, reference.NewGenerator(txRepo, fixed), nopPublisher{}, logger, 0)
	provisioner := mocks.NewQRProvisioner(t)

	handler := NewHandler(
		service.NewCheckoutService(transactions, registry, fixed, "https://shop.example.com", "DEMOTMN1", logger),
		service.NewWebhookService(transactions, registry, nil, logger),
		service.NewQRService(service.QRServiceDeps{
			Transactions: transactions,
			Orders:       memory.NewPosOrderRepository(),
			Sessions:     memory.NewQRSessionRepository(),
			Provisioner:  provisioner,
			Providers:    registry,
			Clock:        fixed,
			Logger:       logger,
		}),
		logger,
	)

	return testServer{
		router: NewRouter(handler, RouterConfig{CORSAllowedOrigins: []string{"https://pos.example.com"}},
			func() bool { return true }, logger),
		transactions: transactions,
		provisioner:  provisioner,
	}
}

func (s testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s testServer) checkout(t *testing.T, amount string) CheckoutResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/payment/vnpay/checkout", `{"amount":`+amount+`,"currency":"VND","reference_prefix":"INV"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp CheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func signedQuery(t *testing.T, fields signature.Fields) string {
	t.Helper()
	hash, err := signature.VNPayWeb.Sign(fields, testWebSecret)
	require.NoError(t, err)
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	values.Set("vnp_SecureHash", hash)
	return values.Encode()
}

func TestCheckout(t *testing.T) {
	t.Run("payment url is signed", func(t *testing.T) {
		// Arrange
		srv := newTestServer(t)

		// Act
		resp := srv.checkout(t, "150000")

		// Assert
		require.Equal(t, "INV", resp.Reference)
		u, err := url.Parse(resp.PaymentURL)
		require.NoError(t, err)
		require.Equal(t, "sandbox.vnpayment.vn", u.Host)

		q := u.Query()
		require.Equal(t, "15000000", q.Get("vnp_Amount"))
		require.Equal(t, "DEMOTMN1", q.Get("vnp_TmnCode"))
		require.Equal(t, "INV", q.Get("vnp_TxnRef"))
		require.Equal(t, "20260501100000", q.Get("vnp_CreateDate"))
		require.Equal(t, "20260501103000", q.Get("vnp_ExpireDate"))
		require.Equal(t, "https://shop.example.com/payment/vnpay/return", q.Get("vnp_ReturnUrl"))
		require.Equal(t, testClientIP, q.Get("vnp_IpAddr"))
		require.Equal(t, "vn", q.Get("vnp_Locale"))

		fields := signature.Fields{}
		for k := range q {
			fields[k] = q.Get(k)
		}
		require.NoError(t, signature.VNPayWeb.Verify(fields, testWebSecret))
	})

	t.Run("second checkout gets next reference", func(t *testing.T) {
		srv := newTestServer(t)

		first := srv.checkout(t, "1000")
		second := srv.checkout(t, "1000")

		require.Equal(t, "INV", first.Reference)
		require.Equal(t, "INVc1", second.Reference)
	})

	t.Run("unsupported currency", func(t *testing.T) {
		srv := newTestServer(t)

		rec := srv.do(t, http.MethodPost, "/payment/vnpay/checkout", `{"amount":10,"currency":"USD"}`)

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("invalid payload", func(t *testing.T) {
		srv := newTestServer(t)

		require.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/payment/vnpay/checkout", `{`).Code)
		require.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/payment/vnpay/checkout", `{"amount":10}`).Code)
		require.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/payment/vnpay/checkout", `{"amount":0,"currency":"VND"}`).Code)
	})
}

func TestWebhook(t *testing.T) {
	t.Run("settles transaction", func(t *testing.T) {
		// Arrange
		srv := newTestServer(t, testClientIP)
		ref := srv.checkout(t, "150000").Reference
		query := signedQuery(t, signature.Fields{
			"vnp_TxnRef": ref, "vnp_Amount": "15000000", "vnp_ResponseCode": "00", "vnp_OrderInfo": "Thanh toan",
		})

		// Act
		rec := srv.do(t, http.MethodGet, "/payment/vnpay/webhook?"+query, "")

		// Assert
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"RspCode":"00","Message":"Confirm Success"}`, rec.Body.String())

		status := srv.do(t, http.MethodGet, "/payment/transactions/"+ref, "")
		require.Equal(t, http.StatusOK, status.Code)
		var tx TransactionResponse
		require.NoError(t, json.Unmarshal(status.Body.Bytes(), &tx))
		require.Equal(t, "done", tx.State)
		require.Equal(t, ref, tx.ProviderReference)
	})

	t.Run("unauthorized source gets empty response", func(t *testing.T) {
		srv := newTestServer(t, "113.160.92.202")
		ref := srv.checkout(t, "1000").Reference
		query := signedQuery(t, signature.Fields{"vnp_TxnRef": ref, "vnp_Amount": "100000", "vnp_ResponseCode": "00"})

		rec := srv.do(t, http.MethodGet, "/payment/vnpay/webhook?"+query, "")

		require.Empty(t, rec.Body.String())
		tx, err := srv.transactions.Resolve(context.Background(), ref)
		require.NoError(t, err)
		require.Equal(t, repository.StatePending, tx.State)
	})

	t.Run("invalid checksum", func(t *testing.T) {
		srv := newTestServer(t, testClientIP)
		ref := srv.checkout(t, "1000").Reference

		rec := srv.do(t, http.MethodGet, "/payment/vnpay/webhook?vnp_TxnRef="+ref+"&vnp_Amount=100000&vnp_SecureHash=00", "")

		require.JSONEq(t, `{"RspCode":"97","Message":"Invalid Checksum"}`, rec.Body.String())
	})
}

func TestReturnAndStatus(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/payment/vnpay/return?vnp_TxnRef=INV&vnp_ResponseCode=00", "")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/payment/status?reference=INV", rec.Header().Get("Location"))

	require.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/payment/status?reference=INV", "").Code)
	srv.checkout(t, "1000")
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/payment/status?reference=INV", "").Code)
}

func TestQR(t *testing.T) {
	t.Run("create returns data uri", func(t *testing.T) {
		srv := newTestServer(t)
		srv.provisioner.On("Create", mock.Anything, mock.MatchedBy(func(req qr.CreateRequest) bool {
			return req.OrderID == "42" && req.Amount.Equal(decimal.NewFromInt(50000))
		})).Return(qr.CreateResult{Code: "00", Data: "000201010212"}, nil).Once()

		rec := srv.do(t, http.MethodPost, "/pos/vnpay/qr", `{"orderId":"42","amount":50000}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp QRResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Result)
		require.True(t, strings.HasPrefix(*resp.Result, "data:image/png;base64,"))
	})

	t.Run("upstream failure returns null", func(t *testing.T) {
		srv := newTestServer(t)
		srv.provisioner.On("Create", mock.Anything, mock.Anything).Return(qr.CreateResult{}, qr.ErrRejected).Once()

		rec := srv.do(t, http.MethodPost, "/pos/vnpay/qr", `{"orderId":"42","amount":50000}`)

		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"result":null}`, rec.Body.String())
	})

	t.Run("failure is logged with request fields", func(t *testing.T) {
		// Arrange
		core, logs := observer.New(zap.WarnLevel)
		srv := newLoggedTestServer(t, zap.New(core))
		srv.provisioner.On("Create", mock.Anything, mock.Anything).Return(qr.CreateResult{}, qr.ErrRejected).Once()

		// Act
		rec := srv.do(t, http.MethodPost, "/pos/vnpay/qr", `{"orderId":"42","amount":50000}`)

		// Assert
		require.Equal(t, http.StatusOK, rec.Code)
		entries := logs.FilterMessage("qr creation failed").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		require.Equal(t, "/pos/vnpay/qr", fields["path"])
		require.NotEmpty(t, fields["request_id"])
	})

	t.Run("cors preflight", func(t *testing.T) {
		srv := newTestServer(t)
		req := httptest.NewRequest(http.MethodOptions, "/pos/vnpay/qr", nil)
		req.Header.Set("Origin", "https://pos.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()

		srv.router.ServeHTTP(rec, req)

		require.Equal(t, "https://pos.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("ipn settles order", func(t *testing.T) {
		srv := newTestServer(t)
		srv.provisioner.On("Create", mock.Anything, mock.Anything).Return(qr.CreateResult{Code: "00", Data: "000201"}, nil).Once()
		require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/pos/vnpay/qr", `{"orderId":"42","amount":50000}`).Code)

		fields := signature.Fields{
			"code": "00", "msgType": "1", "txnId": "42", "qrTrace": "000098469", "bankCode": "VCB",
			"mobile": "0989", "accountNo": "", "amount": "50000", "payDate": "20260501100130", "merchantCode": "M1",
		}
		sum, err := signature.VNPayQRNotification.Sign(fields, testQRSecret)
		require.NoError(t, err)
		fields["checksum"] = sum
		body, err := json.Marshal(fields)
		require.NoError(t, err)

		rec := srv.do(t, http.MethodPost, "/pos/vnpay/ipn", string(body))

		require.Equal(t, http.StatusOK, rec.Code)
		var ack service.QRAck
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
		require.Equal(t, service.QRCodeSuccess, ack.Code)
	})

	t.Run("ipn with malformed body", func(t *testing.T) {
		srv := newTestServer(t)

		rec := srv.do(t, http.MethodPost, "/pos/vnpay/ipn", `not json`)

		var ack service.QRAck
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
		require.Equal(t, service.QRCodeBadChecksum, ack.Code)
	})
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
}
