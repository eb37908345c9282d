package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/vnpay-gateway/internal/provider"
	"github.com/shestoi/vnpay-gateway/internal/repository"
	"github.com/shestoi/vnpay-gateway/internal/repository/memory"
	"github.com/shestoi/vnpay-gateway/internal/signature"
)

const (
	webSecret  = "WEBSECRET"
	gatewayIP  = "113.160.92.202"
	strangerIP = "10.0.0.1"
)

func webRegistry() *provider.Registry {
	return provider.NewRegistry(provider.Provider{
		Code:             provider.CodeVNPay,
		Secret:           webSecret,
		AllowedAddresses: []string{gatewayIP},
		Endpoints:        map[string]string{provider.EndpointPayment: "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"},
	})
}

func signedWeb(t *testing.T, fields signature.Fields) signature.Fields {
	t.Helper()
	hash, err := signature.VNPayWeb.Sign(fields, webSecret)
	require.NoError(t, err)
	out := signature.Fields{"vnp_SecureHash": hash, "vnp_SecureHashType": "HmacSHA512"}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

type webhookFixture struct {
	svc          *WebhookService
	transactions *TransactionService
	publisher    *recordingPublisher
}

func newWebhookFixture(t *testing.T) webhookFixture {
	t.Helper()
	repo := memory.NewTransactionRepository()
	pub := &recordingPublisher{}
	transactions := newTransactionService(repo, pub)
	createPending(t, transactions, "INV", "100", "VND")
	return webhookFixture{
		svc:          NewWebhookService(transactions, webRegistry(), nil, zap.NewNop()),
		transactions: transactions,
		publisher:    pub,
	}
}

func (f webhookFixture) stored(t *testing.T) repository.Transaction {
	t.Helper()
	tx, err := f.transactions.Resolve(context.Background(), "INV")
	require.NoError(t, err)
	return tx
}

func TestWebhookService_HandleIPN(t *testing.T) {
	ctx := context.Background()

	t.Run("unauthorized source is dropped without changes", func(t *testing.T) {
		// Arrange
		f := newWebhookFixture(t)
		fields := signedWeb(t, signature.Fields{"vnp_TxnRef": "INV", "vnp_Amount": "10000", "vnp_ResponseCode": "00"})

		// Act
		_, err := f.svc.HandleIPN(ctx, strangerIP, fields)

		// Assert
		require.ErrorIs(t, err, ErrUnauthorizedSource)
		require.Equal(t, repository.StatePending, f.stored(t).State)
		require.Zero(t, f.publisher.count())
	})

	t.Run("signed success", func(t *testing.T) {
		f := newWebhookFixture(t)
		fields := signedWeb(t, signature.Fields{
			"vnp_TxnRef": "INV", "vnp_Amount": "10000", "vnp_ResponseCode": "00", "vnp_OrderInfo": "Thanh toan don hang",
		})

		ack, err := f.svc.HandleIPN(ctx, gatewayIP, fields)

		require.NoError(t, err)
		require.Equal(t, AckConfirmSuccess, ack)
		require.Equal(t, repository.StateDone, f.stored(t).State)
		require.Equal(t, 1, f.publisher.count())
	})

	t.Run("replay of processed notification", func(t *testing.T) {
		f := newWebhookFixture(t)
		fields := signedWeb(t, signature.Fields{"vnp_TxnRef": "INV", "vnp_Amount": "10000", "vnp_ResponseCode": "00"})

		first, err := f.svc.HandleIPN(ctx, gatewayIP, fields)
		require.NoError(t, err)
		second, err := f.svc.HandleIPN(ctx, gatewayIP, fields)
		require.NoError(t, err)

		require.Equal(t, AckConfirmSuccess, first)
		require.Equal(t, AckAlreadyConfirmed, second)
		require.Equal(t, 1, f.publisher.count())
	})

	t.Run("tampered signature", func(t *testing.T) {
		f := newWebhookFixture(t)
		fields := signedWeb(t, signature.Fields{"vnp_TxnRef": "INV", "vnp_Amount": "10000", "vnp_ResponseCode": "00"})
		fields["vnp_Amount"] = "1000000"

		ack, err := f.svc.HandleIPN(ctx, gatewayIP, fields)

		require.NoError(t, err)
		require.Equal(t, AckInvalidChecksum, ack)
		stored := f.stored(t)
		require.Equal(t, repository.StateError, stored.State)
		require.Equal(t, MsgInvalidSignature, stored.StateMessage)
	})

	t.Run("unknown reference", func(t *testing.T) {
		f := newWebhookFixture(t)
		fields := signedWeb(t, signature.Fields{"vnp_TxnRef": "OTHER", "vnp_Amount": "10000", "vnp_ResponseCode": "00"})

		ack, err := f.svc.HandleIPN(ctx, gatewayIP, fields)

		require.NoError(t, err)
		require.Equal(t, AckOrderNotFound, ack)
	})

	t.Run("missing reference", func(t *testing.T) {
		f := newWebhookFixture(t)

		ack, err := f.svc.HandleIPN(ctx, gatewayIP, signature.Fields{"vnp_Amount": "10000"})

		require.NoError(t, err)
		require.Equal(t, AckOrderNotFound, ack)
	})

	t.Run("amount mismatch", func(t *testing.T) {
		f := newWebhookFixture(t)
		fields := signedWeb(t, signature.Fields{"vnp_TxnRef": "INV", "vnp_Amount": "9900", "vnp_ResponseCode": "00"})

		ack, err := f.svc.HandleIPN(ctx, gatewayIP, fields)

		require.NoError(t, err)
		require.Equal(t, AckInvalidAmount, ack)
		stored := f.stored(t)
		require.Equal(t, repository.StateError, stored.State)
		require.Equal(t, MsgInvalidAmount, stored.StateMessage)
	})

	t.Run("customer cancelled", func(t *testing.T) {
		f := newWebhookFixture(t)
		fields := signedWeb(t, signature.Fields{"vnp_TxnRef": "INV", "vnp_Amount": "10000", "vnp_ResponseCode": "24"})

		ack, err := f.svc.HandleIPN(ctx, gatewayIP, fields)

		require.NoError(t, err)
		require.Equal(t, AckConfirmSuccess, ack)
		require.Equal(t, repository.StateCancelled, f.stored(t).State)
	})

	t.Run("failure response code", func(t *testing.T) {
		f := newWebhookFixture(t)
		fields := signedWeb(t, signature.Fields{"vnp_TxnRef": "INV", "vnp_Amount": "10000", "vnp_ResponseCode": "51"})

		ack, err := f.svc.HandleIPN(ctx, gatewayIP, fields)

		require.NoError(t, err)
		require.Equal(t, AckConfirmSuccess, ack)
		stored := f.stored(t)
		require.Equal(t, repository.StateError, stored.State)
		require.Equal(t, "Received data with invalid response code: 51", stored.StateMessage)
	})

	t.Run("provider not configured", func(t *testing.T) {
		f := newWebhookFixture(t)
		svc := NewWebhookService(f.transactions, provider.NewRegistry(), nil, zap.NewNop())

		ack, err := svc.HandleIPN(ctx, gatewayIP, signature.Fields{"vnp_TxnRef": "INV"})

		require.NoError(t, err)
		require.Equal(t, AckUnknownError, ack)
	})
}
