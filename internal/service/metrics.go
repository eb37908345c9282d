package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Каналы уведомлений для метрик
const (
	ChannelWeb = "web"
	ChannelQR  = "qr"
)

// Metrics OTel инструменты сервиса (meter "vnpay")
type Metrics struct {
	notifications metric.Int64Counter
	duration      metric.Float64Histogram
	qrSessions    metric.Int64Counter
}

// NewMetrics создаёт инструменты на глобальном MeterProvider.
// До observability.Init глобальный provider отдаёт no-op инструменты.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("vnpay")

	notifications, err := meter.Int64Counter("vnpay_notifications_total",
		metric.WithDescription("Processed gateway notifications by channel and acknowledgment code"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("vnpay_notification_duration_seconds",
		metric.WithDescription("Notification handling latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	qrSessions, err := meter.Int64Counter("vnpay_qr_sessions_total",
		metric.WithDescription("QR session creation attempts by result"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		notifications: notifications,
		duration:      duration,
		qrSessions:    qrSessions,
	}, nil
}

// NotificationHandled фиксирует код ответа и время обработки. nil Metrics допустим.
func (m *Metrics) NotificationHandled(ctx context.Context, channel, code string, started time.Time) {
	if m == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("code", code),
	))
	m.duration.Record(ctx, time.Since(started).Seconds(), metric.WithAttributes(
		attribute.String("channel", channel),
	))
}

// QRSessionCreated фиксирует результат выпуска QR (ok/failed)
func (m *Metrics) QRSessionCreated(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.qrSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
