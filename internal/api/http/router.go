package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	platformhealth "github.com/shestoi/vnpay-gateway/platform/health/http"
	platformobservability "github.com/shestoi/vnpay-gateway/platform/observability"
)

// RouterConfig настройки роутера
type RouterConfig struct {
	// TrustProxyHeaders брать адрес клиента из X-Forwarded-For / X-Real-IP.
	// Включать только за доверенным прокси: от адреса зависит проверка источника IPN.
	TrustProxyHeaders bool
	// CORSAllowedOrigins origins кассовых фронтендов для /pos/*
	CORSAllowedOrigins []string
}

// NewRouter создаёт HTTP роутер шлюза.
// readiness - функция для проверки готовности сервиса (БД, Redis).
func NewRouter(handler *Handler, cfg RouterConfig, readiness func() bool, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if cfg.TrustProxyHeaders {
		router.Use(middleware.RealIP)
	}
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	// Observability: span на каждый запрос, logger с trace_id в контексте
	if logger != nil {
		router.Use(platformobservability.HTTPMiddleware("vnpay", logger))
	}

	router.Route("/payment", func(r chi.Router) {
		r.Post("/vnpay/checkout", handler.PostCheckout)
		r.Get("/vnpay/webhook", handler.GetWebhook)
		r.Get("/vnpay/return", handler.GetReturn)
		r.Get("/status", handler.GetStatus)
		r.Get("/transactions/{reference}", func(w http.ResponseWriter, r *http.Request) {
			handler.GetTransaction(w, r, chi.URLParam(r, "reference"))
		})
	})

	router.Route("/pos/vnpay", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
		r.Post("/qr", handler.PostQR)
		r.Post("/ipn", handler.PostQRIPN)
	})

	router.Get("/health", platformhealth.Handler(readiness))

	return router
}
