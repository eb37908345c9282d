package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Check проверка одной зависимости (postgres, redis...). nil означает "готово".
type Check func(ctx context.Context) error

// Handler возвращает HTTP handler для health check endpoint.
// 200 {"status":"ok"} если readiness не указана или вернула true,
// 503 {"status":"not ready"} если readiness вернула false.
func Handler(readiness func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if readiness != nil && !readiness() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// Readiness собирает именованные проверки в одну функцию для Handler.
// Каждая проверка получает свой таймаут, первая неуспешная делает сервис неготовым.
func Readiness(timeout time.Duration, checks map[string]Check) func() bool {
	return func() bool {
		for _, check := range checks {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			err := check(ctx)
			cancel()
			if err != nil {
				return false
			}
		}
		return true
	}
}
