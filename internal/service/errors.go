package service

import (
	"errors"
	"fmt"
)

// Ошибки сверки уведомлений. HTTP слой превращает их в коды ответа шлюзу.
var (
	ErrUnauthorizedSource  = errors.New("notification from unauthorized source")
	ErrMissingAmount       = errors.New("notification amount is missing")
	ErrAmountMismatch      = errors.New("notification amount does not match transaction")
	ErrUnknownReference    = errors.New("unknown transaction reference")
	ErrAlreadyProcessed    = errors.New("transaction already processed")
	ErrExpiredSession      = errors.New("qr session expired")
	ErrUpstreamUnavailable = errors.New("qr provider unavailable")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// ValidationError некорректные входные данные
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}
