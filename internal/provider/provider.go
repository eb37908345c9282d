// Package provider хранит неизменяемые настройки платёжных шлюзов: секреты, разрешённые адреса, URL.
package provider

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Коды шлюзов
const (
	CodeVNPay   = "vnpay"
	CodeVNPayQR = "vnpayqr"
)

// Имена URL в Provider.Endpoints
const (
	EndpointPayment  = "payment"
	EndpointQRCreate = "qr_create"
)

// ErrUnknownProvider шлюз с таким кодом не настроен
var ErrUnknownProvider = errors.New("unknown provider")

// Provider настройки одного шлюза
type Provider struct {
	Code             string
	Secret           string
	AllowedAddresses []string
	Endpoints        map[string]string
}

// Allows проверяет адрес отправителя уведомления.
// Пустой список означает, что ограничение не настроено.
func (p Provider) Allows(addr string) bool {
	if len(p.AllowedAddresses) == 0 {
		return true
	}
	ip := net.ParseIP(addr)
	for _, allowed := range p.AllowedAddresses {
		if allowed == addr {
			return true
		}
		if ip != nil {
			if a := net.ParseIP(allowed); a != nil && a.Equal(ip) {
				return true
			}
		}
	}
	return false
}

// Registry неизменяемый справочник шлюзов по коду
type Registry struct {
	providers map[string]Provider
}

// NewRegistry создаёт справочник. Списки копируются, чтобы вызывающий не мог их поменять.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		cp := p
		cp.AllowedAddresses = append([]string(nil), p.AllowedAddresses...)
		cp.Endpoints = make(map[string]string, len(p.Endpoints))
		for k, v := range p.Endpoints {
			cp.Endpoints[k] = v
		}
		r.providers[p.Code] = cp
	}
	return r
}

// Get возвращает настройки шлюза
func (r *Registry) Get(code string) (Provider, error) {
	p, ok := r.providers[code]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %s", ErrUnknownProvider, code)
	}
	return p, nil
}

// Secret возвращает общий секрет шлюза
func (r *Registry) Secret(code string) ([]byte, error) {
	p, err := r.Get(code)
	if err != nil {
		return nil, err
	}
	return []byte(p.Secret), nil
}

// AllowedAddresses возвращает разрешённые адреса отправителей уведомлений
func (r *Registry) AllowedAddresses(code string) ([]string, error) {
	p, err := r.Get(code)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), p.AllowedAddresses...), nil
}

// Endpoints возвращает URL шлюза
func (r *Registry) Endpoints(code string) (map[string]string, error) {
	p, err := r.Get(code)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(p.Endpoints))
	for k, v := range p.Endpoints {
		out[k] = v
	}
	return out, nil
}

// ParseAddressList разбирает список адресов через ";" (пробелы игнорируются)
func ParseAddressList(raw string) []string {
	raw = strings.ReplaceAll(raw, " ", "")
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ";") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
