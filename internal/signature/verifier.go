package signature

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSignature HMAC подпись отсутствует или не совпала
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrChecksumMismatch позиционная контрольная сумма не совпала
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Algorithm алгоритм подписи шлюза
type Algorithm int

const (
	// HMACSHA512 HMAC-SHA512 над отсортированной query-строкой
	HMACSHA512 Algorithm = iota + 1
	// MD5Positional MD5 над значениями в фиксированном порядке, с секретом в конце
	MD5Positional
)

func (a Algorithm) String() string {
	switch a {
	case HMACSHA512:
		return "hmac-sha512"
	case MD5Positional:
		return "md5-positional"
	default:
		return fmt.Sprintf("algorithm(%d)", int(a))
	}
}

// Scheme описывает вариант подписи конкретного шлюза.
// Один и тот же Sign/Verify обслуживает все варианты, различие только в данных.
type Scheme struct {
	Name      string
	Algorithm Algorithm
	// KeyPrefix только для HMACSHA512: в подпись попадают ключи с этим префиксом
	KeyPrefix string
	// Fields только для MD5Positional: порядок полей
	Fields []string
	// SignatureField поле, в котором приходит подпись
	SignatureField string
	// StripFields дополнительные поля, которые никогда не подписываются (тип хеша и т.п.)
	StripFields []string
}

// Предопределённые схемы VNPay
var (
	// VNPayWeb подпись redirect-оплаты и IPN веб-канала
	VNPayWeb = Scheme{
		Name:           "vnpay",
		Algorithm:      HMACSHA512,
		KeyPrefix:      "vnp_",
		SignatureField: "vnp_SecureHash",
		StripFields:    []string{"vnp_SecureHashType"},
	}

	// VNPayQRCreate подпись запроса на создание QR
	VNPayQRCreate = Scheme{
		Name:      "vnpayqr.create",
		Algorithm: MD5Positional,
		Fields: []string{
			"appId", "merchantName", "serviceCode", "countryCode", "masterMerCode",
			"merchantType", "merchantCode", "terminalId", "payType", "productId",
			"txnId", "amount", "tipAndFee", "ccy", "expDate",
		},
		SignatureField: "checksum",
	}

	// VNPayQRCreateResponse подпись ответа провайдера на создание QR
	VNPayQRCreateResponse = Scheme{
		Name:           "vnpayqr.create_response",
		Algorithm:      MD5Positional,
		Fields:         []string{"code", "message", "data", "url"},
		SignatureField: "checksum",
	}

	// VNPayQRNotification подпись IPN об оплате по QR
	VNPayQRNotification = Scheme{
		Name:      "vnpayqr.ipn",
		Algorithm: MD5Positional,
		Fields: []string{
			"code", "msgType", "txnId", "qrTrace", "bankCode", "mobile",
			"accountNo", "amount", "payDate", "merchantCode",
		},
		SignatureField: "checksum",
	}
)

// Canonical возвращает строку, которая подаётся на вход хешу.
// Поле подписи и StripFields в неё никогда не попадают.
func (s Scheme) Canonical(fields Fields, secret string) (string, error) {
	payload := s.strip(fields)
	switch s.Algorithm {
	case HMACSHA512:
		return CanonicalQuery(payload, s.KeyPrefix), nil
	case MD5Positional:
		return Positional(payload, s.Fields, secret), nil
	default:
		return "", fmt.Errorf("unsupported signature algorithm: %s", s.Algorithm)
	}
}

// Sign вычисляет подпись в hex (нижний регистр)
func (s Scheme) Sign(fields Fields, secret string) (string, error) {
	canonical, err := s.Canonical(fields, secret)
	if err != nil {
		return "", err
	}
	switch s.Algorithm {
	case HMACSHA512:
		mac := hmac.New(sha512.New, []byte(secret))
		mac.Write([]byte(canonical))
		return hex.EncodeToString(mac.Sum(nil)), nil
	default:
		sum := md5.Sum([]byte(canonical))
		return hex.EncodeToString(sum[:]), nil
	}
}

// Verify берёт подпись из SignatureField и сверяет её с вычисленной
func (s Scheme) Verify(fields Fields, secret string) error {
	supplied := fields[s.SignatureField]
	return s.VerifySignature(fields, supplied, secret)
}

// VerifySignature сверяет переданную отдельно подпись.
// HMAC сравнивается точно, позиционная сумма без учёта регистра. Оба сравнения constant-time.
func (s Scheme) VerifySignature(fields Fields, supplied, secret string) error {
	switch s.Algorithm {
	case HMACSHA512:
		if supplied == "" || len(s.strip(fields)) == 0 {
			return ErrInvalidSignature
		}
		expected, err := s.Sign(fields, secret)
		if err != nil {
			return err
		}
		if !hmac.Equal([]byte(expected), []byte(supplied)) {
			return ErrInvalidSignature
		}
		return nil
	case MD5Positional:
		if supplied == "" {
			return ErrChecksumMismatch
		}
		expected, err := s.Sign(fields, secret)
		if err != nil {
			return err
		}
		// шлюз присылает сумму в любом регистре
		if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(supplied))) != 1 {
			return ErrChecksumMismatch
		}
		return nil
	default:
		return fmt.Errorf("unsupported signature algorithm: %s", s.Algorithm)
	}
}

func (s Scheme) strip(fields Fields) Fields {
	keys := append([]string{s.SignatureField}, s.StripFields...)
	return fields.Without(keys...)
}
