package domain

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// CheckoutAttemptStatus описывает жизненный цикл попытки оформления по Idempotency-Key.
type CheckoutAttemptStatus string

const (
	// CheckoutAttemptProcessing: оформление запущено и ещё не завершено.
	CheckoutAttemptProcessing CheckoutAttemptStatus = "processing"
	// CheckoutAttemptPlaced: заказ создан, сохранён ответ 2xx.
	CheckoutAttemptPlaced CheckoutAttemptStatus = "placed"
	// CheckoutAttemptRejected: окончательный отказ 4xx (пустая корзина, нет остатка, корзина сверена).
	CheckoutAttemptRejected CheckoutAttemptStatus = "rejected"
)

var (
	// ErrIdempotencyKeyRequired: пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyBuyerRequired: ключ не привязан к покупателю.
	ErrIdempotencyBuyerRequired = errors.New("idempotency key owner is required")
	// ErrIdempotencyRequestHashRequired: не передан хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists: ключ уже использован тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch: ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound: попытка по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyInProgress: оформление с тем же ключом ещё выполняется.
	ErrIdempotencyInProgress = errors.New("request with the same idempotency key is already processing")
	// ErrIdempotencyTransientOutcome: ответ 5xx не сохраняется, ключ нужно освободить.
	ErrIdempotencyTransientOutcome = errors.New("transient checkout outcome cannot be stored")
)

// CheckoutKey адресует попытку оформления. Ключ уникален в пределах покупателя,
// одинаковые Idempotency-Key разных покупателей не пересекаются.
type CheckoutKey struct {
	BuyerID string
	Key     string
}

// Normalize обрезает пробелы вокруг частей ключа.
func (k CheckoutKey) Normalize() CheckoutKey {
	return CheckoutKey{BuyerID: strings.TrimSpace(k.BuyerID), Key: strings.TrimSpace(k.Key)}
}

// Validate проверяет, что ключ можно сохранить.
func (k CheckoutKey) Validate() error {
	switch {
	case strings.TrimSpace(k.Key) == "":
		return ErrIdempotencyKeyRequired
	case strings.TrimSpace(k.BuyerID) == "":
		return ErrIdempotencyBuyerRequired
	}
	return nil
}

func (k CheckoutKey) String() string {
	return k.BuyerID + "/" + k.Key
}

// CheckoutAttempt хранит состояние оформления по ключу и итоговый ответ для повторов.
type CheckoutAttempt struct {
	BuyerID      string
	Key          string
	RequestHash  string
	Status       CheckoutAttemptStatus
	OrderID      string
	HTTPStatus   int
	ResponseBody []byte
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CheckoutKey возвращает адрес попытки.
func (a CheckoutAttempt) CheckoutKey() CheckoutKey {
	return CheckoutKey{BuyerID: a.BuyerID, Key: a.Key}
}

// Finished сообщает, что у попытки есть сохранённый ответ.
func (a CheckoutAttempt) Finished() bool {
	return a.Status == CheckoutAttemptPlaced || a.Status == CheckoutAttemptRejected
}

// CheckoutOutcome: итог оформления, который сохраняется для повторов.
type CheckoutOutcome struct {
	HTTPStatus int
	Body       []byte
	OrderID    string
}

// Status переводит HTTP-статус в статус попытки. 5xx сохранять нельзя.
func (o CheckoutOutcome) Status() (CheckoutAttemptStatus, error) {
	switch {
	case o.HTTPStatus >= http.StatusInternalServerError || o.HTTPStatus <= 0:
		return "", ErrIdempotencyTransientOutcome
	case o.HTTPStatus >= http.StatusBadRequest:
		return CheckoutAttemptRejected, nil
	default:
		return CheckoutAttemptPlaced, nil
	}
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s CheckoutAttemptStatus) Valid() bool {
	switch s {
	case CheckoutAttemptProcessing, CheckoutAttemptPlaced, CheckoutAttemptRejected:
		return true
	default:
		return false
	}
}
