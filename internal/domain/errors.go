package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: запрошенный товар, заказ или позиция не существует.
	ErrNotFound = errors.New("not found")
	// ErrOutOfStock: товара нет в наличии, добавить в корзину нельзя.
	ErrOutOfStock = errors.New("product is out of stock")
	// ErrStockExceeded: запрошенное количество в корзине больше текущего остатка.
	ErrStockExceeded = errors.New("requested quantity exceeds available stock")
	// ErrInsufficientStock: при оформлении заказа остатка не хватило.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrProductUnavailable: товар исчез из каталога к моменту оформления заказа.
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrProductGone: товар исчез из каталога, позиция удалена из корзины (мягкий успех).
	ErrProductGone = errors.New("product no longer available or was removed from inventory")
	// ErrSessionExpired: сессия не открыта или уже завершена, корзины нет.
	ErrSessionExpired = errors.New("session expired or was never opened")
	// ErrForbidden: у актора нет прав на объект.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidStatus: неизвестное значение статуса позиции.
	ErrInvalidStatus = errors.New("invalid status value")
	// ErrInvalidTransition: переход между статусами позиции не разрешён.
	ErrInvalidTransition = errors.New("status transition is not allowed")
	// ErrValidation: входные данные не прошли проверку.
	ErrValidation = errors.New("validation error")
	// ErrCartEmpty: попытка оформить пустую корзину.
	ErrCartEmpty = fmt.Errorf("%w: cart is empty", ErrValidation)
	// ErrAlreadyExists: запись с таким идентификатором уже существует.
	ErrAlreadyExists = errors.New("already exists")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// StockExceededError описывает отказ изменить корзину сверх текущего остатка.
type StockExceededError struct {
	ProductID string
	Name      string
	Available int
}

func (e *StockExceededError) Error() string {
	return fmt.Sprintf("Only %d items available for %s", e.Available, e.Name)
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrStockExceeded).
func (e *StockExceededError) Unwrap() error { return ErrStockExceeded }

// InsufficientStockError описывает позицию, для которой не хватило остатка при оформлении.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Not enough stock for %s. Available: %d", e.Name, e.Available)
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ProductUnavailableError описывает товар, пропавший из каталога к моменту оформления.
type ProductUnavailableError struct {
	ProductID string
	Name      string
}

func (e *ProductUnavailableError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("Product %s not found in inventory", name)
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrProductUnavailable).
func (e *ProductUnavailableError) Unwrap() error { return ErrProductUnavailable }

// ValidationError описывает некорректное поле запроса.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError создаёт ошибку валидации поля.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsNotFound проверяет, что ошибка означает отсутствие объекта.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
