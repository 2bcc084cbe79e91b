package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsUnwrap(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		text   string
	}{
		{
			name:   "insufficient stock",
			err:    &InsufficientStockError{ProductID: "p-1", Name: "Tomatoes", Requested: 3, Available: 1},
			target: ErrInsufficientStock,
			text:   "Not enough stock for Tomatoes. Available: 1",
		},
		{
			name:   "product unavailable",
			err:    &ProductUnavailableError{ProductID: "p-2", Name: "Onions"},
			target: ErrProductUnavailable,
			text:   "Product Onions not found in inventory",
		},
		{
			name:   "product unavailable without name",
			err:    &ProductUnavailableError{ProductID: "p-3"},
			target: ErrProductUnavailable,
			text:   "Product p-3 not found in inventory",
		},
		{
			name:   "stock exceeded",
			err:    &StockExceededError{ProductID: "p-4", Name: "Chillies", Available: 2},
			target: ErrStockExceeded,
			text:   "Only 2 items available for Chillies",
		},
		{
			name:   "validation",
			err:    NewValidationError("delivery_phone", "is required"),
			target: ErrValidation,
			text:   "delivery_phone: is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("place order: %w", tt.err)
			if !errors.Is(wrapped, tt.target) {
				t.Fatalf("errors.Is(%v, %v) = false", wrapped, tt.target)
			}
			if tt.err.Error() != tt.text {
				t.Fatalf("Error() = %q, want %q", tt.err.Error(), tt.text)
			}
		})
	}
}

func TestCartEmptyIsValidation(t *testing.T) {
	if !errors.Is(ErrCartEmpty, ErrValidation) {
		t.Fatal("ErrCartEmpty must wrap ErrValidation")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("get order: %w", ErrNotFound)) {
		t.Fatal("wrapped ErrNotFound must be detected")
	}
	if IsNotFound(ErrForbidden) {
		t.Fatal("ErrForbidden is not ErrNotFound")
	}
	if IsNotFound(nil) {
		t.Fatal("nil is not ErrNotFound")
	}
}
