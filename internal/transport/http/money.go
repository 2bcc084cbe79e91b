package httptransport

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// minorExp: число знаков после запятой в денежных суммах.
const minorExp = 2

// formatMinor переводит сумму в минимальных единицах в строку вида "130.00".
func formatMinor(minor int64) string {
	return decimal.New(minor, -minorExp).StringFixed(minorExp)
}

// parsePrice переводит цену из запроса в минимальные единицы.
// Больше двух знаков после запятой и отрицательные значения отклоняются.
func parsePrice(field string, price decimal.Decimal) (int64, error) {
	if price.IsNegative() {
		return 0, domain.NewValidationError(field, "must be non-negative")
	}
	shifted := price.Shift(minorExp)
	if !shifted.IsInteger() {
		return 0, domain.NewValidationError(field, "must have at most two decimal places")
	}
	if !shifted.BigInt().IsInt64() {
		return 0, domain.NewValidationError(field, "is too large")
	}
	return shifted.IntPart(), nil
}
