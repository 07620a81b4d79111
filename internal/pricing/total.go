// Package pricing считает сумму заказа по снимкам цен позиций.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// Line - минимальные данные позиции, нужные для расчёта.
type Line struct {
	Price    decimal.Decimal
	Quantity int
}

// ComputeTotal возвращает Σ price×quantity. Пустой список даёт ноль.
// Отрицательная цена или quantity < 1 считаются некорректным вводом.
func ComputeTotal(lines []Line) (decimal.Decimal, error) {
	total := decimal.Zero
	for idx, line := range lines {
		if line.Quantity < 1 {
			return decimal.Zero, domain.NewValidation("quantity", lineReason(idx, "must be at least 1"))
		}
		if line.Price.IsNegative() {
			return decimal.Zero, domain.NewValidation("price", lineReason(idx, "must be non-negative"))
		}
		total = total.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total, nil
}

// LinesFromItems переводит позиции заказа в строки расчёта.
func LinesFromItems(items []domain.OrderItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{Price: item.Price, Quantity: item.Quantity})
	}
	return lines
}

func lineReason(idx int, reason string) string {
	return fmt.Sprintf("line %d %s", idx, reason)
}
