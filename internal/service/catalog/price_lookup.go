package catalog

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// PriceLookup отдаёт текущую цену товара из ProductRepository.
type PriceLookup struct {
	products domain.ProductRepository
}

// NewPriceLookup создаёт адаптер domain.PriceLookup.
func NewPriceLookup(products domain.ProductRepository) *PriceLookup {
	return &PriceLookup{products: products}
}

// GetPrice возвращает цену или NotFound(product).
func (l *PriceLookup) GetPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	product, err := l.products.Get(ctx, productID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return product.Price, nil
}

var _ domain.PriceLookup = (*PriceLookup)(nil)
