package order

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// itemStore создаёт и меняет позиции, фиксируя цену товара на момент вызова.
// Живёт в пределах одной транзакции.
type itemStore struct {
	items  domain.OrderItemRepository
	prices domain.PriceLookup
	base   time.Time
	seq    int
}

func newItemStore(items domain.OrderItemRepository, prices domain.PriceLookup, now time.Time) *itemStore {
	return &itemStore{items: items, prices: prices, base: now}
}

// stamp выдаёт строго возрастающие метки, чтобы порядок позиций
// в ListByOrder совпадал с порядком запроса.
func (s *itemStore) stamp() time.Time {
	t := s.base.Add(time.Duration(s.seq) * time.Microsecond)
	s.seq++
	return t
}

// create добавляет позицию. Если товара нет, ничего не сохраняется.
func (s *itemStore) create(ctx context.Context, orderID, productID string, quantity int) (domain.OrderItem, error) {
	price, err := s.prices.GetPrice(ctx, productID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	now := s.stamp()
	item := domain.OrderItem{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  quantity,
		Price:     price,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.items.Create(ctx, item); err != nil {
		return domain.OrderItem{}, err
	}
	return item, nil
}

// update перезаписывает товар и количество и заново фиксирует цену.
// Позиция другого заказа считается отсутствующей.
func (s *itemStore) update(ctx context.Context, orderID, itemID, productID string, quantity int) (domain.OrderItem, error) {
	item, err := s.get(ctx, orderID, itemID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	price, err := s.prices.GetPrice(ctx, productID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	item.ProductID = productID
	item.Quantity = quantity
	item.Price = price
	item.UpdatedAt = s.base
	if err := s.items.Update(ctx, item); err != nil {
		return domain.OrderItem{}, err
	}
	return item, nil
}

func (s *itemStore) get(ctx context.Context, orderID, itemID string) (domain.OrderItem, error) {
	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	if item.OrderID != orderID {
		return domain.OrderItem{}, domain.NewNotFound(domain.EntityOrderItem, itemID)
	}
	return item, nil
}

func (s *itemStore) deleteAll(ctx context.Context, orderID string) (int, error) {
	return s.items.DeleteByOrder(ctx, orderID)
}
