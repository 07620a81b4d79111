package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

type orderItemRepository struct {
	acc accessor
}

func (r *orderItemRepository) Create(ctx context.Context, item domain.OrderItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		if _, exists := d.items[item.ID]; exists {
			return domain.NewConflict(domain.EntityOrderItem, "order item already exists")
		}
		if err := checkItemRefs(d, item); err != nil {
			return err
		}
		d.items[item.ID] = item
		return nil
	})
}

func (r *orderItemRepository) Get(ctx context.Context, id string) (domain.OrderItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderItem{}, err
	}
	var item domain.OrderItem
	err := r.acc.read(func(d *dataset) error {
		stored, ok := d.items[id]
		if !ok {
			return domain.NewNotFound(domain.EntityOrderItem, id)
		}
		item = stored
		return nil
	})
	return item, err
}

func (r *orderItemRepository) Update(ctx context.Context, item domain.OrderItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		current, ok := d.items[item.ID]
		if !ok {
			return domain.NewNotFound(domain.EntityOrderItem, item.ID)
		}
		if err := checkItemRefs(d, item); err != nil {
			return err
		}
		item.CreatedAt = current.CreatedAt
		d.items[item.ID] = item
		return nil
	})
}

// ListByOrder возвращает позиции заказа в порядке добавления.
func (r *orderItemRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result []domain.OrderItem
	err := r.acc.read(func(d *dataset) error {
		result = make([]domain.OrderItem, 0)
		for _, item := range d.items {
			if item.OrderID == orderID {
				result = append(result, item)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *orderItemRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		if _, ok := d.items[id]; !ok {
			return domain.NewNotFound(domain.EntityOrderItem, id)
		}
		delete(d.items, id)
		return nil
	})
}

// DeleteByOrder удаляет все позиции заказа и возвращает их количество.
func (r *orderItemRepository) DeleteByOrder(ctx context.Context, orderID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	removed := 0
	err := r.acc.write(func(d *dataset) error {
		for id, item := range d.items {
			if item.OrderID == orderID {
				delete(d.items, id)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

func checkItemRefs(d *dataset, item domain.OrderItem) error {
	if _, ok := d.orders[item.OrderID]; !ok {
		return domain.NewNotFound(domain.EntityOrder, item.OrderID)
	}
	if _, ok := d.products[item.ProductID]; !ok {
		return domain.NewNotFound(domain.EntityProduct, item.ProductID)
	}
	return nil
}

var _ domain.OrderItemRepository = (*orderItemRepository)(nil)
