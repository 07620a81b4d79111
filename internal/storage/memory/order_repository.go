package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// orderRepository - in-memory реализация OrderRepository поверх dataset.
type orderRepository struct {
	acc accessor
}

// Create сохраняет новый заголовок, если ID свободен и ссылки на company/user существуют.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		if _, exists := d.orders[order.ID]; exists {
			return domain.ErrOrderExists
		}
		if err := checkOrderRefs(d, order); err != nil {
			return err
		}
		d.orders[order.ID] = order
		return nil
	})
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	var order domain.Order
	err := r.acc.read(func(d *dataset) error {
		stored, ok := d.orders[id]
		if !ok {
			return domain.NewNotFound(domain.EntityOrder, id)
		}
		order = stored
		return nil
	})
	return order, err
}

// GetForUpdate в памяти совпадает с Get: транзакции и так сериализованы.
func (r *orderRepository) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.Get(ctx, id)
}

// List возвращает все заказы, новые первыми.
func (r *orderRepository) List(ctx context.Context) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result []domain.Order
	err := r.acc.read(func(d *dataset) error {
		result = make([]domain.Order, 0, len(d.orders))
		for _, order := range d.orders {
			result = append(result, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// Update перезаписывает скалярные поля, сохраняя сумму и дату создания.
func (r *orderRepository) Update(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		current, ok := d.orders[order.ID]
		if !ok {
			return domain.NewNotFound(domain.EntityOrder, order.ID)
		}
		if err := checkOrderRefs(d, order); err != nil {
			return err
		}
		order.TotalAmount = current.TotalAmount
		order.CreatedAt = current.CreatedAt
		d.orders[order.ID] = order
		return nil
	})
}

// UpdateTotal сохраняет пересчитанную сумму заказа.
func (r *orderRepository) UpdateTotal(ctx context.Context, id string, total decimal.Decimal, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		order, ok := d.orders[id]
		if !ok {
			return domain.NewNotFound(domain.EntityOrder, id)
		}
		order.TotalAmount = total
		order.UpdatedAt = updatedAt
		d.orders[id] = order
		return nil
	})
}

// Delete удаляет заголовок. Как и внешний ключ в Postgres, не даёт удалить заказ с позициями.
func (r *orderRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		if _, ok := d.orders[id]; !ok {
			return domain.NewNotFound(domain.EntityOrder, id)
		}
		for _, item := range d.items {
			if item.OrderID == id {
				return domain.NewConflict(domain.EntityOrder, "order still has items")
			}
		}
		delete(d.orders, id)
		return nil
	})
}

func checkOrderRefs(d *dataset, order domain.Order) error {
	if _, ok := d.companies[order.CompanyID]; !ok {
		return domain.NewNotFound(domain.EntityCompany, order.CompanyID)
	}
	if _, ok := d.users[order.UserID]; !ok {
		return domain.NewNotFound(domain.EntityUser, order.UserID)
	}
	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
