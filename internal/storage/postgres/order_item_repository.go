package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

const itemColumns = `id, order_id, product_id, quantity, price, created_at, updated_at`

type orderItemRepository struct {
	db dbtx
}

func (r *orderItemRepository) Create(ctx context.Context, item domain.OrderItem) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO order_items (`+itemColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if mapped := translateWriteError(err, domain.EntityOrderItem); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func (r *orderItemRepository) Get(ctx context.Context, id string) (domain.OrderItem, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM order_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OrderItem{}, domain.NewNotFound(domain.EntityOrderItem, id)
		}
		return domain.OrderItem{}, fmt.Errorf("select order item: %w", err)
	}
	return item, nil
}

func (r *orderItemRepository) Update(ctx context.Context, item domain.OrderItem) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE order_items
		SET order_id = $1,
		    product_id = $2,
		    quantity = $3,
		    price = $4,
		    updated_at = $5
		WHERE id = $6
	`, item.OrderID, item.ProductID, item.Quantity, item.Price, item.UpdatedAt, item.ID)
	if err != nil {
		if mapped := translateWriteError(err, domain.EntityOrderItem); mapped != nil {
			return mapped
		}
		return fmt.Errorf("update order item: %w", err)
	}
	return expectAffected(res, domain.EntityOrderItem, item.ID)
}

// ListByOrder возвращает позиции заказа в порядке добавления.
func (r *orderItemRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func (r *orderItemRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM order_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order item: %w", err)
	}
	return expectAffected(res, domain.EntityOrderItem, id)
}

func (r *orderItemRepository) DeleteByOrder(ctx context.Context, orderID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return 0, fmt.Errorf("delete order items: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func scanItem(row rowScanner) (domain.OrderItem, error) {
	var item domain.OrderItem
	if err := row.Scan(
		&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return domain.OrderItem{}, err
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
}

var _ domain.OrderItemRepository = (*orderItemRepository)(nil)
