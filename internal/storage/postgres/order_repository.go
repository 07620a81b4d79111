package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

const orderColumns = `
	id, client, status, payment_status, payment_method, notes,
	total_amount, company_id, user_id, created_at, updated_at`

type orderRepository struct {
	db dbtx
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		order.ID, order.Client, string(order.Status), string(order.PaymentStatus),
		paymentMethodArg(order.PaymentMethod), order.Notes, order.TotalAmount,
		order.CompanyID, order.UserID, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderExists
		}
		if mapped := translateWriteError(err, domain.EntityOrder); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate блокирует строку заказа до конца транзакции,
// сериализуя конкурентные изменения одного агрегата.
func (r *orderRepository) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *orderRepository) get(ctx context.Context, id, suffix string) (domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`+suffix, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.NewNotFound(domain.EntityOrder, id)
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

// List возвращает все заказы, новые первыми.
func (r *orderRepository) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) Update(ctx context.Context, order domain.Order) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET client = $1,
		    status = $2,
		    payment_status = $3,
		    payment_method = $4,
		    notes = $5,
		    company_id = $6,
		    user_id = $7,
		    updated_at = $8
		WHERE id = $9
	`,
		order.Client, string(order.Status), string(order.PaymentStatus),
		paymentMethodArg(order.PaymentMethod), order.Notes,
		order.CompanyID, order.UserID, order.UpdatedAt, order.ID,
	)
	if err != nil {
		if mapped := translateWriteError(err, domain.EntityOrder); mapped != nil {
			return mapped
		}
		return fmt.Errorf("update order: %w", err)
	}
	return expectAffected(res, domain.EntityOrder, order.ID)
}

func (r *orderRepository) UpdateTotal(ctx context.Context, id string, total decimal.Decimal, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET total_amount = $1, updated_at = $2 WHERE id = $3
	`, total, updatedAt, id)
	if err != nil {
		return fmt.Errorf("update order total: %w", err)
	}
	return expectAffected(res, domain.EntityOrder, id)
}

func (r *orderRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		if mapped := translateDeleteError(err, domain.EntityOrder, "order still has items"); mapped != nil {
			return mapped
		}
		return fmt.Errorf("delete order: %w", err)
	}
	return expectAffected(res, domain.EntityOrder, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order         domain.Order
		status        string
		paymentStatus string
		paymentMethod sql.NullString
		notes         sql.NullString
	)
	if err := row.Scan(
		&order.ID, &order.Client, &status, &paymentStatus, &paymentMethod, &notes,
		&order.TotalAmount, &order.CompanyID, &order.UserID, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	if paymentMethod.Valid {
		method := domain.PaymentMethod(paymentMethod.String)
		order.PaymentMethod = &method
	}
	order.Notes = stringPtr(notes)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func paymentMethodArg(method *domain.PaymentMethod) any {
	if method == nil {
		return nil
	}
	return string(*method)
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

// expectAffected превращает UPDATE/DELETE без затронутых строк в NotFound.
func expectAffected(res sql.Result, entity, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFound(entity, id)
	}
	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
