package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// Имена ограничений из sql/migrations. По ним ошибка драйвера
// превращается в доменную NotFound/Conflict.
const (
	constraintCompanyEmail       = "companies_email_key"
	constraintUserEmail          = "users_email_key"
	constraintProductCompanyName = "products_company_name_key"

	constraintCategoryCompany = "categories_company_id_fkey"
	constraintUserCompany     = "users_company_id_fkey"
	constraintProductCompany  = "products_company_id_fkey"
	constraintProductCategory = "products_category_id_fkey"
	constraintOrderCompany    = "orders_company_id_fkey"
	constraintOrderUser       = "orders_user_id_fkey"
	constraintItemOrder       = "order_items_order_id_fkey"
	constraintItemProduct     = "order_items_product_id_fkey"
)

// referencedEntity - на какую сущность указывает внешний ключ.
var referencedEntity = map[string]string{
	constraintCategoryCompany: domain.EntityCompany,
	constraintUserCompany:     domain.EntityCompany,
	constraintProductCompany:  domain.EntityCompany,
	constraintProductCategory: domain.EntityCategory,
	constraintOrderCompany:    domain.EntityCompany,
	constraintOrderUser:       domain.EntityUser,
	constraintItemOrder:       domain.EntityOrder,
	constraintItemProduct:     domain.EntityProduct,
}

var uniqueReason = map[string]string{
	constraintCompanyEmail:       "company email is already used",
	constraintUserEmail:          "user email is already used",
	constraintProductCompanyName: "product name is already used in this company",
}

func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == pgUniqueViolation
}

// isRetryable сообщает, что транзакцию можно безопасно повторить целиком.
func isRetryable(err error) bool {
	pgErr, ok := pgError(err)
	if !ok {
		return false
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return true
	default:
		return false
	}
}

// translateWriteError переводит нарушения ограничений при INSERT/UPDATE.
// Несуществующая ссылка даёт NotFound(сущность-родитель), дубль ключа даёт Conflict.
func translateWriteError(err error, entity string) error {
	pgErr, ok := pgError(err)
	if !ok {
		return nil
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		if reason, known := uniqueReason[pgErr.ConstraintName]; known {
			return domain.NewConflict(entity, reason)
		}
		return domain.NewConflict(entity, entity+" already exists")
	case pgForeignKeyViolation:
		if parent, known := referencedEntity[pgErr.ConstraintName]; known {
			return domain.NewNotFound(parent, "")
		}
	}
	return nil
}

// translateDeleteError переводит попытку удалить строку, на которую ещё ссылаются.
func translateDeleteError(err error, entity, reason string) error {
	pgErr, ok := pgError(err)
	if ok && pgErr.Code == pgForeignKeyViolation {
		return domain.NewConflict(entity, reason)
	}
	return nil
}
