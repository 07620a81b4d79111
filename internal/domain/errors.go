package domain

import (
	"errors"
	"fmt"
)

// ErrorKind - дискриминант ошибки, по которому транспорт выбирает код ответа.
type ErrorKind string

const (
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindValidation ErrorKind = "validation_failed"
	KindInternal   ErrorKind = "internal"
)

// Сущности, на которые ссылаются ошибки NotFound/Conflict.
const (
	EntityOrder     = "order"
	EntityOrderItem = "order item"
	EntityProduct   = "product"
	EntityCompany   = "company"
	EntityUser      = "user"
	EntityCategory  = "category"
)

var (
	// ErrNotFound - базовая ошибка отсутствующей сущности.
	ErrNotFound = errors.New("not found")
	// ErrConflict - нарушение ограничения уникальности или ссылочной целостности.
	ErrConflict = errors.New("conflict")
	// ErrValidation - некорректные входные данные.
	ErrValidation = errors.New("validation failed")
	// ErrInternal - сбой хранилища или транспорта, детали наружу не отдаются.
	ErrInternal = errors.New("internal error")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = NewNotFound(EntityOrder, "")
	// ErrOrderExists сигнализирует о повторной вставке заказа с тем же ID.
	ErrOrderExists = NewConflict(EntityOrder, "order already exists")
	// ErrOutboxMessageNotFound - relay пытается закрыть событие, которого нет в outbox.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")

	// Ошибки idempotency-слоя.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different payload")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// NotFoundError описывает отсутствующую сущность.
type NotFoundError struct {
	Entity string
	ID     string
}

// NewNotFound создаёт ошибку NotFound(entity).
func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return e.Entity + " not found"
}

// Is позволяет сравнивать через errors.Is как с ErrNotFound,
// так и с другим NotFoundError той же сущности.
func (e *NotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	var other *NotFoundError
	if errors.As(target, &other) {
		return other.Entity == e.Entity
	}
	return false
}

// ConflictError описывает нарушение уникальности.
type ConflictError struct {
	Entity string
	Reason string
}

// NewConflict создаёт ошибку Conflict.
func NewConflict(entity, reason string) *ConflictError {
	return &ConflictError{Entity: entity, Reason: reason}
}

func (e *ConflictError) Error() string {
	if e.Reason == "" {
		return e.Entity + " conflict"
	}
	return e.Reason
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ValidationError описывает некорректное поле запроса.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidation создаёт ошибку ValidationFailure.
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InternalError оборачивает инфраструктурный сбой.
// Error() не раскрывает причину: она доступна через Unwrap и в логах.
type InternalError struct {
	Op  string
	Err error
}

// Internal оборачивает err в InternalError, не трогая уже типизированные ошибки.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	switch KindOf(err) {
	case KindNotFound, KindConflict, KindValidation:
		return err
	}
	var internal *InternalError
	if errors.As(err, &internal) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

func (e *InternalError) Error() string {
	return "internal error"
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func (e *InternalError) Is(target error) bool {
	return target == ErrInternal
}

// KindOf возвращает вид ошибки. Всё, что не распознано, считается внутренней ошибкой.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindInternal
	}
}

// IsNotFound проверяет, относится ли ошибка к NotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// NotFoundEntity возвращает сущность из NotFoundError или пустую строку.
func NotFoundEntity(err error) string {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Entity
	}
	return ""
}

// IsIdempotencyConflict проверяет, что ключ уже использован (тем же или другим запросом).
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
