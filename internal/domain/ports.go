package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceLookup возвращает текущую цену товара или NotFound(product).
type PriceLookup interface {
	GetPrice(ctx context.Context, productID string) (decimal.Decimal, error)
}

// OrderRepository хранит заголовки заказов.
type OrderRepository interface {
	// Create сохраняет заголовок. NotFound(company|user), если ссылки не существуют.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// GetForUpdate как Get, но блокирует строку до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (Order, error)
	// List возвращает все заказы, новые первыми.
	List(ctx context.Context) ([]Order, error)
	// Update перезаписывает скалярные поля заголовка.
	Update(ctx context.Context, order Order) error
	// UpdateTotal сохраняет пересчитанную сумму.
	UpdateTotal(ctx context.Context, id string, total decimal.Decimal, updatedAt time.Time) error
	// Delete удаляет заголовок. Позиции должны быть удалены раньше.
	Delete(ctx context.Context, id string) error
}

// OrderItemRepository хранит строки позиций.
type OrderItemRepository interface {
	Create(ctx context.Context, item OrderItem) error
	Get(ctx context.Context, id string) (OrderItem, error)
	Update(ctx context.Context, item OrderItem) error
	ListByOrder(ctx context.Context, orderID string) ([]OrderItem, error)
	Delete(ctx context.Context, id string) error
	DeleteByOrder(ctx context.Context, orderID string) (int, error)
}

// CompanyRepository хранит заведения.
type CompanyRepository interface {
	Create(ctx context.Context, company Company) error
	Get(ctx context.Context, id string) (Company, error)
	List(ctx context.Context) ([]Company, error)
	Update(ctx context.Context, company Company) error
	Delete(ctx context.Context, id string) error
}

// CategoryRepository хранит категории меню.
type CategoryRepository interface {
	Create(ctx context.Context, category Category) error
	Get(ctx context.Context, id string) (Category, error)
	ListByCompany(ctx context.Context, companyID string) ([]Category, error)
	Update(ctx context.Context, category Category) error
	Delete(ctx context.Context, id string) error
}

// ProductRepository хранит товары.
type ProductRepository interface {
	Create(ctx context.Context, product Product) error
	Get(ctx context.Context, id string) (Product, error)
	ListByCompany(ctx context.Context, companyID string) ([]Product, error)
	Update(ctx context.Context, product Product) error
	Delete(ctx context.Context, id string) error
}

// UserRepository хранит сотрудников.
type UserRepository interface {
	Create(ctx context.Context, user User) error
	Get(ctx context.Context, id string) (User, error)
	ListByCompany(ctx context.Context, companyID string) ([]User, error)
	Update(ctx context.Context, user User) error
	Delete(ctx context.Context, id string) error
}

// Repositories - набор репозиториев, привязанных к одной транзакции (или к пулу вне её).
type Repositories struct {
	Orders     OrderRepository
	Items      OrderItemRepository
	Companies  CompanyRepository
	Categories CategoryRepository
	Products   ProductRepository
	Users      UserRepository
	Outbox     OutboxRepository
}

// TxManager открывает атомарную единицу работы.
// Если fn вернула ошибку или ctx отменён до коммита, все записи откатываются.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	// ReadOnly даёт fn согласованный снимок данных только для чтения.
	ReadOnly(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, status int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, status int) error
	// Release снимает резерв с ключа в статусе processing. Завершённые ключи не трогает.
	Release(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStatus - стадия доставки события из outbox.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
