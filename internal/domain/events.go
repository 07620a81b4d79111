package domain

import (
	"context"
	"time"
)

// EventKind - тип события жизненного цикла заказа.
type EventKind string

const (
	EventOrderCreated EventKind = "orderCreated"
	EventOrderUpdated EventKind = "orderUpdated"
	EventOrderDeleted EventKind = "orderDeleted"
)

// OrderEvent публикуется после коммита изменения агрегата.
// Для orderDeleted Order равен nil, известен только OrderID.
type OrderEvent struct {
	Kind       EventKind
	OrderID    string
	Order      *OrderAggregate
	OccurredAt time.Time
}

// LifecycleNotifier рассылает события подписчикам.
// Реализации обязаны быть безопасными при конкурентных вызовах Publish.
type LifecycleNotifier interface {
	Publish(ctx context.Context, event OrderEvent) error
}
