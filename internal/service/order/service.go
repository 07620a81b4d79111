// Package order управляет агрегатом заказа: заголовок, позиции и итоговая сумма
// меняются одной транзакцией, а после коммита подписчики получают событие.
package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
	"github.com/vladislavdragonenkov/pos/internal/pricing"
	"github.com/vladislavdragonenkov/pos/internal/service/catalog"
)

const aggregateType = "order"

// Названия операций для логов и метрик.
const (
	opCreate     = "create"
	opGet        = "get"
	opList       = "list"
	opUpdate     = "update"
	opRemove     = "remove"
	opGetItem    = "get_item"
	opRemoveItem = "remove_item"
)

// Service - единственная точка записи агрегата заказа.
type Service struct {
	tx       domain.TxManager
	notifier domain.LifecycleNotifier
	prices   domain.PriceLookup
	locks    *keyedLocker
	logger   *log.Entry
	metrics  *metrics.OrderMetrics
	now      func() time.Time
	newID    func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithPriceLookup задаёт внешний источник цен. По умолчанию цены читаются
// из товаров внутри той же транзакции.
func WithPriceLookup(prices domain.PriceLookup) Option {
	return func(s *Service) {
		s.prices = prices
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики операций.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// New создаёт сервис заказов. notifier может быть nil, тогда события не рассылаются.
func New(tx domain.TxManager, notifier domain.LifecycleNotifier, opts ...Option) *Service {
	s := &Service{
		tx:       tx,
		notifier: notifier,
		locks:    newKeyedLocker(),
		logger:   log.New().WithField("component", "order-service"),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create сохраняет заголовок и позиции, считает сумму и публикует orderCreated.
// ID в позициях запроса игнорируются: все позиции создаются заново.
func (s *Service) Create(ctx context.Context, header domain.OrderHeader, items []domain.ItemRequest) (agg domain.OrderAggregate, err error) {
	done := s.metrics.Start(opCreate)
	defer func() { done(err) }()

	if err := header.Validate(); err != nil {
		return domain.OrderAggregate{}, err
	}
	if err := validateItems(items); err != nil {
		return domain.OrderAggregate{}, err
	}

	orderID := s.newID()
	unlock := s.locks.Lock(orderID)
	defer unlock()

	now := s.now()
	step := "create_header"
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		order := domain.Order{
			ID:            orderID,
			Client:        header.Client,
			Status:        header.Status,
			PaymentStatus: header.PaymentStatus,
			PaymentMethod: header.PaymentMethod,
			Notes:         header.Notes,
			CompanyID:     header.CompanyID,
			UserID:        header.UserID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := repos.Orders.Create(ctx, order); err != nil {
			return err
		}

		step = "create_items"
		store := s.itemStore(repos, now)
		for _, req := range items {
			if _, err := store.create(ctx, orderID, req.ProductID, req.Quantity); err != nil {
				return err
			}
		}

		step = "recalculate"
		if err := s.recalculate(ctx, repos, orderID, now); err != nil {
			return err
		}

		step = "load"
		agg, err = s.loadAggregate(ctx, repos, orderID)
		if err != nil {
			return err
		}

		step = "outbox"
		return s.enqueue(ctx, repos, domain.EventOrderCreated, orderID, &agg, now)
	})
	if err != nil {
		return domain.OrderAggregate{}, s.fail(opCreate, orderID, step, err)
	}

	s.publish(ctx, domain.EventOrderCreated, orderID, &agg, now)
	return agg, nil
}

// Get возвращает агрегат или NotFound(order).
func (s *Service) Get(ctx context.Context, id string) (agg domain.OrderAggregate, err error) {
	done := s.metrics.Start(opGet)
	defer func() { done(err) }()

	err = s.tx.ReadOnly(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		agg, err = s.loadAggregate(ctx, repos, id)
		return err
	})
	if err != nil {
		return domain.OrderAggregate{}, s.fail(opGet, id, "load", err)
	}
	return agg, nil
}

// List возвращает все агрегаты, новые первыми.
func (s *Service) List(ctx context.Context) (aggs []domain.OrderAggregate, err error) {
	done := s.metrics.Start(opList)
	defer func() { done(err) }()

	err = s.tx.ReadOnly(ctx, func(ctx context.Context, repos domain.Repositories) error {
		orders, err := repos.Orders.List(ctx)
		if err != nil {
			return err
		}
		aggs = make([]domain.OrderAggregate, 0, len(orders))
		for _, order := range orders {
			agg, err := s.buildAggregate(ctx, repos, order)
			if err != nil {
				return err
			}
			aggs = append(aggs, agg)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(opList, "", "load", err)
	}
	return aggs, nil
}

// Update применяет патч заголовка и сливает позиции по ID: позиции с ID
// перезаписываются с новой ценой, без ID создаются, остальные не трогаются.
// Сумма пересчитывается по всем текущим позициям.
func (s *Service) Update(ctx context.Context, id string, patch domain.OrderPatch, items []domain.ItemRequest) (agg domain.OrderAggregate, err error) {
	done := s.metrics.Start(opUpdate)
	defer func() { done(err) }()

	if err := patch.Validate(); err != nil {
		return domain.OrderAggregate{}, err
	}
	if err := validateItems(items); err != nil {
		return domain.OrderAggregate{}, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	now := s.now()
	step := "lock_header"
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		order, err := repos.Orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		step = "update_header"
		patch.Apply(&order)
		order.UpdatedAt = now
		if err := repos.Orders.Update(ctx, order); err != nil {
			return err
		}

		step = "merge_items"
		store := s.itemStore(repos, now)
		for _, req := range items {
			if req.ID == "" {
				_, err = store.create(ctx, id, req.ProductID, req.Quantity)
			} else {
				_, err = store.update(ctx, id, req.ID, req.ProductID, req.Quantity)
			}
			if err != nil {
				return err
			}
		}

		step = "recalculate"
		if err := s.recalculate(ctx, repos, id, now); err != nil {
			return err
		}

		step = "load"
		agg, err = s.loadAggregate(ctx, repos, id)
		if err != nil {
			return err
		}

		step = "outbox"
		return s.enqueue(ctx, repos, domain.EventOrderUpdated, id, &agg, now)
	})
	if err != nil {
		return domain.OrderAggregate{}, s.fail(opUpdate, id, step, err)
	}

	s.publish(ctx, domain.EventOrderUpdated, id, &agg, now)
	return agg, nil
}

// Remove удаляет позиции, затем заголовок, и возвращает снимок агрегата до удаления.
func (s *Service) Remove(ctx context.Context, id string) (snapshot domain.OrderAggregate, err error) {
	done := s.metrics.Start(opRemove)
	defer func() { done(err) }()

	unlock := s.locks.Lock(id)
	defer unlock()

	now := s.now()
	step := "lock_header"
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		order, err := repos.Orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		step = "snapshot"
		snapshot, err = s.buildAggregate(ctx, repos, order)
		if err != nil {
			return err
		}

		step = "delete_items"
		if _, err := s.itemStore(repos, now).deleteAll(ctx, id); err != nil {
			return err
		}

		step = "delete_header"
		if err := repos.Orders.Delete(ctx, id); err != nil {
			return err
		}

		step = "outbox"
		return s.enqueue(ctx, repos, domain.EventOrderDeleted, id, nil, now)
	})
	if err != nil {
		return domain.OrderAggregate{}, s.fail(opRemove, id, step, err)
	}

	s.publish(ctx, domain.EventOrderDeleted, id, nil, now)
	return snapshot, nil
}

// GetItem возвращает позицию заказа. Позиция другого заказа даёт NotFound(order item).
func (s *Service) GetItem(ctx context.Context, orderID, itemID string) (item domain.OrderItem, err error) {
	done := s.metrics.Start(opGetItem)
	defer func() { done(err) }()

	err = s.tx.ReadOnly(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Orders.Get(ctx, orderID); err != nil {
			return err
		}
		var err error
		item, err = s.itemStore(repos, time.Time{}).get(ctx, orderID, itemID)
		return err
	})
	if err != nil {
		return domain.OrderItem{}, s.fail(opGetItem, orderID, "load", err)
	}
	return item, nil
}

// RemoveItem удаляет одну позицию, пересчитывает сумму и публикует orderUpdated.
func (s *Service) RemoveItem(ctx context.Context, orderID, itemID string) (agg domain.OrderAggregate, err error) {
	done := s.metrics.Start(opRemoveItem)
	defer func() { done(err) }()

	unlock := s.locks.Lock(orderID)
	defer unlock()

	now := s.now()
	step := "lock_header"
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Orders.GetForUpdate(ctx, orderID); err != nil {
			return err
		}

		step = "delete_item"
		item, err := s.itemStore(repos, now).get(ctx, orderID, itemID)
		if err != nil {
			return err
		}
		if err := repos.Items.Delete(ctx, item.ID); err != nil {
			return err
		}

		step = "recalculate"
		if err := s.recalculate(ctx, repos, orderID, now); err != nil {
			return err
		}

		step = "load"
		agg, err = s.loadAggregate(ctx, repos, orderID)
		if err != nil {
			return err
		}

		step = "outbox"
		return s.enqueue(ctx, repos, domain.EventOrderUpdated, orderID, &agg, now)
	})
	if err != nil {
		return domain.OrderAggregate{}, s.fail(opRemoveItem, orderID, step, err)
	}

	s.publish(ctx, domain.EventOrderUpdated, orderID, &agg, now)
	return agg, nil
}

func (s *Service) itemStore(repos domain.Repositories, now time.Time) *itemStore {
	prices := s.prices
	if prices == nil {
		prices = catalog.NewPriceLookup(repos.Products)
	}
	return newItemStore(repos.Items, prices, now)
}

// recalculate пересчитывает сумму по всем текущим позициям и сохраняет её.
func (s *Service) recalculate(ctx context.Context, repos domain.Repositories, orderID string, now time.Time) error {
	items, err := repos.Items.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	total, err := pricing.ComputeTotal(pricing.LinesFromItems(items))
	if err != nil {
		return err
	}
	return repos.Orders.UpdateTotal(ctx, orderID, total, now)
}

func (s *Service) loadAggregate(ctx context.Context, repos domain.Repositories, id string) (domain.OrderAggregate, error) {
	order, err := repos.Orders.Get(ctx, id)
	if err != nil {
		return domain.OrderAggregate{}, err
	}
	return s.buildAggregate(ctx, repos, order)
}

// buildAggregate дочитывает позиции с данными товаров и имя сотрудника.
func (s *Service) buildAggregate(ctx context.Context, repos domain.Repositories, order domain.Order) (domain.OrderAggregate, error) {
	items, err := repos.Items.ListByOrder(ctx, order.ID)
	if err != nil {
		return domain.OrderAggregate{}, err
	}

	products := make(map[string]domain.ProductSummary, len(items))
	agg := domain.OrderAggregate{
		Order: order,
		Items: make([]domain.AggregateItem, 0, len(items)),
	}
	for _, item := range items {
		summary, ok := products[item.ProductID]
		if !ok {
			product, err := repos.Products.Get(ctx, item.ProductID)
			if err != nil {
				return domain.OrderAggregate{}, err
			}
			summary = product.Summary()
			products[item.ProductID] = summary
		}
		agg.Items = append(agg.Items, domain.AggregateItem{OrderItem: item, Product: summary})
	}

	user, err := repos.Users.Get(ctx, order.UserID)
	if err != nil {
		return domain.OrderAggregate{}, err
	}
	agg.User = domain.UserSummary{Name: user.Name}
	return agg, nil
}

// enqueue пишет событие в outbox той же транзакцией, что и сам агрегат.
func (s *Service) enqueue(ctx context.Context, repos domain.Repositories, kind domain.EventKind, orderID string, agg *domain.OrderAggregate, now time.Time) error {
	if repos.Outbox == nil {
		return nil
	}
	payload, err := MarshalEvent(domain.OrderEvent{Kind: kind, OrderID: orderID, Order: agg, OccurredAt: now})
	if err != nil {
		return err
	}
	if _, err := repos.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   orderID,
		EventType:     string(kind),
		Payload:       payload,
		CreatedAt:     now,
	}); err != nil {
		return err
	}
	s.metrics.RecordOutboxEnqueued()
	return nil
}

// publish рассылает событие после коммита. Отмена ctx вызывающего уже не важна:
// закоммиченное изменение должно быть объявлено.
func (s *Service) publish(ctx context.Context, kind domain.EventKind, orderID string, agg *domain.OrderAggregate, now time.Time) {
	s.metrics.RecordLifecycleEvent(kind)
	if s.notifier == nil {
		return
	}
	event := domain.OrderEvent{Kind: kind, OrderID: orderID, Order: agg, OccurredAt: now}
	if err := s.notifier.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    kind,
		}).Warn("failed to publish lifecycle event")
	}
}

// fail приводит ошибку к таксономии домена и логирует только внутренние сбои.
func (s *Service) fail(op, orderID, step string, cause error) error {
	err := domain.Internal("order."+op, cause)
	if domain.KindOf(err) == domain.KindInternal {
		s.logger.WithError(cause).WithFields(log.Fields{
			"order_id": orderID,
			"op":       op,
			"step":     step,
		}).Error("order operation failed")
	}
	return err
}

func validateItems(items []domain.ItemRequest) error {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}
