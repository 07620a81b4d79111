// Package notify рассылает события жизненного цикла заказов подписчикам внутри процесса.
package notify

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

const defaultBuffer = 64

// Причины закрытия подписки, см. Subscription.Err.
var (
	ErrBrokerClosed     = errors.New("event broker is closed")
	ErrSubscriberLagged = errors.New("subscriber fell behind the event stream")
)

// Broker - in-process pub/sub для domain.OrderEvent.
// Publish сериализован: все подписчики видят события в одном порядке.
// Подписчик, который не успевает читать, отключается, его канал закрывается.
type Broker struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
	closed bool
	logger *log.Entry
}

// Subscription - подписка на поток событий.
type Subscription struct {
	id     uint64
	broker *Broker
	events chan domain.OrderEvent
	once   sync.Once
	reason error
}

// NewBroker создаёт брокер без подписчиков.
func NewBroker(logger *log.Entry) *Broker {
	if logger == nil {
		logger = log.New().WithField("component", "notify")
	}
	return &Broker{
		subs:   make(map[uint64]*Subscription),
		logger: logger,
	}
}

// Subscribe регистрирует подписчика с буфером заданного размера.
// После Close брокера возвращается уже закрытая подписка.
func (b *Broker) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		broker: b,
		events: make(chan domain.OrderEvent, buffer),
	}
	if b.closed {
		sub.closeChannel(ErrBrokerClosed)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish доставляет событие всем подписчикам без блокировки.
func (b *Broker) Publish(ctx context.Context, event domain.OrderEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	for id, sub := range b.subs {
		select {
		case sub.events <- event:
		default:
			b.logger.WithFields(log.Fields{
				"subscription": id,
				"order_id":     event.OrderID,
				"event":        event.Kind,
			}).Warn("subscriber buffer is full, dropping subscriber")
			delete(b.subs, id)
			sub.closeChannel(ErrSubscriberLagged)
		}
	}
	return nil
}

// Subscribers возвращает число активных подписчиков.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close закрывает все подписки; последующие Publish ничего не делают.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.closeChannel(ErrBrokerClosed)
	}
}

// Events возвращает канал событий. Канал закрывается при Close подписки,
// при Close брокера или если подписчик отстал.
func (s *Subscription) Events() <-chan domain.OrderEvent {
	return s.events
}

// Close отписывает подписчика. Повторный вызов безопасен.
func (s *Subscription) Close() {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()

	delete(s.broker.subs, s.id)
	s.closeChannel(nil)
}

// Err сообщает, почему закрыт канал Events: ErrBrokerClosed, ErrSubscriberLagged
// или nil после Close самой подписки. Читать только после закрытия канала.
func (s *Subscription) Err() error {
	return s.reason
}

func (s *Subscription) closeChannel(reason error) {
	s.once.Do(func() {
		s.reason = reason
		close(s.events)
	})
}

var _ domain.LifecycleNotifier = (*Broker)(nil)
