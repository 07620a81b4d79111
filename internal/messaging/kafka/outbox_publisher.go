package kafka

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	// source - исходный topic для сообщений DLQ, пустой для обычного паблишера.
	source string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

// NewDLQPublisher создаёт паблишер dead letter queue. Сообщения помечаются
// заголовком с исходным topic.
func NewDLQPublisher(producer *Producer, topic, source string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	if source == "" {
		source = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic, source: source}
}

// Topic возвращает topic назначения.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

// Publish отправляет сообщение в конверте Envelope с ключом по id заказа.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	envelope := NewEnvelope(msg, p.producer.now())
	headers := map[string]string{
		HeaderEventType:     msg.EventType,
		HeaderAggregateType: msg.AggregateType,
	}
	if p.source != "" {
		headers[HeaderOriginalTopic] = p.source
	}
	return p.producer.SendJSON(ctx, p.topic, messageKey(msg), envelope, headers)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
