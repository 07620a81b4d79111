package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func headerValue(msg *sarama.ProducerMessage, name string) string {
	for _, h := range msg.Headers {
		if string(h.Key) == name {
			return string(h.Value)
		}
	}
	return ""
}

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "order-123" {
			return errors.New("message must be keyed by order id")
		}
		if headerValue(msg, HeaderEventType) != "orderUpdated" {
			return errors.New("event type header is missing")
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var envelope Envelope
		if err := json.Unmarshal(value, &envelope); err != nil {
			return err
		}
		if envelope.ID != "outbox-1" || envelope.AggregateType != "order" || string(envelope.Payload) != `{"kind":"orderUpdated"}` {
			return errors.New("unexpected envelope " + string(value))
		}
		if envelope.PublishedAt.IsZero() {
			return errors.New("published_at is not set")
		}
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFromClient(mockProducer, testLogger()), "")
	if publisher.Topic() != TopicOrderEvents {
		t.Fatalf("default topic = %s", publisher.Topic())
	}

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     "orderUpdated",
		Payload:       []byte(`{"kind":"orderUpdated"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerFromClient(mockProducer, testLogger()), TopicOrderEvents)
	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:          "outbox-2",
		AggregateID: "order-234",
		EventType:   "orderDeleted",
		Payload:     []byte(`{"kind":"orderDeleted"}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDLQPublisher_MarksSourceTopic(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicDeadLetterQueue {
			return errors.New("unexpected topic " + msg.Topic)
		}
		if headerValue(msg, HeaderOriginalTopic) != TopicOrderEvents {
			return errors.New("original topic header is missing")
		}
		key, _ := msg.Key.Encode()
		if string(key) != "outbox-3" {
			return errors.New("message without aggregate must be keyed by its id")
		}
		return nil
	})

	publisher := NewDLQPublisher(NewProducerFromClient(mockProducer, testLogger()), "", "")
	if err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-3", EventType: "orderCreated"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-4"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestNewEnvelope_EmptyPayloadIsNull(t *testing.T) {
	t.Parallel()

	envelope := NewEnvelope(domain.OutboxMessage{ID: "m"}, time.Unix(0, 0).UTC())
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if string(decoded["payload"]) != "null" {
		t.Fatalf("payload = %s, want null", decoded["payload"])
	}
}
