package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	seq        int64
	status     domain.OutboxStatus
	attemptCnt int
	updatedAt  time.Time
}

// outboxRepository - outbox в том же dataset, что и заказы,
// поэтому Enqueue внутри WithinTx коммитится вместе с агрегатом.
type outboxRepository struct {
	acc accessor
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его с ID.
func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	err := r.acc.write(func(d *dataset) error {
		d.outboxSeq++
		d.outbox[msg.ID] = outboxRecord{
			msg:       msg,
			seq:       d.outboxSeq,
			status:    domain.OutboxStatusPending,
			updatedAt: now,
		}
		return nil
	})
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	return msg, nil
}

// PullPending возвращает до limit pending-сообщений в порядке постановки.
func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	var pending []outboxRecord
	err := r.acc.read(func(d *dataset) error {
		for _, rec := range d.outbox {
			if rec.status == domain.OutboxStatusPending {
				pending = append(pending, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxStats{}, err
	}
	var stats domain.OutboxStats
	err := r.acc.read(func(d *dataset) error {
		for _, rec := range d.outbox {
			if rec.status != domain.OutboxStatusPending {
				continue
			}
			stats.PendingCount++
			if stats.OldestPendingAt.IsZero() || rec.msg.CreatedAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = rec.msg.CreatedAt
			}
		}
		return nil
	})
	return stats, err
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, domain.OutboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, domain.OutboxStatusFailed)
}

func (r *outboxRepository) markStatus(ctx context.Context, id string, status domain.OutboxStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		record, ok := d.outbox[id]
		if !ok {
			return domain.ErrOutboxMessageNotFound
		}
		record.status = status
		record.attemptCnt++
		record.updatedAt = time.Now().UTC()
		d.outbox[id] = record
		return nil
	})
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
