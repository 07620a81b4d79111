package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// IdempotencyKeys хранит ключи идемпотентности вне dataset:
// они переживают откат транзакции заказа.
type IdempotencyKeys struct {
	mu      sync.Mutex
	records map[string]domain.IdempotencyRecord
	now     func() time.Time
}

// NewIdempotencyRepository создаёт пустое хранилище ключей.
func NewIdempotencyRepository() *IdempotencyKeys {
	return &IdempotencyKeys{
		records: make(map[string]domain.IdempotencyRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (k *IdempotencyKeys) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.IdempotencyRecord{}, err
	}
	record, err := domain.NewIdempotencyRecord(key, requestHash, ttlAt, k.now())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if stored, taken := k.records[record.Key]; taken {
		return stored.Clone(), stored.Conflict(record.RequestHash)
	}
	k.records[record.Key] = record
	return record.Clone(), nil
}

func (k *IdempotencyKeys) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.IdempotencyRecord{}, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	stored, ok := k.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return stored.Clone(), nil
}

func (k *IdempotencyKeys) MarkDone(ctx context.Context, key string, responseBody []byte, code int) error {
	return k.settle(ctx, key, domain.IdempotencyStatusDone, responseBody, code)
}

func (k *IdempotencyKeys) MarkFailed(ctx context.Context, key string, responseBody []byte, code int) error {
	return k.settle(ctx, key, domain.IdempotencyStatusFailed, responseBody, code)
}

func (k *IdempotencyKeys) Release(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	rec, ok := k.records[key]
	if !ok || rec.Status != domain.IdempotencyStatusProcessing {
		return domain.ErrIdempotencyKeyNotFound
	}
	delete(k.records, key)
	return nil
}

// DeleteExpired удаляет просроченные к моменту before ключи, начиная с самых старых.
// limit <= 0 снимает ограничение на размер пачки.
func (k *IdempotencyKeys) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if before.IsZero() {
		before = k.now()
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	var expired []domain.IdempotencyRecord
	for _, rec := range k.records {
		if rec.Expired(before) {
			expired = append(expired, rec)
		}
	}
	slices.SortFunc(expired, func(a, b domain.IdempotencyRecord) int {
		return a.TTLAt.Compare(b.TTLAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, rec := range expired {
		delete(k.records, rec.Key)
	}
	return len(expired), nil
}

func (k *IdempotencyKeys) settle(ctx context.Context, key string, status domain.IdempotencyStatus, body []byte, code int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	rec, ok := k.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	rec.Status = status
	rec.StatusCode = code
	rec.ResponseBody = append([]byte(nil), body...)
	rec.UpdatedAt = k.now()
	k.records[key] = rec
	return nil
}

var _ domain.IdempotencyRepository = (*IdempotencyKeys)(nil)
