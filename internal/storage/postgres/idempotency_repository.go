package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// keyQueryTimeout ограничивает каждый запрос к idempotency_keys:
// ключи проверяются до бизнес-транзакции и не должны её задерживать.
const keyQueryTimeout = 5 * time.Second

const idempotencyColumns = `key, request_hash, status, status_code, response_body, ttl_at, created_at, updated_at`

// IdempotencyKeys - таблица idempotency_keys. Работает вне транзакций заказа.
type IdempotencyKeys struct {
	db  *sql.DB
	now func() time.Time
}

// NewIdempotencyRepository создаёт хранилище ключей поверх пула store.
func NewIdempotencyRepository(store *Store) *IdempotencyKeys {
	return &IdempotencyKeys{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreateProcessing резервирует ключ через INSERT ... ON CONFLICT DO NOTHING.
// Если ключ занят, возвращается сохранённая запись и ошибка конфликта.
func (k *IdempotencyKeys) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	record, err := domain.NewIdempotencyRecord(key, requestHash, ttlAt, k.now())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, keyQueryTimeout)
	defer cancel()

	// Вторая попытка нужна, если чужая запись истекла и удалена между INSERT и SELECT.
	for attempt := 0; attempt < 2; attempt++ {
		inserted, err := k.insert(ctx, record)
		if err != nil {
			return domain.IdempotencyRecord{}, err
		}
		if inserted {
			return record, nil
		}

		stored, err := k.Get(ctx, record.Key)
		if errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			continue
		}
		if err != nil {
			return domain.IdempotencyRecord{}, err
		}
		return stored, stored.Conflict(record.RequestHash)
	}
	return domain.IdempotencyRecord{}, fmt.Errorf("reserve idempotency key %s: %w", record.Key, domain.ErrIdempotencyKeyAlreadyExists)
}

func (k *IdempotencyKeys) insert(ctx context.Context, rec domain.IdempotencyRecord) (bool, error) {
	var key string
	err := k.db.QueryRowContext(ctx, `
		INSERT INTO idempotency_keys (`+idempotencyColumns+`)
		VALUES ($1, $2, $3, NULL, NULL, $4, $5, $5)
		ON CONFLICT (key) DO NOTHING
		RETURNING key
	`, rec.Key, rec.RequestHash, string(rec.Status), rec.TTLAt, rec.CreatedAt).Scan(&key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("insert idempotency key: %w", err)
	}
}

func (k *IdempotencyKeys) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, keyQueryTimeout)
	defer cancel()

	row := k.db.QueryRowContext(ctx, `SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE key = $1`, key)
	rec, err := scanIdempotencyRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("load idempotency key %s: %w", key, err)
	}
	return rec, nil
}

func (k *IdempotencyKeys) MarkDone(ctx context.Context, key string, responseBody []byte, code int) error {
	return k.settle(ctx, key, domain.IdempotencyStatusDone, responseBody, code)
}

func (k *IdempotencyKeys) MarkFailed(ctx context.Context, key string, responseBody []byte, code int) error {
	return k.settle(ctx, key, domain.IdempotencyStatusFailed, responseBody, code)
}

func (k *IdempotencyKeys) Release(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, keyQueryTimeout)
	defer cancel()

	res, err := k.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE key = $1 AND status = $2`,
		key, string(domain.IdempotencyStatusProcessing))
	if err != nil {
		return fmt.Errorf("release idempotency key %s: %w", key, err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release idempotency key %s: %w", key, err)
	}
	if removed == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

// DeleteExpired удаляет ключи с ttl_at <= before, самые старые первыми.
// limit <= 0 передаётся как LIMIT NULL, то есть без ограничения.
func (k *IdempotencyKeys) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = k.now()
	}

	ctx, cancel := context.WithTimeout(ctx, keyQueryTimeout)
	defer cancel()

	res, err := k.db.ExecContext(ctx, `
		WITH expired AS (
			SELECT key FROM idempotency_keys
			WHERE ttl_at <= $1
			ORDER BY ttl_at
			LIMIT $2
		)
		DELETE FROM idempotency_keys AS k
		USING expired
		WHERE k.key = expired.key
	`, before, sql.NullInt64{Int64: int64(limit), Valid: limit > 0})
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted idempotency keys: %w", err)
	}
	return int(removed), nil
}

func (k *IdempotencyKeys) settle(ctx context.Context, key string, status domain.IdempotencyStatus, body []byte, code int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, keyQueryTimeout)
	defer cancel()

	var updated string
	err := k.db.QueryRowContext(ctx, `
		UPDATE idempotency_keys
		SET status = $2, status_code = $3, response_body = $4, updated_at = $5
		WHERE key = $1
		RETURNING key
	`, key, string(status), code, body, k.now()).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("settle idempotency key %s as %s: %w", key, status, err)
	}
	return nil
}

func scanIdempotencyRecord(row rowScanner) (domain.IdempotencyRecord, error) {
	var (
		rec    domain.IdempotencyRecord
		status string
		code   sql.NullInt64
	)
	if err := row.Scan(&rec.Key, &rec.RequestHash, &status, &code, &rec.ResponseBody,
		&rec.TTLAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return domain.IdempotencyRecord{}, err
	}

	parsed, err := domain.ParseIdempotencyStatus(status)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	rec.Status = parsed
	rec.StatusCode = int(code.Int64)
	rec.TTLAt = rec.TTLAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

var _ domain.IdempotencyRepository = (*IdempotencyKeys)(nil)
