package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// DefaultTTL - время жизни ключа по умолчанию.
const DefaultTTL = domain.DefaultIdempotencyTTL

// ErrRequestInProgress - запрос с тем же ключом ещё выполняется.
var ErrRequestInProgress = errors.New("request with the same idempotency key is already processing")

// Guard оборачивает создание заказа по idempotency-ключу.
// Один и тот же ключ с тем же телом отдаёт сохранённый ответ,
// с другим телом даёт ErrIdempotencyHashMismatch.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// NewGuard создаёт Guard. ttl <= 0 заменяется на DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{
		repo:   repo,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// RequestHash считает отпечаток запроса: метод и тело.
func RequestHash(method string, body []byte) string {
	payload := make([]byte, 0, len(method)+1+len(body))
	payload = append(payload, method...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Begin резервирует ключ. Если ключ новый, возвращает (nil, nil) и вызывающий
// выполняет запрос. Для завершённого ключа возвращает сохранённую запись.
func (g *Guard) Begin(ctx context.Context, key, requestHash string) (*domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrIdempotencyKeyRequired
	}

	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return nil, err
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Status.Settled() {
			return &record, nil
		}
		if record.Status == domain.IdempotencyStatusProcessing {
			return nil, ErrRequestInProgress
		}
		return nil, fmt.Errorf("unknown idempotency record status %q", record.Status)
	default:
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to create idempotency record")
		return nil, fmt.Errorf("create idempotency record: %w", err)
	}
}

// Complete сохраняет успешный ответ.
func (g *Guard) Complete(ctx context.Context, key string, code int, body []byte) {
	if err := g.repo.MarkDone(context.WithoutCancel(ctx), key, body, code); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent success response")
	}
}

// Abandon снимает резерв после сбоя инфраструктуры или отмены запроса:
// транзакция откатилась, и повтор с тем же ключом должен выполниться заново.
func (g *Guard) Abandon(ctx context.Context, key string) {
	if err := g.repo.Release(context.WithoutCancel(ctx), key); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to release idempotency key")
	}
}

// Fail сохраняет ответ с ошибкой, чтобы повтор получил тот же результат.
func (g *Guard) Fail(ctx context.Context, key string, code int, body []byte) {
	if err := g.repo.MarkFailed(context.WithoutCancel(ctx), key, body, code); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency failure response")
	}
}
