// Package idempotency защищает создание заказа от повторов и следит за сроком жизни ключей.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
)

const (
	defaultSweepInterval = 10 * time.Minute
	defaultSweepBatch    = 500
)

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) { w.logger = logger }
}

func WithMetrics(m *metrics.CleanupMetrics) CleanupOption {
	return func(w *CleanupWorker) { w.metrics = m }
}

// WithClock задаёт момент отсечки по TTL, в тестах фиксирует время.
func WithClock(now func() time.Time) CleanupOption {
	return func(w *CleanupWorker) { w.now = now }
}

// WithInterval задаёт паузу между проходами. Значения <= 0 игнорируются.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize ограничивает число ключей, удаляемых одним запросом.
func WithBatchSize(size int) CleanupOption {
	return func(w *CleanupWorker) {
		if size > 0 {
			w.batch = size
		}
	}
}

// CleanupWorker удаляет истёкшие ключи: после этого повтор с тем же ключом
// создаёт новый заказ, а не возвращает сохранённый ответ.
type CleanupWorker struct {
	keys     domain.IdempotencyRepository
	logger   *log.Entry
	metrics  *metrics.CleanupMetrics
	now      func() time.Time
	interval time.Duration
	batch    int
}

func NewCleanupWorker(keys domain.IdempotencyRepository, opts ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		keys:     keys,
		now:      func() time.Time { return time.Now().UTC() },
		interval: defaultSweepInterval,
		batch:    defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = log.WithField("component", "idempotency-cleanup")
	}
	return w
}

// Run делает проход сразу и затем раз в interval, пока ctx не отменён.
// Ошибки прохода логируются и не останавливают воркер.
func (w *CleanupWorker) Run(ctx context.Context) error {
	if w.keys == nil {
		w.logger.Warn("no idempotency storage, cleanup disabled")
		return nil
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			w.runOnce(ctx)
			timer.Reset(w.interval)
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	removed, err := w.Sweep(ctx, w.now())
	switch {
	case errors.Is(err, context.Canceled):
	case err != nil:
		w.metrics.RecordRun("error", removed)
		w.logger.WithError(err).WithField("removed", removed).Warn("idempotency sweep interrupted")
	default:
		w.metrics.RecordRun(metrics.ResultOK, removed)
		if removed > 0 {
			w.logger.WithField("removed", removed).Info("expired idempotency keys removed")
		}
	}
}

// Sweep удаляет ключи с ttl_at <= before пачками, пока очередная пачка не окажется неполной.
// Нулевой before означает текущий момент.
func (w *CleanupWorker) Sweep(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now()
	}

	total := 0
	for ctx.Err() == nil {
		n, err := w.keys.DeleteExpired(ctx, before, w.batch)
		if err != nil {
			return total, err
		}
		total += n
		w.metrics.AddDeleted(n)
		if n < w.batch {
			return total, nil
		}
	}
	return total, ctx.Err()
}
