package app

import (
	"context"
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func TestInitRuntimeDependencies_MemorySharesOutbox(t *testing.T) {
	t.Parallel()

	logger := log.WithField("test", t.Name())
	deps, err := initRuntimeDependencies(context.Background(), Config{StorageDriver: StorageDriverMemory}, logger)
	require.NoError(t, err)
	defer deps.close(logger)

	require.NotNil(t, deps.idempotencyRepo)
	require.Nil(t, deps.storageChecker, "memory storage has nothing to ping")

	// Событие из транзакции заказа должно быть видно relay через deps.outboxRepo.
	ctx := context.Background()
	err = deps.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		_, err := repos.Outbox.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order", AggregateID: "o-1", EventType: "orderCreated"})
		return err
	})
	require.NoError(t, err)

	stats, err := deps.outboxRepo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)
}

func TestInitRuntimeDependencies_Rejects(t *testing.T) {
	t.Parallel()

	for name, cfg := range map[string]Config{
		"postgres without dsn": {StorageDriver: StorageDriverPostgres},
		"unknown driver":       {StorageDriver: "sqlite"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", name))
			require.Error(t, err)
			require.Nil(t, deps)
		})
	}
}

func TestRuntimeDependenciesClose(t *testing.T) {
	logger := log.WithField("test", t.Name())

	var nilDeps *runtimeDependencies
	nilDeps.close(logger)

	closed := 0
	deps := &runtimeDependencies{closeFn: func() error {
		closed++
		return errors.New("already closed")
	}}
	deps.close(logger)
	require.Equal(t, 1, closed)
}
