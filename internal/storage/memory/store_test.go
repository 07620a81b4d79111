package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/storage/memory"
)

func TestStore_WithinTx_CommitMakesWritesVisible(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedCatalog(t, store.Repositories())

	err := store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Orders.Create(ctx, newOrder("order-1", time.Now().UTC()))
	})
	if err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}

	if _, err := store.Repositories().Orders.Get(ctx, "order-1"); err != nil {
		t.Fatalf("expected committed order, got %v", err)
	}
}

func TestStore_WithinTx_ErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedCatalog(t, store.Repositories())
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Orders.Create(ctx, newOrder("order-1", time.Now().UTC())); err != nil {
			return err
		}
		if _, err := repos.Outbox.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order", AggregateID: "order-1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	repos := store.Repositories()
	if _, err := repos.Orders.Get(ctx, "order-1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected rolled back order, got %v", err)
	}
	stats, err := repos.Outbox.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Fatalf("expected rolled back outbox, got %d pending", stats.PendingCount)
	}
}

func TestStore_WithinTx_CanceledBeforeCommit(t *testing.T) {
	store := memory.NewStore()
	seedCatalog(t, store.Repositories())

	ctx, cancel := context.WithCancel(context.Background())
	err := store.WithinTx(ctx, func(txCtx context.Context, repos domain.Repositories) error {
		if err := repos.Orders.Create(txCtx, newOrder("order-1", time.Now().UTC())); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if _, err := store.Repositories().Orders.Get(context.Background(), "order-1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected no order after cancellation, got %v", err)
	}
}

func TestStore_WithinTx_UncommittedStateIsInvisible(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedCatalog(t, store.Repositories())

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
			if err := repos.Orders.Create(ctx, newOrder("order-1", time.Now().UTC())); err != nil {
				return err
			}
			close(inside)
			<-release
			return nil
		})
	}()

	<-inside
	if _, err := store.Repositories().Orders.Get(ctx, "order-1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("uncommitted order must not be visible, got %v", err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}
	if _, err := store.Repositories().Orders.Get(ctx, "order-1"); err != nil {
		t.Fatalf("expected committed order, got %v", err)
	}
}

func TestStore_WithinTx_Serialized(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedCatalog(t, store.Repositories())

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
				_, err := repos.Outbox.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order"})
				return err
			})
		}()
	}
	wg.Wait()

	stats, err := store.Repositories().Outbox.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != workers {
		t.Fatalf("expected %d pending messages, got %d", workers, stats.PendingCount)
	}
}

func TestStore_ReadOnly_DoesNotWaitForOpenTx(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedCatalog(t, store.Repositories())
	now := time.Now().UTC()
	if err := store.Repositories().Orders.Create(ctx, newOrder("order-1", now)); err != nil {
		t.Fatalf("create order: %v", err)
	}

	inTx := make(chan struct{})
	release := make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		txDone <- store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
			if err := repos.Orders.Create(ctx, newOrder("order-2", now)); err != nil {
				return err
			}
			close(inTx)
			<-release
			return nil
		})
	}()
	<-inTx

	read := make(chan []domain.Order, 1)
	go func() {
		_ = store.ReadOnly(ctx, func(ctx context.Context, repos domain.Repositories) error {
			orders, err := repos.Orders.List(ctx)
			if err != nil {
				return err
			}
			read <- orders
			return nil
		})
	}()

	select {
	case orders := <-read:
		if len(orders) != 1 || orders[0].ID != "order-1" {
			t.Fatalf("read must see only committed orders, got %+v", orders)
		}
	case <-time.After(time.Second):
		t.Fatal("read-only access blocked behind an open transaction")
	}

	close(release)
	if err := <-txDone; err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestStore_ReadOnly_RejectsWrites(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedCatalog(t, store.Repositories())

	err := store.ReadOnly(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Orders.Create(ctx, newOrder("order-1", time.Now().UTC()))
	})
	if domain.KindOf(err) != domain.KindInternal {
		t.Fatalf("expected internal error for write, got %v", err)
	}
	if _, err := store.Repositories().Orders.Get(ctx, "order-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("write leaked through read-only scope: %v", err)
	}
}
