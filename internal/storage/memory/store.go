package memory

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// dataset - полное состояние in-memory хранилища.
type dataset struct {
	orders     map[string]domain.Order
	items      map[string]domain.OrderItem
	companies  map[string]domain.Company
	categories map[string]domain.Category
	products   map[string]domain.Product
	users      map[string]domain.User
	outbox     map[string]outboxRecord
	outboxSeq  int64
}

func newDataset() *dataset {
	return &dataset{
		orders:     make(map[string]domain.Order),
		items:      make(map[string]domain.OrderItem),
		companies:  make(map[string]domain.Company),
		categories: make(map[string]domain.Category),
		products:   make(map[string]domain.Product),
		users:      make(map[string]domain.User),
		outbox:     make(map[string]outboxRecord),
	}
}

func (d *dataset) clone() *dataset {
	return &dataset{
		orders:     maps.Clone(d.orders),
		items:      maps.Clone(d.items),
		companies:  maps.Clone(d.companies),
		categories: maps.Clone(d.categories),
		products:   maps.Clone(d.products),
		users:      maps.Clone(d.users),
		outbox:     maps.Clone(d.outbox),
		outboxSeq:  d.outboxSeq,
	}
}

// accessor отделяет репозитории от того, где лежат данные:
// в закоммиченном состоянии Store или в рабочей копии транзакции.
type accessor interface {
	read(fn func(d *dataset) error) error
	write(fn func(d *dataset) error) error
}

// Store - in-memory хранилище с транзакциями в стиле copy-on-write.
// Транзакции сериализуются: каждая работает со своей копией данных,
// и копия подменяет общее состояние только при успешном коммите.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *dataset
}

// NewStore создаёт пустое хранилище для локальной разработки и тестов.
func NewStore() *Store {
	return &Store{data: newDataset()}
}

// Repositories возвращает репозитории, работающие вне транзакции.
// Каждая запись применяется атомарно сама по себе.
func (s *Store) Repositories() domain.Repositories {
	return repositoriesFor(committed{s: s})
}

// WithinTx выполняет fn в транзакции. Ошибка fn или отмена ctx до коммита
// отбрасывают рабочую копию, и изменения никто не увидит.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.data.clone()
	s.mu.RUnlock()

	scope := &txScope{data: work}
	if err := fn(ctx, repositoriesFor(scope)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

// ReadOnly выполняет fn над закоммиченным состоянием без копирования и без txMu.
// Запись через выданные репозитории возвращает ошибку.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, repositoriesFor(snapshot{data: s.data}))
}

func repositoriesFor(acc accessor) domain.Repositories {
	return domain.Repositories{
		Orders:     &orderRepository{acc: acc},
		Items:      &orderItemRepository{acc: acc},
		Companies:  &companyRepository{acc: acc},
		Categories: &categoryRepository{acc: acc},
		Products:   &productRepository{acc: acc},
		Users:      &userRepository{acc: acc},
		Outbox:     &outboxRepository{acc: acc},
	}
}

type committed struct {
	s *Store
}

func (c committed) read(fn func(d *dataset) error) error {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return fn(c.s.data)
}

// write берёт txMu, чтобы одиночная запись не потерялась при коммите параллельной транзакции.
func (c committed) write(fn func(d *dataset) error) error {
	c.s.txMu.Lock()
	defer c.s.txMu.Unlock()
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return fn(c.s.data)
}

var errReadOnly = errors.New("write in read-only transaction")

// snapshot читает данные, уже защищённые RLock в ReadOnly.
type snapshot struct {
	data *dataset
}

func (s snapshot) read(fn func(d *dataset) error) error {
	return fn(s.data)
}

func (snapshot) write(func(d *dataset) error) error {
	return domain.Internal("memory.ReadOnly", errReadOnly)
}

type txScope struct {
	mu   sync.Mutex
	data *dataset
}

func (t *txScope) read(fn func(d *dataset) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(t.data)
}

func (t *txScope) write(fn func(d *dataset) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(t.data)
}

var _ domain.TxManager = (*Store)(nil)
