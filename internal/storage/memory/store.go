package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// state — всё содержимое in-memory хранилища.
// Транзакция работает с копией state и подменяет оригинал при фиксации.
type state struct {
	products  map[int64]domain.Product
	cart      map[int64]domain.CartLine
	orders    map[string]domain.Order
	users     map[int64]domain.User
	sequences map[string]int64
	outbox    map[string]outboxRecord
	timeline  map[string][]domain.TimelineEvent

	nextProductID int64
	nextCartID    int64
	nextUserID    int64
	outboxSeq     int64
}

func newState() *state {
	return &state{
		products:  make(map[int64]domain.Product),
		cart:      make(map[int64]domain.CartLine),
		orders:    make(map[string]domain.Order),
		users:     make(map[int64]domain.User),
		sequences: make(map[string]int64),
		outbox:    make(map[string]outboxRecord),
		timeline:  make(map[string][]domain.TimelineEvent),
	}
}

func (st *state) clone() *state {
	cp := *st
	cp.products = maps.Clone(st.products)
	cp.cart = maps.Clone(st.cart)
	cp.orders = maps.Clone(st.orders)
	cp.users = maps.Clone(st.users)
	cp.sequences = maps.Clone(st.sequences)
	cp.outbox = maps.Clone(st.outbox)
	cp.timeline = make(map[string][]domain.TimelineEvent, len(st.timeline))
	for id, events := range st.timeline {
		cp.timeline[id] = slices.Clone(events)
	}
	return &cp
}

// Store — in-memory реализация domain.Store для локальной разработки и тестов.
// Транзакции сериализуются: пока выполняется WithinTx, остальные операции ждут.
type Store struct {
	mu sync.RWMutex
	st *state
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{st: newState()}
}

// WithinTx выполняет fn над снимком данных и фиксирует его только при успехе.
func (s *Store) WithinTx(ctx context.Context, fn domain.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, txRepositories{s: s, tx: snapshot}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = snapshot
	return nil
}

// Ping всегда успешен, нужен для health-чекера.
func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) Products() domain.ProductRepository { return &productRepository{s: s} }
func (s *Store) Carts() domain.CartRepository { return &cartRepository{s: s} }
func (s *Store) Orders() domain.OrderRepository { return &orderRepository{s: s} }
func (s *Store) Users() domain.UserRepository { return &userRepository{s: s} }
func (s *Store) Sequence() domain.OrderSequence { return &orderSequence{s: s} }
func (s *Store) Outbox() domain.OutboxRepository { return &outboxRepository{s: s} }
func (s *Store) Timeline() domain.TimelineRepository { return &timelineRepository{s: s} }

// read выполняет fn под блокировкой на чтение либо над снимком транзакции.
func (s *Store) read(tx *state, fn func(st *state) error) error {
	if tx != nil {
		return fn(tx)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

// write выполняет fn под эксклюзивной блокировкой либо над снимком транзакции.
func (s *Store) write(tx *state, fn func(st *state) error) error {
	if tx != nil {
		return fn(tx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// txRepositories — набор репозиториев, привязанный к снимку транзакции.
type txRepositories struct {
	s  *Store
	tx *state
}

func (t txRepositories) Products() domain.ProductRepository {
	return &productRepository{s: t.s, tx: t.tx}
}

func (t txRepositories) Carts() domain.CartRepository {
	return &cartRepository{s: t.s, tx: t.tx}
}

func (t txRepositories) Orders() domain.OrderRepository {
	return &orderRepository{s: t.s, tx: t.tx}
}

func (t txRepositories) Users() domain.UserRepository {
	return &userRepository{s: t.s, tx: t.tx}
}

func (t txRepositories) Sequence() domain.OrderSequence {
	return &orderSequence{s: t.s, tx: t.tx}
}

func (t txRepositories) Outbox() domain.OutboxRepository {
	return &outboxRepository{s: t.s, tx: t.tx}
}

func (t txRepositories) Timeline() domain.TimelineRepository {
	return &timelineRepository{s: t.s, tx: t.tx}
}

var (
	_ domain.Store        = (*Store)(nil)
	_ domain.Repositories = txRepositories{}
)
