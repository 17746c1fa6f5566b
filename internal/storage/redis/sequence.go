package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	defaultKeyPrefix = "shop:order_seq:"
	// Ключ дня хранится двое суток.
	defaultKeyTTL = 48 * time.Hour
	opTimeout     = 2 * time.Second
)

// Options задаёт подключение к Redis.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient создаёт клиента Redis.
func NewClient(opts Options) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// OrderSequence выдаёт номера заказов через INCR по ключу дня.
// Счётчик не участвует в транзакции БД: при откате номер теряется, а повтор
// номера исключает уникальный индекс orders.order_number.
type OrderSequence struct {
	client    goredis.UniversalClient
	keyPrefix string
	keyTTL    time.Duration
}

// Option настраивает OrderSequence.
type Option func(*OrderSequence)

// WithKeyPrefix меняет префикс ключей счётчика.
func WithKeyPrefix(prefix string) Option {
	return func(s *OrderSequence) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// WithKeyTTL меняет время жизни ключа дня.
func WithKeyTTL(ttl time.Duration) Option {
	return func(s *OrderSequence) {
		if ttl > 0 {
			s.keyTTL = ttl
		}
	}
}

// NewOrderSequence создаёт счётчик поверх клиента Redis.
func NewOrderSequence(client goredis.UniversalClient, opts ...Option) *OrderSequence {
	s := &OrderSequence{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		keyTTL:    defaultKeyTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key возвращает ключ счётчика для дня.
func (s *OrderSequence) Key(day time.Time) string {
	return s.keyPrefix + domain.OrderDay(day).Format("20060102")
}

// Next атомарно увеличивает счётчик дня и продлевает срок жизни ключа.
func (s *OrderSequence) Next(ctx context.Context, day time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := s.Key(day)
	var incr *goredis.IntCmd
	if _, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, s.keyTTL)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}

	return incr.Val(), nil
}

// Ping проверяет доступность Redis (используется health-чекером).
func (s *OrderSequence) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

var _ domain.OrderSequence = (*OrderSequence)(nil)
