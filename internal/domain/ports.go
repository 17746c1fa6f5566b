package domain

import (
	"context"
	"time"
)

// Repositories — набор репозиториев одного хранилища.
// Внутри WithinTx тот же набор привязан к транзакции.
type Repositories interface {
	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Users() UserRepository
	Sequence() OrderSequence
	Outbox() OutboxRepository
	Timeline() TimelineRepository
}

// TxFunc — тело транзакции.
type TxFunc func(ctx context.Context, tx Repositories) error

// UnitOfWork выполняет fn атомарно: либо фиксируются все изменения, либо ни одно.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn TxFunc) error
}

// Store — хранилище с транзакциями.
type Store interface {
	Repositories
	UnitOfWork
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	// MarkSent и MarkFailed переводят только pending-сообщения; иначе ErrOutboxPublish.
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит ключи идемпотентности оформления заказов.
type IdempotencyRepository interface {
	// CreateProcessing захватывает ключ. Занятый ключ возвращает запись вместе с
	// ErrIdempotencyKeyAlreadyExists или ErrIdempotencyHashMismatch.
	CreateProcessing(ctx context.Context, claim IdempotencyClaim) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	// Finish сохраняет итог оформления; статус берётся из outcome.Status().
	Finish(ctx context.Context, key string, outcome CheckoutOutcome) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (IdempotencyPurge, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
// DeadLetterCount — сообщения, которые worker исчерпал и отправил в DLQ.
type OutboxStats struct {
	PendingCount    int
	DeadLetterCount int
	OldestPendingAt time.Time
}
