package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second
)

// queryer — общее подмножество *sql.DB и *sql.Tx, с которым работают репозитории.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithinTx выполняет fn в одной транзакции READ COMMITTED.
// Конкурентный доступ к остаткам и корзине сериализуется через SELECT ... FOR UPDATE.
func (s *Store) WithinTx(ctx context.Context, fn domain.TxFunc) (err error) {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, repositories{q: tx}); err != nil {
		if isTxAborted(err) {
			return fmt.Errorf("%w: %v", domain.ErrTxAborted, err)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		if isTxAborted(err) {
			return fmt.Errorf("%w: %v", domain.ErrTxAborted, err)
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Products() domain.ProductRepository { return repositories{q: s.db}.Products() }
func (s *Store) Carts() domain.CartRepository { return repositories{q: s.db}.Carts() }
func (s *Store) Orders() domain.OrderRepository { return repositories{q: s.db}.Orders() }
func (s *Store) Users() domain.UserRepository { return repositories{q: s.db}.Users() }
func (s *Store) Sequence() domain.OrderSequence { return repositories{q: s.db}.Sequence() }
func (s *Store) Outbox() domain.OutboxRepository { return repositories{q: s.db}.Outbox() }
func (s *Store) Timeline() domain.TimelineRepository { return repositories{q: s.db}.Timeline() }

// repositories связывает репозитории с подключением либо с транзакцией.
type repositories struct {
	q queryer
}

func (r repositories) Products() domain.ProductRepository {
	return &productRepository{q: r.q}
}

func (r repositories) Carts() domain.CartRepository {
	return &cartRepository{q: r.q}
}

func (r repositories) Orders() domain.OrderRepository {
	return &orderRepository{q: r.q}
}

func (r repositories) Users() domain.UserRepository {
	return &userRepository{q: r.q}
}

func (r repositories) Sequence() domain.OrderSequence {
	return &orderSequence{q: r.q}
}

func (r repositories) Outbox() domain.OutboxRepository {
	return &outboxRepository{q: r.q}
}

func (r repositories) Timeline() domain.TimelineRepository {
	return &timelineRepository{q: r.q}
}

// withTimeout ограничивает длительность одиночной операции.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// isTxAborted распознаёт deadlock (40P01) и serialization failure (40001).
func isTxAborted(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40P01" || pgErr.Code == "40001"
	}
	return false
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

var (
	_ domain.Store        = (*Store)(nil)
	_ domain.Repositories = repositories{}
)
