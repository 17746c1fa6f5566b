package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const idempotencyColumns = `key, request_hash, user_id, order_id, response_body, http_status, status, ttl_at, created_at, updated_at`

// idempotencyRepository работает вне транзакций оформления: ключ захватывается до неё
// и должен остаться занятым после отката.
type idempotencyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository создаёт PostgreSQL-хранилище ключей оформления.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.DB()}
}

func (r *idempotencyRepository) CreateProcessing(ctx context.Context, claim domain.IdempotencyClaim) (domain.IdempotencyRecord, error) {
	claim.Key = strings.TrimSpace(claim.Key)
	claim.RequestHash = strings.TrimSpace(claim.RequestHash)
	switch {
	case claim.Key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case claim.RequestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if claim.TTLAt.IsZero() {
		claim.TTLAt = now.Add(24 * time.Hour)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	// Занятый ключ не перезаписывается: его состояние читается ниже.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, request_hash, user_id, status, ttl_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (key) DO NOTHING`,
		claim.Key, claim.RequestHash, claim.UserID, string(domain.IdempotencyStatusProcessing), claim.TTLAt, now,
	)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("claim idempotency key: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency rows affected: %w", err)
	}

	if inserted == 0 {
		existing, err := r.Get(ctx, claim.Key)
		if err != nil {
			return domain.IdempotencyRecord{}, fmt.Errorf("load claimed idempotency key: %w", err)
		}
		if existing.RequestHash != claim.RequestHash {
			return existing, domain.ErrIdempotencyHashMismatch
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	return domain.IdempotencyRecord{
		Key:         claim.Key,
		RequestHash: claim.RequestHash,
		UserID:      claim.UserID,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       claim.TTLAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		record     domain.IdempotencyRecord
		orderID    sql.NullString
		httpStatus sql.NullInt64
		status     string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE key = $1`, key,
	).Scan(
		&record.Key,
		&record.RequestHash,
		&record.UserID,
		&orderID,
		&record.ResponseBody,
		&httpStatus,
		&status,
		&record.TTLAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency key: %w", err)
	}

	record.Status = domain.IdempotencyStatus(status)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", status, key)
	}
	record.OrderID = orderID.String
	record.HTTPStatus = int(httpStatus.Int64)
	return record, nil
}

func (r *idempotencyRepository) Finish(ctx context.Context, key string, outcome domain.CheckoutOutcome) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status = $1, order_id = $2, response_body = $3, http_status = $4, updated_at = $5
		WHERE key = $6`,
		string(outcome.Status()),
		sql.NullString{String: outcome.OrderID, Valid: outcome.OrderID != ""},
		outcome.Body,
		outcome.HTTPStatus,
		time.Now().UTC(),
		key,
	)
	if err != nil {
		return fmt.Errorf("finish idempotency key: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

// DeleteExpired удаляет до limit старейших просроченных ключей (limit <= 0 — все)
// и возвращает, сколько из них было в каждом статусе.
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (domain.IdempotencyPurge, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `DELETE FROM idempotency_keys WHERE ttl_at <= $1 RETURNING status`
	args := []any{before}
	if limit > 0 {
		query = `
			DELETE FROM idempotency_keys
			WHERE key IN (
				SELECT key FROM idempotency_keys
				WHERE ttl_at <= $1
				ORDER BY ttl_at ASC
				LIMIT $2
			)
			RETURNING status`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.IdempotencyPurge{}, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	defer rows.Close()

	var purge domain.IdempotencyPurge
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return domain.IdempotencyPurge{}, fmt.Errorf("scan purged idempotency key: %w", err)
		}
		purge.Count(domain.IdempotencyStatus(status))
	}
	if err := rows.Err(); err != nil {
		return domain.IdempotencyPurge{}, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return purge, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
