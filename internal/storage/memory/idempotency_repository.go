package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// idempotencyRepository живёт отдельно от Store: ключи захватываются до транзакции
// оформления и переживают её откат.
type idempotencyRepository struct {
	mu   sync.RWMutex
	keys map[string]domain.IdempotencyRecord
	now  func() time.Time
}

// NewIdempotencyRepository создаёт in-memory хранилище ключей оформления.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &idempotencyRepository{
		keys: make(map[string]domain.IdempotencyRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *idempotencyRepository) CreateProcessing(_ context.Context, claim domain.IdempotencyClaim) (domain.IdempotencyRecord, error) {
	claim.Key = strings.TrimSpace(claim.Key)
	claim.RequestHash = strings.TrimSpace(claim.RequestHash)
	switch {
	case claim.Key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case claim.RequestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now()
	if claim.TTLAt.IsZero() {
		claim.TTLAt = now.Add(24 * time.Hour)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.keys[claim.Key]; ok {
		if existing.RequestHash != claim.RequestHash {
			return copyRecord(existing), domain.ErrIdempotencyHashMismatch
		}
		return copyRecord(existing), domain.ErrIdempotencyKeyAlreadyExists
	}

	record := domain.IdempotencyRecord{
		Key:         claim.Key,
		RequestHash: claim.RequestHash,
		UserID:      claim.UserID,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       claim.TTLAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.keys[claim.Key] = record
	return copyRecord(record), nil
}

func (r *idempotencyRepository) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.keys[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(record), nil
}

func (r *idempotencyRepository) Finish(_ context.Context, key string, outcome domain.CheckoutOutcome) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.keys[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}

	record.Status = outcome.Status()
	record.OrderID = outcome.OrderID
	record.HTTPStatus = outcome.HTTPStatus
	record.ResponseBody = append([]byte(nil), outcome.Body...)
	record.UpdatedAt = r.now()
	r.keys[key] = record
	return nil
}

func (r *idempotencyRepository) DeleteExpired(_ context.Context, before time.Time, limit int) (domain.IdempotencyPurge, error) {
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	expired := make([]domain.IdempotencyRecord, 0)
	for _, record := range r.keys {
		if !record.TTLAt.After(before) {
			expired = append(expired, record)
		}
	}
	// Старейшие ключи удаляются первыми, как в PostgreSQL.
	sort.Slice(expired, func(i, j int) bool { return expired[i].TTLAt.Before(expired[j].TTLAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	var purge domain.IdempotencyPurge
	for _, record := range expired {
		delete(r.keys, record.Key)
		purge.Count(record.Status)
	}
	return purge, nil
}

func copyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.ResponseBody = append([]byte(nil), src.ResponseBody...)
	return dst
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
