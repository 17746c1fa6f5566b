package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// DefaultTTL — время хранения ответа по ключу идемпотентности.
const DefaultTTL = 24 * time.Hour

// Replay — сохранённый ответ на повторный запрос с тем же ключом.
type Replay struct {
	HTTPStatus int
	Body       []byte
	// OrderID заказа, созданного по ключу; пусто для неудачного оформления.
	OrderID string
}

// Guard не даёт выполнить оформление заказа дважды по одному Idempotency-Key.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// NewGuard создаёт Guard. ttl <= 0 означает DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{
		repo:   repo,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// RequestHash строит отпечаток запроса из его частей (метод, путь, пользователь, тело).
func RequestHash(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Begin резервирует ключ за запросом оформления userID. Если ключ уже завершён,
// возвращает сохранённый ответ (replay != nil).
// Ключ в обработке — ErrIdempotencyInProgress, другой запрос с тем же ключом — ErrIdempotencyHashMismatch.
func (g *Guard) Begin(ctx context.Context, key, requestHash string, userID int64) (*Replay, error) {
	record, err := g.repo.CreateProcessing(ctx, domain.IdempotencyClaim{
		Key:         key,
		RequestHash: requestHash,
		UserID:      userID,
		TTLAt:       g.now().Add(g.ttl),
	})
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return nil, err
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Finished() {
			return &Replay{HTTPStatus: record.HTTPStatus, Body: record.ResponseBody, OrderID: record.OrderID}, nil
		}
		if record.Status == domain.IdempotencyStatusProcessing {
			return nil, domain.ErrIdempotencyInProgress
		}
		return nil, fmt.Errorf("unknown idempotency status %q", record.Status)
	default:
		return nil, err
	}
}

// Complete сохраняет ответ оформления. ID заказа берётся из поля id успешного ответа.
func (g *Guard) Complete(ctx context.Context, key string, httpStatus int, body []byte) {
	outcome := domain.CheckoutOutcome{HTTPStatus: httpStatus, Body: body}
	if httpStatus >= 200 && httpStatus < 300 {
		outcome.OrderID = orderIDFromBody(body)
	}
	if err := g.repo.Finish(ctx, key, outcome); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store checkout response")
		return
	}
	if outcome.Status() == domain.IdempotencyStatusDone {
		g.logger.WithFields(log.Fields{
			"idempotency_key": key,
			"order_id":        outcome.OrderID,
		}).Debug("checkout response stored")
	}
}

func orderIDFromBody(body []byte) string {
	var order struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &order); err != nil {
		return ""
	}
	return order.ID
}
