package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
)

var (
	cleanupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_idempotency_cleanup_runs_total",
		Help: "Checkout key cleanup runs grouped by result.",
	}, []string{"result"})
	cleanupDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_idempotency_cleanup_deleted_total",
		Help: "Total number of deleted expired checkout idempotency keys grouped by key status.",
	}, []string{"status"})
	cleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shop_idempotency_cleanup_last_deleted",
		Help: "Checkout keys removed by the most recent cleanup run.",
	})
)

// CleanupWorker удаляет ключи оформления, у которых истёк TTL.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	logger    *log.Entry
	now       func() time.Time
	interval  time.Duration
	batchSize int
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithInterval задаёт паузу между проходами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

func WithBatchSize(batchSize int) CleanupOption {
	return func(w *CleanupWorker) {
		if batchSize > 0 {
			w.batchSize = batchSize
		}
	}
}

func WithCleanupClock(now func() time.Time) CleanupOption {
	return func(w *CleanupWorker) {
		if now != nil {
			w.now = now
		}
	}
}

func NewCleanupWorker(repo domain.IdempotencyRepository, opts ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:      repo,
		logger:    log.WithField("component", "checkout-key-cleanup"),
		now:       func() time.Time { return time.Now().UTC() },
		interval:  defaultCleanupInterval,
		batchSize: defaultCleanupBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run чистит ключи сразу и затем каждые interval, пока ctx не отменён.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("checkout key cleanup disabled: no idempotency repository")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.cleanup(ctx, w.now())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context, before time.Time) {
	purge, err := w.DeleteExpired(ctx, before)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		cleanupRuns.WithLabelValues("error").Inc()
		w.logger.WithError(err).WithField("removed", purge.Total()).Warn("checkout key cleanup failed")
		return
	}

	cleanupRuns.WithLabelValues("ok").Inc()
	cleanupLastDeleted.Set(float64(purge.Total()))
	if purge.Total() == 0 {
		return
	}

	entry := w.logger.WithFields(log.Fields{
		"deleted":    purge.Total(),
		"done":       purge.Done,
		"failed":     purge.Failed,
		"processing": purge.Processing,
	})
	if purge.Processing > 0 {
		// Ключ в processing до истечения TTL: оформление прервалось, не сохранив ответ.
		entry.Warn("expired checkout keys were never completed")
		return
	}
	entry.Info("expired checkout keys removed")
}

// DeleteExpired удаляет все ключи с ttl <= before порциями batchSize.
// Нулевое before означает текущий момент.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (domain.IdempotencyPurge, error) {
	if before.IsZero() {
		before = w.now()
	}

	var total domain.IdempotencyPurge
	for ctx.Err() == nil {
		purge, err := w.repo.DeleteExpired(ctx, before, w.batchSize)
		if err != nil {
			return total, err
		}
		total.Add(purge)
		observePurge(purge)

		if purge.Total() < w.batchSize {
			return total, nil
		}
	}
	return total, ctx.Err()
}

func observePurge(purge domain.IdempotencyPurge) {
	for status, n := range map[domain.IdempotencyStatus]int{
		domain.IdempotencyStatusDone:       purge.Done,
		domain.IdempotencyStatusFailed:     purge.Failed,
		domain.IdempotencyStatusProcessing: purge.Processing,
	} {
		if n > 0 {
			cleanupDeleted.WithLabelValues(string(status)).Add(float64(n))
		}
	}
}
