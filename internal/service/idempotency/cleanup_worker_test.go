package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

var _ domain.IdempotencyRepository = (*stubCleanupRepo)(nil)

func TestCleanupWorker_DeleteExpired_Batches(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{
		deleteResults: []domain.IdempotencyPurge{
			{Done: 2},
			{Done: 1, Failed: 1},
			{Processing: 1},
		},
	}

	worker := NewCleanupWorker(repo, WithBatchSize(2))

	purge, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}

	want := domain.IdempotencyPurge{Done: 3, Failed: 1, Processing: 1}
	if purge != want {
		t.Fatalf("unexpected purge: got=%+v want=%+v", purge, want)
	}

	if calls := repo.calls(); calls != 3 {
		t.Fatalf("unexpected delete calls: got=%d want=3", calls)
	}
}

func TestCleanupWorker_DeleteExpired_Error(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{
		deleteErrors: []error{errors.New("boom")},
	}

	worker := NewCleanupWorker(repo, WithBatchSize(10))

	purge, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("expected DeleteExpired error")
	}
	if purge.Total() != 0 {
		t.Fatalf("unexpected deleted total: got=%d want=0", purge.Total())
	}
}

func TestCleanupWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{
		deleteResults: []domain.IdempotencyPurge{{}, {}, {}},
	}

	worker := NewCleanupWorker(
		repo,
		WithInterval(5*time.Millisecond),
		WithBatchSize(10),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}

	if calls := repo.calls(); calls == 0 {
		t.Fatal("expected cleanup to be called at least once")
	}
}

func TestCleanupWorker_WarnsAboutUnfinishedCheckouts(t *testing.T) {
	t.Parallel()

	logger, hook := logtest.NewNullLogger()
	repo := &stubCleanupRepo{
		deleteResults: []domain.IdempotencyPurge{{Done: 1, Processing: 2}},
	}
	worker := NewCleanupWorker(repo, WithBatchSize(10), WithLogger(logger.WithField("component", "cleanup-test")))

	worker.cleanup(context.Background(), time.Now().UTC())

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Level != log.WarnLevel {
		t.Fatalf("unexpected level: got=%s want=%s", entry.Level, log.WarnLevel)
	}
	if got := entry.Data["processing"]; got != 2 {
		t.Fatalf("unexpected processing field: %v", got)
	}
}

func TestCleanupWorker_ZeroCutoffUsesClock(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	repo := &stubCleanupRepo{}
	worker := NewCleanupWorker(repo, WithCleanupClock(func() time.Time { return now }))

	if _, err := worker.DeleteExpired(context.Background(), time.Time{}); err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if !repo.lastBefore.Equal(now) {
		t.Fatalf("unexpected cutoff: got=%s want=%s", repo.lastBefore, now)
	}
}

func TestCleanupWorker_CancelledContextStopsBeforeDelete(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCleanupWorker(repo).DeleteExpired(ctx, time.Now().UTC())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls := repo.calls(); calls != 0 {
		t.Fatalf("unexpected delete calls: got=%d want=0", calls)
	}
}

type stubCleanupRepo struct {
	mu sync.Mutex

	deleteResults []domain.IdempotencyPurge
	deleteErrors  []error
	callCount     int
	lastBefore    time.Time
}

func (s *stubCleanupRepo) CreateProcessing(context.Context, domain.IdempotencyClaim) (domain.IdempotencyRecord, error) {
	panic("not implemented")
}

func (s *stubCleanupRepo) Get(context.Context, string) (domain.IdempotencyRecord, error) {
	panic("not implemented")
}

func (s *stubCleanupRepo) Finish(context.Context, string, domain.CheckoutOutcome) error {
	panic("not implemented")
}

func (s *stubCleanupRepo) DeleteExpired(_ context.Context, before time.Time, _ int) (domain.IdempotencyPurge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.lastBefore = before

	if len(s.deleteErrors) > 0 {
		err := s.deleteErrors[0]
		s.deleteErrors = s.deleteErrors[1:]
		if err != nil {
			return domain.IdempotencyPurge{}, err
		}
	}

	if len(s.deleteResults) == 0 {
		return domain.IdempotencyPurge{}, nil
	}
	result := s.deleteResults[0]
	s.deleteResults = s.deleteResults[1:]
	return result, nil
}

func (s *stubCleanupRepo) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}
