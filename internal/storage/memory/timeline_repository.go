package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// timelineRepository хранит события заказов в памяти.
type timelineRepository struct {
	s  *Store
	tx *state
}

// Append добавляет событие в хранилище.
func (r *timelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}
	return r.s.write(r.tx, func(st *state) error {
		events := append(st.timeline[event.OrderID], event)
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Occurred.Before(events[j].Occurred)
		})
		st.timeline[event.OrderID] = events
		return nil
	})
}

// List возвращает события заказа в хронологическом порядке.
func (r *timelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	var result []domain.TimelineEvent
	err := r.s.read(r.tx, func(st *state) error {
		result = slices.Clone(st.timeline[orderID])
		return nil
	})
	if result == nil {
		result = []domain.TimelineEvent{}
	}
	return result, err
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
