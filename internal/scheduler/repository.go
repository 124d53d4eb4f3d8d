package scheduler

import (
	"context"
	"sort"
	"sync"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

// Repository stores schedules and their execution history
// ⭐ SSOT: 스케줄 영속화 인터페이스
type Repository interface {
	// Get returns the schedule with its executions in recorded order
	Get(ctx context.Context, id string) (*contracts.Schedule, error)
	// Put inserts or updates the schedule row; executions are not touched
	Put(ctx context.Context, s *contracts.Schedule) error
	List(ctx context.Context) ([]*contracts.Schedule, error)
	Delete(ctx context.Context, id string) error
	AppendExecution(ctx context.Context, e contracts.ScheduleExecution) error
}

// MemoryRepository is an in-process Repository
type MemoryRepository struct {
	mu        sync.RWMutex
	schedules map[string]*contracts.Schedule
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{schedules: make(map[string]*contracts.Schedule)}
}

// Get implements Repository
func (r *MemoryRepository) Get(ctx context.Context, id string) (*contracts.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schedules[id]
	if !ok {
		return nil, contracts.NotFound("schedule", id)
	}
	return s.Clone(), nil
}

// Put implements Repository
func (r *MemoryRepository) Put(ctx context.Context, s *contracts.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := s.Clone()
	if existing, ok := r.schedules[s.ID]; ok {
		c.Executions = existing.Executions
	} else {
		c.Executions = nil
	}
	r.schedules[s.ID] = c
	return nil
}

// List implements Repository; ordered by creation time
func (r *MemoryRepository) List(ctx context.Context) ([]*contracts.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*contracts.Schedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete implements Repository
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.schedules[id]; !ok {
		return contracts.NotFound("schedule", id)
	}
	delete(r.schedules, id)
	return nil
}

// AppendExecution implements Repository
func (r *MemoryRepository) AppendExecution(ctx context.Context, e contracts.ScheduleExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schedules[e.ScheduleID]
	if !ok {
		return contracts.NotFound("schedule", e.ScheduleID)
	}
	s.Executions = append(s.Executions, e)
	return nil
}
