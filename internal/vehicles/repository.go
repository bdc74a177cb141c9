package vehicles

import (
	"context"
	"sort"
	"sync"
)

// Repository stores catalog entries.
type Repository interface {
	Create(ctx context.Context, v *Vehicle) error
	Get(ctx context.Context, id string) (*Vehicle, error)
	Update(ctx context.Context, v *Vehicle) error
	Delete(ctx context.Context, id string) error
	// All returns every vehicle, newest first.
	All(ctx context.Context) ([]*Vehicle, error)
}

// MemoryRepository keeps vehicles in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	vehicles map[string]*Vehicle
}

// NewMemoryRepository creates an empty in-memory catalog.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{vehicles: make(map[string]*Vehicle)}
}

func (r *MemoryRepository) Create(_ context.Context, v *Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vehicles[v.ID] = v.clone()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vehicles[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return v.clone(), nil
}

func (r *MemoryRepository) Update(_ context.Context, v *Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vehicles[v.ID]; !ok {
		return &NotFoundError{ID: v.ID}
	}
	r.vehicles[v.ID] = v.clone()
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vehicles[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(r.vehicles, id)
	return nil
}

func (r *MemoryRepository) All(_ context.Context) ([]*Vehicle, error) {
	r.mu.RLock()
	out := make([]*Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		out = append(out, v.clone())
	}
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out, nil
}

func newer(a, b *Vehicle) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
