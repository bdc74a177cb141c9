package appointments

import (
	"context"
	"sort"
	"sync"
)

// Repository persists appointments. Implementations guarantee that at most one
// live appointment is created for a given slot.
type Repository interface {
	// Create stores a new appointment or returns ErrSlotUnavailable when a live
	// appointment already holds the slot.
	Create(ctx context.Context, appt *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)
	// Update replaces a stored appointment. Moving a live appointment to a
	// different slot requires that slot to be free. A status change on the same
	// slot never fails on conflicts.
	Update(ctx context.Context, appt *Appointment) error
	Delete(ctx context.Context, id string) error
	// List returns one page of appointments, newest first, and the total count.
	List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error)
	// ListByDay returns every appointment whose slot falls on day (YYYY-MM-DD).
	ListByDay(ctx context.Context, day string) ([]*Appointment, error)
}

// MemoryRepository keeps appointments in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Appointment
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]*Appointment)}
}

func (r *MemoryRepository) Create(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slotTakenLocked(appt.Slot, appt.ID) {
		return ErrSlotUnavailable
	}
	r.items[appt.ID] = appt.clone()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	appt, ok := r.items[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return appt.clone(), nil
}

func (r *MemoryRepository) Update(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.items[appt.ID]
	if !ok {
		return &NotFoundError{ID: appt.ID}
	}
	if prev.Slot != appt.Slot && appt.Status.Live() && r.slotTakenLocked(appt.Slot, appt.ID) {
		return ErrSlotUnavailable
	}
	r.items[appt.ID] = appt.clone()
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(r.items, id)
	return nil
}

func (r *MemoryRepository) List(_ context.Context, filter ListFilter) ([]*Appointment, int, error) {
	filter = filter.normalize()
	r.mu.RLock()
	matched := make([]*Appointment, 0, len(r.items))
	for _, appt := range r.items {
		if filter.Status != "" && appt.Status != filter.Status {
			continue
		}
		matched = append(matched, appt.clone())
	}
	r.mu.RUnlock()

	sortNewestFirst(matched)
	total := len(matched)
	start := filter.offset()
	if start >= total {
		return []*Appointment{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryRepository) ListByDay(_ context.Context, day string) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Appointment
	for _, appt := range r.items {
		if appt.Day() == day {
			out = append(out, appt.clone())
		}
	}
	return out, nil
}

func (r *MemoryRepository) slotTakenLocked(slot, exceptID string) bool {
	for id, appt := range r.items {
		if id != exceptID && appt.Slot == slot && appt.Status.Live() {
			return true
		}
	}
	return false
}

func sortNewestFirst(items []*Appointment) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
