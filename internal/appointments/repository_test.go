package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRepository(client), mr
}

func testAppointment(id, slot string, created time.Time) *Appointment {
	date, _ := time.Parse(slotLayout, slot)
	return &Appointment{
		ID:              id,
		ClientName:      "Client " + id,
		ClientEmail:     id + "@example.com",
		ClientPhone:     "+33612345678",
		AppointmentDate: date,
		Slot:            slot,
		ServiceType:     ServiceMeeting,
		Status:          StatusPending,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		appt := testAppointment("a1", "2025-06-10T14:00", base)
		require.NoError(t, repo.Create(ctx, appt))

		got, err := repo.Get(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, appt.ClientEmail, got.ClientEmail)
		assert.Equal(t, StatusPending, got.Status)
		assert.True(t, got.CreatedAt.Equal(base))

		_, err = repo.Get(ctx, "nope")
		assert.True(t, IsNotFound(err))
	})

	t.Run("second live booking on slot is rejected", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, testAppointment("a1", "2025-06-10T14:00", base)))
		err := repo.Create(ctx, testAppointment("a2", "2025-06-10T14:00", base.Add(time.Minute)))
		assert.ErrorIs(t, err, ErrSlotUnavailable)
		_, err = repo.Get(ctx, "a2")
		assert.True(t, IsNotFound(err))
	})

	t.Run("cancel frees the slot", func(t *testing.T) {
		repo := newRepo(t)
		appt := testAppointment("a1", "2025-06-10T14:00", base)
		require.NoError(t, repo.Create(ctx, appt))
		appt.applyStatus(StatusCancelled, base.Add(time.Hour))
		require.NoError(t, repo.Update(ctx, appt))

		require.NoError(t, repo.Create(ctx, testAppointment("a2", "2025-06-10T14:00", base.Add(2*time.Hour))))

		// Restoring the cancelled booking is allowed even though a2 holds the slot.
		appt.applyStatus(StatusPending, base.Add(3*time.Hour))
		require.NoError(t, repo.Update(ctx, appt))

		// a1 still occupies the slot once a2 is cancelled.
		a2, err := repo.Get(ctx, "a2")
		require.NoError(t, err)
		a2.applyStatus(StatusCancelled, base.Add(4*time.Hour))
		require.NoError(t, repo.Update(ctx, a2))
		err = repo.Create(ctx, testAppointment("a3", "2025-06-10T14:00", base.Add(5*time.Hour)))
		assert.ErrorIs(t, err, ErrSlotUnavailable)

		appt.applyStatus(StatusCancelled, base.Add(6*time.Hour))
		require.NoError(t, repo.Update(ctx, appt))
		require.NoError(t, repo.Create(ctx, testAppointment("a3", "2025-06-10T14:00", base.Add(7*time.Hour))))
	})

	t.Run("concurrent bookings on one slot admit exactly one", func(t *testing.T) {
		repo := newRepo(t)
		const clients = 20
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			booked    int
			conflicts int
		)
		for i := 0; i < clients; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := repo.Create(ctx, testAppointment(fmt.Sprintf("c%02d", i), "2025-06-10T15:00", base.Add(time.Duration(i)*time.Second)))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					booked++
				case errors.Is(err, ErrSlotUnavailable):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, booked)
		assert.Equal(t, clients-1, conflicts)

		items, err := repo.ListByDay(ctx, "2025-06-10")
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("delete frees the slot", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, testAppointment("a1", "2025-06-10T14:00", base)))
		require.NoError(t, repo.Delete(ctx, "a1"))
		assert.True(t, IsNotFound(repo.Delete(ctx, "a1")))
		require.NoError(t, repo.Create(ctx, testAppointment("a2", "2025-06-10T14:00", base)))
	})

	t.Run("moving to a taken slot fails", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, testAppointment("a1", "2025-06-10T14:00", base)))
		require.NoError(t, repo.Create(ctx, testAppointment("a2", "2025-06-11T10:00", base)))

		moved := testAppointment("a1", "2025-06-11T10:00", base)
		moved.applyStatus(StatusRescheduled, base.Add(time.Hour))
		assert.ErrorIs(t, repo.Update(ctx, moved), ErrSlotUnavailable)

		free := testAppointment("a1", "2025-06-12T09:00", base)
		free.applyStatus(StatusRescheduled, base.Add(time.Hour))
		require.NoError(t, repo.Update(ctx, free))

		byDay, err := repo.ListByDay(ctx, "2025-06-10")
		require.NoError(t, err)
		assert.Empty(t, byDay)
		require.NoError(t, repo.Create(ctx, testAppointment("a3", "2025-06-10T14:00", base)))

		got, err := repo.Get(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, StatusRescheduled, got.Status)
		assert.Equal(t, "2025-06-12T09:00", got.Slot)
	})

	t.Run("list is newest first with status filter", func(t *testing.T) {
		repo := newRepo(t)
		for i := 0; i < 7; i++ {
			appt := testAppointment(fmt.Sprintf("a%d", i), fmt.Sprintf("2025-06-1%dT09:00", i), base.Add(time.Duration(i)*time.Minute))
			require.NoError(t, repo.Create(ctx, appt))
		}
		confirmed, err := repo.Get(ctx, "a2")
		require.NoError(t, err)
		confirmed.applyStatus(StatusConfirmed, base.Add(time.Hour))
		require.NoError(t, repo.Update(ctx, confirmed))

		items, total, err := repo.List(ctx, ListFilter{Page: 1, PageSize: 3})
		require.NoError(t, err)
		assert.Equal(t, 7, total)
		require.Len(t, items, 3)
		assert.Equal(t, []string{"a6", "a5", "a4"}, []string{items[0].ID, items[1].ID, items[2].ID})

		items, total, err = repo.List(ctx, ListFilter{Page: 3, PageSize: 3})
		require.NoError(t, err)
		assert.Equal(t, 7, total)
		require.Len(t, items, 1)
		assert.Equal(t, "a0", items[0].ID)

		items, total, err = repo.List(ctx, ListFilter{Status: StatusConfirmed})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, items, 1)
		assert.Equal(t, "a2", items[0].ID)

		items, total, err = repo.List(ctx, ListFilter{Status: StatusPending})
		require.NoError(t, err)
		assert.Equal(t, 6, total)
		assert.Len(t, items, 6)
	})

	t.Run("list by day", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, testAppointment("a1", "2025-06-10T09:00", base)))
		require.NoError(t, repo.Create(ctx, testAppointment("a2", "2025-06-10T14:00", base)))
		require.NoError(t, repo.Create(ctx, testAppointment("a3", "2025-06-11T14:00", base)))

		items, err := repo.ListByDay(ctx, "2025-06-10")
		require.NoError(t, err)
		assert.Len(t, items, 2)

		items, err = repo.ListByDay(ctx, "2025-07-01")
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestMemoryRepositoryContract(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) Repository { return NewMemoryRepository() })
}

func TestRedisRepositoryContract(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) Repository {
		repo, _ := newRedisRepo(t)
		return repo
	})
}

func TestRedisRepositoryKeys(t *testing.T) {
	repo, mr := newRedisRepo(t)
	ctx := context.Background()
	appt := testAppointment("a1", "2025-06-10T14:00", time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Create(ctx, appt))

	assert.True(t, mr.Exists("appointment:a1"))
	holders, err := repo.redis.SMembers(ctx, "appointments:slot:2025-06-10T14:00").Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, holders)
	members, err := mr.ZMembers("appointments:status:PENDING")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, members)
	isMember, err := mr.SIsMember("appointments:day:2025-06-10", "a1")
	require.NoError(t, err)
	assert.True(t, isMember)

	appt.applyStatus(StatusCancelled, time.Now())
	require.NoError(t, repo.Update(ctx, appt))
	assert.False(t, repo.redis.SIsMember(ctx, "appointments:slot:2025-06-10T14:00", "a1").Val())
	members, err = mr.ZMembers("appointments:status:CANCELLED")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, members)
	_, pending, err := repo.List(ctx, ListFilter{Status: StatusPending})
	require.NoError(t, err)
	assert.Zero(t, pending)

	require.NoError(t, repo.Delete(ctx, "a1"))
	assert.False(t, mr.Exists("appointment:a1"))
	assert.False(t, repo.redis.SIsMember(ctx, "appointments:day:2025-06-10", "a1").Val())
}

func TestRedisRepositoryRestoreSharesSlot(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	a1 := testAppointment("a1", "2025-06-10T14:00", base)
	require.NoError(t, repo.Create(ctx, a1))
	a1.applyStatus(StatusCancelled, base.Add(time.Hour))
	require.NoError(t, repo.Update(ctx, a1))
	require.NoError(t, repo.Create(ctx, testAppointment("a2", "2025-06-10T14:00", base.Add(2*time.Hour))))
	a1.applyStatus(StatusPending, base.Add(3*time.Hour))
	require.NoError(t, repo.Update(ctx, a1))

	holders, err := repo.redis.SMembers(ctx, "appointments:slot:2025-06-10T14:00").Result()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2"}, holders)
}

func TestRedisRepositoryUpdateRejectsStaleDocument(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, testAppointment("a1", "2025-06-10T14:00", base)))

	_, raw, err := repo.get(ctx, "a1")
	require.NoError(t, err)
	changed := testAppointment("a1", "2025-06-10T14:00", base)
	changed.applyStatus(StatusConfirmed, base.Add(time.Hour))
	data, err := json.Marshal(changed)
	require.NoError(t, err)
	require.NoError(t, repo.redis.Set(ctx, "appointment:a1", data, 0).Err())

	keys := []string{
		"appointment:a1",
		"appointments:slot:2025-06-10T14:00", "appointments:slot:2025-06-10T14:00",
		"appointments:status:PENDING", "appointments:status:CANCELLED",
		"appointments:day:2025-06-10", "appointments:day:2025-06-10",
	}
	res, err := updateScript.Run(ctx, repo.redis, keys, "a1", raw, "{}", 0, "0", "0", appointmentKeyPrefix).Int()
	require.NoError(t, err)
	assert.Equal(t, scriptChanged, res)

	got, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
}

func TestRedisRepositoryPrunesOrphanedSlotMembers(t *testing.T) {
	repo, mr := newRedisRepo(t)
	_, err := mr.SetAdd("appointments:slot:2025-06-10T14:00", "ghost")
	require.NoError(t, err)

	err = repo.Create(context.Background(), testAppointment("a1", "2025-06-10T14:00", time.Now()))
	require.NoError(t, err)
	holders, err := mr.Members("appointments:slot:2025-06-10T14:00")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, holders)
}

func TestRedisRepositoryUnavailable(t *testing.T) {
	repo, mr := newRedisRepo(t)
	mr.Close()

	_, err := repo.ListByDay(context.Background(), "2025-06-10")
	assert.Error(t, err)
	err = repo.Create(context.Background(), testAppointment("a1", "2025-06-10T14:00", time.Now()))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSlotUnavailable)
}
