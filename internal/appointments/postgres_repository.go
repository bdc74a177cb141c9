package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of *pgxpool.Pool used by the Postgres repository.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const appointmentColumns = `id, client_name, client_email, client_phone, appointment_date, slot,
	service_type, message, status, vehicle_id, admin_message, created_at, updated_at,
	confirmed_at, cancelled_at, completed_at`

// PostgresRepository stores appointments in the appointments table. Slot
// conflicts are serialized with a transaction-scoped advisory lock keyed on
// the slot.
type PostgresRepository struct {
	db PgxPool
}

// NewPostgresRepository creates a repository backed by a pgx pool.
func NewPostgresRepository(db PgxPool) *PostgresRepository {
	if db == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockAndCheckSlot(ctx, tx, appt); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, appointmentArgs(appt)...)
	if err != nil {
		return fmt.Errorf("appointments: insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointments: commit: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) Update(ctx context.Context, appt *Appointment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var prevSlot string
	err = tx.QueryRow(ctx, `SELECT slot FROM appointments WHERE id = $1 FOR UPDATE`, appt.ID).Scan(&prevSlot)
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{ID: appt.ID}
	}
	if err != nil {
		return fmt.Errorf("appointments: lock row: %w", err)
	}
	if prevSlot != appt.Slot && appt.Status.Live() {
		if err := lockAndCheckSlot(ctx, tx, appt); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET client_name = $2, client_email = $3, client_phone = $4, appointment_date = $5,
			slot = $6, service_type = $7, message = $8, status = $9, vehicle_id = $10,
			admin_message = $11, created_at = $12, updated_at = $13,
			confirmed_at = $14, cancelled_at = $15, completed_at = $16
		WHERE id = $1
	`, appointmentArgs(appt)...)
	if err != nil {
		return fmt.Errorf("appointments: update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointments: commit: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("appointments: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error) {
	filter = filter.normalize()

	var total int
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments WHERE ($1 = '' OR status = $1)
	`, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("appointments: count: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, string(filter.Status), filter.PageSize, filter.offset())
	if err != nil {
		return nil, 0, fmt.Errorf("appointments: list: %w", err)
	}
	items, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PostgresRepository) ListByDay(ctx context.Context, day string) ([]*Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE left(slot, 10) = $1
	`, day)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by day: %w", err)
	}
	return collectAppointments(rows)
}

// lockAndCheckSlot serializes writers on the same slot for the rest of the
// transaction and fails when another live appointment holds it.
func lockAndCheckSlot(ctx context.Context, tx pgx.Tx, appt *Appointment) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, appt.Slot); err != nil {
		return fmt.Errorf("appointments: slot lock: %w", err)
	}
	var taken bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE slot = $1 AND status <> 'CANCELLED' AND id <> $2
		)
	`, appt.Slot, appt.ID).Scan(&taken)
	if err != nil {
		return fmt.Errorf("appointments: slot check: %w", err)
	}
	if taken {
		return ErrSlotUnavailable
	}
	return nil
}

func appointmentArgs(a *Appointment) []any {
	return []any{
		a.ID, a.ClientName, a.ClientEmail, a.ClientPhone, a.AppointmentDate, a.Slot,
		string(a.ServiceType), a.Message, string(a.Status), a.VehicleID, a.AdminMessage,
		a.CreatedAt, a.UpdatedAt, a.ConfirmedAt, a.CancelledAt, a.CompletedAt,
	}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var serviceType, status string
	err := row.Scan(
		&a.ID, &a.ClientName, &a.ClientEmail, &a.ClientPhone, &a.AppointmentDate, &a.Slot,
		&serviceType, &a.Message, &status, &a.VehicleID, &a.AdminMessage,
		&a.CreatedAt, &a.UpdatedAt, &a.ConfirmedAt, &a.CancelledAt, &a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ServiceType = ServiceType(serviceType)
	a.Status = Status(status)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	out := []*Appointment{}
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows: %w", err)
	}
	return out, nil
}
