package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/db"
)

const activeSlotConstraint = "appointments_active_slot_uq"

const appointmentColumns = `id, therapist_id, patient_id, appointment_date, appointment_time,
	ledger_weekday, ledger_date, status, appointment_type, package_type, payment_status,
	duration_minutes, notes, child_details, created_at, updated_at`

const therapistColumns = `id, name, specializations, time_zone, availability, created_at, updated_at`

type PgRepository struct {
	db db.DB
}

func NewPgRepository(pool db.DB) *PgRepository {
	return &PgRepository{db: pool}
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, persistence("scan patient", err)
	}

	p.Email = email
	return &p, nil
}

func scanTherapist(row pgx.Row) (*Therapist, error) {
	var t Therapist
	var raw []byte

	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Specializations,
		&t.TimeZone,
		&raw,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTherapistNotFound
		}
		return nil, persistence("scan therapist", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &t.Availability); err != nil {
			return nil, persistence("decode availability", err)
		}
	}
	return &t, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var child []byte

	err := row.Scan(
		&a.ID,
		&a.TherapistID,
		&a.PatientID,
		&a.AppointmentDate,
		&a.AppointmentTime,
		&a.LedgerWeekday,
		&a.LedgerDate,
		&a.Status,
		&a.AppointmentType,
		&a.PackageType,
		&a.PaymentStatus,
		&a.DurationMinutes,
		&a.Notes,
		&child,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, persistence("scan appointment", err)
	}

	if len(child) > 0 && string(child) != "null" {
		var cd ChildDetails
		if err := json.Unmarshal(child, &cd); err != nil {
			return nil, persistence("decode child details", err)
		}
		a.ChildDetails = &cd
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence("iterate appointments", err)
	}

	return result, nil
}

func statusStrings(statuses []AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetTherapistByID(ctx context.Context, id uuid.UUID) (*Therapist, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+therapistColumns+`
		FROM therapists
		WHERE id = $1
	`, id)
	return scanTherapist(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// WithTherapist holds the therapist row with SELECT ... FOR UPDATE for the whole
// read-modify-write of the availability document. Concurrent bookings for the
// same therapist queue on the row lock instead of overwriting each other.
func (r *PgRepository) WithTherapist(ctx context.Context, therapistID uuid.UUID, fn func(ctx context.Context, tx Tx, t *Therapist) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return persistence("begin", err)
	}

	row := tx.QueryRow(ctx, `
		SELECT `+therapistColumns+`
		FROM therapists
		WHERE id = $1
		FOR UPDATE
	`, therapistID)
	th, err := scanTherapist(row)
	if err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := fn(ctx, &pgTx{tx: tx}, th); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return persistence("commit", err)
	}
	return nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) (ListResult, error) {
	where := []string{"(therapist_id = $1 OR patient_id = $1)"}
	args := []any{f.ParticipantID}
	order := "appointment_date ASC, appointment_time ASC"

	switch f.Kind {
	case ListPast:
		args = append(args, f.Now)
		where = append(where, fmt.Sprintf("appointment_date < $%d", len(args)))
		order = "appointment_date DESC, appointment_time DESC"
	case ListCompleted:
		args = append(args, string(StatusCompleted))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
		order = "appointment_date DESC, appointment_time DESC"
	case ListUpcoming:
		args = append(args, f.Now)
		where = append(where, fmt.Sprintf("appointment_date >= $%d", len(args)))
		args = append(args, statusStrings(ActiveStatuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	clause := strings.Join(where, " AND ")
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ` + clause + ` ORDER BY ` + order

	queryArgs := args
	if f.Limit > 0 {
		queryArgs = append(append([]any{}, args...), f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	}

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return ListResult{}, persistence("list appointments", err)
	}
	appts, err := collectAppointments(rows)
	if err != nil {
		return ListResult{}, err
	}

	total := len(appts)
	if f.Limit > 0 {
		if err := r.db.QueryRow(ctx, `SELECT count(*) FROM appointments WHERE `+clause, args...).Scan(&total); err != nil {
			return ListResult{}, persistence("count appointments", err)
		}
	}

	return ListResult{Appointments: appts, Total: total}, nil
}

func (r *PgRepository) FindByLedgerDays(ctx context.Context, from, to time.Time, statuses []AppointmentStatus) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ledger_date BETWEEN $1 AND $2
		  AND status = ANY($3)
		ORDER BY ledger_date, appointment_time
	`, from, to, statusStrings(statuses))
	if err != nil {
		return nil, persistence("find by ledger days", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindBeforeLedgerDay(ctx context.Context, day time.Time, statuses []AppointmentStatus) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ledger_date < $1
		  AND status = ANY($2)
	`, day, statusStrings(statuses))
	if err != nil {
		return nil, persistence("find before ledger day", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) LinkParticipants(ctx context.Context, therapistID, patientID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO therapist_patients (therapist_id, patient_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT DO NOTHING
	`, therapistID, patientID)
	if err != nil {
		return persistence("link participants", err)
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return persistence("insert event log", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// pgTx implements Tx on an open transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (t *pgTx) SaveAvailability(ctx context.Context, therapistID uuid.UUID, av availability.Availability) error {
	data, err := json.Marshal(av)
	if err != nil {
		return persistence("encode availability", err)
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE therapists
		SET availability = $2,
		    updated_at = now()
		WHERE id = $1
	`, therapistID, data)
	if err != nil {
		return persistence("save availability", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTherapistNotFound
	}
	return nil
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	child, err := encodeChild(a.ChildDetails)
	if err != nil {
		return err
	}

	row := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.TherapistID, a.PatientID, a.AppointmentDate, a.AppointmentTime,
		a.LedgerWeekday, a.LedgerDate, a.Status, a.AppointmentType, a.PackageType, a.PaymentStatus,
		a.DurationMinutes, a.Notes, child,
	)
	saved, err := scanAppointment(row)
	if err != nil {
		if db.IsUniqueViolation(err, activeSlotConstraint) {
			return ErrSlotAlreadyBooked
		}
		return err
	}

	*a = *saved
	return nil
}

func (t *pgTx) UpdateAppointment(ctx context.Context, a *Appointment) error {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET appointment_date = $2,
		    appointment_time = $3,
		    ledger_weekday = $4,
		    ledger_date = $5,
		    status = $6,
		    notes = $7,
		    payment_status = $8,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		a.ID, a.AppointmentDate, a.AppointmentTime, a.LedgerWeekday, a.LedgerDate,
		a.Status, a.Notes, a.PaymentStatus,
	)
	saved, err := scanAppointment(row)
	if err != nil {
		if db.IsUniqueViolation(err, activeSlotConstraint) {
			return ErrSlotAlreadyBooked
		}
		return err
	}

	*a = *saved
	return nil
}

func (t *pgTx) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM soap_notes WHERE appointment_id = $1`, id); err != nil {
		return persistence("delete soap notes", err)
	}

	tag, err := t.tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return persistence("delete appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func encodeChild(cd *ChildDetails) ([]byte, error) {
	if cd == nil {
		return nil, nil
	}
	data, err := json.Marshal(cd)
	if err != nil {
		return nil, persistence("encode child details", err)
	}
	return data, nil
}
