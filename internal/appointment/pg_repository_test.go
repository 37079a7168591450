package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
)

var (
	therapistCols   = []string{"id", "name", "specializations", "time_zone", "availability", "created_at", "updated_at"}
	appointmentCols = []string{
		"id", "therapist_id", "patient_id", "appointment_date", "appointment_time",
		"ledger_weekday", "ledger_date", "status", "appointment_type", "package_type", "payment_status",
		"duration_minutes", "notes", "child_details", "created_at", "updated_at",
	}
)

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewPgRepository(mock), mock
}

func therapistRow(id uuid.UUID) *pgxmock.Rows {
	specialty := "speech"
	tz := "America/New_York"
	doc := []byte(`{"consultationDays":[{"day":"Monday","available":true,"slots":[{"start":"09:00","end":"09:30","available":true,"bookedDates":["2025-03-10T00:00:00Z"]}]}]}`)
	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	return pgxmock.NewRows(therapistCols).AddRow(id, "Dr. Ada", &specialty, &tz, doc, now, now)
}

func appointmentRow(a Appointment, child []byte) *pgxmock.Rows {
	return pgxmock.NewRows(appointmentCols).AddRow(
		a.ID, a.TherapistID, a.PatientID, a.AppointmentDate, a.AppointmentTime,
		a.LedgerWeekday, a.LedgerDate, a.Status, a.AppointmentType, a.PackageType, a.PaymentStatus,
		a.DurationMinutes, a.Notes, child, a.CreatedAt, a.UpdatedAt,
	)
}

func sampleAppointment() Appointment {
	day := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	return Appointment{
		ID:              uuid.New(),
		TherapistID:     uuid.New(),
		PatientID:       uuid.New(),
		AppointmentDate: day,
		AppointmentTime: "09:00",
		LedgerWeekday:   "Monday",
		LedgerDate:      day,
		Status:          StatusRequested,
		AppointmentType: "assessment",
		PackageType:     PackageVideoCall,
		PaymentStatus:   PaymentPending,
		DurationMinutes: 30,
		Notes:           "",
		CreatedAt:       day,
		UpdatedAt:       day,
	}
}

func TestPgRepositoryGetPatientNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("FROM patients").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetPatientByID(context.Background(), id)
	require.ErrorIs(t, err, ErrPatientNotFound)
}

func TestPgRepositoryGetTherapistDecodesAvailability(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("FROM therapists").WithArgs(id).WillReturnRows(therapistRow(id))

	th, err := repo.GetTherapistByID(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, th.Availability.ConsultationDays, 1)

	slot := th.Availability.ConsultationDays[0].Slots[0]
	assert.Equal(t, "09:00", slot.Start)
	assert.True(t, availability.IsBooked(&slot, time.Date(2025, time.March, 10, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, "America/New_York", th.Location(time.UTC).String())
}

func TestPgRepositoryGetAppointmentDecodesChildDetails(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()

	mock.ExpectQuery("FROM appointments").WithArgs(a.ID).
		WillReturnRows(appointmentRow(a, []byte(`{"name":"Leo","gender":"m","age":6,"problem":"stutter"}`)))

	got, err := repo.GetAppointmentByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRequested, got.Status)
	require.NotNil(t, got.ChildDetails)
	assert.Equal(t, 6, got.ChildDetails.Age)
}

func TestPgRepositoryWithTherapistCommits(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).WillReturnRows(therapistRow(id))
	mock.ExpectExec("UPDATE therapists").WithArgs(id, pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := repo.WithTherapist(context.Background(), id, func(ctx context.Context, tx Tx, th *Therapist) error {
		slot := &th.Availability.ConsultationDays[0].Slots[0]
		if err := availability.Claim(slot, time.Date(2025, time.March, 17, 0, 0, 0, 0, time.UTC)); err != nil {
			return err
		}
		return tx.SaveAvailability(ctx, th.ID, th.Availability)
	})
	require.NoError(t, err)
}

func TestPgRepositoryWithTherapistRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).WillReturnRows(therapistRow(id))
	mock.ExpectRollback()

	err := repo.WithTherapist(context.Background(), id, func(ctx context.Context, tx Tx, th *Therapist) error {
		slot := &th.Availability.ConsultationDays[0].Slots[0]
		return availability.Claim(slot, time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC))
	})
	require.ErrorIs(t, err, availability.ErrSlotAlreadyBooked)
}

func TestPgRepositoryWithTherapistMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := repo.WithTherapist(context.Background(), id, func(context.Context, Tx, *Therapist) error {
		t.Fatal("fn must not run")
		return nil
	})
	require.ErrorIs(t, err, ErrTherapistNotFound)
}

func TestPgRepositoryInsertMapsUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(a.TherapistID).WillReturnRows(therapistRow(a.TherapistID))
	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_uq"})
	mock.ExpectRollback()

	err := repo.WithTherapist(context.Background(), a.TherapistID, func(ctx context.Context, tx Tx, _ *Therapist) error {
		return tx.InsertAppointment(ctx, &a)
	})
	require.ErrorIs(t, err, ErrSlotAlreadyBooked)
}

func TestPgRepositoryDeleteAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(a.TherapistID).WillReturnRows(therapistRow(a.TherapistID))
	mock.ExpectExec("DELETE FROM soap_notes").WithArgs(a.ID).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("DELETE FROM appointments").WithArgs(a.ID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err := repo.WithTherapist(context.Background(), a.TherapistID, func(ctx context.Context, tx Tx, _ *Therapist) error {
		return tx.DeleteAppointment(ctx, a.ID)
	})
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPgRepositoryListUpcomingPaginated(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()
	now := a.AppointmentDate.AddDate(0, 0, -1)
	statuses := []string{"requested", "scheduled", "rescheduled", "confirmed"}

	mock.ExpectQuery("SELECT .* FROM appointments WHERE .* LIMIT \\$4 OFFSET \\$5").
		WithArgs(a.PatientID, now, statuses, 10, 10).
		WillReturnRows(appointmentRow(a, []byte("null")))
	mock.ExpectQuery("SELECT count").
		WithArgs(a.PatientID, now, statuses).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(11))

	res, err := repo.ListAppointments(context.Background(), ListFilter{
		ParticipantID: a.PatientID,
		Kind:          ListUpcoming,
		Now:           now,
		Limit:         10,
		Offset:        10,
	})
	require.NoError(t, err)
	assert.Equal(t, 11, res.Total)
	require.Len(t, res.Appointments, 1)
	assert.Nil(t, res.Appointments[0].ChildDetails)
}

func TestPgRepositoryLinkParticipantsWrapsErrors(t *testing.T) {
	repo, mock := newMockRepo(t)
	th, pt := uuid.New(), uuid.New()

	mock.ExpectExec("INSERT INTO therapist_patients").WithArgs(th, pt).WillReturnError(errors.New("conn reset"))

	err := repo.LinkParticipants(context.Background(), th, pt)
	require.ErrorIs(t, err, ErrPersistence)
}

func TestPgRepositoryFindBeforeLedgerDay(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()
	day := a.LedgerDate.AddDate(0, 0, 1)

	mock.ExpectQuery("ledger_date < \\$1").
		WithArgs(day, []string{"requested", "scheduled", "rescheduled", "confirmed"}).
		WillReturnRows(appointmentRow(a, []byte("null")))

	got, err := repo.FindBeforeLedgerDay(context.Background(), day, ActiveStatuses)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
}
