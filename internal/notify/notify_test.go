package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
)

func sampleAppointment() appointment.Appointment {
	day := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	return appointment.Appointment{
		ID:              uuid.New(),
		TherapistID:     uuid.New(),
		PatientID:       uuid.New(),
		AppointmentDate: day,
		AppointmentTime: "09:00",
		LedgerWeekday:   "Monday",
		LedgerDate:      day,
		Status:          appointment.StatusConfirmed,
	}
}

func TestNotifyStoresAndPublishes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	appt := sampleAppointment()
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, Channel(appointment.RolePatient, appt.PatientID))
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(pgxmock.AnyArg(), appt.TherapistID, appt.ID, "Appointment", "creation", "New appointment requested for Monday 2025-03-10 at 09:00", "unread", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(pgxmock.AnyArg(), appt.PatientID, appt.ID, "Appointment", "creation", pgxmock.AnyArg(), "unread", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	svc := NewService(mock, rdb, zerolog.Nop())
	require.NoError(t, svc.Notify(ctx, appt, appointment.NotifyCreation))
	require.NoError(t, mock.ExpectationsWereMet())

	select {
	case m := <-sub.Channel():
		var got Message
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &got))
		assert.Equal(t, appt.PatientID, got.UserID)
		assert.Equal(t, appt.ID, got.ReferenceID)
		assert.Equal(t, "Your appointment for Monday 2025-03-10 at 09:00 has been requested", got.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestNotifyAttemptsEveryRecipient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	appt := sampleAppointment()

	mock.ExpectExec("INSERT INTO notifications").WillReturnError(errors.New("disk full"))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(pgxmock.AnyArg(), appt.PatientID, appt.ID, "Appointment", "update", "Appointment on Monday 2025-03-10 at 09:00 is now confirmed", "unread", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	svc := NewService(mock, nil, zerolog.Nop())
	err = svc.Notify(context.Background(), appt, appointment.NotifyUpdate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), appt.TherapistID.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestText(t *testing.T) {
	appt := sampleAppointment()
	assert.Equal(t, "Reminder: you have an appointment on Monday 2025-03-10 at 09:00",
		Text(appt, appointment.NotifyReminder, appointment.RoleTherapist))
	assert.Equal(t, "therapist-"+appt.TherapistID.String(), Channel(appointment.RoleTherapist, appt.TherapistID))
}
