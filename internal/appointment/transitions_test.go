package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanUpdate(t *testing.T) {
	day := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	later := day.AddDate(0, 0, 7)

	current := func(s AppointmentStatus) *Appointment {
		return &Appointment{Status: s, AppointmentDate: day, AppointmentTime: "09:00"}
	}

	tests := []struct {
		name    string
		current AppointmentStatus
		req     UpdateRequest
		effect  ledgerEffect
		status  AppointmentStatus
		date    time.Time
		start   string
		wantErr error
	}{
		{
			name:    "confirm keeps the slot",
			current: StatusRequested,
			req:     UpdateRequest{Status: ptr(StatusConfirmed)},
			effect:  effectNone,
			status:  StatusConfirmed,
			date:    day,
			start:   "09:00",
		},
		{
			name:    "complete releases",
			current: StatusConfirmed,
			req:     UpdateRequest{Status: ptr(StatusCompleted)},
			effect:  effectRelease,
			status:  StatusCompleted,
			date:    day,
			start:   "09:00",
		},
		{
			name:    "cancel releases",
			current: StatusScheduled,
			req:     UpdateRequest{Status: ptr(StatusCanceled)},
			effect:  effectRelease,
			status:  StatusCanceled,
			date:    day,
			start:   "09:00",
		},
		{
			name:    "reschedule with time only keeps date",
			current: StatusScheduled,
			req:     UpdateRequest{Status: ptr(StatusRescheduled), AppointmentTime: ptr("10:00")},
			effect:  effectMove,
			status:  StatusRescheduled,
			date:    day,
			start:   "10:00",
		},
		{
			name:    "reschedule with date and time",
			current: StatusRescheduled,
			req:     UpdateRequest{Status: ptr(StatusRescheduled), AppointmentDate: ptr(later), AppointmentTime: ptr("10:00")},
			effect:  effectMove,
			status:  StatusRescheduled,
			date:    later,
			start:   "10:00",
		},
		{
			name:    "rescheduled status alone does not move",
			current: StatusScheduled,
			req:     UpdateRequest{Status: ptr(StatusRescheduled)},
			effect:  effectNone,
			status:  StatusRescheduled,
			date:    day,
			start:   "09:00",
		},
		{
			name:    "notes only",
			current: StatusCompleted,
			req:     UpdateRequest{Notes: ptr("follow up")},
			effect:  effectNone,
			status:  StatusCompleted,
			date:    day,
			start:   "09:00",
		},
		{
			name:    "unknown status",
			current: StatusRequested,
			req:     UpdateRequest{Status: ptr(AppointmentStatus("lost"))},
			wantErr: ErrInvalidStatus,
		},
		{
			name:    "completed is final",
			current: StatusCompleted,
			req:     UpdateRequest{Status: ptr(StatusConfirmed)},
			wantErr: ErrInvalidStatusTransition,
		},
		{
			name:    "canceled is final",
			current: StatusCanceled,
			req:     UpdateRequest{Status: ptr(StatusRescheduled), AppointmentTime: ptr("10:00")},
			wantErr: ErrInvalidStatusTransition,
		},
		{
			name:    "move without rescheduled",
			current: StatusScheduled,
			req:     UpdateRequest{Status: ptr(StatusConfirmed), AppointmentDate: ptr(later)},
			wantErr: ErrInvalidUpdate,
		},
		{
			name:    "move without status",
			current: StatusScheduled,
			req:     UpdateRequest{AppointmentTime: ptr("10:00")},
			wantErr: ErrInvalidUpdate,
		},
		{
			name:    "unknown payment status",
			current: StatusScheduled,
			req:     UpdateRequest{PaymentStatus: ptr(PaymentStatus("iou"))},
			wantErr: ErrInvalidUpdate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := planUpdate(current(tt.current), tt.req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.effect, got.effect, "effect %s", got.effect)
			assert.Equal(t, tt.status, got.status)
			assert.True(t, tt.date.Equal(got.date))
			assert.Equal(t, tt.start, got.start)
		})
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range ActiveStatuses {
		assert.True(t, s.Valid())
		assert.False(t, s.Terminal(), s)
	}
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.False(t, AppointmentStatus("").Valid())
	assert.True(t, PackageOnsite.Valid())
	assert.False(t, PackageType("fax").Valid())
}
