package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinical"
)

// CreateAppointmentRequest carries the counterpart's id: a therapist sends
// patient_id, a patient sends therapist_id.
type CreateAppointmentRequest struct {
	TherapistID     string                    `json:"therapist_id"`
	PatientID       string                    `json:"patient_id"`
	AppointmentDate string                    `json:"appointment_date"`
	AppointmentTime string                    `json:"appointment_time"`
	AppointmentType string                    `json:"appointment_type"`
	PackageType     string                    `json:"package_type"`
	DurationMinutes int                       `json:"duration_minutes"`
	Notes           string                    `json:"notes"`
	ChildDetails    *appointment.ChildDetails `json:"child_details,omitempty"`
}

type UpdateAppointmentRequest struct {
	Status          *string `json:"status"`
	AppointmentDate *string `json:"appointment_date"`
	AppointmentTime *string `json:"appointment_time"`
	Notes           *string `json:"notes"`
	PaymentStatus   *string `json:"payment_status"`
}

type DeleteAppointmentsRequest struct {
	IDs []string `json:"ids"`
}

type AvailabilityRequest struct {
	ConsultationDays []availability.DayTemplate `json:"consultationDays"`
}

type ProgressRequest struct {
	Correct   int `json:"correct"`
	Incorrect int `json:"incorrect"`
}

type AppointmentResponse struct {
	ID              uuid.UUID                 `json:"id"`
	TherapistID     uuid.UUID                 `json:"therapist_id"`
	PatientID       uuid.UUID                 `json:"patient_id"`
	AppointmentDate time.Time                 `json:"appointment_date"`
	AppointmentTime string                    `json:"appointment_time"`
	Weekday         string                    `json:"weekday"`
	BookedDate      string                    `json:"booked_date"`
	Status          string                    `json:"status"`
	AppointmentType string                    `json:"appointment_type,omitempty"`
	PackageType     string                    `json:"package_type"`
	PaymentStatus   string                    `json:"payment_status"`
	DurationMinutes int                       `json:"duration_minutes,omitempty"`
	Notes           string                    `json:"notes,omitempty"`
	ChildDetails    *appointment.ChildDetails `json:"child_details,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	CurrentPage  int                   `json:"current_page,omitempty"`
	TotalPages   int                   `json:"total_pages,omitempty"`
	Total        int                   `json:"total"`
}

type DeleteResponse struct {
	Deleted int    `json:"deleted"`
	Message string `json:"message"`
}

type GoalResponse struct {
	Goal *clinical.Goal `json:"goal"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		TherapistID:     a.TherapistID,
		PatientID:       a.PatientID,
		AppointmentDate: a.AppointmentDate,
		AppointmentTime: a.AppointmentTime,
		Weekday:         a.LedgerWeekday,
		BookedDate:      a.LedgerDate.Format(time.DateOnly),
		Status:          string(a.Status),
		AppointmentType: a.AppointmentType,
		PackageType:     string(a.PackageType),
		PaymentStatus:   string(a.PaymentStatus),
		DurationMinutes: a.DurationMinutes,
		Notes:           a.Notes,
		ChildDetails:    a.ChildDetails,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}
