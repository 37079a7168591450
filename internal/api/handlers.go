package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinical"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		therapistID, err := optionalUUID(req.TherapistID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID")
			return
		}
		patientID, err := optionalUUID(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		date, dateOnly, err := parseDate(req.AppointmentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_date", err.Error())
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), actor, appointment.CreateRequest{
			TherapistID:     therapistID,
			PatientID:       patientID,
			AppointmentDate: date,
			DateOnly:        dateOnly,
			AppointmentTime: req.AppointmentTime,
			AppointmentType: req.AppointmentType,
			PackageType:     appointment.PackageType(req.PackageType),
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
			ChildDetails:    req.ChildDetails,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		actor, _ := ActorFrom(r.Context())
		participantID := actor.ProfileID
		if raw := q.Get("participant_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_participant_id", "participant_id must be a valid UUID")
				return
			}
			participantID = id
		}

		page, err := optionalInt(q.Get("page"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_page", "page must be an integer")
			return
		}
		limit, err := optionalInt(q.Get("limit"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}

		res, err := svc.ListAppointments(r.Context(), participantID, appointment.ListKind(q.Get("type")), page, limit)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		resp := ListAppointmentsResponse{
			Appointments: make([]AppointmentResponse, 0, len(res.Appointments)),
			Total:        res.Total,
		}
		for i := range res.Appointments {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(&res.Appointments[i]))
		}
		if page > 0 && limit > 0 {
			if limit > 100 {
				limit = 100
			}
			resp.CurrentPage = page
			resp.TotalPages = int(math.Ceil(float64(res.Total) / float64(limit)))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func updateAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		upd := appointment.UpdateRequest{
			AppointmentTime: req.AppointmentTime,
			Notes:           req.Notes,
		}
		if req.Status != nil {
			s := appointment.AppointmentStatus(*req.Status)
			upd.Status = &s
		}
		if req.PaymentStatus != nil {
			p := appointment.PaymentStatus(*req.PaymentStatus)
			upd.PaymentStatus = &p
		}
		if req.AppointmentDate != nil {
			d, dateOnly, err := parseDate(*req.AppointmentDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_appointment_date", err.Error())
				return
			}
			upd.AppointmentDate = &d
			upd.DateOnly = dateOnly
		}

		appt, err := svc.UpdateAppointment(r.Context(), id, upd)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func deleteAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}
		deleteAppointments(w, r, svc, []uuid.UUID{id})
	}
}

func deleteAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DeleteAppointmentsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if len(req.IDs) == 0 {
			writeError(w, http.StatusBadRequest, "missing_ids", "ids must not be empty")
			return
		}

		ids := make([]uuid.UUID, 0, len(req.IDs))
		for _, raw := range req.IDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_appointment_id", fmt.Sprintf("%q is not a valid UUID", raw))
				return
			}
			ids = append(ids, id)
		}
		deleteAppointments(w, r, svc, ids)
	}
}

func deleteAppointments(w http.ResponseWriter, r *http.Request, svc AppointmentService, ids []uuid.UUID) {
	n, err := svc.DeleteAppointments(r.Context(), ids)
	if err != nil {
		handleAppointmentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DeleteResponse{
		Deleted: n,
		Message: fmt.Sprintf("%d appointment(s) and their SOAP notes deleted", n),
	})
}

func getAvailabilityHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "invalid_therapist_id")
		if !ok {
			return
		}

		av, err := svc.GetAvailability(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, av)
	}
}

func replaceAvailabilityHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "invalid_therapist_id")
		if !ok {
			return
		}

		actor, _ := ActorFrom(r.Context())
		if actor.Role != appointment.RoleTherapist || actor.ProfileID != id {
			writeError(w, http.StatusForbidden, "forbidden", "only the therapist can change their availability")
			return
		}

		var req AvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		av, err := svc.ReplaceAvailability(r.Context(), id, req.ConsultationDays)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, av)
	}
}

func recordProgressHandler(svc GoalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "invalid_goal_id")
		if !ok {
			return
		}

		var req ProgressRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		goal, err := svc.RecordProgress(r.Context(), id, req.Correct, req.Incorrect)
		if err != nil {
			handleGoalError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, GoalResponse{Goal: goal})
	}
}

func handleAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, "invalid_role", err.Error())
	case errors.Is(err, appointment.ErrMissingParticipant):
		writeError(w, http.StatusBadRequest, "missing_participant", err.Error())
	case errors.Is(err, appointment.ErrInvalidRequest),
		errors.Is(err, appointment.ErrInvalidUpdate):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, availability.ErrInvalidAvailability):
		writeError(w, http.StatusBadRequest, "invalid_availability", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrTherapistNotFound):
		writeError(w, http.StatusNotFound, "therapist_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrDayUnavailable):
		writeError(w, http.StatusNotFound, "day_unavailable", err.Error())
	case errors.Is(err, appointment.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusBadRequest, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func handleGoalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, clinical.ErrGoalNotFound):
		writeError(w, http.StatusNotFound, "goal_not_found", err.Error())
	case errors.Is(err, clinical.ErrInvalidProgress):
		writeError(w, http.StatusBadRequest, "invalid_progress", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func optionalUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// parseDate accepts YYYY-MM-DD or RFC 3339. dateOnly reports the first form,
// which the service places on the resolving calendar.
func parseDate(raw string) (_ time.Time, dateOnly bool, _ error) {
	if raw == "" {
		return time.Time{}, false, errors.New("appointment_date is required")
	}
	if d, err := time.Parse(time.DateOnly, raw); err == nil {
		return d, true, nil
	}
	d, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("appointment_date %q must be YYYY-MM-DD or RFC 3339", raw)
	}
	return d, false, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
