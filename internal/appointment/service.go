package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/metrics"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentUpdated     = "APPOINTMENT_UPDATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentExpired     = "APPOINTMENT_EXPIRED"
	EventAppointmentDeleted     = "APPOINTMENT_DELETED"
)

var (
	ErrInvalidRole        = errors.New("invalid user role")
	ErrMissingParticipant = errors.New("therapist and patient id are required")
	ErrInvalidRequest     = errors.New("invalid appointment request")
	ErrSlotBeingBooked    = errors.New("slot is currently being booked, please retry")

	ErrDayUnavailable    = availability.ErrDayUnavailable
	ErrSlotNotFound      = availability.ErrSlotNotFound
	ErrSlotUnavailable   = availability.ErrSlotUnavailable
	ErrSlotAlreadyBooked = availability.ErrSlotAlreadyBooked
)

type NotificationKind string

const (
	NotifyCreation NotificationKind = "creation"
	NotifyUpdate   NotificationKind = "update"
	NotifyReminder NotificationKind = "reminder"
)

// Notifier delivers appointment notifications. Failures are logged by the
// service and never undo a committed booking.
type Notifier interface {
	Notify(ctx context.Context, appt Appointment, kind NotificationKind) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Option func(*Service)

func WithClock(c Clock) Option                    { return func(s *Service) { s.clock = c } }
func WithNotifier(n Notifier) Option              { return func(s *Service) { s.notifier = n } }
func WithMetrics(m *metrics.BookingMetrics) Option { return func(s *Service) { s.metrics = m } }
func WithLogger(l zerolog.Logger) Option          { return func(s *Service) { s.log = l } }

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	cfg      config.Config
	notifier Notifier
	metrics  *metrics.BookingMetrics
	clock    Clock
	log      zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		clock:  systemClock{},
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest is a booking request as submitted by either participant.
type CreateRequest struct {
	TherapistID     uuid.UUID
	PatientID       uuid.UUID
	AppointmentDate time.Time
	// DateOnly marks AppointmentDate as a bare calendar day rather than an instant.
	DateOnly        bool
	AppointmentTime string
	AppointmentType string
	PackageType     PackageType
	DurationMinutes int
	Notes           string
	ChildDetails    *ChildDetails
}

// CreateAppointment books a therapist slot for a calendar day.
// The slot key is guarded by a Redis lock, and the therapist's availability
// document is read, claimed and written back inside one row-locked transaction
// together with the appointment insert.
func (s *Service) CreateAppointment(ctx context.Context, actor Actor, req CreateRequest) (_ *Appointment, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("create", outcome(err), started) }()

	therapistID, patientID, err := resolveParticipants(actor, req)
	if err != nil {
		return nil, err
	}
	if req.AppointmentDate.IsZero() || strings.TrimSpace(req.AppointmentTime) == "" {
		return nil, fmt.Errorf("%w: appointmentDate and appointmentTime are required", ErrInvalidRequest)
	}
	pkg := req.PackageType
	if pkg == "" {
		pkg = PackageVideoCall
	}
	if !pkg.Valid() {
		return nil, fmt.Errorf("%w: unknown package type %q", ErrInvalidRequest, pkg)
	}

	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, err
	}

	// New bookings resolve the weekday on the process-wide calendar.
	loc := s.cfg.DefaultLocation()
	date := req.AppointmentDate
	if req.DateOnly {
		date = availability.OnCalendar(date, loc)
	}
	key := redisclient.SlotKey{
		TherapistID: therapistID,
		Weekday:     availability.WeekdayOf(date, loc),
		Start:       req.AppointmentTime,
		Date:        availability.CalendarDay(date.In(loc)),
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		return s.repo.WithTherapist(lockCtx, therapistID, func(ctx context.Context, tx Tx, th *Therapist) error {
			res, err := availability.Resolve(th.Availability.ConsultationDays, date, req.AppointmentTime, loc)
			if err != nil {
				return err
			}
			if err := availability.Claim(res.Slot, res.Date); err != nil {
				return err
			}

			now := s.clock.Now()
			appt := &Appointment{
				ID:              uuid.New(),
				TherapistID:     therapistID,
				PatientID:       patientID,
				AppointmentDate: date,
				AppointmentTime: req.AppointmentTime,
				LedgerWeekday:   res.Weekday,
				LedgerDate:      res.Date,
				Status:          StatusRequested,
				AppointmentType: req.AppointmentType,
				PackageType:     pkg,
				PaymentStatus:   PaymentPending,
				DurationMinutes: req.DurationMinutes,
				Notes:           req.Notes,
				ChildDetails:    req.ChildDetails,
				CreatedAt:       now,
				UpdatedAt:       now,
			}

			if err := tx.InsertAppointment(ctx, appt); err != nil {
				return err
			}
			if err := tx.SaveAvailability(ctx, therapistID, th.Availability); err != nil {
				return err
			}

			created = appt
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	// The booking is committed. Nothing below may fail it.
	if err := s.repo.LinkParticipants(ctx, therapistID, patientID); err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", created.ID.String()).
			Msg("failed to link therapist and patient after booking")
	}
	s.notify(ctx, *created, NotifyCreation)
	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"therapist_id": therapistID.String(),
		"patient_id":   patientID.String(),
		"weekday":      created.LedgerWeekday,
		"date":         created.LedgerDate.Format(time.DateOnly),
		"time":         created.AppointmentTime,
	})

	return created, nil
}

func resolveParticipants(actor Actor, req CreateRequest) (therapistID, patientID uuid.UUID, err error) {
	switch actor.Role {
	case RoleTherapist:
		therapistID, patientID = actor.ProfileID, req.PatientID
	case RolePatient:
		therapistID, patientID = req.TherapistID, actor.ProfileID
	default:
		return uuid.Nil, uuid.Nil, ErrInvalidRole
	}
	if therapistID == uuid.Nil || patientID == uuid.Nil {
		return uuid.Nil, uuid.Nil, ErrMissingParticipant
	}
	return therapistID, patientID, nil
}

// UpdateAppointment applies a status change, optionally rescheduling.
// A reschedule claims the new slot before releasing the old one; if the claim
// fails the transaction rolls back and the original booking stays in place.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, req UpdateRequest) (_ *Appointment, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("update", outcome(err), started) }()

	return s.update(ctx, id, req, EventAppointmentUpdated)
}

func (s *Service) update(ctx context.Context, id uuid.UUID, req UpdateRequest, event string) (*Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	therapist, err := s.repo.GetTherapistByID(ctx, current.TherapistID)
	if err != nil {
		return nil, err
	}
	// Updates resolve on the therapist's own calendar.
	loc := therapist.Location(s.cfg.DefaultLocation())
	if req.DateOnly && req.AppointmentDate != nil {
		day := availability.OnCalendar(*req.AppointmentDate, loc)
		req.AppointmentDate = &day
	}
	plan, err := planUpdate(current, req)
	if err != nil {
		return nil, err
	}

	var updated *Appointment

	apply := func(ctx context.Context) error {
		return s.repo.WithTherapist(ctx, current.TherapistID, func(ctx context.Context, tx Tx, th *Therapist) error {
			appt, err := tx.GetAppointmentForUpdate(ctx, id)
			if err != nil {
				return err
			}
			// Plan again against the locked row.
			plan, err := planUpdate(appt, req)
			if err != nil {
				return err
			}

			changed, err := applyLedger(th, appt, plan, loc)
			if err != nil {
				return err
			}

			appt.Status = plan.status
			if req.Notes != nil {
				appt.Notes = *req.Notes
			}
			if req.PaymentStatus != nil {
				appt.PaymentStatus = *req.PaymentStatus
			}
			appt.UpdatedAt = s.clock.Now()

			if err := tx.UpdateAppointment(ctx, appt); err != nil {
				return err
			}
			if changed {
				if err := tx.SaveAvailability(ctx, th.ID, th.Availability); err != nil {
					return err
				}
			}

			updated = appt
			return nil
		})
	}

	if plan.effect == effectMove {
		key := redisclient.SlotKey{
			TherapistID: current.TherapistID,
			Weekday:     availability.WeekdayOf(plan.date, loc),
			Start:       plan.start,
			Date:        availability.CalendarDay(plan.date.In(loc)),
		}
		err = s.locker.WithSlotLock(ctx, key, apply)
		if event == EventAppointmentUpdated {
			event = EventAppointmentRescheduled
		}
	} else {
		err = apply(ctx)
	}
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.notify(ctx, *updated, NotifyUpdate)
	s.logEvent(ctx, updated.ID, event, map[string]any{
		"from_status": string(current.Status),
		"to_status":   string(updated.Status),
		"ledger":      plan.effect.String(),
		"date":        updated.LedgerDate.Format(time.DateOnly),
		"time":        updated.AppointmentTime,
	})

	return updated, nil
}

// applyLedger mutates th's availability document for the planned transition
// and reports whether it changed.
func applyLedger(th *Therapist, appt *Appointment, t transition, loc *time.Location) (bool, error) {
	switch t.effect {
	case effectRelease:
		return releaseHeld(th, appt), nil

	case effectMove:
		res, err := availability.Resolve(th.Availability.ConsultationDays, t.date, t.start, loc)
		if err != nil {
			return false, err
		}

		sameSlot := res.Weekday == appt.LedgerWeekday &&
			t.start == appt.AppointmentTime &&
			res.Date.Equal(availability.CalendarDay(appt.LedgerDate))
		if !sameSlot {
			if err := availability.Claim(res.Slot, res.Date); err != nil {
				return false, err
			}
			releaseHeld(th, appt)
		}

		appt.AppointmentDate = t.date
		appt.AppointmentTime = t.start
		appt.LedgerWeekday = res.Weekday
		appt.LedgerDate = res.Date
		return !sameSlot, nil
	}

	return false, nil
}

// releaseHeld drops the ledger entry appt holds. The slot is located by the
// weekday/start recorded at claim time, ignoring availability flags.
func releaseHeld(th *Therapist, appt *Appointment) bool {
	slot, ok := availability.Locate(th.Availability.ConsultationDays, appt.LedgerWeekday, appt.AppointmentTime)
	if !ok || !availability.IsBooked(slot, appt.LedgerDate) {
		return false
	}
	availability.Release(slot, appt.LedgerDate)
	return true
}

// DeleteAppointments hard-deletes appointments with their SOAP notes and frees
// any ledger entry they still hold. Unknown ids are skipped.
func (s *Service) DeleteAppointments(ctx context.Context, ids []uuid.UUID) (int, error) {
	deleted := 0

	for _, id := range ids {
		appt, err := s.repo.GetAppointmentByID(ctx, id)
		if errors.Is(err, ErrAppointmentNotFound) {
			continue
		}
		if err != nil {
			return deleted, err
		}

		err = s.repo.WithTherapist(ctx, appt.TherapistID, func(ctx context.Context, tx Tx, th *Therapist) error {
			locked, err := tx.GetAppointmentForUpdate(ctx, id)
			if err != nil {
				return err
			}
			changed := false
			if !locked.Status.Terminal() {
				changed = releaseHeld(th, locked)
			}
			if err := tx.DeleteAppointment(ctx, id); err != nil {
				return err
			}
			if changed {
				return tx.SaveAvailability(ctx, th.ID, th.Availability)
			}
			return nil
		})
		if errors.Is(err, ErrAppointmentNotFound) {
			continue
		}
		if err != nil {
			return deleted, err
		}

		deleted++
		s.logEvent(ctx, id, EventAppointmentDeleted, map[string]any{
			"therapist_id": appt.TherapistID.String(),
			"patient_id":   appt.PatientID.String(),
		})
	}

	if deleted == 0 {
		return 0, ErrAppointmentNotFound
	}
	return deleted, nil
}

// GetAppointment retrieves an appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ListAppointments lists a participant's appointments. Pagination applies only
// when both page and limit are positive.
func (s *Service) ListAppointments(ctx context.Context, participantID uuid.UUID, kind ListKind, page, limit int) (ListResult, error) {
	switch kind {
	case ListAll, ListPast, ListCompleted, ListUpcoming:
	default:
		return ListResult{}, fmt.Errorf("%w: unknown list type %q", ErrInvalidRequest, kind)
	}
	if participantID == uuid.Nil {
		return ListResult{}, ErrMissingParticipant
	}

	f := ListFilter{
		ParticipantID: participantID,
		Kind:          kind,
		Now:           s.clock.Now(),
	}
	if page > 0 && limit > 0 {
		if limit > 100 {
			limit = 100 // max
		}
		f.Limit = limit
		f.Offset = (page - 1) * limit
	}

	return s.repo.ListAppointments(ctx, f)
}

// GetAvailability returns the therapist's stored weekly template.
func (s *Service) GetAvailability(ctx context.Context, therapistID uuid.UUID) (availability.Availability, error) {
	th, err := s.repo.GetTherapistByID(ctx, therapistID)
	if err != nil {
		return availability.Availability{}, err
	}
	return th.Availability, nil
}

// ReplaceAvailability merges days by weekday, carries existing bookings onto
// slots that keep their weekday/start, and stores the result.
func (s *Service) ReplaceAvailability(ctx context.Context, therapistID uuid.UUID, days []availability.DayTemplate) (availability.Availability, error) {
	merged := availability.MergeByDay(days)
	if err := availability.Validate(merged); err != nil {
		return availability.Availability{}, err
	}

	var saved availability.Availability
	err := s.repo.WithTherapist(ctx, therapistID, func(ctx context.Context, tx Tx, th *Therapist) error {
		availability.CarryLedger(th.Availability.ConsultationDays, merged)
		next := availability.Availability{ConsultationDays: merged}
		if err := tx.SaveAvailability(ctx, therapistID, next); err != nil {
			return err
		}
		saved = next
		return nil
	})
	if err != nil {
		return availability.Availability{}, err
	}
	return saved, nil
}

// SendReminders notifies participants of active appointments starting within
// the reminder window. Start instants are taken on the therapist's calendar.
func (s *Service) SendReminders(ctx context.Context) (int, error) {
	now := s.clock.Now()
	until := now.Add(s.cfg.ReminderWindow)

	// Ledger days are stored per calendar, so widen by a day and filter below.
	from := availability.CalendarDay(now.UTC()).AddDate(0, 0, -1)
	to := availability.CalendarDay(until.UTC()).AddDate(0, 0, 1)

	candidates, err := s.repo.FindByLedgerDays(ctx, from, to,
		[]AppointmentStatus{StatusScheduled, StatusRescheduled, StatusConfirmed})
	if err != nil {
		return 0, fmt.Errorf("find upcoming appointments: %w", err)
	}

	zoneOf := s.therapistZones(ctx)
	sent := 0
	for _, appt := range candidates {
		start, err := StartsAt(appt, zoneOf(appt.TherapistID))
		if err != nil {
			s.log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("skip reminder")
			continue
		}
		if start.Before(now) || !start.Before(until) {
			continue
		}

		s.notify(ctx, appt, NotifyReminder)
		sent++
	}

	return sent, nil
}

// ExpirePastAppointments cancels live appointments whose booked day is over,
// releasing their ledger entries. Intended to be called by the worker periodically.
//
// A booked day is over once it is behind today on the therapist's calendar.
func (s *Service) ExpirePastAppointments(ctx context.Context) (int, error) {
	now := s.clock.Now()
	// No calendar runs more than a day ahead of UTC.
	cutoff := availability.CalendarDay(now.UTC()).AddDate(0, 0, 1)

	candidates, err := s.repo.FindBeforeLedgerDay(ctx, cutoff, ActiveStatuses)
	if err != nil {
		return 0, fmt.Errorf("find past appointments: %w", err)
	}

	zoneOf := s.therapistZones(ctx)
	canceled := StatusCanceled
	expired := 0
	for _, appt := range candidates {
		today := availability.CalendarDay(now.In(zoneOf(appt.TherapistID)))
		if !appt.LedgerDate.Before(today) {
			continue
		}
		_, err := s.update(ctx, appt.ID, UpdateRequest{Status: &canceled}, EventAppointmentExpired)
		if errors.Is(err, ErrInvalidStatusTransition) || errors.Is(err, ErrAppointmentNotFound) {
			continue
		}
		if err != nil {
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to expire appointment")
			continue
		}
		expired++
	}

	return expired, nil
}

// therapistZones returns a lookup of therapist time zones, cached for one
// batch pass. Unknown therapists fall back to the default zone.
func (s *Service) therapistZones(ctx context.Context) func(uuid.UUID) *time.Location {
	locs := make(map[uuid.UUID]*time.Location)
	return func(id uuid.UUID) *time.Location {
		if loc, ok := locs[id]; ok {
			return loc
		}
		loc := s.cfg.DefaultLocation()
		if th, err := s.repo.GetTherapistByID(ctx, id); err == nil {
			loc = th.Location(loc)
		} else {
			s.log.Warn().Err(err).Str("therapist_id", id.String()).Msg("falling back to default time zone")
		}
		locs[id] = loc
		return loc
	}
}

// StartsAt is the wall-clock start of appt on its booked day in loc.
func StartsAt(appt Appointment, loc *time.Location) (time.Time, error) {
	tod, err := time.Parse("15:04", appt.AppointmentTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse appointment time %q: %w", appt.AppointmentTime, err)
	}
	y, m, d := appt.LedgerDate.Date()
	return time.Date(y, m, d, tod.Hour(), tod.Minute(), 0, 0, loc), nil
}

func (s *Service) notify(ctx context.Context, appt Appointment, kind NotificationKind) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, appt, kind); err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Str("kind", string(kind)).
			Msg("failed to send appointment notification")
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSlotAlreadyBooked):
		return "slot_already_booked"
	case errors.Is(err, ErrSlotBeingBooked):
		return "slot_being_booked"
	case errors.Is(err, ErrDayUnavailable):
		return "day_unavailable"
	case errors.Is(err, ErrSlotNotFound):
		return "slot_not_found"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrPersistence):
		return "persistence_failure"
	default:
		return "rejected"
	}
}
