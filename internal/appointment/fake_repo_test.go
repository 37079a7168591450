package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
)

// memRepo is an in-memory Repository. WithTherapist serialises on a single
// mutex and restores a snapshot when fn fails, which is what the row lock and
// transaction give us in Postgres.
type memRepo struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]Patient
	therapists   map[uuid.UUID]Therapist
	appointments map[uuid.UUID]Appointment
	links        map[[2]uuid.UUID]bool
	events       []EventLog

	linkErr  error
	eventErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		patients:     make(map[uuid.UUID]Patient),
		therapists:   make(map[uuid.UUID]Therapist),
		appointments: make(map[uuid.UUID]Appointment),
		links:        make(map[[2]uuid.UUID]bool),
	}
}

func (r *memRepo) addPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

func (r *memRepo) addTherapist(t Therapist) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.Availability = t.Availability.Clone()
	r.therapists[t.ID] = t
}

func (r *memRepo) availabilityOf(id uuid.UUID) availability.Availability {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.therapists[id].Availability.Clone()
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (r *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *memRepo) GetTherapistByID(_ context.Context, id uuid.UUID) (*Therapist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.therapists[id]
	if !ok {
		return nil, ErrTherapistNotFound
	}
	t.Availability = t.Availability.Clone()
	return &t, nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) WithTherapist(ctx context.Context, therapistID uuid.UUID, fn func(ctx context.Context, tx Tx, t *Therapist) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.therapists[therapistID]
	if !ok {
		return ErrTherapistNotFound
	}

	therapists := make(map[uuid.UUID]Therapist, len(r.therapists))
	for id, t := range r.therapists {
		t.Availability = t.Availability.Clone()
		therapists[id] = t
	}
	appointments := make(map[uuid.UUID]Appointment, len(r.appointments))
	for id, a := range r.appointments {
		appointments[id] = a
	}

	th := stored
	th.Availability = stored.Availability.Clone()

	if err := fn(ctx, &memTx{r: r}, &th); err != nil {
		r.therapists = therapists
		r.appointments = appointments
		return err
	}
	return nil
}

func (r *memRepo) ListAppointments(_ context.Context, f ListFilter) (ListResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Appointment
	for _, a := range r.appointments {
		if a.TherapistID != f.ParticipantID && a.PatientID != f.ParticipantID {
			continue
		}
		switch f.Kind {
		case ListPast:
			if !a.AppointmentDate.Before(f.Now) {
				continue
			}
		case ListCompleted:
			if a.Status != StatusCompleted {
				continue
			}
		case ListUpcoming:
			if a.AppointmentDate.Before(f.Now) || a.Status.Terminal() {
				continue
			}
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].AppointmentDate.Before(matched[j].AppointmentDate)
	})

	total := len(matched)
	if f.Limit > 0 {
		if f.Offset >= len(matched) {
			matched = nil
		} else {
			end := f.Offset + f.Limit
			if end > len(matched) {
				end = len(matched)
			}
			matched = matched[f.Offset:end]
		}
	}
	return ListResult{Appointments: matched, Total: total}, nil
}

func hasStatus(s AppointmentStatus, statuses []AppointmentStatus) bool {
	for _, x := range statuses {
		if s == x {
			return true
		}
	}
	return false
}

func (r *memRepo) FindByLedgerDays(_ context.Context, from, to time.Time, statuses []AppointmentStatus) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.LedgerDate.Before(from) || a.LedgerDate.After(to) || !hasStatus(a.Status, statuses) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memRepo) FindBeforeLedgerDay(_ context.Context, day time.Time, statuses []AppointmentStatus) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.LedgerDate.Before(day) && hasStatus(a.Status, statuses) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) LinkParticipants(_ context.Context, therapistID, patientID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linkErr != nil {
		return r.linkErr
	}
	r.links[[2]uuid.UUID{therapistID, patientID}] = true
	return nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.eventErr != nil {
		return r.eventErr
	}
	r.events = append(r.events, ev)
	return nil
}

// memTx runs with memRepo.mu held.
type memTx struct {
	r *memRepo
}

func (t *memTx) GetAppointmentForUpdate(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := t.r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (t *memTx) SaveAvailability(_ context.Context, therapistID uuid.UUID, av availability.Availability) error {
	th, ok := t.r.therapists[therapistID]
	if !ok {
		return ErrTherapistNotFound
	}
	th.Availability = av.Clone()
	t.r.therapists[therapistID] = th
	return nil
}

// activeConflict mirrors the appointments_active_slot_uq partial index.
func (t *memTx) activeConflict(a *Appointment) bool {
	if a.Status.Terminal() {
		return false
	}
	for id, other := range t.r.appointments {
		if id == a.ID || other.Status.Terminal() {
			continue
		}
		if other.TherapistID == a.TherapistID &&
			other.LedgerWeekday == a.LedgerWeekday &&
			other.AppointmentTime == a.AppointmentTime &&
			other.LedgerDate.Equal(a.LedgerDate) {
			return true
		}
	}
	return false
}

func (t *memTx) InsertAppointment(_ context.Context, a *Appointment) error {
	if t.activeConflict(a) {
		return ErrSlotAlreadyBooked
	}
	t.r.appointments[a.ID] = *a
	return nil
}

func (t *memTx) UpdateAppointment(_ context.Context, a *Appointment) error {
	if _, ok := t.r.appointments[a.ID]; !ok {
		return ErrAppointmentNotFound
	}
	if t.activeConflict(a) {
		return ErrSlotAlreadyBooked
	}
	t.r.appointments[a.ID] = *a
	return nil
}

func (t *memTx) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	if _, ok := t.r.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(t.r.appointments, id)
	return nil
}

var errStorageDown = errors.New("storage down")
