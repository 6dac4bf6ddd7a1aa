package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/psicoapp/psicoapp/internal/domain/availability"
	"github.com/psicoapp/psicoapp/internal/domain/requests"
	"github.com/psicoapp/psicoapp/internal/platform/apperr"
	"github.com/psicoapp/psicoapp/internal/platform/notification"
	"github.com/psicoapp/psicoapp/pkg/pagination"
)

var (
	bogota          = time.FixedZone("COT", -5*3600)
	testInstitution = uuid.New()
	// Sunday 2026-03-01 10:00 in Bogota.
	testNow = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
)

// world is the in-memory store behind every fake. Each method takes mu so
// conditional writes are atomic. WithinTx serializes transactions and
// restores a snapshot when fn fails.
type world struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	appts  map[uuid.UUID]*Appointment
	reqs   map[uuid.UUID]*requests.Request
	slots  map[uuid.UUID]*availability.Slot
	breaks []availability.Break
	hours  []availability.WorkingHours
}

func newWorld() *world {
	return &world{
		appts: make(map[uuid.UUID]*Appointment),
		reqs:  make(map[uuid.UUID]*requests.Request),
		slots: make(map[uuid.UUID]*availability.Slot),
	}
}

type snapshot struct {
	appts map[uuid.UUID]Appointment
	reqs  map[uuid.UUID]requests.Request
	slots map[uuid.UUID]availability.Slot
}

func (w *world) snapshot() snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := snapshot{
		appts: make(map[uuid.UUID]Appointment, len(w.appts)),
		reqs:  make(map[uuid.UUID]requests.Request, len(w.reqs)),
		slots: make(map[uuid.UUID]availability.Slot, len(w.slots)),
	}
	for k, v := range w.appts {
		s.appts[k] = *v
	}
	for k, v := range w.reqs {
		s.reqs[k] = *v
	}
	for k, v := range w.slots {
		s.slots[k] = *v
	}
	return s
}

func (w *world) restore(s snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.appts = make(map[uuid.UUID]*Appointment, len(s.appts))
	for k, v := range s.appts {
		v := v
		w.appts[k] = &v
	}
	w.reqs = make(map[uuid.UUID]*requests.Request, len(s.reqs))
	for k, v := range s.reqs {
		v := v
		w.reqs[k] = &v
	}
	w.slots = make(map[uuid.UUID]*availability.Slot, len(s.slots))
	for k, v := range s.slots {
		v := v
		w.slots[k] = &v
	}
}

func (w *world) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	w.txMu.Lock()
	defer w.txMu.Unlock()
	snap := w.snapshot()
	if err := fn(ctx); err != nil {
		w.restore(snap)
		return err
	}
	return nil
}

// -- Appointment repository --

type apptRepo struct{ *world }

func overlaps(a *Appointment, staffID uuid.UUID, start, end time.Time) bool {
	return a.StaffID == staffID && a.Status != StatusCancelled &&
		a.DateTime.Before(end) && start.Before(a.EndTime)
}

func (r apptRepo) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.appts {
		if overlaps(other, a.StaffID, a.DateTime, a.EndTime) {
			return apperr.Conflict("time conflict")
		}
	}
	a.CreatedAt, a.UpdatedAt = testNow, testNow
	c := *a
	r.appts[a.ID] = &c
	return nil
}

func (r apptRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	c := *a
	return &c, nil
}

func (r apptRepo) HasOverlap(_ context.Context, staffID uuid.UUID, start, end time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if overlaps(a, staffID, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (r apptRepo) UpdateStatus(_ context.Context, id uuid.UUID, from Status, ch StatusChange) (*Appointment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != from {
		return nil, false, nil
	}
	a.Status = ch.To
	if ch.Notes != nil {
		a.StaffNotes = ch.Notes
	}
	if ch.ActualStart != nil {
		a.ActualStart = ch.ActualStart
	}
	if ch.ActualEnd != nil {
		a.ActualEnd = ch.ActualEnd
	}
	c := *a
	return &c, true, nil
}

func (r apptRepo) Cancel(_ context.Context, id uuid.UUID, from Status, actorID uuid.UUID, reason *string) (*Appointment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != from {
		return nil, false, nil
	}
	a.Status = StatusCancelled
	a.CancelledBy = &actorID
	a.CancelReason = reason
	c := *a
	return &c, true, nil
}

func (r apptRepo) ListByParty(_ context.Context, f ListFilter, p pagination.Params) ([]*Appointment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*Appointment
	for _, a := range r.appts {
		if a.InstitutionID != f.InstitutionID {
			continue
		}
		party := a.StudentID
		if f.Role == RoleStaff {
			party = a.StaffID
		}
		if party != f.UserID || (f.Status != nil && a.Status != *f.Status) {
			continue
		}
		c := *a
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].DateTime.Before(all[j].DateTime) })
	total := len(all)
	if p.Offset >= total {
		return nil, total, nil
	}
	end := p.Offset + p.Limit
	if end > total {
		end = total
	}
	return all[p.Offset:end], total, nil
}

// -- Request repository (full requests.Repository) --

type reqRepo struct{ *world }

func cloneReq(q *requests.Request) *requests.Request {
	c := *q
	return &c
}

func (r reqRepo) Create(_ context.Context, q *requests.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q.CreatedAt, q.UpdatedAt = testNow, testNow
	r.reqs[q.ID] = cloneReq(q)
	return nil
}

func (r reqRepo) GetByID(_ context.Context, id uuid.UUID) (*requests.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.reqs[id]
	if !ok {
		return nil, apperr.NotFound("appointment request %s not found", id)
	}
	return cloneReq(q), nil
}

func (r reqRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*requests.Request, error) {
	return r.GetByID(ctx, id)
}

func (r reqRepo) ListOpen(_ context.Context, institutionID uuid.UUID) ([]*requests.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*requests.Request
	for _, q := range r.reqs {
		if q.InstitutionID == institutionID && q.Status.Open() {
			out = append(out, cloneReq(q))
		}
	}
	return out, nil
}

func (r reqRepo) ListByStudent(_ context.Context, studentID, institutionID uuid.UUID, _ pagination.Params) ([]*requests.Request, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*requests.Request
	for _, q := range r.reqs {
		if q.StudentID == studentID && q.InstitutionID == institutionID {
			out = append(out, cloneReq(q))
		}
	}
	return out, len(out), nil
}

func (r reqRepo) Claim(_ context.Context, id, institutionID, staffID uuid.UUID, at time.Time) (*requests.Request, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.reqs[id]
	if !ok || q.InstitutionID != institutionID || q.Status != requests.StatusRequested {
		return nil, false, nil
	}
	q.Status = requests.StatusAssigned
	q.ClaimedBy = &staffID
	q.ClaimedAt = &at
	return cloneReq(q), true, nil
}

func (r reqRepo) Release(_ context.Context, id, institutionID, staffID uuid.UUID) (*requests.Request, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.reqs[id]
	if !ok || q.InstitutionID != institutionID || q.Status != requests.StatusAssigned || !q.ClaimedByStaff(staffID) {
		return nil, false, nil
	}
	q.Status = requests.StatusRequested
	q.ClaimedBy, q.ClaimedAt = nil, nil
	return cloneReq(q), true, nil
}

func (r reqRepo) Withdraw(_ context.Context, id, studentID uuid.UUID) (*requests.Request, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.reqs[id]
	if !ok || q.StudentID != studentID || !q.Status.Open() {
		return nil, false, nil
	}
	q.Status = requests.StatusCancelled
	q.ClaimedBy, q.ClaimedAt = nil, nil
	return cloneReq(q), true, nil
}

func (r reqRepo) MarkScheduled(_ context.Context, id, staffID, appointmentID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.reqs[id]
	if !ok || q.Status != requests.StatusAssigned || !q.ClaimedByStaff(staffID) {
		return false, nil
	}
	q.Status = requests.StatusScheduled
	q.AppointmentID = &appointmentID
	return true, nil
}

func (r reqRepo) CancelScheduled(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.reqs[id]; ok && q.Status != requests.StatusCancelled {
		q.Status = requests.StatusCancelled
		q.ClaimedBy, q.ClaimedAt = nil, nil
	}
	return nil
}

// -- Availability --

type fakeAvail struct{ *world }

func (fakeAvail) Location() *time.Location { return bogota }

func (a fakeAvail) GetSlot(_ context.Context, id uuid.UUID) (*availability.Slot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.slots[id]
	if !ok {
		return nil, apperr.NotFound("slot %s not found", id)
	}
	c := *s
	return &c, nil
}

func (a fakeAvail) CheckBreaks(_ context.Context, staffID uuid.UUID, start, end time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var mine []availability.Break
	for _, b := range a.breaks {
		if b.StaffID == staffID {
			mine = append(mine, b)
		}
	}
	if _, hit := availability.BreakHit(mine, start, end, bogota); hit {
		return apperr.Unavailable("break")
	}
	return nil
}

func (a fakeAvail) CheckCovered(ctx context.Context, staffID uuid.UUID, start, end time.Time) (*availability.Slot, error) {
	if err := a.CheckBreaks(ctx, staffID, start, end); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.slots {
		if s.StaffID == staffID && s.Status == availability.SlotOpen && s.Covers(start, end) {
			c := *s
			return &c, nil
		}
	}
	var mine []availability.WorkingHours
	for _, h := range a.hours {
		if h.StaffID == staffID {
			mine = append(mine, h)
		}
	}
	if availability.HoursCover(mine, start, end, bogota) {
		return nil, nil
	}
	return nil, apperr.Unavailable("not covered")
}

func (a fakeAvail) ReserveSlot(_ context.Context, id, studentID uuid.UUID) (*availability.Slot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.slots[id]
	if !ok {
		return nil, apperr.NotFound("slot %s not found", id)
	}
	if s.Status != availability.SlotOpen {
		return nil, apperr.Conflict("slot %s is no longer available", id)
	}
	s.Status = availability.SlotReserved
	s.ReservedBy = &studentID
	c := *s
	return &c, nil
}

func (a fakeAvail) ReopenSlot(_ context.Context, id uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.slots[id]; ok && s.Status == availability.SlotReserved {
		s.Status = availability.SlotOpen
		s.ReservedBy = nil
	}
	return nil
}

// -- Side effects --

type recordingSink struct {
	mu   sync.Mutex
	sent []*notification.Notification
}

func (s *recordingSink) Deliver(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSink) to(userID uuid.UUID, typ notification.Type) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.sent {
		if m.UserID == userID && m.Type == typ {
			n++
		}
	}
	return n
}

type recordingReminders struct {
	mu    sync.Mutex
	calls map[uuid.UUID]time.Time
}

func (r *recordingReminders) Enqueue(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[id] = at
	return nil
}

type fixture struct {
	svc       *Service
	world     *world
	sink      *recordingSink
	reminders *recordingReminders
	requests  *requests.Service
}

func newFixture() *fixture {
	w := newWorld()
	sink := &recordingSink{}
	rem := &recordingReminders{calls: make(map[uuid.UUID]time.Time)}
	notifier := notification.NewNotifier(sink, zerolog.Nop(), nil)

	svc := NewService(Deps{
		Repo:      apptRepo{w},
		Requests:  reqRepo{w},
		Avail:     fakeAvail{w},
		Tx:        w,
		Notifier:  notifier,
		Reminders: rem,
		Logger:    zerolog.Nop(),
	}, Config{Horizon: 90 * 24 * time.Hour, MaxDurationMinutes: 240, MinReasonLength: 10})
	svc.now = func() time.Time { return testNow }

	return &fixture{
		svc:       svc,
		world:     w,
		sink:      sink,
		reminders: rem,
		requests:  requests.NewService(reqRepo{w}, notifier, nil, zerolog.Nop(), requests.Config{MinReasonLength: 10}),
	}
}

// weekdayHours gives staffID 08:00-18:00 Monday to Friday.
func (f *fixture) weekdayHours(staffID uuid.UUID) {
	f.world.mu.Lock()
	defer f.world.mu.Unlock()
	for d := time.Monday; d <= time.Friday; d++ {
		f.world.hours = append(f.world.hours, availability.WorkingHours{
			ID: uuid.New(), StaffID: staffID, InstitutionID: testInstitution,
			DayOfWeek: d, StartTime: 8 * 60, EndTime: 18 * 60, Active: true,
		})
	}
}

// claimedRequest seeds an ASIGNADA request held by staffID.
func (f *fixture) claimedRequest(studentID, staffID uuid.UUID) *requests.Request {
	q := &requests.Request{
		ID: uuid.New(), StudentID: studentID, InstitutionID: testInstitution,
		Severity: requests.SeverityMedium, SourceChannel: requests.ChannelWeb,
		Reason: "Necesito ayuda con ansiedad", Modality: requests.ModalityInPerson,
		Status: requests.StatusAssigned, ClaimedBy: &staffID,
	}
	f.world.mu.Lock()
	f.world.reqs[q.ID] = cloneReq(q)
	f.world.mu.Unlock()
	return q
}

func (f *fixture) openSlot(staffID uuid.UUID, start time.Time, minutes int) *availability.Slot {
	s := &availability.Slot{
		ID: uuid.New(), StaffID: staffID, InstitutionID: testInstitution,
		StartTime: start, Duration: minutes, EndTime: start.Add(time.Duration(minutes) * time.Minute),
		Status: availability.SlotOpen,
	}
	f.world.mu.Lock()
	c := *s
	f.world.slots[s.ID] = &c
	f.world.mu.Unlock()
	return s
}

// seedAppointment stores an appointment directly in the given state.
func (f *fixture) seedAppointment(studentID, staffID uuid.UUID, at time.Time, status Status) *Appointment {
	a := &Appointment{
		ID: uuid.New(), InstitutionID: testInstitution, StudentID: studentID, StaffID: staffID,
		DateTime: at, Duration: 60, EndTime: at.Add(time.Hour),
		Modality: requests.ModalityInPerson, Reason: "Seguimiento semanal", Status: status,
	}
	f.world.mu.Lock()
	c := *a
	f.world.appts[a.ID] = &c
	f.world.mu.Unlock()
	return a
}

func (f *fixture) request(id uuid.UUID) requests.Request {
	f.world.mu.Lock()
	defer f.world.mu.Unlock()
	return *f.world.reqs[id]
}

func (f *fixture) slot(id uuid.UUID) availability.Slot {
	f.world.mu.Lock()
	defer f.world.mu.Unlock()
	return *f.world.slots[id]
}

func (f *fixture) appointment(id uuid.UUID) Appointment {
	f.world.mu.Lock()
	defer f.world.mu.Unlock()
	return *f.world.appts[id]
}

// Tuesday 2026-03-03 10:00 in Bogota, two days after testNow.
var inTwoDays = testNow.Add(48 * time.Hour)
