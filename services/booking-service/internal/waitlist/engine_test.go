package waitlist

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicbook/clinicbook/services/booking-service/internal/apperr"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/model"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/outbox"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/schedule"
)

// fakeTx satisfies pgx.Tx for code that only commits or rolls back; the
// fakes below ignore the transaction handle entirely.
type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeStore struct {
	entries []*Entry
	seq     int
}

func (s *fakeStore) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (s *fakeStore) Create(_ context.Context, e *Entry) error {
	s.seq++
	e.ID = fmt.Sprintf("entry-%d", s.seq)
	e.Token = fmt.Sprintf("token-%d", s.seq)
	e.Status = StatusPending
	e.CreatedAt = time.Unix(int64(s.seq), 0)
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *fakeStore) byToken(token string) *Entry {
	for _, e := range s.entries {
		if e.Token == token {
			return e
		}
	}
	return nil
}

func (s *fakeStore) GetByToken(_ context.Context, token string) (Entry, error) {
	if e := s.byToken(token); e != nil {
		return *e, nil
	}
	return Entry{}, pgx.ErrNoRows
}

func (s *fakeStore) GetByTokenForUpdate(ctx context.Context, _ pgx.Tx, token string) (Entry, error) {
	return s.GetByToken(ctx, token)
}

// Entries are appended in creation order, so a linear scan is FIFO.
func (s *fakeStore) NextPendingMatch(_ context.Context, _ pgx.Tx, slot FreedSlot, matchTimeWindow bool) (Entry, bool, error) {
	for _, e := range s.entries {
		if e.Matches(slot, matchTimeWindow) {
			return *e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (s *fakeStore) MarkNotified(_ context.Context, _ pgx.Tx, entryID string, slot FreedSlot, notifiedAt, expiresAt time.Time) error {
	for _, e := range s.entries {
		if e.ID == entryID && e.Status == StatusPending {
			na, ea := notifiedAt, expiresAt
			e.Status = StatusNotified
			e.NotifiedAt, e.ExpiresAt = &na, &ea
			e.AvailableDate, e.AvailableStart, e.AvailableEnd = slot.Date, slot.Start, slot.End
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (s *fakeStore) Transition(_ context.Context, _ pgx.Tx, entryID, from, to string) (bool, error) {
	for _, e := range s.entries {
		if e.ID == entryID && e.Status == from {
			e.Status = to
			return true, nil
		}
	}
	return false, nil
}

type fakeBreaks struct{ breaks []schedule.Break }

func (b fakeBreaks) BreaksOn(_ context.Context, _ string, date civil.Date) ([]schedule.Break, error) {
	var out []schedule.Break
	for _, br := range b.breaks {
		if br.Date == date {
			out = append(out, br)
		}
	}
	return out, nil
}

type fakeAppointments struct {
	created  []model.Appointment
	conflict bool
	seq      int
}

func (a *fakeAppointments) FindOrCreatePatient(context.Context, pgx.Tx, model.Patient) (string, error) {
	return "patient-1", nil
}

func (a *fakeAppointments) Create(_ context.Context, _ pgx.Tx, appt *model.Appointment) (string, error) {
	if a.conflict {
		return "", &pgconn.PgError{Code: "23P01"}
	}
	a.seq++
	appt.ID = fmt.Sprintf("appt-%d", a.seq)
	a.created = append(a.created, *appt)
	return appt.ID, nil
}

type fakeOutbox struct{ events []outbox.Event }

func (o *fakeOutbox) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	o.events = append(o.events, evt)
	return nil
}

func (o *fakeOutbox) offers() int {
	n := 0
	for _, e := range o.events {
		if e.EventType == outbox.TopicWaitlistOffer {
			n++
		}
	}
	return n
}

type engineFixture struct {
	store  *fakeStore
	appts  *fakeAppointments
	events *fakeOutbox
	breaks fakeBreaks
	engine *Engine
	now    time.Time
}

func newFixture(breaks ...schedule.Break) *engineFixture {
	f := &engineFixture{
		store:  &fakeStore{},
		appts:  &fakeAppointments{},
		events: &fakeOutbox{},
		breaks: fakeBreaks{breaks: breaks},
		now:    time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
	clock := civil.NewClockAt(time.UTC, func() time.Time { return f.now })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.engine = NewEngine(f.store, f.breaks, f.appts, f.events, clock, logger, Config{
		OfferTTL:        time.Hour,
		MatchTimeWindow: true,
	})
	return f
}

func (f *engineFixture) addPending(t *testing.T, professionalID string, date civil.Date) Entry {
	t.Helper()
	e := Entry{
		ProfessionalID: professionalID,
		Name:           "Ana",
		Email:          "ana@example.com",
		PreferredDate:  date,
	}
	if err := f.engine.CreateEntry(context.Background(), &e); err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	return e
}

func slotOn(date civil.Date, start, end civil.TimeOfDay) FreedSlot {
	return FreedSlot{ProfessionalID: "prof-1", Date: date, Start: start, End: end}
}

func TestReconcileOffersOldestEntryFirst(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first := f.addPending(t, "prof-1", "2026-09-10")
	second := f.addPending(t, "prof-1", "2026-09-10")

	if err := f.engine.Reconcile(ctx, fakeTx{}, slotOn("2026-09-10", 540, 570)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := f.store.byToken(first.Token); got.Status != StatusNotified {
		t.Fatalf("first entry status = %s, want notified", got.Status)
	}
	if got := f.store.byToken(second.Token); got.Status != StatusPending {
		t.Fatalf("second entry status = %s, want pending", got.Status)
	}
	if f.events.offers() != 1 {
		t.Fatalf("offer events = %d, want 1", f.events.offers())
	}

	if err := f.engine.Reconcile(ctx, fakeTx{}, slotOn("2026-09-10", 600, 630)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	got := f.store.byToken(second.Token)
	if got.Status != StatusNotified {
		t.Fatalf("second entry status = %s, want notified", got.Status)
	}
	if got.AvailableStart != 600 || got.AvailableEnd != 630 {
		t.Fatalf("stamped slot = %s-%s, want 10:00-10:30", got.AvailableStart, got.AvailableEnd)
	}
}

func TestReconcileSkipsSlotInsideBreak(t *testing.T) {
	f := newFixture(schedule.Break{ProfessionalID: "prof-1", Date: "2026-09-10", StartTime: 540, EndTime: 600})
	f.addPending(t, "prof-1", "2026-09-10")

	if err := f.engine.Reconcile(context.Background(), fakeTx{}, slotOn("2026-09-10", 540, 570)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if f.events.offers() != 0 {
		t.Fatalf("offer events = %d, want 0 for a blocked interval", f.events.offers())
	}
}

func TestReleaseCascadesToNextEntryExactlyOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first := f.addPending(t, "prof-1", "2026-09-10")
	second := f.addPending(t, "prof-1", "2026-09-10")

	if err := f.engine.Reconcile(ctx, fakeTx{}, slotOn("2026-09-10", 540, 570)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	released, err := f.engine.Release(ctx, first.Token)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released.Status != StatusCancelled {
		t.Fatalf("released status = %s, want cancelled", released.Status)
	}
	next := f.store.byToken(second.Token)
	if next.Status != StatusNotified {
		t.Fatalf("next entry status = %s, want notified", next.Status)
	}
	if next.AvailableStart != 540 || next.AvailableEnd != 570 {
		t.Fatalf("cascaded slot = %s-%s, want the released 09:00-09:30", next.AvailableStart, next.AvailableEnd)
	}
	if f.events.offers() != 2 {
		t.Fatalf("offer events = %d, want exactly one per notification", f.events.offers())
	}

	// Last holder releases with nobody left in the queue: the cascade stops.
	if _, err := f.engine.Release(ctx, second.Token); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if f.events.offers() != 2 {
		t.Fatalf("offer events = %d after final release, want 2", f.events.offers())
	}
}

func TestConfirmBooksStampedSlot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.addPending(t, "prof-1", "2026-09-10")

	if err := f.engine.Reconcile(ctx, fakeTx{}, slotOn("2026-09-10", 540, 570)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	appt, err := f.engine.Confirm(ctx, entry.Token)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if appt.Date != "2026-09-10" || appt.StartTime != 540 || appt.EndTime != 570 {
		t.Fatalf("booked %s %s-%s, want stamped slot", appt.Date, appt.StartTime, appt.EndTime)
	}
	if got := f.store.byToken(entry.Token); got.Status != StatusFulfilled {
		t.Fatalf("entry status = %s, want fulfilled", got.Status)
	}
	booked := 0
	for _, e := range f.events.events {
		if e.EventType == outbox.TopicAppointmentBooked {
			booked++
		}
	}
	if booked != 1 {
		t.Fatalf("booked events = %d, want 1", booked)
	}
}

func TestConfirmSurfacesBookingConflict(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.addPending(t, "prof-1", "2026-09-10")
	if err := f.engine.Reconcile(ctx, fakeTx{}, slotOn("2026-09-10", 540, 570)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	f.appts.conflict = true
	_, err := f.engine.Confirm(ctx, entry.Token)
	if !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	// The failed transaction must not consume the offer.
	if got := f.store.byToken(entry.Token); got.Status == StatusFulfilled {
		t.Fatal("entry fulfilled despite booking conflict")
	}
}

func TestExpiryIsMonotonic(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.addPending(t, "prof-1", "2026-09-10")
	if err := f.engine.Reconcile(ctx, fakeTx{}, slotOn("2026-09-10", 540, 570)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	f.now = f.now.Add(2 * time.Hour)
	got, err := f.engine.Get(ctx, entry.Token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusExpired {
		t.Fatalf("status = %s, want expired after the window", got.Status)
	}

	// Repeated reads and further clock movement never resurrect the entry.
	f.now = f.now.Add(24 * time.Hour)
	got, err = f.engine.Get(ctx, entry.Token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusExpired {
		t.Fatalf("status = %s, want expired to be terminal", got.Status)
	}
	if _, err := f.engine.Confirm(ctx, entry.Token); !apperr.Is(err, apperr.Validation) {
		t.Fatalf("Confirm on expired entry: err = %v, want validation", err)
	}
}

func TestConfirmExpiresStaleOfferAndReportsGone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.addPending(t, "prof-1", "2026-09-10")
	if err := f.engine.Reconcile(ctx, fakeTx{}, slotOn("2026-09-10", 540, 570)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	f.now = f.now.Add(2 * time.Hour)
	_, err := f.engine.Confirm(ctx, entry.Token)
	if !apperr.Is(err, apperr.Expired) {
		t.Fatalf("err = %v, want expired", err)
	}
	if got := f.store.byToken(entry.Token); got.Status != StatusExpired {
		t.Fatalf("status = %s, want the expiry persisted", got.Status)
	}
}
