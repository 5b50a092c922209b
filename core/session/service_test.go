package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/attendance"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/session"
	"github.com/toniiplaycode/DNC-Learning-sub001/storage/database/inmem"
)

type rosterSeeder interface {
	attendance.Roster
	SetExpectedParticipants(sessionID string, participantIDs ...string)
}

// capturePublisher records published events synchronously for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []core.Event
}

func (p *capturePublisher) Publish(evt core.Event) {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
}

func (p *capturePublisher) named(name string) []core.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var evts []core.Event
	for _, evt := range p.events {
		if evt.Name == name {
			evts = append(evts, evt)
		}
	}
	return evts
}

type testEnv struct {
	sessSvc  *session.Service
	attSvc   *attendance.Service
	sessRepo session.Repository
	roster   rosterSeeder
	events   *capturePublisher
}

func setup(t *testing.T) *testEnv {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}

	events := new(capturePublisher)
	sessRepo := inmemdb.NewSessionRepository(db)
	roster := inmemdb.NewRosterRepository(db)
	attSvc := attendance.NewService(
		inmemdb.NewAttendanceRepository(db),
		sessionDirectory{repo: sessRepo},
		roster,
		events,
		nil,
		core.AttendanceConfig{LateThreshold: 5 * time.Minute, AllowRejoin: true},
	)
	return &testEnv{
		sessSvc:  session.NewService(sessRepo, attSvc, events),
		attSvc:   attSvc,
		sessRepo: sessRepo,
		roster:   roster,
		events:   events,
	}
}

type sessionDirectory struct {
	repo session.Repository
}

func (d sessionDirectory) GetByID(ctx context.Context, id string) (session.Session, error) {
	return d.repo.GetSessionByID(ctx, id)
}

func createSession(t *testing.T, repo session.Repository, title string, start, end time.Time, status session.Status) session.Session {
	now := time.Now().UTC()
	s, err := repo.CreateSession(context.Background(), session.Session{
		Title:     title,
		StartTime: start.UTC(),
		EndTime:   end.UTC(),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createSession() failed: %v", err)
	}
	return s
}

func Test_sessionService_Create(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	start := time.Now().Add(time.Hour)
	s, err := env.sessSvc.Create(ctx, session.NewSession{
		Title:     "Algebra II",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if s.ID == "" {
		t.Error("Create() did not assign an ID")
	}
	if s.Status != session.StatusScheduled {
		t.Errorf("Create() status = %v, want %v", s.Status, session.StatusScheduled)
	}
	if s.StartTime.Location() != time.UTC {
		t.Errorf("Create() StartTime not UTC: %v", s.StartTime)
	}

	got, err := env.sessSvc.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.ID != s.ID || got.Title != "Algebra II" {
		t.Errorf("GetByID() = %+v, want created session", got)
	}
}

func Test_sessionService_Update_windowLock(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	tPtr := func(t time.Time) *time.Time { return &t }

	live := createSession(t, env.sessRepo, "Live", now.Add(-30*time.Minute), now.Add(30*time.Minute), session.StatusScheduled)

	// window change on a running session is refused
	newStart := now.Add(time.Hour)
	_, err := env.sessSvc.Update(ctx, live.ID, session.UpdateSession{
		Title:     "Live",
		StartTime: tPtr(newStart),
		EndTime:   tPtr(newStart.Add(time.Hour)),
	})
	if err != session.ErrWindowLocked {
		t.Errorf("Update() error = %v, want %v", err, session.ErrWindowLocked)
	}

	// anything else may still change
	s, err := env.sessSvc.Update(ctx, live.ID, session.UpdateSession{Title: "Live (rescheduled soon)"})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if s.Title != "Live (rescheduled soon)" {
		t.Errorf("Update() title = %q", s.Title)
	}

	// a scheduled session's window is free to move
	future := createSession(t, env.sessRepo, "Future", now.Add(time.Hour), now.Add(2*time.Hour), session.StatusScheduled)
	if _, err = env.sessSvc.Update(ctx, future.ID, session.UpdateSession{
		Title:     "Future",
		StartTime: tPtr(now.Add(3 * time.Hour)),
		EndTime:   tPtr(now.Add(4 * time.Hour)),
	}); err != nil {
		t.Errorf("Update() on scheduled session failed: %v", err)
	}
}

// Full lifecycle: one participant attends, one never shows up. Finalizing
// closes the books and a second finalize is a no-op.
func Test_sessionService_Finalize(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	start := now.Add(-time.Hour)
	end := now.Add(-time.Minute)
	s := createSession(t, env.sessRepo, "Algebra II", start, end, session.StatusScheduled)
	env.roster.SetExpectedParticipants(s.ID, "student-a", "student-b", "student-c")

	// A attends properly
	if _, err := env.attSvc.Join(ctx, s.ID, "student-a", start.Add(2*time.Minute)); err != nil {
		t.Fatalf("Join() failed: %v", err)
	}
	if _, err := env.attSvc.Leave(ctx, s.ID, "student-a", end.Add(-2*time.Minute)); err != nil {
		t.Fatalf("Leave() failed: %v", err)
	}
	// C joins and forgets to leave
	cRec, err := env.attSvc.Join(ctx, s.ID, "student-c", start.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("Join() failed: %v", err)
	}

	res, err := env.sessSvc.Finalize(ctx, s.ID)
	if err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	if len(res.ClosedRecords) != 1 || res.ClosedRecords[0] != cRec.ID {
		t.Errorf("Finalize() closed = %v, want [%s]", res.ClosedRecords, cRec.ID)
	}
	if len(res.SeededAbsences) != 1 || res.SeededAbsences[0] != "student-b" {
		t.Errorf("Finalize() seeded = %v, want [student-b]", res.SeededAbsences)
	}

	// C's record was closed at the scheduled end
	cRec, err = env.attSvc.GetByID(ctx, cRec.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if cRec.LeaveTime == nil || !cRec.LeaveTime.Equal(s.EndTime) {
		t.Errorf("closed record LeaveTime = %v, want %v", cRec.LeaveTime, s.EndTime)
	}

	got, err := env.sessSvc.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.Status != session.StatusCompleted {
		t.Errorf("status after finalize = %v, want %v", got.Status, session.StatusCompleted)
	}

	// the summary reflects the final books
	sum, err := env.attSvc.SessionSummary(ctx, s.ID)
	if err != nil {
		t.Fatalf("SessionSummary() failed: %v", err)
	}
	want := attendance.SessionSummary{SessionID: s.ID, Expected: 3, Present: 1, Late: 1, Absent: 1, Rate: 2.0 / 3.0}
	if sum != want {
		t.Errorf("SessionSummary() = %+v, want %+v", sum, want)
	}

	// finalize is idempotent
	res, err = env.sessSvc.Finalize(ctx, s.ID)
	if err != nil {
		t.Fatalf("second Finalize() failed: %v", err)
	}
	if len(res.ClosedRecords) != 0 || len(res.SeededAbsences) != 0 {
		t.Errorf("second Finalize() = %+v, want empty result", res)
	}
	if evts := env.events.named(core.EventSessionFinalized); len(evts) != 1 {
		t.Errorf("published %d finalized events, want 1", len(evts))
	}
}

func Test_sessionService_Finalize_stillOpen(t *testing.T) {
	env := setup(t)
	now := time.Now().UTC()

	s := createSession(t, env.sessRepo, "Live", now.Add(-30*time.Minute), now.Add(30*time.Minute), session.StatusScheduled)
	if _, err := env.sessSvc.Finalize(context.Background(), s.ID); err != session.ErrStillOpen {
		t.Errorf("Finalize() error = %v, want %v", err, session.ErrStillOpen)
	}
}

func Test_sessionService_Cancel(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s := createSession(t, env.sessRepo, "Live", now.Add(-30*time.Minute), now.Add(30*time.Minute), session.StatusScheduled)
	env.roster.SetExpectedParticipants(s.ID, "student-a", "student-b")

	rec, err := env.attSvc.Join(ctx, s.ID, "student-a", now.Add(-25*time.Minute))
	if err != nil {
		t.Fatalf("Join() failed: %v", err)
	}

	cancelled, err := env.sessSvc.Cancel(ctx, s.ID)
	if err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}
	if cancelled.Status != session.StatusCancelled {
		t.Errorf("Cancel() status = %v, want %v", cancelled.Status, session.StatusCancelled)
	}

	// the open record was closed at cancellation time
	rec, err = env.attSvc.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if rec.LeaveTime == nil {
		t.Fatal("record still open after cancel")
	}
	if rec.LeaveTime.Before(*rec.JoinTime) {
		t.Errorf("LeaveTime %v before JoinTime %v", rec.LeaveTime, rec.JoinTime)
	}

	// cancellation never seeds absences
	recs, err := env.attSvc.Query(ctx, &attendance.QueryFilter{SessionID: s.ID})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("got %d records after cancel, want 1", len(recs))
	}

	if _, err = env.sessSvc.Cancel(ctx, s.ID); err != session.ErrNotCancellable {
		t.Errorf("second Cancel() error = %v, want %v", err, session.ErrNotCancellable)
	}
	if evts := env.events.named(core.EventSessionCancelled); len(evts) != 1 {
		t.Errorf("published %d cancelled events, want 1", len(evts))
	}
}

func Test_sessionService_Delete(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	attended := createSession(t, env.sessRepo, "Attended", now.Add(-2*time.Hour), now.Add(-time.Hour), session.StatusScheduled)
	if _, err := env.attSvc.Join(ctx, attended.ID, "student-a", now.Add(-90*time.Minute)); err != nil {
		t.Fatalf("Join() failed: %v", err)
	}
	if err := env.sessSvc.Delete(ctx, attended.ID); err != session.ErrHasAttendance {
		t.Errorf("Delete() error = %v, want %v", err, session.ErrHasAttendance)
	}

	empty := createSession(t, env.sessRepo, "Empty", now.Add(time.Hour), now.Add(2*time.Hour), session.StatusScheduled)
	if err := env.sessSvc.Delete(ctx, empty.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := env.sessSvc.GetByID(ctx, empty.ID); err != session.ErrNotFound {
		t.Errorf("GetByID() after delete error = %v, want %v", err, session.ErrNotFound)
	}
}

func Test_sessionService_FinalizeDue(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due1 := createSession(t, env.sessRepo, "Due 1", now.Add(-3*time.Hour), now.Add(-2*time.Hour), session.StatusScheduled)
	due2 := createSession(t, env.sessRepo, "Due 2", now.Add(-2*time.Hour), now.Add(-time.Hour), session.StatusInProgress)
	createSession(t, env.sessRepo, "Running", now.Add(-time.Hour), now.Add(time.Hour), session.StatusScheduled)
	createSession(t, env.sessRepo, "Done", now.Add(-5*time.Hour), now.Add(-4*time.Hour), session.StatusCompleted)

	results, err := env.sessSvc.FinalizeDue(ctx)
	if err != nil {
		t.Fatalf("FinalizeDue() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("FinalizeDue() finalized %d sessions, want 2", len(results))
	}
	for _, id := range []string{due1.ID, due2.ID} {
		if _, ok := results[id]; !ok {
			t.Errorf("FinalizeDue() missing session %s", id)
		}
		s, err := env.sessSvc.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID() failed: %v", err)
		}
		if s.Status != session.StatusCompleted {
			t.Errorf("session %s status = %v, want %v", id, s.Status, session.StatusCompleted)
		}
	}
}
