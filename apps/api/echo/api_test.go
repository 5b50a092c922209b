package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/attendance"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/session"
	"github.com/toniiplaycode/DNC-Learning-sub001/storage/database/inmem"
)

type rosterSeeder interface {
	attendance.Roster
	SetExpectedParticipants(sessionID string, participantIDs ...string)
}

type testDeps struct {
	sessRepo session.Repository
	roster   rosterSeeder
	sessSvc  *session.Service
	attSvc   *attendance.Service
}

type sessionDirectory struct {
	repo session.Repository
}

func (d sessionDirectory) GetByID(ctx context.Context, id string) (session.Session, error) {
	return d.repo.GetSessionByID(ctx, id)
}

func setup(t *testing.T) (Server, *testDeps) {
	core.Conf.Debug = false
	core.Conf.TestMode = true

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}

	sessRepo := inmemdb.NewSessionRepository(db)
	roster := inmemdb.NewRosterRepository(db)
	attSvc := attendance.NewService(
		inmemdb.NewAttendanceRepository(db),
		sessionDirectory{repo: sessRepo},
		roster,
		nil,
		nil,
		core.AttendanceConfig{LateThreshold: 5 * time.Minute, AllowRejoin: true},
	)
	sessSvc := session.NewService(sessRepo, attSvc, nil)

	app := NewServer(
		&Options{
			DisableReqLogs: true,
			SessionSvc:     sessSvc,
			AttendanceSvc:  attSvc,
		},
	)
	return app, &testDeps{sessRepo: sessRepo, roster: roster, sessSvc: sessSvc, attSvc: attSvc}
}

type httpErr struct {
	Error string `json:"error"`
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, participantID string, isStudent, isTeacher, isAdmin bool) string {
	token, err := GenerateToken(NewClaims(participantID, isStudent, isTeacher, isAdmin))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decoding response %q failed: %v", rec.Body.String(), err)
	}
}

func createSession(t *testing.T, repo session.Repository, start, end time.Time, status session.Status) session.Session {
	now := time.Now().UTC()
	s, err := repo.CreateSession(context.Background(), session.Session{
		Title:     "Algebra II",
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

func Test_sessionApi_create(t *testing.T) {
	app, _ := setup(t)
	studentToken := getToken(t, "student-a", true, false, false)
	teacherToken := getToken(t, "teacher-a", false, true, false)

	start := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	body := marshallObj(t, session.NewSession{
		Title:     "Algebra II",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	})

	// unauthenticated
	req, rec := newAuthRequest(http.MethodPost, "/v1/sessions", "", body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	// students cannot schedule sessions
	req, rec = newAuthRequest(http.MethodPost, "/v1/sessions", studentToken, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusForbidden)
	}

	// invalid window
	badBody := marshallObj(t, session.NewSession{Title: "Algebra II", StartTime: start, EndTime: start})
	req, rec = newAuthRequest(http.MethodPost, "/v1/sessions", teacherToken, badBody)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var fldErrs map[string]string
	decode(t, rec, &fldErrs)
	if _, ok := fldErrs["endTime"]; !ok {
		t.Errorf("field errors = %v, want endTime", fldErrs)
	}

	// teacher creates
	req, rec = newAuthRequest(http.MethodPost, "/v1/sessions", teacherToken, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var got sessionResponse
	decode(t, rec, &got)
	if got.ID == "" || got.Status != session.StatusScheduled {
		t.Errorf("created session = %+v", got)
	}
	if got.EffectiveStatus != session.StatusScheduled {
		t.Errorf("effectiveStatus = %v, want %v", got.EffectiveStatus, session.StatusScheduled)
	}
}

func Test_sessionApi_retrieve(t *testing.T) {
	app, deps := setup(t)
	token := getToken(t, "student-a", true, false, false)
	now := time.Now().UTC()

	live := createSession(t, deps.sessRepo, now.Add(-30*time.Minute), now.Add(30*time.Minute), session.StatusScheduled)

	req, rec := newAuthRequest(http.MethodGet, "/v1/sessions/"+live.ID, token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d", rec.Code, http.StatusOK)
	}
	var got sessionResponse
	decode(t, rec, &got)
	if got.ID != live.ID {
		t.Errorf("id = %s, want %s", got.ID, live.ID)
	}
	// stored scheduled, but the window is running
	if got.Status != session.StatusScheduled || got.EffectiveStatus != session.StatusInProgress {
		t.Errorf("status = %v / %v, want scheduled / in_progress", got.Status, got.EffectiveStatus)
	}

	req, rec = newAuthRequest(http.MethodGet, "/v1/sessions/nope", token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func Test_sessionApi_cancelAndFinalize(t *testing.T) {
	app, deps := setup(t)
	teacherToken := getToken(t, "teacher-a", false, true, false)
	now := time.Now().UTC()

	// finalize refuses while the window is still open
	live := createSession(t, deps.sessRepo, now.Add(-30*time.Minute), now.Add(30*time.Minute), session.StatusScheduled)
	req, rec := newAuthRequest(http.MethodPost, "/v1/sessions/"+live.ID+"/finalize", teacherToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusConflict)
	}

	// finalize a due session seeds absences
	due := createSession(t, deps.sessRepo, now.Add(-2*time.Hour), now.Add(-time.Hour), session.StatusScheduled)
	deps.roster.SetExpectedParticipants(due.ID, "student-a", "student-b")
	req, rec = newAuthRequest(http.MethodPost, "/v1/sessions/"+due.ID+"/finalize", teacherToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	var res session.FinalizeResult
	decode(t, rec, &res)
	if len(res.SeededAbsences) != 2 {
		t.Errorf("seeded = %v, want 2 absences", res.SeededAbsences)
	}

	// cancel the live one
	req, rec = newAuthRequest(http.MethodPost, "/v1/sessions/"+live.ID+"/cancel", teacherToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d", rec.Code, http.StatusOK)
	}
	var got sessionResponse
	decode(t, rec, &got)
	if got.Status != session.StatusCancelled {
		t.Errorf("status = %v, want %v", got.Status, session.StatusCancelled)
	}

	// cancelling twice conflicts
	req, rec = newAuthRequest(http.MethodPost, "/v1/sessions/"+live.ID+"/cancel", teacherToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func Test_attendanceApi_joinLeave(t *testing.T) {
	app, deps := setup(t)
	token := getToken(t, "student-a", true, false, false)
	now := time.Now().UTC()

	live := createSession(t, deps.sessRepo, now.Add(-30*time.Minute), now.Add(30*time.Minute), session.StatusScheduled)
	future := createSession(t, deps.sessRepo, now.Add(time.Hour), now.Add(2*time.Hour), session.StatusScheduled)

	// leaving before joining
	req, rec := newAuthRequest(http.MethodPost, "/v1/sessions/"+live.ID+"/attendance/leave", token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusConflict)
	}

	// joining a session that is not running
	req, rec = newAuthRequest(http.MethodPost, "/v1/sessions/"+future.ID+"/attendance/join", token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusConflict)
	}
	var herr httpErr
	decode(t, rec, &herr)
	if herr.Error != "session not currently active" {
		t.Errorf("error = %q, want %q", herr.Error, "session not currently active")
	}

	// join, twice: same record both times
	req, rec = newAuthRequest(http.MethodPost, "/v1/sessions/"+live.ID+"/attendance/join", token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	var first attendance.Record
	decode(t, rec, &first)
	if first.Status != attendance.StatusLate { // 30 min after start with a 5 min threshold
		t.Errorf("status = %v, want %v", first.Status, attendance.StatusLate)
	}

	req, rec = newAuthRequest(http.MethodPost, "/v1/sessions/"+live.ID+"/attendance/join", token)
	app.ServeHTTP(rec, req)
	var second attendance.Record
	decode(t, rec, &second)
	if second.ID != first.ID || !second.JoinTime.Equal(*first.JoinTime) {
		t.Errorf("second join = %+v, want record %s unchanged", second, first.ID)
	}

	// leave closes it with a duration
	req, rec = newAuthRequest(http.MethodPost, "/v1/sessions/"+live.ID+"/attendance/leave", token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d", rec.Code, http.StatusOK)
	}
	var closed attendance.Record
	decode(t, rec, &closed)
	if closed.LeaveTime == nil || closed.DurationSeconds == nil {
		t.Errorf("leave response = %+v, want closed record", closed)
	}
}

func Test_attendanceApi_teacherEndpoints(t *testing.T) {
	app, deps := setup(t)
	studentToken := getToken(t, "student-a", true, false, false)
	teacherToken := getToken(t, "teacher-a", false, true, false)
	now := time.Now().UTC()

	live := createSession(t, deps.sessRepo, now.Add(-30*time.Minute), now.Add(30*time.Minute), session.StatusScheduled)
	deps.roster.SetExpectedParticipants(live.ID, "student-a", "student-b")

	if _, err := deps.attSvc.Join(context.Background(), live.ID, "student-a", now.Add(-29*time.Minute)); err != nil {
		t.Fatalf("Join() failed: %v", err)
	}

	// listing is a teacher concern
	req, rec := newAuthRequest(http.MethodGet, "/v1/sessions/"+live.ID+"/attendance", studentToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusForbidden)
	}

	req, rec = newAuthRequest(http.MethodGet, "/v1/sessions/"+live.ID+"/attendance", teacherToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d", rec.Code, http.StatusOK)
	}
	var recs []attendance.Record
	decode(t, rec, &recs)
	if len(recs) != 1 {
		t.Errorf("got %d records, want 1", len(recs))
	}

	// manual override and summary
	body := marshallObj(t, attendance.MarkAttendance{Status: attendance.StatusExcused, Note: "sick leave"})
	req, rec = newAuthRequest(http.MethodPut, "/v1/sessions/"+live.ID+"/attendance/student-b", teacherToken, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	req, rec = newAuthRequest(http.MethodGet, "/v1/sessions/"+live.ID+"/attendance/summary", teacherToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d", rec.Code, http.StatusOK)
	}
	var sum attendance.SessionSummary
	decode(t, rec, &sum)
	assert.Equal(t, attendance.SessionSummary{SessionID: live.ID, Expected: 2, Present: 1, Excused: 1, Rate: 0.5}, sum)

	// bad override status is a field error
	body = marshallObj(t, attendance.MarkAttendance{Status: "awol"})
	req, rec = newAuthRequest(http.MethodPut, "/v1/sessions/"+live.ID+"/attendance/student-b", teacherToken, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func Test_attendanceApi_participantSummary(t *testing.T) {
	app, deps := setup(t)
	studentToken := getToken(t, "student-a", true, false, false)
	teacherToken := getToken(t, "teacher-a", false, true, false)
	now := time.Now().UTC()

	s1 := createSession(t, deps.sessRepo, now.Add(-3*time.Hour), now.Add(-2*time.Hour), session.StatusScheduled)
	s2 := createSession(t, deps.sessRepo, now.Add(-2*time.Hour), now.Add(-time.Hour), session.StatusScheduled)
	ctx := context.Background()
	if _, err := deps.attSvc.Join(ctx, s1.ID, "student-a", s1.StartTime.Add(time.Minute)); err != nil {
		t.Fatalf("Join() failed: %v", err)
	}
	if _, err := deps.attSvc.MarkStatus(ctx, s2.ID, "student-a", attendance.MarkAttendance{Status: attendance.StatusAbsent}); err != nil {
		t.Fatalf("MarkStatus() failed: %v", err)
	}

	// own summary
	req, rec := newAuthRequest(http.MethodGet, "/v1/participants/student-a/attendance-summary", studentToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d", rec.Code, http.StatusOK)
	}
	var sum attendance.ParticipantSummary
	decode(t, rec, &sum)
	assert.Equal(t, attendance.ParticipantSummary{ParticipantID: "student-a", TotalSessions: 2, Attended: 1, Rate: 0.5}, sum)

	// someone else's summary is off-limits for students
	req, rec = newAuthRequest(http.MethodGet, "/v1/participants/student-b/attendance-summary", studentToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusForbidden)
	}

	// teachers may read anyone, scoped to chosen sessions
	req, rec = newAuthRequest(http.MethodGet, "/v1/participants/student-a/attendance-summary?session="+s1.ID, teacherToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d", rec.Code, http.StatusOK)
	}
	decode(t, rec, &sum)
	assert.Equal(t, attendance.ParticipantSummary{ParticipantID: "student-a", TotalSessions: 1, Attended: 1, Rate: 1}, sum)
}
