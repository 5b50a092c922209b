package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
)

// Status classifies a participant's attendance in one session.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
	StatusExcused Status = "excused"
)

var AllStatuses = []Status{StatusPresent, StatusLate, StatusAbsent, StatusExcused}

func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Attended reports whether s counts towards participation.
func (s Status) Attended() bool {
	return s == StatusPresent || s == StatusLate
}

// Record is one participant's join/leave ledger entry for one session.
// At most one open record (join set, leave unset) exists per
// (session, participant) pair at any time; closed records accumulate when
// rejoining is allowed. A record with neither timestamp is a seeded absence
// or an operator excusal.
type Record struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"sessionId"`
	ParticipantID   string     `json:"participantId"`
	Status          Status     `json:"status"`
	JoinTime        *time.Time `json:"joinTime"`  // UTC
	LeaveTime       *time.Time `json:"leaveTime"` // UTC
	DurationSeconds *int64     `json:"durationSeconds"`
	Note            string     `json:"note,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"` // UTC
	UpdatedAt       time.Time  `json:"updatedAt"` // UTC
}

// Open reports whether the participant is currently inside the session
// according to the ledger: joined and not yet left.
func (r Record) Open() bool {
	return r.JoinTime != nil && r.LeaveTime == nil
}

// Closed reports whether a join was observed and later closed.
func (r Record) Closed() bool {
	return r.JoinTime != nil && r.LeaveTime != nil
}

// Duration returns the computed participation duration. The second return
// is false while the record is still open (or never joined); callers must
// not read an open record as zero participation.
func (r Record) Duration() (time.Duration, bool) {
	if r.DurationSeconds == nil {
		return 0, false
	}
	return time.Duration(*r.DurationSeconds) * time.Second, true
}

// close sets the leave timestamp, clamping out-of-order clock skew to a
// zero duration rather than going negative. Reports whether clamping
// occurred so the caller can log it for audit.
func (r *Record) close(at time.Time) (clamped bool) {
	if r.JoinTime == nil || r.LeaveTime != nil {
		return false
	}
	leave := at.UTC()
	if leave.Before(*r.JoinTime) {
		leave = *r.JoinTime
		clamped = true
	}
	secs := int64(leave.Sub(*r.JoinTime) / time.Second)
	r.LeaveTime = &leave
	r.DurationSeconds = &secs
	return clamped
}

// MarkAttendance is the operator override payload: it overwrites a record's
// status (e.g. marking a participant excused) but never fabricates join or
// leave timestamps.
type MarkAttendance struct {
	Status Status `json:"status" validate:"required,attendancestatus"`
	Note   string `json:"note"`
}

func (ma *MarkAttendance) Validate(validate *validator.Validate) error {
	ma.Note = core.CleanString(ma.Note)
	return validate.Struct(ma)
}

// QueryFilter filters ledger queries; fields are ANDed.
type QueryFilter struct {
	SessionID     string   `query:"-"`
	ParticipantID string   `query:"-"`
	SessionIDs    []string `query:"session"`
	Statuses      []Status `query:"status"`
	OpenOnly      bool     `query:"open"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.SessionID == "" && qf.ParticipantID == "" && qf.SessionIDs == nil &&
		qf.Statuses == nil && !qf.OpenOnly
}
