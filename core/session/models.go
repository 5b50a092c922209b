package session

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
)

// Status is a session's persisted lifecycle state.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var AllStatuses = []Status{StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled}

// Terminal reports whether no further transitions are valid from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Session is a scheduled time-boxed teaching event.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	StartTime    time.Time `json:"startTime"` // UTC
	EndTime      time.Time `json:"endTime"`   // UTC
	Status       Status    `json:"status"`
	RecordingURL string    `json:"recordingUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"` // UTC
	UpdatedAt    time.Time `json:"updatedAt"` // UTC
}

// EffectiveStatus derives the session state visible at `now`.
// Pure and total: terminal stored statuses are returned as-is, anything else
// is derived from the scheduled window. Callers that observe a derived
// StatusCompleted must go through Service.Finalize to persist it.
func EffectiveStatus(s Session, now time.Time) Status {
	if s.Status.Terminal() {
		return s.Status
	}
	switch {
	case now.Before(s.StartTime):
		return StatusScheduled
	case now.After(s.EndTime):
		return StatusCompleted
	default:
		return StatusInProgress
	}
}

// NewSession contains information needed to schedule a new Session.
type NewSession struct {
	Title        string    `json:"title" validate:"required"`
	Description  string    `json:"description"`
	StartTime    time.Time `json:"startTime" validate:"required"`
	EndTime      time.Time `json:"endTime" validate:"required,gtfield=StartTime"`
	RecordingURL string    `json:"recordingUrl" validate:"omitempty,url"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.Title = core.CleanString(ns.Title)
	ns.Description = core.CleanString(ns.Description)
	return validate.Struct(ns)
}

// UpdateSession defines what information may be provided to modify an
// existing Session. The scheduled window may only change while the session
// is still scheduled; the recording reference may change at any time.
type UpdateSession struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	StartTime    *time.Time `json:"startTime"`
	EndTime      *time.Time `json:"endTime"`
	RecordingURL string     `json:"recordingUrl" validate:"omitempty,url"`
}

func (us *UpdateSession) Validate(validate *validator.Validate, orig Session) error {
	title := core.CleanString(us.Title)
	if title != "" {
		us.Title = title
	} else {
		us.Title = orig.Title
	}
	us.Description = core.CleanString(us.Description)

	if err := validate.Struct(us); err != nil {
		return err
	}

	start, end := orig.StartTime, orig.EndTime
	if us.StartTime != nil {
		start = *us.StartTime
	}
	if us.EndTime != nil {
		end = *us.EndTime
	}
	if !start.Before(end) {
		return core.NewValidationError(nil, core.FieldError{Field: "endTime", Error: "end time must be after start time"})
	}
	return nil
}

// QueryFilter filters session queries; fields are ANDed.
type QueryFilter struct {
	Search   string    `query:"search"`
	Statuses []Status  `query:"status"`
	From     time.Time `query:"from"`
	To       time.Time `query:"to"`
	DueOnly  bool      `query:"-"` // window elapsed but status not terminal
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Statuses == nil && qf.From.IsZero() && qf.To.IsZero() && !qf.DueOnly
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
