package session

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound       = errors.New("session not found")
	ErrNotCancellable = errors.New("session can no longer be cancelled")
	ErrStillOpen      = errors.New("session window has not elapsed")
	ErrWindowLocked   = errors.New("scheduled window can no longer be changed")
	ErrHasAttendance  = errors.New("session has attendance records")
)

type (
	Repository interface {
		CreateSession(ctx context.Context, s Session) (Session, error)
		GetSessionByID(ctx context.Context, id string) (Session, error)
		// QuerySessions applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Title or Description.
		QuerySessions(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Session, error)
		UpdateSession(ctx context.Context, s Session) (Session, error)
		// SetSessionStatus transitions the stored status and reports whether
		// this call performed the transition; it must refuse to overwrite a
		// terminal status so the transition persists exactly once.
		SetSessionStatus(ctx context.Context, id string, status Status) (bool, error)
		DeleteSessionsByID(ctx context.Context, ids ...string) error
	}

	// Ledger is the slice of the attendance ledger the lifecycle controller
	// needs; implemented by the attendance service.
	Ledger interface {
		CloseOpenRecords(ctx context.Context, sessionID string, at time.Time) ([]string, error)
		SeedAbsences(ctx context.Context, sessionID string) ([]string, error)
		HasSessionRecords(ctx context.Context, sessionID string) (bool, error)
	}

	Service struct {
		repo   Repository
		ledger Ledger
		events core.Publisher
	}
)

// FinalizeResult reports what a finalize call actually did. Both slices are
// empty when the session was already finalized.
type FinalizeResult struct {
	ClosedRecords  []string `json:"closedRecords"`
	SeededAbsences []string `json:"seededAbsences"`
}

func NewService(repo Repository, ledger Ledger, events core.Publisher) *Service {
	if events == nil {
		events = core.NopPublisher{}
	}
	return &Service{repo: repo, ledger: ledger, events: events}
}

func (svc *Service) Create(ctx context.Context, ns NewSession) (Session, error) {
	now := nowFunc().UTC()
	s := Session{
		Title:        ns.Title,
		Description:  ns.Description,
		StartTime:    ns.StartTime.UTC(),
		EndTime:      ns.EndTime.UTC(),
		Status:       StatusScheduled,
		RecordingURL: ns.RecordingURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateSession(ctx, s)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Session, error) {
	return svc.repo.GetSessionByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Session, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QuerySessions(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateSession) (Session, error) {
	orig, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return Session{}, err
	}

	windowChanged := (us.StartTime != nil && !us.StartTime.Equal(orig.StartTime)) ||
		(us.EndTime != nil && !us.EndTime.Equal(orig.EndTime))
	if windowChanged && EffectiveStatus(orig, nowFunc().UTC()) != StatusScheduled {
		return Session{}, ErrWindowLocked
	}

	s := orig
	s.Title = us.Title
	if us.Description != "" {
		s.Description = us.Description
	}
	if us.StartTime != nil {
		s.StartTime = us.StartTime.UTC()
	}
	if us.EndTime != nil {
		s.EndTime = us.EndTime.UTC()
	}
	if us.RecordingURL != "" {
		s.RecordingURL = us.RecordingURL
	}
	s.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateSession(ctx, s)
}

// Cancel is the operator exit out of a live or scheduled session. Open
// attendance records are closed at the cancellation time; no absences are
// seeded, a cancelled session never counts against participants who were
// not in it.
func (svc *Service) Cancel(ctx context.Context, id string) (Session, error) {
	s, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return Session{}, err
	}

	now := nowFunc().UTC()
	if EffectiveStatus(s, now).Terminal() {
		return Session{}, ErrNotCancellable
	}

	transitioned, err := svc.repo.SetSessionStatus(ctx, id, StatusCancelled)
	if err != nil {
		return Session{}, errors.Wrap(err, "cancelling session")
	}
	if !transitioned {
		return Session{}, ErrNotCancellable
	}
	s.Status = StatusCancelled

	closed, err := svc.ledger.CloseOpenRecords(ctx, id, now)
	if err != nil {
		return Session{}, errors.Wrap(err, "closing open records")
	}

	svc.events.Publish(core.Event{
		Name: core.EventSessionCancelled,
		Payload: map[string]interface{}{
			"sessionId":     id,
			"closedRecords": closed,
		},
	})
	return s, nil
}

// Finalize closes out a session's attendance bookkeeping once its window
// has elapsed: still-open records are closed with the scheduled end time,
// and enrolled participants that never joined get a seeded absent record.
// Idempotent: finalizing an already-completed (or cancelled) session is a
// no-op returning an empty result, never an error.
func (svc *Service) Finalize(ctx context.Context, id string) (FinalizeResult, error) {
	s, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return FinalizeResult{}, err
	}
	if s.Status.Terminal() {
		return FinalizeResult{ClosedRecords: []string{}, SeededAbsences: []string{}}, nil
	}
	if !nowFunc().UTC().After(s.EndTime) {
		return FinalizeResult{}, ErrStillOpen
	}

	closed, err := svc.ledger.CloseOpenRecords(ctx, id, s.EndTime)
	if err != nil {
		return FinalizeResult{}, errors.Wrap(err, "closing open records")
	}
	seeded, err := svc.ledger.SeedAbsences(ctx, id)
	if err != nil {
		return FinalizeResult{}, errors.Wrap(err, "seeding absences")
	}

	transitioned, err := svc.repo.SetSessionStatus(ctx, id, StatusCompleted)
	if err != nil {
		return FinalizeResult{}, errors.Wrap(err, "completing session")
	}
	if transitioned {
		svc.events.Publish(core.Event{
			Name: core.EventSessionFinalized,
			Payload: map[string]interface{}{
				"sessionId":      id,
				"closedRecords":  closed,
				"seededAbsences": seeded,
			},
		})
	}

	if closed == nil {
		closed = []string{}
	}
	if seeded == nil {
		seeded = []string{}
	}
	return FinalizeResult{ClosedRecords: closed, SeededAbsences: seeded}, nil
}

// FinalizeDue finalizes every session whose window has elapsed but whose
// stored status is not terminal yet; the reconciliation safety net behind
// best-effort client leaves.
func (svc *Service) FinalizeDue(ctx context.Context) (map[string]FinalizeResult, error) {
	due, err := svc.repo.QuerySessions(ctx, &QueryFilter{DueOnly: true}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying due sessions")
	}

	results := make(map[string]FinalizeResult, len(due))
	for _, s := range due {
		res, err := svc.Finalize(ctx, s.ID)
		if err != nil {
			return results, errors.Wrapf(err, "finalizing session %s", s.ID)
		}
		results[s.ID] = res
	}
	return results, nil
}

// Delete refuses to remove a session that attendance records still reference.
func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		ok, err := svc.ledger.HasSessionRecords(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "checking records for session %s", id)
		}
		if ok {
			return ErrHasAttendance
		}
	}
	return svc.repo.DeleteSessionsByID(ctx, ids...)
}
