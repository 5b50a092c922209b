package attendance

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/session"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound           = errors.New("attendance record not found")
	ErrSessionNotJoinable = errors.New("session not currently active")
	ErrNoOpenRecord       = errors.New("no open attendance record")
	// ErrOpenRecordExists is returned by repositories when an insert would
	// create a second open record for a (session, participant) pair; the
	// service resolves it by re-reading the existing record.
	ErrOpenRecordExists = errors.New("an open attendance record already exists")
)

type (
	Repository interface {
		// CreateRecord persists a new record. It must enforce the
		// one-open-record-per-pair rule atomically and return
		// ErrOpenRecordExists when violated.
		CreateRecord(ctx context.Context, rec Record) (Record, error)
		GetRecordByID(ctx context.Context, id string) (Record, error)
		// GetOpenRecord returns the single open record for the pair, or
		// ErrNotFound.
		GetOpenRecord(ctx context.Context, sessionID, participantID string) (Record, error)
		// GetLatestRecord returns the most recently created record for the
		// pair regardless of open/closed state, or ErrNotFound.
		GetLatestRecord(ctx context.Context, sessionID, participantID string) (Record, error)
		// QueryRecords applies AND operation on available QueryFilter fields.
		QueryRecords(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Record, error)
		// UpdateRecord persists the record. Closing is one-way: a stored
		// leave time and duration are never overwritten, whichever close
		// commits first wins.
		UpdateRecord(ctx context.Context, rec Record) (Record, error)
		HasSessionRecords(ctx context.Context, sessionID string) (bool, error)
	}

	// SessionDirectory supplies the scheduling data the ledger reads;
	// implemented by the session service.
	SessionDirectory interface {
		GetByID(ctx context.Context, id string) (session.Session, error)
	}

	// Roster supplies the expected-participant set per session. Enrollment
	// is owned elsewhere; the ledger only reads it for absence seeding and
	// summaries.
	Roster interface {
		ExpectedParticipants(ctx context.Context, sessionID string) ([]string, error)
	}

	Service struct {
		repo     Repository
		sessions SessionDirectory
		roster   Roster
		events   core.Publisher
		logger   core.Logger
		conf     core.AttendanceConfig
	}
)

var _ session.Ledger = (*Service)(nil) // the lifecycle controller drives finalize through us

func NewService(repo Repository, sessions SessionDirectory, roster Roster, events core.Publisher, logger core.Logger, conf core.AttendanceConfig) *Service {
	if events == nil {
		events = core.NopPublisher{}
	}
	return &Service{
		repo:     repo,
		sessions: sessions,
		roster:   roster,
		events:   events,
		logger:   logger,
		conf:     conf,
	}
}

// Join records a participant entering a live session.
//
// Joining is idempotent for an already-open record: client retries and
// reconnects get the original record back with its join timestamp
// untouched. A brand new join is classified present or late against the
// session start and the configured late threshold.
func (svc *Service) Join(ctx context.Context, sessionID, participantID string, at time.Time) (Record, error) {
	sess, err := svc.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}

	at = at.UTC()
	if session.EffectiveStatus(sess, at) != session.StatusInProgress {
		return Record{}, ErrSessionNotJoinable
	}

	if open, err := svc.repo.GetOpenRecord(ctx, sessionID, participantID); err == nil {
		return open, nil
	} else if errors.Cause(err) != ErrNotFound {
		return Record{}, errors.Wrap(err, "checking open record")
	}

	if !svc.conf.AllowRejoin {
		// rejoin disabled: a closed record for the pair is returned as-is
		if last, err := svc.repo.GetLatestRecord(ctx, sessionID, participantID); err == nil && last.Closed() {
			return last, nil
		} else if err != nil && errors.Cause(err) != ErrNotFound {
			return Record{}, errors.Wrap(err, "checking latest record")
		}
	}

	status := StatusPresent
	if at.Sub(sess.StartTime) > svc.conf.LateThreshold {
		status = StatusLate
	}

	now := nowFunc().UTC()
	rec := Record{
		SessionID:     sessionID,
		ParticipantID: participantID,
		Status:        status,
		JoinTime:      &at,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := svc.repo.CreateRecord(ctx, rec)
	if errors.Cause(err) == ErrOpenRecordExists {
		// lost a concurrent join race for the same pair; the winner's
		// record is the one
		return svc.repo.GetOpenRecord(ctx, sessionID, participantID)
	}
	if err != nil {
		return Record{}, errors.Wrap(err, "creating record")
	}
	return created, nil
}

// Leave closes the pair's open record. Leaving an already-closed record
// returns it unchanged: network retries must not corrupt a finalized
// duration. An out-of-order leave timestamp is clamped to the join time
// (zero duration) and logged for audit. Status is never downgraded on
// leave.
func (svc *Service) Leave(ctx context.Context, sessionID, participantID string, at time.Time) (Record, error) {
	open, err := svc.repo.GetOpenRecord(ctx, sessionID, participantID)
	if errors.Cause(err) == ErrNotFound {
		last, lerr := svc.repo.GetLatestRecord(ctx, sessionID, participantID)
		if lerr == nil && last.Closed() {
			return last, nil
		}
		return Record{}, ErrNoOpenRecord
	}
	if err != nil {
		return Record{}, errors.Wrap(err, "getting open record")
	}

	if clamped := open.close(at); clamped {
		svc.logInvalidOrdering(open, at)
	}
	open.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateRecord(ctx, open)
}

// MarkStatus is the operator override. It applies regardless of join/leave
// state and creates the record when none exists, without fabricating
// timestamps.
func (svc *Service) MarkStatus(ctx context.Context, sessionID, participantID string, ma MarkAttendance) (Record, error) {
	if _, err := svc.sessions.GetByID(ctx, sessionID); err != nil {
		return Record{}, err
	}

	now := nowFunc().UTC()
	rec, err := svc.repo.GetLatestRecord(ctx, sessionID, participantID)
	if errors.Cause(err) == ErrNotFound {
		rec = Record{
			SessionID:     sessionID,
			ParticipantID: participantID,
			Status:        ma.Status,
			Note:          ma.Note,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		created, cerr := svc.repo.CreateRecord(ctx, rec)
		if cerr != nil {
			return Record{}, errors.Wrap(cerr, "creating record")
		}
		return created, nil
	}
	if err != nil {
		return Record{}, errors.Wrap(err, "getting latest record")
	}

	rec.Status = ma.Status
	if ma.Note != "" {
		rec.Note = ma.Note
	}
	rec.UpdatedAt = now
	return svc.repo.UpdateRecord(ctx, rec)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Record, error) {
	return svc.repo.GetRecordByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Record, error) {
	return svc.repo.QueryRecords(ctx, filter, ordering)
}

// CloseOpenRecords closes every open record of a session with the same
// clamping rule as Leave; used by finalize and cancel. Returns the closed
// record IDs.
func (svc *Service) CloseOpenRecords(ctx context.Context, sessionID string, at time.Time) ([]string, error) {
	open, err := svc.repo.QueryRecords(ctx, &QueryFilter{SessionID: sessionID, OpenOnly: true}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying open records")
	}

	closed := make([]string, 0, len(open))
	for _, rec := range open {
		if clamped := rec.close(at); clamped {
			svc.logInvalidOrdering(rec, at)
		}
		rec.UpdatedAt = nowFunc().UTC()
		if _, err := svc.repo.UpdateRecord(ctx, rec); err != nil {
			return closed, errors.Wrapf(err, "closing record %s", rec.ID)
		}
		closed = append(closed, rec.ID)
	}
	sort.Strings(closed)
	return closed, nil
}

// SeedAbsences creates an absent record for every expected participant with
// no record at all in the session. Idempotent: participants that already
// have any record are skipped. Returns the seeded participant IDs.
func (svc *Service) SeedAbsences(ctx context.Context, sessionID string) ([]string, error) {
	expected, err := svc.roster.ExpectedParticipants(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "fetching expected participants")
	}

	recs, err := svc.repo.QueryRecords(ctx, &QueryFilter{SessionID: sessionID}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying session records")
	}
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		seen[rec.ParticipantID] = struct{}{}
	}

	now := nowFunc().UTC()
	seeded := make([]string, 0)
	for _, pid := range expected {
		if _, ok := seen[pid]; ok {
			continue
		}
		rec := Record{
			SessionID:     sessionID,
			ParticipantID: pid,
			Status:        StatusAbsent,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if _, err := svc.repo.CreateRecord(ctx, rec); err != nil {
			return seeded, errors.Wrapf(err, "seeding absence for %s", pid)
		}
		seeded = append(seeded, pid)

		svc.events.Publish(core.Event{
			Name: core.EventRecordMarkedAbsent,
			Payload: map[string]interface{}{
				"sessionId":     sessionID,
				"participantId": pid,
			},
		})
	}
	sort.Strings(seeded)
	return seeded, nil
}

func (svc *Service) HasSessionRecords(ctx context.Context, sessionID string) (bool, error) {
	return svc.repo.HasSessionRecords(ctx, sessionID)
}

func (svc *Service) logInvalidOrdering(rec Record, at time.Time) {
	if svc.logger == nil {
		return
	}
	svc.logger.Warn(
		"leave before join, clamped to zero duration",
		map[string]interface{}{
			"recordId":      rec.ID,
			"sessionId":     rec.SessionID,
			"participantId": rec.ParticipantID,
			"joinTime":      rec.JoinTime,
			"leaveAt":       at,
		},
	)
}
