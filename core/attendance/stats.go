package attendance

import (
	"context"

	"github.com/pkg/errors"
)

// The statistics engine is read-only over the ledger: summaries are derived
// from the record set alone and recomputed on demand, never stored. Missing
// data yields zeroed summaries instead of errors so reports and dashboards
// never crash on an empty dataset.

type SessionSummary struct {
	SessionID string  `json:"sessionId"`
	Expected  int     `json:"expected"`
	Present   int     `json:"present"`
	Late      int     `json:"late"`
	Absent    int     `json:"absent"`
	Excused   int     `json:"excused"`
	Rate      float64 `json:"rate"`
}

type ParticipantSummary struct {
	ParticipantID string  `json:"participantId"`
	TotalSessions int     `json:"totalSessions"`
	Attended      int     `json:"attended"`
	Rate          float64 `json:"rate"`
}

// SessionSummary aggregates one session's ledger records; expected comes
// from the roster and the participation rate is (present+late)/expected
// with a zero guard.
func (svc *Service) SessionSummary(ctx context.Context, sessionID string) (SessionSummary, error) {
	recs, err := svc.repo.QueryRecords(ctx, &QueryFilter{SessionID: sessionID}, nil)
	if err != nil {
		return SessionSummary{}, errors.Wrap(err, "querying session records")
	}

	expected, err := svc.roster.ExpectedParticipants(ctx, sessionID)
	if err != nil {
		return SessionSummary{}, errors.Wrap(err, "fetching expected participants")
	}

	sum := SummarizeSession(recs, len(expected))
	sum.SessionID = sessionID
	return sum, nil
}

// ParticipantSummary aggregates a participant's attendance rate across
// sessions. When sessionIDs is given, only records in those sessions count.
func (svc *Service) ParticipantSummary(ctx context.Context, participantID string, sessionIDs ...string) (ParticipantSummary, error) {
	recs, err := svc.repo.QueryRecords(ctx, &QueryFilter{ParticipantID: participantID, SessionIDs: sessionIDs}, nil)
	if err != nil {
		return ParticipantSummary{}, errors.Wrap(err, "querying participant records")
	}

	sum := SummarizeParticipant(recs)
	sum.ParticipantID = participantID
	return sum, nil
}

// SummarizeSession is the pure aggregation behind SessionSummary. Each
// participant counts once with the status of their most recent record, so
// rejoin history never inflates the counts.
func SummarizeSession(recs []Record, expected int) SessionSummary {
	latest := latestPerParticipant(recs)

	var sum SessionSummary
	sum.Expected = expected
	for _, rec := range latest {
		switch rec.Status {
		case StatusPresent:
			sum.Present++
		case StatusLate:
			sum.Late++
		case StatusAbsent:
			sum.Absent++
		case StatusExcused:
			sum.Excused++
		}
	}
	if expected > 0 {
		sum.Rate = float64(sum.Present+sum.Late) / float64(expected)
	}
	return sum
}

// SummarizeParticipant is the pure aggregation behind ParticipantSummary.
// A session counts as attended when the participant's latest record in it
// is present or late.
func SummarizeParticipant(recs []Record) ParticipantSummary {
	latest := make(map[string]Record, len(recs)) // by session
	for _, rec := range recs {
		if prev, ok := latest[rec.SessionID]; !ok || rec.CreatedAt.After(prev.CreatedAt) {
			latest[rec.SessionID] = rec
		}
	}

	var sum ParticipantSummary
	sum.TotalSessions = len(latest)
	for _, rec := range latest {
		if rec.Status.Attended() {
			sum.Attended++
		}
	}
	if sum.TotalSessions > 0 {
		sum.Rate = float64(sum.Attended) / float64(sum.TotalSessions)
	}
	return sum
}

func latestPerParticipant(recs []Record) map[string]Record {
	latest := make(map[string]Record, len(recs))
	for _, rec := range recs {
		if prev, ok := latest[rec.ParticipantID]; !ok || rec.CreatedAt.After(prev.CreatedAt) {
			latest[rec.ParticipantID] = rec
		}
	}
	return latest
}
