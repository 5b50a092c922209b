package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/attendance"
)

type attendanceRepository struct {
	db *recordTable
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db.records}
}

func (repo *attendanceRepository) CreateRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// at most one open record per (session, participant) pair
	if rec.Open() {
		for _, id := range repo.db.order {
			cur := repo.db.table[id]
			if cur.SessionID == rec.SessionID && cur.ParticipantID == rec.ParticipantID && cur.Open() {
				return attendance.Record{}, attendance.ErrOpenRecordExists
			}
		}
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	repo.db.table[rec.ID] = &rec
	repo.db.order = append(repo.db.order, rec.ID)
	return rec, nil
}

func (repo *attendanceRepository) GetRecordByID(_ context.Context, id string) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.table[id]; ok {
		return *rec, nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) GetOpenRecord(_ context.Context, sessionID, participantID string) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, id := range repo.db.order {
		rec := repo.db.table[id]
		if rec.SessionID == sessionID && rec.ParticipantID == participantID && rec.Open() {
			return *rec, nil
		}
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) GetLatestRecord(_ context.Context, sessionID, participantID string) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	// order holds insertion order; the last match is the latest
	for i := len(repo.db.order) - 1; i >= 0; i-- {
		rec := repo.db.table[repo.db.order[i]]
		if rec.SessionID == sessionID && rec.ParticipantID == participantID {
			return *rec, nil
		}
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, filter *attendance.QueryFilter, _ []core.DBOrdering) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recs := make([]attendance.Record, 0, len(repo.db.order))
	for _, id := range repo.db.order {
		rec := repo.db.table[id]
		if filter == nil || matchRecord(*rec, filter) {
			recs = append(recs, *rec)
		}
	}
	return recs, nil
}

func (repo *attendanceRepository) UpdateRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.table[rec.ID]
	if !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	// closing is one-way: a stored leave time is never overwritten, so a
	// stale close losing a race keeps the first close's timestamps
	if stored.LeaveTime != nil {
		rec.LeaveTime = stored.LeaveTime
		rec.DurationSeconds = stored.DurationSeconds
	}
	repo.db.table[rec.ID] = &rec
	return rec, nil
}

func (repo *attendanceRepository) HasSessionRecords(_ context.Context, sessionID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, rec := range repo.db.table {
		if rec.SessionID == sessionID {
			return true, nil
		}
	}
	return false, nil
}

func matchRecord(rec attendance.Record, filter *attendance.QueryFilter) bool {
	if filter.SessionID != "" && rec.SessionID != filter.SessionID {
		return false
	}
	if filter.ParticipantID != "" && rec.ParticipantID != filter.ParticipantID {
		return false
	}
	if len(filter.SessionIDs) > 0 {
		var ok bool
		for _, id := range filter.SessionIDs {
			if rec.SessionID == id {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(filter.Statuses) > 0 {
		var ok bool
		for _, st := range filter.Statuses {
			if rec.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if filter.OpenOnly && !rec.Open() {
		return false
	}
	return true
}
