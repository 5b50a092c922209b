package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/session"
)

type sessionRepository struct {
	db *sessionTable
}

var _ session.Repository = (*sessionRepository)(nil)

func NewSessionRepository(db *DB) *sessionRepository {
	return &sessionRepository{db: db.sessions}
}

func (repo *sessionRepository) CreateSession(_ context.Context, s session.Session) (session.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	repo.db.table[s.ID] = &s
	return s, nil
}

func (repo *sessionRepository) GetSessionByID(_ context.Context, id string) (session.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.table[id]; ok {
		return *s, nil
	}
	return session.Session{}, session.ErrNotFound
}

func (repo *sessionRepository) QuerySessions(_ context.Context, filter *session.QueryFilter, ordering []core.DBOrdering) ([]session.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	sessions := make([]session.Session, 0, len(repo.db.table))
	for _, s := range repo.db.table {
		if filter == nil || matchSession(*s, filter) {
			sessions = append(sessions, *s)
		}
	}
	sortSessions(sessions, ordering)
	return sessions, nil
}

func (repo *sessionRepository) UpdateSession(_ context.Context, s session.Session) (session.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[s.ID]; !ok {
		return session.Session{}, session.ErrNotFound
	}
	repo.db.table[s.ID] = &s
	return s, nil
}

func (repo *sessionRepository) SetSessionStatus(_ context.Context, id string, status session.Status) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s, ok := repo.db.table[id]
	if !ok {
		return false, session.ErrNotFound
	}
	if s.Status.Terminal() {
		return false, nil
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (repo *sessionRepository) DeleteSessionsByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

func matchSession(s session.Session, filter *session.QueryFilter) bool {
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(s.Title), search) &&
			!strings.Contains(strings.ToLower(s.Description), search) {
			return false
		}
	}
	if len(filter.Statuses) > 0 {
		var ok bool
		for _, st := range filter.Statuses {
			if s.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !filter.From.IsZero() && s.StartTime.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && s.StartTime.After(filter.To) {
		return false
	}
	if filter.DueOnly {
		if s.Status.Terminal() || !time.Now().UTC().After(s.EndTime) {
			return false
		}
	}
	return true
}

func sortSessions(sessions []session.Session, ordering []core.DBOrdering) {
	less := func(a, b session.Session) bool {
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.ID < b.ID
	}
	if len(ordering) > 0 && ordering[0].Field == "start_time" && !ordering[0].Ascending {
		sort.Slice(sessions, func(i, j int) bool { return less(sessions[j], sessions[i]) })
		return
	}
	sort.Slice(sessions, func(i, j int) bool { return less(sessions[i], sessions[j]) })
}
