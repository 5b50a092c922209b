package inmemdb

import (
	"context"
	"sort"

	"github.com/toniiplaycode/DNC-Learning-sub001/core/attendance"
)

// rosterRepository is a static expected-participant set per session;
// enrollment is owned by the platform, tests and local dev seed it here.
type rosterRepository struct {
	db *rosterTable
}

var _ attendance.Roster = (*rosterRepository)(nil)

func NewRosterRepository(db *DB) *rosterRepository {
	return &rosterRepository{db: db.roster}
}

func (repo *rosterRepository) ExpectedParticipants(_ context.Context, sessionID string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	participants := append([]string(nil), repo.db.table[sessionID]...)
	sort.Strings(participants)
	return participants, nil
}

func (repo *rosterRepository) SetExpectedParticipants(sessionID string, participantIDs ...string) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.table[sessionID] = append([]string(nil), participantIDs...)
}
