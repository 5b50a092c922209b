package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/toniiplaycode/DNC-Learning-sub001/core/attendance"
)

// rosterRepository reads the expected-participant set out of the
// enrollment table the platform maintains; the attendance core never
// writes it.
type rosterRepository struct {
	db *sqlx.DB
}

var _ attendance.Roster = (*rosterRepository)(nil)

func NewRosterRepository(db *sqlx.DB) *rosterRepository {
	return &rosterRepository{db: db}
}

func (repo rosterRepository) ExpectedParticipants(ctx context.Context, sessionID string) ([]string, error) {
	var participants []string
	err := repo.db.SelectContext(ctx, &participants, `
		SELECT participant_id FROM session_participants
		WHERE session_id = $1
		ORDER BY participant_id`,
		sessionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying expected participants")
	}
	return participants, nil
}
