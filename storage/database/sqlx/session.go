package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/session"
)

type sessionRow struct {
	ID           string      `db:"id"`
	Title        string      `db:"title"`
	Description  null.String `db:"description"`
	StartTime    time.Time   `db:"start_time"`
	EndTime      time.Time   `db:"end_time"`
	Status       string      `db:"status"`
	RecordingURL null.String `db:"recording_url"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (row sessionRow) toCore() session.Session {
	return session.Session{
		ID:           row.ID,
		Title:        row.Title,
		Description:  row.Description.String,
		StartTime:    row.StartTime.UTC(),
		EndTime:      row.EndTime.UTC(),
		Status:       session.Status(row.Status),
		RecordingURL: row.RecordingURL.String,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

func newSessionRow(s session.Session) sessionRow {
	return sessionRow{
		ID:           s.ID,
		Title:        s.Title,
		Description:  null.NewString(s.Description, s.Description != ""),
		StartTime:    s.StartTime.UTC(),
		EndTime:      s.EndTime.UTC(),
		Status:       string(s.Status),
		RecordingURL: null.NewString(s.RecordingURL, s.RecordingURL != ""),
		CreatedAt:    s.CreatedAt.UTC(),
		UpdatedAt:    s.UpdatedAt.UTC(),
	}
}

type sessionRepository struct {
	db *sqlx.DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *sqlx.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to session.ErrNotFound
func (repo sessionRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return session.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo sessionRepository) CreateSession(ctx context.Context, s session.Session) (session.Session, error) {
	s.ID = uuid.New().String()
	row := newSessionRow(s)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO sessions (id, title, description, start_time, end_time, status, recording_url, created_at, updated_at)
		VALUES (:id, :title, :description, :start_time, :end_time, :status, :recording_url, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		return session.Session{}, errors.Wrap(err, "inserting session")
	}
	return row.toCore(), nil
}

func (repo sessionRepository) GetSessionByID(ctx context.Context, id string) (session.Session, error) {
	var row sessionRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM sessions WHERE id = $1`, id)
	if err != nil {
		return session.Session{}, repo.trapNoRowsErr(err, "getting session")
	}
	return row.toCore(), nil
}

func (repo sessionRepository) QuerySessions(ctx context.Context, filter *session.QueryFilter, ordering []core.DBOrdering) ([]session.Session, error) {
	where := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)

	if filter != nil {
		if filter.Search != "" {
			args = append(args, "%"+filter.Search+"%")
			n := len(args)
			where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", n, n))
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, st := range filter.Statuses {
				statuses = append(statuses, string(st))
			}
			args = append(args, pq.Array(statuses))
			where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
		}
		if !filter.From.IsZero() {
			args = append(args, filter.From.UTC())
			where = append(where, fmt.Sprintf("start_time >= $%d", len(args)))
		}
		if !filter.To.IsZero() {
			args = append(args, filter.To.UTC())
			where = append(where, fmt.Sprintf("start_time <= $%d", len(args)))
		}
		if filter.DueOnly {
			where = append(where, "end_time < now() AND status NOT IN ('completed', 'cancelled')")
		}
	}

	query := `SELECT * FROM sessions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += orderingClause(ordering, sessionOrderingFields, "start_time ASC, id ASC")

	var rows []sessionRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}

	sessions := make([]session.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.toCore())
	}
	return sessions, nil
}

func (repo sessionRepository) UpdateSession(ctx context.Context, s session.Session) (session.Session, error) {
	row := newSessionRow(s)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE sessions
		SET title = :title, description = :description, start_time = :start_time,
		    end_time = :end_time, recording_url = :recording_url, updated_at = :updated_at
		WHERE id = :id`,
		row,
	)
	if err != nil {
		return session.Session{}, errors.Wrap(err, "updating session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return session.Session{}, session.ErrNotFound
	}
	return repo.GetSessionByID(ctx, s.ID)
}

func (repo sessionRepository) SetSessionStatus(ctx context.Context, id string, status session.Status) (bool, error) {
	// terminal statuses are never overwritten; the row transitions at most once
	res, err := repo.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status NOT IN ('completed', 'cancelled')`,
		string(status), id,
	)
	if err != nil {
		return false, errors.Wrap(err, "setting session status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "setting session status")
	}
	return n > 0, nil
}

func (repo sessionRepository) DeleteSessionsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting sessions")
	}
	return nil
}

var sessionOrderingFields = map[string]struct{}{
	"title":      {},
	"start_time": {},
	"end_time":   {},
	"status":     {},
	"created_at": {},
}

// orderingClause whitelists ordering fields before splicing them into SQL.
func orderingClause(ordering []core.DBOrdering, allowed map[string]struct{}, fallback string) string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if _, ok := allowed[ord.Field]; ok {
			clauses = append(clauses, ord.String())
		}
	}
	if len(clauses) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}
