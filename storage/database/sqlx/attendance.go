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
	"github.com/toniiplaycode/DNC-Learning-sub001/core/attendance"
)

// openPairIdx is the partial unique index enforcing at most one open record
// per (session, participant) pair; concurrent joins race on it instead of
// on client-side locks.
const openPairIdx = "attendance_records_open_pair_idx"

type recordRow struct {
	ID              string      `db:"id"`
	SessionID       string      `db:"session_id"`
	ParticipantID   string      `db:"participant_id"`
	Status          string      `db:"status"`
	JoinTime        null.Time   `db:"join_time"`
	LeaveTime       null.Time   `db:"leave_time"`
	DurationSeconds null.Int64  `db:"duration_seconds"`
	Note            null.String `db:"note"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

func (row recordRow) toCore() attendance.Record {
	rec := attendance.Record{
		ID:            row.ID,
		SessionID:     row.SessionID,
		ParticipantID: row.ParticipantID,
		Status:        attendance.Status(row.Status),
		Note:          row.Note.String,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
	if row.JoinTime.Valid {
		t := row.JoinTime.Time.UTC()
		rec.JoinTime = &t
	}
	if row.LeaveTime.Valid {
		t := row.LeaveTime.Time.UTC()
		rec.LeaveTime = &t
	}
	if row.DurationSeconds.Valid {
		d := row.DurationSeconds.Int64
		rec.DurationSeconds = &d
	}
	return rec
}

func newRecordRow(rec attendance.Record) recordRow {
	row := recordRow{
		ID:            rec.ID,
		SessionID:     rec.SessionID,
		ParticipantID: rec.ParticipantID,
		Status:        string(rec.Status),
		Note:          null.NewString(rec.Note, rec.Note != ""),
		CreatedAt:     rec.CreatedAt.UTC(),
		UpdatedAt:     rec.UpdatedAt.UTC(),
	}
	if rec.JoinTime != nil {
		row.JoinTime = null.TimeFrom(rec.JoinTime.UTC())
	}
	if rec.LeaveTime != nil {
		row.LeaveTime = null.TimeFrom(rec.LeaveTime.UTC())
	}
	if rec.DurationSeconds != nil {
		row.DurationSeconds = null.Int64From(*rec.DurationSeconds)
	}
	return row
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to attendance.ErrNotFound
func (repo attendanceRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return attendance.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo attendanceRepository) CreateRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	rec.ID = uuid.New().String()
	row := newRecordRow(rec)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO attendance_records
			(id, session_id, participant_id, status, join_time, leave_time, duration_seconds, note, created_at, updated_at)
		VALUES
			(:id, :session_id, :participant_id, :status, :join_time, :leave_time, :duration_seconds, :note, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" && pqErr.Constraint == openPairIdx {
			return attendance.Record{}, attendance.ErrOpenRecordExists
		}
		return attendance.Record{}, errors.Wrap(err, "inserting record")
	}
	return row.toCore(), nil
}

func (repo attendanceRepository) GetRecordByID(ctx context.Context, id string) (attendance.Record, error) {
	var row recordRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM attendance_records WHERE id = $1`, id)
	if err != nil {
		return attendance.Record{}, repo.trapNoRowsErr(err, "getting record")
	}
	return row.toCore(), nil
}

func (repo attendanceRepository) GetOpenRecord(ctx context.Context, sessionID, participantID string) (attendance.Record, error) {
	var row recordRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT * FROM attendance_records
		WHERE session_id = $1 AND participant_id = $2 AND join_time IS NOT NULL AND leave_time IS NULL`,
		sessionID, participantID,
	)
	if err != nil {
		return attendance.Record{}, repo.trapNoRowsErr(err, "getting open record")
	}
	return row.toCore(), nil
}

func (repo attendanceRepository) GetLatestRecord(ctx context.Context, sessionID, participantID string) (attendance.Record, error) {
	var row recordRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT * FROM attendance_records
		WHERE session_id = $1 AND participant_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		sessionID, participantID,
	)
	if err != nil {
		return attendance.Record{}, repo.trapNoRowsErr(err, "getting latest record")
	}
	return row.toCore(), nil
}

func (repo attendanceRepository) QueryRecords(ctx context.Context, filter *attendance.QueryFilter, ordering []core.DBOrdering) ([]attendance.Record, error) {
	where := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)

	if filter != nil {
		if filter.SessionID != "" {
			args = append(args, filter.SessionID)
			where = append(where, fmt.Sprintf("session_id = $%d", len(args)))
		}
		if filter.ParticipantID != "" {
			args = append(args, filter.ParticipantID)
			where = append(where, fmt.Sprintf("participant_id = $%d", len(args)))
		}
		if len(filter.SessionIDs) > 0 {
			args = append(args, pq.Array(filter.SessionIDs))
			where = append(where, fmt.Sprintf("session_id = ANY($%d)", len(args)))
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, st := range filter.Statuses {
				statuses = append(statuses, string(st))
			}
			args = append(args, pq.Array(statuses))
			where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
		}
		if filter.OpenOnly {
			where = append(where, "join_time IS NOT NULL AND leave_time IS NULL")
		}
	}

	query := `SELECT * FROM attendance_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += orderingClause(ordering, recordOrderingFields, "created_at ASC, id ASC")

	var rows []recordRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying records")
	}

	recs := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.toCore())
	}
	return recs, nil
}

func (repo attendanceRepository) UpdateRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	row := newRecordRow(rec)
	// closing is one-way: COALESCE keeps the first stored leave time and
	// duration, so a stale close losing a race cannot re-close the record
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE attendance_records
		SET status = :status, join_time = :join_time,
		    leave_time = COALESCE(leave_time, :leave_time),
		    duration_seconds = COALESCE(duration_seconds, :duration_seconds),
		    note = :note, updated_at = :updated_at
		WHERE id = :id`,
		row,
	)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "updating record")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return repo.GetRecordByID(ctx, rec.ID)
}

var recordOrderingFields = map[string]struct{}{
	"session_id":     {},
	"participant_id": {},
	"status":         {},
	"join_time":      {},
	"created_at":     {},
}

func (repo attendanceRepository) HasSessionRecords(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM attendance_records WHERE session_id = $1)`, sessionID)
	if err != nil {
		return false, errors.Wrap(err, "checking session records")
	}
	return exists, nil
}
