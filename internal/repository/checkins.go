package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/brinsoko/LoRa-CP/internal/domain"
)

// CheckInFilter narrows List. Zero values mean "any".
type CheckInFilter struct {
	CompetitionID int64
	TeamID        int64
	CheckpointID  int64
	From          *time.Time
	To            *time.Time
	Sort          string // "new" (default), "old", "team"
	Limit         int
	Offset        int
}

// CheckInsRepo is the check-in store. Rows are append-only; the table's
// uq_team_checkpoint constraint guarantees at most one effective check-in
// per (competition, team, checkpoint).
type CheckInsRepo interface {
	// Insert commits a new check-in and fills in its id. A lost race on the
	// uniqueness constraint returns ErrDuplicateCheckIn.
	Insert(ctx context.Context, ci *domain.CheckIn) error
	// Get returns the effective check-in for a (team, checkpoint) pair.
	Get(ctx context.Context, competitionID, teamID, checkpointID int64) (*domain.CheckIn, error)
	// CheckpointTimes returns checkpoint id -> recorded_at for a team's
	// effective check-ins.
	CheckpointTimes(ctx context.Context, competitionID, teamID int64) (map[int64]time.Time, error)
	// List returns check-ins joined with team and checkpoint names.
	List(ctx context.Context, f CheckInFilter) ([]domain.CheckInRecord, error)
}

type PostgresCheckInsRepo struct {
	db *sql.DB
}

func NewPostgresCheckInsRepo(db *sql.DB) *PostgresCheckInsRepo {
	return &PostgresCheckInsRepo{db: db}
}

func (r *PostgresCheckInsRepo) Insert(ctx context.Context, ci *domain.CheckIn) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO checkins (competition_id, team_id, checkpoint_id, device_id, source, fingerprint, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING checkin_id`,
		ci.CompetitionID, ci.TeamID, ci.CheckpointID, ci.DeviceID, ci.Source, ci.Fingerprint, ci.RecordedAt,
	).Scan(&ci.CheckInID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("team %d checkpoint %d: %w", ci.TeamID, ci.CheckpointID, ErrDuplicateCheckIn)
		}
		return fmt.Errorf("insert checkin: %w", err)
	}
	return nil
}

func (r *PostgresCheckInsRepo) Get(ctx context.Context, competitionID, teamID, checkpointID int64) (*domain.CheckIn, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT checkin_id, competition_id, team_id, checkpoint_id, device_id, source, fingerprint, recorded_at
		 FROM checkins
		 WHERE competition_id = $1 AND team_id = $2 AND checkpoint_id = $3`,
		competitionID, teamID, checkpointID,
	)

	var ci domain.CheckIn
	var deviceID sql.NullInt64
	err := row.Scan(&ci.CheckInID, &ci.CompetitionID, &ci.TeamID, &ci.CheckpointID,
		&deviceID, &ci.Source, &ci.Fingerprint, &ci.RecordedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get checkin: %w", err)
	}
	if deviceID.Valid {
		ci.DeviceID = &deviceID.Int64
	}
	return &ci, nil
}

func (r *PostgresCheckInsRepo) CheckpointTimes(ctx context.Context, competitionID, teamID int64) (map[int64]time.Time, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT checkpoint_id, recorded_at FROM checkins WHERE competition_id = $1 AND team_id = $2`,
		competitionID, teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("list team %d checkins: %w", teamID, err)
	}
	defer rows.Close()

	times := make(map[int64]time.Time)
	for rows.Next() {
		var checkpointID int64
		var recordedAt time.Time
		if err := rows.Scan(&checkpointID, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan checkin time: %w", err)
		}
		times[checkpointID] = recordedAt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkin times: %w", err)
	}
	return times, nil
}

func (r *PostgresCheckInsRepo) List(ctx context.Context, f CheckInFilter) ([]domain.CheckInRecord, error) {
	query := `SELECT ci.checkin_id, ci.competition_id, ci.team_id, ci.checkpoint_id, ci.device_id,
	       ci.source, ci.fingerprint, ci.recorded_at,
	       t.name AS team_name, t.number AS team_number, cp.name AS checkpoint_name
	 FROM checkins ci
	 JOIN teams t ON t.team_id = ci.team_id
	 JOIN checkpoints cp ON cp.checkpoint_id = ci.checkpoint_id
	 WHERE ci.competition_id = $1`
	args := []interface{}{f.CompetitionID}

	if f.TeamID != 0 {
		args = append(args, f.TeamID)
		query += fmt.Sprintf(" AND ci.team_id = $%d", len(args))
	}
	if f.CheckpointID != 0 {
		args = append(args, f.CheckpointID)
		query += fmt.Sprintf(" AND ci.checkpoint_id = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND ci.recorded_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND ci.recorded_at <= $%d", len(args))
	}

	switch f.Sort {
	case "old":
		query += " ORDER BY ci.recorded_at ASC, ci.checkin_id ASC"
	case "team":
		query += " ORDER BY t.number ASC, ci.recorded_at ASC"
	default:
		query += " ORDER BY ci.recorded_at DESC, ci.checkin_id DESC"
	}

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list checkins: %w", err)
	}
	defer rows.Close()

	var records []domain.CheckInRecord
	for rows.Next() {
		var rec domain.CheckInRecord
		var deviceID sql.NullInt64
		if err := rows.Scan(&rec.CheckInID, &rec.CompetitionID, &rec.TeamID, &rec.CheckpointID,
			&deviceID, &rec.Source, &rec.Fingerprint, &rec.RecordedAt,
			&rec.TeamName, &rec.TeamNumber, &rec.CheckpointName); err != nil {
			return nil, fmt.Errorf("scan checkin record: %w", err)
		}
		if deviceID.Valid {
			rec.DeviceID = &deviceID.Int64
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkins: %w", err)
	}
	return records, nil
}
