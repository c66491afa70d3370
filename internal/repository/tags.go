package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brinsoko/LoRa-CP/internal/domain"
)

// TagsRepo resolves RFID tag UIDs to teams.
type TagsRepo interface {
	GetByUID(ctx context.Context, competitionID int64, uid string) (*domain.Tag, error)
	// GetByTeam returns the tag issued to a team, for judge-console
	// write-back after a manual check-in.
	GetByTeam(ctx context.Context, teamID int64) (*domain.Tag, error)
}

const tagColumns = `tag_id, competition_id, uid, team_id, label`

type PostgresTagsRepo struct {
	db *sql.DB
}

func NewPostgresTagsRepo(db *sql.DB) *PostgresTagsRepo {
	return &PostgresTagsRepo{db: db}
}

func (r *PostgresTagsRepo) GetByUID(ctx context.Context, competitionID int64, uid string) (*domain.Tag, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM rfid_tags WHERE competition_id = $1 AND uid = $2`,
		competitionID, uid,
	)
	return scanTag(row)
}

func (r *PostgresTagsRepo) GetByTeam(ctx context.Context, teamID int64) (*domain.Tag, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM rfid_tags WHERE team_id = $1`,
		teamID,
	)
	return scanTag(row)
}

func scanTag(row rowScanner) (*domain.Tag, error) {
	var t domain.Tag
	var teamID sql.NullInt64

	err := row.Scan(&t.TagID, &t.CompetitionID, &t.UID, &teamID, &t.Label)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan tag: %w", err)
	}

	if teamID.Valid {
		t.TeamID = &teamID.Int64
	}
	return &t, nil
}
