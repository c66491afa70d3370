package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brinsoko/LoRa-CP/internal/domain"
)

// TeamsRepo reads teams; the core never writes them.
type TeamsRepo interface {
	Get(ctx context.Context, teamID int64) (*domain.Team, error)
	List(ctx context.Context, competitionID int64) ([]domain.Team, error)
}

type PostgresTeamsRepo struct {
	db *sql.DB
}

func NewPostgresTeamsRepo(db *sql.DB) *PostgresTeamsRepo {
	return &PostgresTeamsRepo{db: db}
}

func (r *PostgresTeamsRepo) Get(ctx context.Context, teamID int64) (*domain.Team, error) {
	var t domain.Team
	err := r.db.QueryRowContext(ctx,
		`SELECT team_id, competition_id, name, number FROM teams WHERE team_id = $1`,
		teamID,
	).Scan(&t.TeamID, &t.CompetitionID, &t.Name, &t.Number)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("team %d: %w", teamID, ErrNotFound)
		}
		return nil, fmt.Errorf("get team %d: %w", teamID, err)
	}
	return &t, nil
}

func (r *PostgresTeamsRepo) List(ctx context.Context, competitionID int64) ([]domain.Team, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT team_id, competition_id, name, number FROM teams WHERE competition_id = $1 ORDER BY number`,
		competitionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []domain.Team
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.TeamID, &t.CompetitionID, &t.Name, &t.Number); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return teams, nil
}
