package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brinsoko/LoRa-CP/internal/domain"
)

// GroupsRepo reads checkpoint groups and team membership.
type GroupsRepo interface {
	Get(ctx context.Context, groupID int64) (*domain.Group, error)
	// Checkpoints returns the group's checkpoints in visiting order.
	Checkpoints(ctx context.Context, groupID int64) ([]domain.GroupCheckpoint, error)
	// ActiveGroup returns the group a team currently walks, or ErrNotFound.
	ActiveGroup(ctx context.Context, teamID int64) (*domain.Group, error)
}

type PostgresGroupsRepo struct {
	db *sql.DB
}

func NewPostgresGroupsRepo(db *sql.DB) *PostgresGroupsRepo {
	return &PostgresGroupsRepo{db: db}
}

func (r *PostgresGroupsRepo) Get(ctx context.Context, groupID int64) (*domain.Group, error) {
	var g domain.Group
	err := r.db.QueryRowContext(ctx,
		`SELECT group_id, competition_id, name FROM groups WHERE group_id = $1`,
		groupID,
	).Scan(&g.GroupID, &g.CompetitionID, &g.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("group %d: %w", groupID, ErrNotFound)
		}
		return nil, fmt.Errorf("get group %d: %w", groupID, err)
	}
	return &g, nil
}

func (r *PostgresGroupsRepo) Checkpoints(ctx context.Context, groupID int64) ([]domain.GroupCheckpoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.checkpoint_id, c.competition_id, c.name, c.easting, c.northing, gc.position
		 FROM group_checkpoints gc
		 JOIN checkpoints c ON c.checkpoint_id = gc.checkpoint_id
		 WHERE gc.group_id = $1
		 ORDER BY gc.position, c.name`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list group %d checkpoints: %w", groupID, err)
	}
	defer rows.Close()

	var checkpoints []domain.GroupCheckpoint
	for rows.Next() {
		var gc domain.GroupCheckpoint
		var easting, northing sql.NullFloat64
		if err := rows.Scan(&gc.CheckpointID, &gc.CompetitionID, &gc.Name, &easting, &northing, &gc.Position); err != nil {
			return nil, fmt.Errorf("scan group checkpoint: %w", err)
		}
		if easting.Valid {
			gc.Easting = &easting.Float64
		}
		if northing.Valid {
			gc.Northing = &northing.Float64
		}
		checkpoints = append(checkpoints, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group checkpoints: %w", err)
	}
	return checkpoints, nil
}

func (r *PostgresGroupsRepo) ActiveGroup(ctx context.Context, teamID int64) (*domain.Group, error) {
	var g domain.Group
	err := r.db.QueryRowContext(ctx,
		`SELECT g.group_id, g.competition_id, g.name
		 FROM team_groups tg
		 JOIN groups g ON g.group_id = tg.group_id
		 WHERE tg.team_id = $1 AND tg.active
		 ORDER BY g.group_id
		 LIMIT 1`,
		teamID,
	).Scan(&g.GroupID, &g.CompetitionID, &g.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("active group for team %d: %w", teamID, ErrNotFound)
		}
		return nil, fmt.Errorf("active group for team %d: %w", teamID, err)
	}
	return &g, nil
}
