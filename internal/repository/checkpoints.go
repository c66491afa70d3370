package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brinsoko/LoRa-CP/internal/domain"
)

// CheckpointsRepo reads checkpoints; the core never writes them.
type CheckpointsRepo interface {
	Get(ctx context.Context, checkpointID int64) (*domain.Checkpoint, error)
}

type PostgresCheckpointsRepo struct {
	db *sql.DB
}

func NewPostgresCheckpointsRepo(db *sql.DB) *PostgresCheckpointsRepo {
	return &PostgresCheckpointsRepo{db: db}
}

func (r *PostgresCheckpointsRepo) Get(ctx context.Context, checkpointID int64) (*domain.Checkpoint, error) {
	var c domain.Checkpoint
	var easting, northing sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		`SELECT checkpoint_id, competition_id, name, easting, northing FROM checkpoints WHERE checkpoint_id = $1`,
		checkpointID,
	).Scan(&c.CheckpointID, &c.CompetitionID, &c.Name, &easting, &northing)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("checkpoint %d: %w", checkpointID, ErrNotFound)
		}
		return nil, fmt.Errorf("get checkpoint %d: %w", checkpointID, err)
	}
	if easting.Valid {
		c.Easting = &easting.Float64
	}
	if northing.Valid {
		c.Northing = &northing.Float64
	}
	return &c, nil
}
