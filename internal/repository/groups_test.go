package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupCheckpoints_Ordered(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresGroupsRepo(db)

	cols := []string{"checkpoint_id", "competition_id", "name", "easting", "northing", "position"}
	mock.ExpectQuery(`SELECT c.checkpoint_id`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(3), int64(1), "Ridge", 461523.0, 101877.0, 1).
			AddRow(int64(7), int64(1), "Creek", nil, nil, 2).
			AddRow(int64(9), int64(1), "Summit", 460990.5, 102004.25, 3))

	checkpoints, err := repo.Checkpoints(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, checkpoints, 3)
	assert.Equal(t, []int64{3, 7, 9}, []int64{
		checkpoints[0].CheckpointID, checkpoints[1].CheckpointID, checkpoints[2].CheckpointID,
	})
	assert.Equal(t, 1, checkpoints[0].Position)
	require.NotNil(t, checkpoints[0].Easting)
	assert.InDelta(t, 461523.0, *checkpoints[0].Easting, 0.001)
	assert.Nil(t, checkpoints[1].Easting)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveGroup(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresGroupsRepo(db)

	mock.ExpectQuery(`SELECT g.group_id, g.competition_id, g.name`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"group_id", "competition_id", "name"}).
			AddRow(int64(2), int64(1), "Long course"))

	g, err := repo.ActiveGroup(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), g.GroupID)
	assert.Equal(t, "Long course", g.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveGroup_NoneActive(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresGroupsRepo(db)

	mock.ExpectQuery(`SELECT g.group_id, g.competition_id, g.name`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"group_id", "competition_id", "name"}))

	_, err := repo.ActiveGroup(context.Background(), 42)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
