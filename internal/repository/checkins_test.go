package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brinsoko/LoRa-CP/internal/domain"
)

func TestCheckInsInsert_FillsID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresCheckInsRepo(db)

	recordedAt := time.Date(2025, 6, 14, 10, 30, 0, 0, time.UTC)
	ci := &domain.CheckIn{
		CompetitionID: 1,
		TeamID:        42,
		CheckpointID:  3,
		DeviceID:      int64Ptr(5),
		Source:        domain.SourceRFID,
		Fingerprint:   "abcd1234",
		RecordedAt:    recordedAt,
	}

	mock.ExpectQuery(`INSERT INTO checkins`).
		WithArgs(int64(1), int64(42), int64(3), int64(5), domain.SourceRFID, "abcd1234", recordedAt).
		WillReturnRows(sqlmock.NewRows([]string{"checkin_id"}).AddRow(int64(10)))

	err := repo.Insert(context.Background(), ci)
	require.NoError(t, err)
	assert.Equal(t, int64(10), ci.CheckInID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckInsInsert_UniqueViolation(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresCheckInsRepo(db)

	mock.ExpectQuery(`INSERT INTO checkins`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_team_checkpoint"})

	err := repo.Insert(context.Background(), &domain.CheckIn{
		CompetitionID: 1, TeamID: 42, CheckpointID: 3,
		Source: domain.SourceRFID, RecordedAt: time.Now(),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateCheckIn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckInsGet_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresCheckInsRepo(db)

	mock.ExpectQuery(`SELECT checkin_id, competition_id`).
		WithArgs(int64(1), int64(42), int64(3)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 1, 42, 3)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckpointTimes(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresCheckInsRepo(db)

	t1 := time.Date(2025, 6, 14, 9, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT checkpoint_id, recorded_at FROM checkins`).
		WithArgs(int64(1), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"checkpoint_id", "recorded_at"}).
			AddRow(int64(3), t1).
			AddRow(int64(7), t2))

	times, err := repo.CheckpointTimes(context.Background(), 1, 42)
	require.NoError(t, err)
	assert.Equal(t, map[int64]time.Time{3: t1, 7: t2}, times)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckInsList_TeamFilterAndSort(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresCheckInsRepo(db)

	recordedAt := time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)
	cols := []string{"checkin_id", "competition_id", "team_id", "checkpoint_id", "device_id",
		"source", "fingerprint", "recorded_at", "team_name", "team_number", "checkpoint_name"}

	mock.ExpectQuery(`SELECT ci.checkin_id`).
		WithArgs(int64(1), int64(42), 50, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(10), int64(1), int64(42), int64(3), nil,
				domain.SourceManual, "", recordedAt, "Lynx", 42, "Ridge"))

	records, err := repo.List(context.Background(), CheckInFilter{
		CompetitionID: 1,
		TeamID:        42,
		Sort:          "new",
		Limit:         50,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Lynx", records[0].TeamName)
	assert.Equal(t, 42, records[0].TeamNumber)
	assert.Equal(t, "Ridge", records[0].CheckpointName)
	assert.Nil(t, records[0].DeviceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
