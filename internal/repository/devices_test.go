package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var deviceTestCols = []string{"device_id", "competition_id", "dev_num", "name", "checkpoint_id",
	"secret", "active", "last_seen", "last_rssi", "last_snr", "battery"}

func TestDevicesGetByNum(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresDevicesRepo(db)

	lastSeen := time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT device_id, competition_id, dev_num`).
		WithArgs(int64(1), 7).
		WillReturnRows(sqlmock.NewRows(deviceTestCols).
			AddRow(int64(5), int64(1), 7, "north-ridge", int64(3), "s3cret", true, lastSeen, -92.5, 7.25, 88))

	d, err := repo.GetByNum(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(5), d.DeviceID)
	assert.Equal(t, 7, d.DevNum)
	require.NotNil(t, d.CheckpointID)
	assert.Equal(t, int64(3), *d.CheckpointID)
	assert.Equal(t, "s3cret", d.Secret)
	require.NotNil(t, d.LastRSSI)
	assert.InDelta(t, -92.5, *d.LastRSSI, 0.001)
	require.NotNil(t, d.Battery)
	assert.Equal(t, 88, *d.Battery)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDevicesGetByNum_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresDevicesRepo(db)

	mock.ExpectQuery(`SELECT device_id, competition_id, dev_num`).
		WithArgs(int64(1), 99).
		WillReturnRows(sqlmock.NewRows(deviceTestCols))

	_, err := repo.GetByNum(context.Background(), 1, 99)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDevicesFindByNum_Single(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresDevicesRepo(db)

	mock.ExpectQuery(`SELECT device_id, competition_id, dev_num`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(deviceTestCols).
			AddRow(int64(5), int64(1), 7, "north-ridge", int64(3), "", true, nil, nil, nil, nil))

	d, err := repo.FindByNum(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.CompetitionID)
	assert.Nil(t, d.LastSeen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDevicesFindByNum_AmbiguousAcrossCompetitions(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresDevicesRepo(db)

	mock.ExpectQuery(`SELECT device_id, competition_id, dev_num`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(deviceTestCols).
			AddRow(int64(5), int64(1), 7, "a", nil, "", true, nil, nil, nil, nil).
			AddRow(int64(6), int64(2), 7, "b", nil, "", true, nil, nil, nil, nil))

	_, err := repo.FindByNum(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDevicesTouchTelemetry(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresDevicesRepo(db)

	seenAt := time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE devices`).
		WithArgs(int64(5), seenAt, -90.0, 6.5, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.TouchTelemetry(context.Background(), 5, seenAt, float64Ptr(-90.0), float64Ptr(6.5), nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
