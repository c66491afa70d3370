package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/brinsoko/LoRa-CP/internal/domain"
)

// DevicesRepo reads relay devices and their checkpoint bindings. The ingest
// path only reads; telemetry writes come from the relay.
type DevicesRepo interface {
	// GetByNum resolves a device within an explicit competition.
	GetByNum(ctx context.Context, competitionID int64, devNum int) (*domain.Device, error)
	// FindByNum resolves a device by number alone (legacy single-device
	// endpoints infer the competition from the binding). A dev_num present
	// in more than one competition does not resolve.
	FindByNum(ctx context.Context, devNum int) (*domain.Device, error)
	// ListActive returns the devices the reconciler considers known.
	ListActive(ctx context.Context, competitionID int64) ([]domain.Device, error)
	// List returns all devices with telemetry for the ops view.
	List(ctx context.Context, competitionID int64) ([]domain.Device, error)
	// ForCheckpoint returns the active device bound to a checkpoint, for
	// judge-console write-back.
	ForCheckpoint(ctx context.Context, checkpointID int64) (*domain.Device, error)
	// TouchTelemetry records last-seen signal data; nil fields keep the
	// previous value.
	TouchTelemetry(ctx context.Context, deviceID int64, seenAt time.Time, rssi, snr *float64, battery *int) error
}

const deviceColumns = `device_id, competition_id, dev_num, name, checkpoint_id, secret, active, last_seen, last_rssi, last_snr, battery`

type PostgresDevicesRepo struct {
	db *sql.DB
}

func NewPostgresDevicesRepo(db *sql.DB) *PostgresDevicesRepo {
	return &PostgresDevicesRepo{db: db}
}

func (r *PostgresDevicesRepo) GetByNum(ctx context.Context, competitionID int64, devNum int) (*domain.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE competition_id = $1 AND dev_num = $2`,
		competitionID, devNum,
	)
	return scanDevice(row)
}

func (r *PostgresDevicesRepo) FindByNum(ctx context.Context, devNum int) (*domain.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE dev_num = $1 LIMIT 2`,
		devNum,
	)
	if err != nil {
		return nil, fmt.Errorf("query device %d: %w", devNum, err)
	}
	defer rows.Close()

	devices, err := collectDevices(rows)
	if err != nil {
		return nil, err
	}
	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("device %d: %w", devNum, ErrNotFound)
	case 1:
		return &devices[0], nil
	default:
		return nil, fmt.Errorf("device %d ambiguous across competitions: %w", devNum, ErrNotFound)
	}
}

func (r *PostgresDevicesRepo) ListActive(ctx context.Context, competitionID int64) ([]domain.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE competition_id = $1 AND active ORDER BY dev_num`,
		competitionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active devices: %w", err)
	}
	defer rows.Close()
	return collectDevices(rows)
}

func (r *PostgresDevicesRepo) List(ctx context.Context, competitionID int64) ([]domain.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE competition_id = $1 ORDER BY dev_num`,
		competitionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()
	return collectDevices(rows)
}

func (r *PostgresDevicesRepo) ForCheckpoint(ctx context.Context, checkpointID int64) (*domain.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE checkpoint_id = $1 AND active ORDER BY device_id LIMIT 1`,
		checkpointID,
	)
	return scanDevice(row)
}

func (r *PostgresDevicesRepo) TouchTelemetry(ctx context.Context, deviceID int64, seenAt time.Time, rssi, snr *float64, battery *int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE devices
		 SET last_seen = $2,
		     last_rssi = COALESCE($3, last_rssi),
		     last_snr = COALESCE($4, last_snr),
		     battery = COALESCE($5, battery)
		 WHERE device_id = $1`,
		deviceID, seenAt, rssi, snr, battery,
	)
	if err != nil {
		return fmt.Errorf("touch device %d telemetry: %w", deviceID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (*domain.Device, error) {
	var d domain.Device
	var checkpointID sql.NullInt64
	var lastSeen sql.NullTime
	var lastRSSI, lastSNR sql.NullFloat64
	var battery sql.NullInt64

	err := row.Scan(&d.DeviceID, &d.CompetitionID, &d.DevNum, &d.Name,
		&checkpointID, &d.Secret, &d.Active,
		&lastSeen, &lastRSSI, &lastSNR, &battery)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan device: %w", err)
	}

	if checkpointID.Valid {
		d.CheckpointID = &checkpointID.Int64
	}
	if lastSeen.Valid {
		d.LastSeen = &lastSeen.Time
	}
	if lastRSSI.Valid {
		d.LastRSSI = &lastRSSI.Float64
	}
	if lastSNR.Valid {
		d.LastSNR = &lastSNR.Float64
	}
	if battery.Valid {
		b := int(battery.Int64)
		d.Battery = &b
	}
	return &d, nil
}

func collectDevices(rows *sql.Rows) ([]domain.Device, error) {
	var devices []domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}
