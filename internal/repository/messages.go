package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brinsoko/LoRa-CP/internal/domain"
)

// MessageFilter narrows the audit-log listing. Zero values mean "any".
type MessageFilter struct {
	CompetitionID int64
	DevNum        int
	Limit         int
	Offset        int
}

// MessagesRepo is the raw-uplink audit log, materialized by the relay.
type MessagesRepo interface {
	// Insert stores one uplink. The primary key is the originating event
	// id, so a redelivered event is a no-op.
	Insert(ctx context.Context, m *domain.DeviceMessage) error
	List(ctx context.Context, f MessageFilter) ([]domain.DeviceMessage, error)
}

type PostgresMessagesRepo struct {
	db *sql.DB
}

func NewPostgresMessagesRepo(db *sql.DB) *PostgresMessagesRepo {
	return &PostgresMessagesRepo{db: db}
}

func (r *PostgresMessagesRepo) Insert(ctx context.Context, m *domain.DeviceMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_messages (message_id, competition_id, dev_num, device_id, payload, uid, rssi, snr, outcome, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (message_id) DO NOTHING`,
		m.MessageID, m.CompetitionID, m.DevNum, m.DeviceID, m.Payload, m.UID, m.RSSI, m.SNR, m.Outcome, m.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert device message: %w", err)
	}
	return nil
}

func (r *PostgresMessagesRepo) List(ctx context.Context, f MessageFilter) ([]domain.DeviceMessage, error) {
	query := `SELECT message_id, competition_id, dev_num, device_id, payload, uid, rssi, snr, outcome, received_at
	 FROM device_messages
	 WHERE competition_id = $1`
	args := []interface{}{f.CompetitionID}

	if f.DevNum != 0 {
		args = append(args, f.DevNum)
		query += fmt.Sprintf(" AND dev_num = $%d", len(args))
	}

	query += " ORDER BY received_at DESC"

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list device messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.DeviceMessage
	for rows.Next() {
		var m domain.DeviceMessage
		var deviceID sql.NullInt64
		var rssi, snr sql.NullFloat64
		if err := rows.Scan(&m.MessageID, &m.CompetitionID, &m.DevNum, &deviceID,
			&m.Payload, &m.UID, &rssi, &snr, &m.Outcome, &m.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan device message: %w", err)
		}
		if deviceID.Valid {
			m.DeviceID = &deviceID.Int64
		}
		if rssi.Valid {
			m.RSSI = &rssi.Float64
		}
		if snr.Valid {
			m.SNR = &snr.Float64
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device messages: %w", err)
	}
	return messages, nil
}
