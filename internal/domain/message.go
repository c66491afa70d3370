package domain

import "time"

// DeviceMessage is one raw uplink in the audit log (device_messages table),
// duplicates included. Rows are materialized by the relay from the event
// stream; message_id is the originating event id, so redelivered events
// collapse onto the same row.
type DeviceMessage struct {
	MessageID     string    `db:"message_id" json:"message_id"`
	CompetitionID int64     `db:"competition_id" json:"competition_id"`
	DevNum        int       `db:"dev_num" json:"dev_num"`
	DeviceID      *int64    `db:"device_id" json:"device_id,omitempty"`
	Payload       string    `db:"payload" json:"payload"`
	UID           string    `db:"uid" json:"uid,omitempty"`
	RSSI          *float64  `db:"rssi" json:"rssi,omitempty"`
	SNR           *float64  `db:"snr" json:"snr,omitempty"`
	Outcome       string    `db:"outcome" json:"outcome"`
	ReceivedAt    time.Time `db:"received_at" json:"received_at"`
}
