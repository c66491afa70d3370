package domain

import "time"

// Device domain model (devices table).
// A device is a physical relay (LoRa module or phone) bound to one
// checkpoint; the binding is read-only context for the ingest path.
// Rebinding is an external admin action.
type Device struct {
	DeviceID      int64  `db:"device_id" json:"device_id"`
	CompetitionID int64  `db:"competition_id" json:"competition_id"`
	DevNum        int    `db:"dev_num" json:"dev_num"` // radio address, unique within the competition
	Name          string `db:"name" json:"name"`
	CheckpointID  *int64 `db:"checkpoint_id" json:"checkpoint_id,omitempty"`
	Secret        string `db:"secret" json:"-"` // per-device digest key; empty falls back to the configured default
	Active        bool   `db:"active" json:"active"`

	// Telemetry, written asynchronously by the relay.
	LastSeen *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	LastRSSI *float64   `db:"last_rssi" json:"last_rssi,omitempty"`
	LastSNR  *float64   `db:"last_snr" json:"last_snr,omitempty"`
	Battery  *int       `db:"battery" json:"battery,omitempty"`
}
