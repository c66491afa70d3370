package domain

import "time"

// CheckIn sources.
const (
	SourceRFID   = "rfid"
	SourceManual = "manual"
)

// CheckIn is the central fact record (checkins table). Append-only: the
// uq_team_checkpoint constraint keeps at most one row per
// (competition, team, checkpoint), and the earliest insert is the one that
// counts for progress and scoring.
type CheckIn struct {
	CheckInID     int64     `db:"checkin_id" json:"checkin_id"`
	CompetitionID int64     `db:"competition_id" json:"competition_id"`
	TeamID        int64     `db:"team_id" json:"team_id"`
	CheckpointID  int64     `db:"checkpoint_id" json:"checkpoint_id"`
	DeviceID      *int64    `db:"device_id" json:"device_id,omitempty"` // nil for manual entries
	Source        string    `db:"source" json:"source"`
	Fingerprint   string    `db:"fingerprint" json:"-"` // idempotency fingerprint that produced the row
	RecordedAt    time.Time `db:"recorded_at" json:"recorded_at"`
}

// CheckInRecord is a check-in joined with team and checkpoint names for
// listing and export.
type CheckInRecord struct {
	CheckIn
	TeamName       string `db:"team_name" json:"team_name"`
	TeamNumber     int    `db:"team_number" json:"team_number"`
	CheckpointName string `db:"checkpoint_name" json:"checkpoint_name"`
}
