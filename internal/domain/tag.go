package domain

// Tag domain model (rfid_tags table).
// A tag maps to at most one team; an unmapped tag is valid input for
// ingestion but cannot produce a team-scoped check-in.
type Tag struct {
	TagID         int64  `db:"tag_id" json:"tag_id"`
	CompetitionID int64  `db:"competition_id" json:"competition_id"`
	UID           string `db:"uid" json:"uid"` // normalized hex, no separators
	TeamID        *int64 `db:"team_id" json:"team_id,omitempty"`
	Label         string `db:"label" json:"label,omitempty"`
}
