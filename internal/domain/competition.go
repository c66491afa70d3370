package domain

import "time"

// Competition is the isolation boundary: every other entity is scoped to
// exactly one competition. The core never mutates competitions.
type Competition struct {
	CompetitionID int64     `db:"competition_id" json:"competition_id"`
	Name          string    `db:"name" json:"name"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
