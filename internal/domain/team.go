package domain

// Team domain model (teams table).
type Team struct {
	TeamID        int64  `db:"team_id" json:"team_id"`
	CompetitionID int64  `db:"competition_id" json:"competition_id"`
	Name          string `db:"name" json:"name"`
	Number        int    `db:"number" json:"number"` // unique within the competition
}

// Group is an ordered set of checkpoints; a team may belong to several
// groups, at most one marked active at a time.
type Group struct {
	GroupID       int64  `db:"group_id" json:"group_id"`
	CompetitionID int64  `db:"competition_id" json:"competition_id"`
	Name          string `db:"name" json:"name"`
}
