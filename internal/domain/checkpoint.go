package domain

// Checkpoint domain model (checkpoints table).
type Checkpoint struct {
	CheckpointID  int64    `db:"checkpoint_id" json:"checkpoint_id"`
	CompetitionID int64    `db:"competition_id" json:"competition_id"`
	Name          string   `db:"name" json:"name"`
	Easting       *float64 `db:"easting" json:"easting,omitempty"`
	Northing      *float64 `db:"northing" json:"northing,omitempty"`
}

// GroupCheckpoint is a checkpoint row joined with its position inside a
// group; position defines the expected visiting sequence.
type GroupCheckpoint struct {
	Checkpoint
	Position int `db:"position" json:"position"`
}
