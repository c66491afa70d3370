// Package progress projects a team's check-ins onto its checkpoint group for
// live scoreboards and the finish-line console.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/domain"
	"github.com/brinsoko/LoRa-CP/internal/repository"
)

const (
	StatusFound    = "found"
	StatusNext     = "next"
	StatusNotFound = "not_found"
)

// CheckpointStatus is one checkpoint of the group in visiting order. Next is
// the first checkpoint the team has not reached yet; everything unreached
// after it is not_found.
type CheckpointStatus struct {
	CheckpointID int64      `json:"checkpoint_id"`
	Name         string     `json:"name"`
	Position     int        `json:"position"`
	Status       string     `json:"status"`
	CheckedIn    *time.Time `json:"checked_in,omitempty"`
}

type TeamProgress struct {
	Team        *domain.Team       `json:"team"`
	Group       *domain.Group      `json:"group"`
	Checkpoints []CheckpointStatus `json:"checkpoints"`
	FoundIDs    []int64            `json:"found_checkpoint_ids"`
	Found       int                `json:"found"`
	Total       int                `json:"total"`
	NextID      int64              `json:"next_checkpoint_id,omitempty"`
	Finished    bool               `json:"finished"`
}

type Projector struct {
	teams    repository.TeamsRepo
	groups   repository.GroupsRepo
	checkins repository.CheckInsRepo
	logger   *zap.Logger
}

func NewProjector(teams repository.TeamsRepo, groups repository.GroupsRepo, checkins repository.CheckInsRepo, logger *zap.Logger) *Projector {
	return &Projector{teams: teams, groups: groups, checkins: checkins, logger: logger}
}

// Project builds the progress view for one team. groupID zero resolves the
// team's active group.
func (p *Projector) Project(ctx context.Context, competitionID, teamID, groupID int64) (*TeamProgress, error) {
	team, err := p.teams.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.CompetitionID != competitionID {
		return nil, fmt.Errorf("team %d not in competition %d: %w", teamID, competitionID, repository.ErrNotFound)
	}

	group, err := p.resolveGroup(ctx, team, groupID)
	if err != nil {
		return nil, err
	}

	checkpoints, err := p.groups.Checkpoints(ctx, group.GroupID)
	if err != nil {
		return nil, err
	}
	times, err := p.checkins.CheckpointTimes(ctx, competitionID, teamID)
	if err != nil {
		return nil, err
	}

	return project(team, group, checkpoints, times), nil
}

// ProjectAll builds the scoreboard for every team in the competition. Teams
// without an active group are left out; they are not on course.
func (p *Projector) ProjectAll(ctx context.Context, competitionID, groupID int64) ([]TeamProgress, error) {
	teams, err := p.teams.List(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	out := make([]TeamProgress, 0, len(teams))
	for i := range teams {
		team := &teams[i]
		group, err := p.resolveGroup(ctx, team, groupID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				p.logger.Debug("Team has no active group, skipping",
					zap.Int64("team_id", team.TeamID))
				continue
			}
			return nil, err
		}
		checkpoints, err := p.groups.Checkpoints(ctx, group.GroupID)
		if err != nil {
			return nil, err
		}
		times, err := p.checkins.CheckpointTimes(ctx, competitionID, team.TeamID)
		if err != nil {
			return nil, err
		}
		out = append(out, *project(team, group, checkpoints, times))
	}
	return out, nil
}

func (p *Projector) resolveGroup(ctx context.Context, team *domain.Team, groupID int64) (*domain.Group, error) {
	if groupID == 0 {
		return p.groups.ActiveGroup(ctx, team.TeamID)
	}
	group, err := p.groups.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.CompetitionID != team.CompetitionID {
		return nil, fmt.Errorf("group %d not in competition %d: %w", groupID, team.CompetitionID, repository.ErrNotFound)
	}
	return group, nil
}

func project(team *domain.Team, group *domain.Group, checkpoints []domain.GroupCheckpoint, times map[int64]time.Time) *TeamProgress {
	tp := &TeamProgress{
		Team:        team,
		Group:       group,
		Checkpoints: make([]CheckpointStatus, 0, len(checkpoints)),
		FoundIDs:    []int64{},
		Total:       len(checkpoints),
	}

	for _, cp := range checkpoints {
		cs := CheckpointStatus{
			CheckpointID: cp.CheckpointID,
			Name:         cp.Name,
			Position:     cp.Position,
			Status:       StatusNotFound,
		}
		if at, ok := times[cp.CheckpointID]; ok {
			t := at
			cs.Status = StatusFound
			cs.CheckedIn = &t
			tp.FoundIDs = append(tp.FoundIDs, cp.CheckpointID)
			tp.Found++
		} else if tp.NextID == 0 {
			cs.Status = StatusNext
			tp.NextID = cp.CheckpointID
		}
		tp.Checkpoints = append(tp.Checkpoints, cs)
	}

	sort.Slice(tp.FoundIDs, func(i, j int) bool { return tp.FoundIDs[i] < tp.FoundIDs[j] })
	tp.Finished = tp.Total > 0 && tp.Found == tp.Total
	return tp
}
