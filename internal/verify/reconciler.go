// Package verify reconciles the digest records read off a returned tag with
// the check-ins recorded during the run. It is the finish-line counterpart of
// the ingest pipeline: ingest trusts the radio path, verify audits the tag.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/config"
	"github.com/brinsoko/LoRa-CP/internal/domain"
	"github.com/brinsoko/LoRa-CP/internal/events"
	"github.com/brinsoko/LoRa-CP/internal/repository"
	"github.com/brinsoko/LoRa-CP/internal/token"
)

// Record statuses.
const (
	StatusMatch     = "match"
	StatusMismatch  = "mismatch"
	StatusCollision = "collision"
)

// Input is one tag readout brought to the finish line. DevNums narrows the
// candidate devices when the operator knows which checkpoints the course used.
type Input struct {
	CompetitionID int64    `json:"competition_id"`
	UID           string   `json:"uid"`
	Digests       []string `json:"digests"`
	DevNums       []int    `json:"dev_nums,omitempty"`
}

// RecordResult classifies a single stored digest. A collision means the
// truncated MAC verifies against more than one device and the record proves
// nothing on its own.
type RecordResult struct {
	Raw        string             `json:"raw"`
	Counter    int64              `json:"counter"`
	Status     string             `json:"status"`
	DevNum     int                `json:"dev_num,omitempty"`
	Checkpoint *domain.Checkpoint `json:"checkpoint,omitempty"`
	CheckedIn  *time.Time         `json:"checked_in,omitempty"`
	Candidates []int              `json:"candidates,omitempty"`
}

// Contradiction flags a checkpoint the tag proves was visited but the
// check-in log does not show. The radio path lost the message, or the row
// was removed after the fact.
type Contradiction struct {
	CheckpointID   int64  `json:"checkpoint_id"`
	CheckpointName string `json:"checkpoint_name"`
	DevNum         int    `json:"dev_num"`
}

type Report struct {
	CompetitionID  int64           `json:"competition_id"`
	UID            string          `json:"uid"`
	Team           *domain.Team    `json:"team,omitempty"`
	UnknownTag     bool            `json:"unknown_tag,omitempty"`
	Records        []RecordResult  `json:"records"`
	Matches        int             `json:"matches"`
	Mismatches     int             `json:"mismatches"`
	Collisions     int             `json:"collisions"`
	Contradictions []Contradiction `json:"contradictions,omitempty"`
}

type Reconciler struct {
	devices     repository.DevicesRepo
	tags        repository.TagsRepo
	teams       repository.TeamsRepo
	checkpoints repository.CheckpointsRepo
	checkins    repository.CheckInsRepo
	emitter     *events.Emitter
	digestLen   int
	fallback    string
	logger      *zap.Logger
}

func NewReconciler(
	devices repository.DevicesRepo,
	tags repository.TagsRepo,
	teams repository.TeamsRepo,
	checkpoints repository.CheckpointsRepo,
	checkins repository.CheckInsRepo,
	emitter *events.Emitter,
	digest config.DigestConfig,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		devices:     devices,
		tags:        tags,
		teams:       teams,
		checkpoints: checkpoints,
		checkins:    checkins,
		emitter:     emitter,
		digestLen:   digest.Len,
		fallback:    digest.Secret,
		logger:      logger,
	}
}

// Verify recomputes every stored digest against the competition's active
// devices. All records are parsed up front: a single corrupt record rejects
// the whole readout.
func (r *Reconciler) Verify(ctx context.Context, in Input) (*Report, error) {
	uid := token.NormalizeUID(in.UID)
	if uid == "" {
		return nil, fmt.Errorf("verify: %w", token.ErrFormat)
	}

	parsed := make([]token.Digest, len(in.Digests))
	for i, raw := range in.Digests {
		d, err := token.Parse(raw, r.digestLen)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		parsed[i] = d
	}

	report := &Report{
		CompetitionID: in.CompetitionID,
		UID:           uid,
		Records:       make([]RecordResult, 0, len(parsed)),
	}

	team, err := r.resolveTeam(ctx, in.CompetitionID, uid)
	if err != nil {
		return nil, err
	}
	if team == nil {
		report.UnknownTag = true
	} else {
		report.Team = team
	}

	var times map[int64]time.Time
	if team != nil {
		times, err = r.checkins.CheckpointTimes(ctx, in.CompetitionID, team.TeamID)
		if err != nil {
			return nil, err
		}
	}

	candidates, err := r.devices.ListActive(ctx, in.CompetitionID)
	if err != nil {
		return nil, err
	}
	if len(in.DevNums) > 0 {
		wanted := make(map[int]bool, len(in.DevNums))
		for _, n := range in.DevNums {
			wanted[n] = true
		}
		filtered := candidates[:0]
		for _, dev := range candidates {
			if wanted[dev.DevNum] {
				filtered = append(filtered, dev)
			}
		}
		candidates = filtered
	}

	checkpointCache := make(map[int64]*domain.Checkpoint)
	for i, d := range parsed {
		rec := RecordResult{Raw: in.Digests[i], Counter: d.Counter}

		var matched []domain.Device
		for _, dev := range candidates {
			if dev.CheckpointID == nil {
				continue
			}
			secret := dev.Secret
			if secret == "" {
				secret = r.fallback
			}
			if secret == "" {
				continue
			}
			if token.Compute(uid, dev.DevNum, d.Counter, secret, r.digestLen).MAC == d.MAC {
				matched = append(matched, dev)
			}
		}

		switch len(matched) {
		case 0:
			rec.Status = StatusMismatch
			report.Mismatches++
			r.emitAnomaly(ctx, events.TypeVerifyMismatch, in.CompetitionID, uid, in.Digests[i], team, nil)
		case 1:
			rec.Status = StatusMatch
			report.Matches++
			dev := matched[0]
			rec.DevNum = dev.DevNum
			cp, err := r.checkpoint(ctx, checkpointCache, *dev.CheckpointID)
			if err != nil {
				return nil, err
			}
			rec.Checkpoint = cp
			if team != nil {
				if at, ok := times[cp.CheckpointID]; ok {
					t := at
					rec.CheckedIn = &t
				} else {
					report.Contradictions = append(report.Contradictions, Contradiction{
						CheckpointID:   cp.CheckpointID,
						CheckpointName: cp.Name,
						DevNum:         dev.DevNum,
					})
					r.emitAnomaly(ctx, events.TypeVerifyContradiction, in.CompetitionID, uid, in.Digests[i], team, &cp.CheckpointID)
				}
			}
		default:
			rec.Status = StatusCollision
			report.Collisions++
			for _, dev := range matched {
				rec.Candidates = append(rec.Candidates, dev.DevNum)
			}
			sort.Ints(rec.Candidates)
			r.emitAnomaly(ctx, events.TypeVerifyCollision, in.CompetitionID, uid, in.Digests[i], team, nil)
		}

		report.Records = append(report.Records, rec)
	}

	r.logger.Info("Tag verified",
		zap.Int64("competition_id", in.CompetitionID),
		zap.String("uid", uid),
		zap.Int("records", len(report.Records)),
		zap.Int("matches", report.Matches),
		zap.Int("mismatches", report.Mismatches),
		zap.Int("collisions", report.Collisions),
		zap.Int("contradictions", len(report.Contradictions)))
	return report, nil
}

func (r *Reconciler) resolveTeam(ctx context.Context, competitionID int64, uid string) (*domain.Team, error) {
	tag, err := r.tags.GetByUID(ctx, competitionID, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if tag.TeamID == nil {
		return nil, nil
	}
	team, err := r.teams.Get(ctx, *tag.TeamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return team, nil
}

func (r *Reconciler) checkpoint(ctx context.Context, cache map[int64]*domain.Checkpoint, id int64) (*domain.Checkpoint, error) {
	if cp, ok := cache[id]; ok {
		return cp, nil
	}
	cp, err := r.checkpoints.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cache[id] = cp
	return cp, nil
}

func (r *Reconciler) emitAnomaly(ctx context.Context, eventType string, competitionID int64, uid, digest string, team *domain.Team, checkpointID *int64) {
	evt := events.Event{
		EventType:     eventType,
		CompetitionID: competitionID,
		UID:           uid,
		Digest:        digest,
		CheckpointID:  checkpointID,
	}
	if team != nil {
		evt.TeamID = &team.TeamID
	}
	r.emitter.Emit(ctx, evt)
}
