// Package ingest turns checkpoint uplinks and operator check-ins into durable
// check-in rows. The pipeline performs at most one database write per message;
// telemetry and the audit trail are materialized asynchronously by the relay
// from the event stream.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/config"
	"github.com/brinsoko/LoRa-CP/internal/dedup"
	"github.com/brinsoko/LoRa-CP/internal/domain"
	"github.com/brinsoko/LoRa-CP/internal/events"
	"github.com/brinsoko/LoRa-CP/internal/repository"
	"github.com/brinsoko/LoRa-CP/internal/token"
)

var (
	// ErrUnknownDevice marks messages from a device number with no usable
	// registration: unknown, ambiguous across competitions, or not bound to
	// a checkpoint.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrMalformedPayload marks payloads that cannot be interpreted at all.
	ErrMalformedPayload = errors.New("malformed payload")
)

// DeviceMessage is one uplink from a checkpoint device, already stripped of
// transport framing. CompetitionID zero means the gateway did not say which
// competition the device belongs to and it must be inferred from the device
// registration.
type DeviceMessage struct {
	DevNum        int
	Payload       string
	CompetitionID int64
	RSSI          *float64
	SNR           *float64
	Battery       *int
	ReceivedAt    time.Time
	WantDigest    bool
}

// ManualCheckIn is an operator-entered check-in for a team that passed a
// checkpoint without a successful tag read.
type ManualCheckIn struct {
	CompetitionID int64
	TeamID        int64
	CheckpointID  int64
	At            time.Time
	WantDigest    bool
}

// Result reports what a message produced. Soft conditions (duplicate, unknown
// tag, telemetry-only) are successful results, not errors.
type Result struct {
	Outcome        string             `json:"outcome"`
	Created        bool               `json:"created"`
	Duplicate      bool               `json:"duplicate,omitempty"`
	UnknownTag     bool               `json:"unknown_tag,omitempty"`
	UID            string             `json:"uid,omitempty"`
	Team           *domain.Team       `json:"team,omitempty"`
	Checkpoint     *domain.Checkpoint `json:"checkpoint,omitempty"`
	CheckIn        *domain.CheckIn    `json:"checkin,omitempty"`
	Position       *Position          `json:"position,omitempty"`
	Digest         string             `json:"digest,omitempty"`
	WritebackError string             `json:"writeback_error,omitempty"`
}

type Pipeline struct {
	devices     repository.DevicesRepo
	tags        repository.TagsRepo
	teams       repository.TeamsRepo
	checkpoints repository.CheckpointsRepo
	checkins    repository.CheckInsRepo
	guard       *dedup.Guard
	emitter     *events.Emitter
	digestLen   int
	fallback    string
	logger      *zap.Logger
}

func NewPipeline(
	devices repository.DevicesRepo,
	tags repository.TagsRepo,
	teams repository.TeamsRepo,
	checkpoints repository.CheckpointsRepo,
	checkins repository.CheckInsRepo,
	guard *dedup.Guard,
	emitter *events.Emitter,
	digest config.DigestConfig,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		devices:     devices,
		tags:        tags,
		teams:       teams,
		checkpoints: checkpoints,
		checkins:    checkins,
		guard:       guard,
		emitter:     emitter,
		digestLen:   digest.Len,
		fallback:    digest.Secret,
		logger:      logger,
	}
}

// Ingest processes one device uplink. It returns ErrUnknownDevice and
// ErrMalformedPayload for hard rejections; everything else, including
// duplicates and unknown tags, succeeds with the condition flagged on the
// Result.
func (p *Pipeline) Ingest(ctx context.Context, msg DeviceMessage) (*Result, error) {
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	receivedAt = receivedAt.UTC()

	evt := events.Event{
		EventType:     events.TypeIngestMessage,
		CompetitionID: msg.CompetitionID,
		DevNum:        msg.DevNum,
		Payload:       msg.Payload,
		RSSI:          msg.RSSI,
		SNR:           msg.SNR,
		Battery:       msg.Battery,
		OccurredAt:    receivedAt.Unix(),
	}

	device, err := p.resolveDevice(ctx, msg)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			evt.Outcome = events.OutcomeUnknownDevice
			p.emitter.Emit(ctx, evt)
			return nil, fmt.Errorf("device %d: %w", msg.DevNum, ErrUnknownDevice)
		}
		return nil, err
	}
	evt.CompetitionID = device.CompetitionID
	evt.DeviceID = &device.DeviceID

	payload := strings.TrimSpace(msg.Payload)
	if payload == "" {
		evt.Outcome = events.OutcomeMalformed
		p.emitter.Emit(ctx, evt)
		return nil, fmt.Errorf("device %d sent empty payload: %w", msg.DevNum, ErrMalformedPayload)
	}

	if IsPosition(payload) {
		pos, err := ParsePosition(payload)
		if err != nil {
			evt.Outcome = events.OutcomeMalformed
			p.emitter.Emit(ctx, evt)
			return nil, err
		}
		evt.Outcome = events.OutcomeTelemetry
		p.emitter.Emit(ctx, evt)
		return &Result{Outcome: events.OutcomeTelemetry, Position: pos}, nil
	}

	uid := token.NormalizeUID(payload)
	evt.UID = uid

	if device.CheckpointID == nil {
		evt.Outcome = events.OutcomeUnknownDevice
		p.emitter.Emit(ctx, evt)
		return nil, fmt.Errorf("device %d is not bound to a checkpoint: %w", msg.DevNum, ErrUnknownDevice)
	}

	team, ok, err := p.resolveTeam(ctx, device.CompetitionID, uid)
	if err != nil {
		return nil, err
	}
	if !ok {
		evt.Outcome = events.OutcomeUnknownTag
		p.emitter.Emit(ctx, evt)
		return &Result{Outcome: events.OutcomeUnknownTag, UnknownTag: true, UID: uid}, nil
	}
	evt.TeamID = &team.TeamID
	evt.CheckpointID = device.CheckpointID

	checkpoint, err := p.checkpoints.Get(ctx, *device.CheckpointID)
	if err != nil {
		return nil, err
	}

	fingerprint := p.guard.DeviceFingerprint(device.CompetitionID, device.DevNum, uid, receivedAt)
	if !p.guard.Admit(ctx, fingerprint) {
		res, err := p.duplicateResult(ctx, device, team, checkpoint, uid, msg.WantDigest)
		if err == nil {
			evt.Outcome = events.OutcomeDuplicate
			evt.Digest = res.Digest
			p.emitter.Emit(ctx, evt)
			return res, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		// The guard fired but no check-in exists: an earlier attempt died
		// between admission and commit. Recording now is the correct recovery.
		p.logger.Warn("Dedup hit without stored check-in, committing anyway",
			zap.Int("dev_num", device.DevNum),
			zap.Int64("team_id", team.TeamID))
	}

	checkin := &domain.CheckIn{
		CompetitionID: device.CompetitionID,
		TeamID:        team.TeamID,
		CheckpointID:  checkpoint.CheckpointID,
		DeviceID:      &device.DeviceID,
		Source:        domain.SourceRFID,
		Fingerprint:   fingerprint,
		RecordedAt:    receivedAt,
	}
	if err := p.checkins.Insert(ctx, checkin); err != nil {
		if errors.Is(err, repository.ErrDuplicateCheckIn) {
			res, derr := p.duplicateResult(ctx, device, team, checkpoint, uid, msg.WantDigest)
			if derr != nil {
				return nil, derr
			}
			evt.Outcome = events.OutcomeDuplicate
			evt.Digest = res.Digest
			p.emitter.Emit(ctx, evt)
			return res, nil
		}
		return nil, err
	}

	res := &Result{
		Outcome:    events.OutcomeCreated,
		Created:    true,
		UID:        uid,
		Team:       team,
		Checkpoint: checkpoint,
		CheckIn:    checkin,
	}
	if msg.WantDigest {
		res.Digest, res.WritebackError = p.writeback(device, uid, checkin.RecordedAt.Unix())
	}

	evt.Outcome = events.OutcomeCreated
	evt.Digest = res.Digest
	p.emitter.Emit(ctx, evt)
	p.emitter.Emit(ctx, events.Event{
		EventType:     events.TypeCheckInCreated,
		CompetitionID: checkin.CompetitionID,
		DevNum:        device.DevNum,
		DeviceID:      &device.DeviceID,
		TeamID:        &checkin.TeamID,
		CheckpointID:  &checkin.CheckpointID,
		UID:           uid,
		OccurredAt:    checkin.RecordedAt.Unix(),
	})

	p.logger.Info("Check-in recorded",
		zap.Int64("competition_id", checkin.CompetitionID),
		zap.Int64("team_id", checkin.TeamID),
		zap.Int64("checkpoint_id", checkin.CheckpointID),
		zap.Int("dev_num", device.DevNum))
	return res, nil
}

// Manual records an operator check-in. Team and checkpoint must belong to the
// given competition.
func (p *Pipeline) Manual(ctx context.Context, req ManualCheckIn) (*Result, error) {
	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	team, err := p.teams.Get(ctx, req.TeamID)
	if err != nil {
		return nil, err
	}
	if team.CompetitionID != req.CompetitionID {
		return nil, fmt.Errorf("team %d not in competition %d: %w", req.TeamID, req.CompetitionID, repository.ErrNotFound)
	}
	checkpoint, err := p.checkpoints.Get(ctx, req.CheckpointID)
	if err != nil {
		return nil, err
	}
	if checkpoint.CompetitionID != req.CompetitionID {
		return nil, fmt.Errorf("checkpoint %d not in competition %d: %w", req.CheckpointID, req.CompetitionID, repository.ErrNotFound)
	}

	evt := events.Event{
		EventType:     events.TypeCheckInManual,
		CompetitionID: req.CompetitionID,
		TeamID:        &team.TeamID,
		CheckpointID:  &checkpoint.CheckpointID,
		OccurredAt:    at.Unix(),
	}

	fingerprint := p.guard.ManualFingerprint(req.CompetitionID, req.TeamID, req.CheckpointID, at)
	if !p.guard.Admit(ctx, fingerprint) {
		res, err := p.manualDuplicate(ctx, team, checkpoint, req.WantDigest)
		if err == nil {
			evt.Outcome = events.OutcomeDuplicate
			evt.Digest = res.Digest
			p.emitter.Emit(ctx, evt)
			return res, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	checkin := &domain.CheckIn{
		CompetitionID: req.CompetitionID,
		TeamID:        team.TeamID,
		CheckpointID:  checkpoint.CheckpointID,
		Source:        domain.SourceManual,
		Fingerprint:   fingerprint,
		RecordedAt:    at,
	}
	if err := p.checkins.Insert(ctx, checkin); err != nil {
		if errors.Is(err, repository.ErrDuplicateCheckIn) {
			res, derr := p.manualDuplicate(ctx, team, checkpoint, req.WantDigest)
			if derr != nil {
				return nil, derr
			}
			evt.Outcome = events.OutcomeDuplicate
			evt.Digest = res.Digest
			p.emitter.Emit(ctx, evt)
			return res, nil
		}
		return nil, err
	}

	res := &Result{
		Outcome:    events.OutcomeCreated,
		Created:    true,
		Team:       team,
		Checkpoint: checkpoint,
		CheckIn:    checkin,
	}
	if req.WantDigest {
		res.Digest, res.WritebackError = p.manualWriteback(ctx, team, checkpoint, checkin.RecordedAt.Unix())
	}

	evt.Outcome = events.OutcomeCreated
	evt.Digest = res.Digest
	p.emitter.Emit(ctx, evt)
	p.emitter.Emit(ctx, events.Event{
		EventType:     events.TypeCheckInCreated,
		CompetitionID: checkin.CompetitionID,
		TeamID:        &checkin.TeamID,
		CheckpointID:  &checkin.CheckpointID,
		OccurredAt:    checkin.RecordedAt.Unix(),
	})

	p.logger.Info("Manual check-in recorded",
		zap.Int64("competition_id", checkin.CompetitionID),
		zap.Int64("team_id", checkin.TeamID),
		zap.Int64("checkpoint_id", checkin.CheckpointID))
	return res, nil
}

func (p *Pipeline) resolveDevice(ctx context.Context, msg DeviceMessage) (*domain.Device, error) {
	if msg.CompetitionID != 0 {
		return p.devices.GetByNum(ctx, msg.CompetitionID, msg.DevNum)
	}
	return p.devices.FindByNum(ctx, msg.DevNum)
}

// resolveTeam maps a UID to its team. Returns ok=false when the tag is
// unregistered, unassigned, or points at a team that no longer exists.
func (p *Pipeline) resolveTeam(ctx context.Context, competitionID int64, uid string) (*domain.Team, bool, error) {
	tag, err := p.tags.GetByUID(ctx, competitionID, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if tag.TeamID == nil {
		return nil, false, nil
	}
	team, err := p.teams.Get(ctx, *tag.TeamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return team, true, nil
}

// duplicateResult rebuilds the response the original message got, digest
// included, so retransmissions are indistinguishable from the first delivery.
func (p *Pipeline) duplicateResult(ctx context.Context, device *domain.Device, team *domain.Team, checkpoint *domain.Checkpoint, uid string, wantDigest bool) (*Result, error) {
	existing, err := p.checkins.Get(ctx, device.CompetitionID, team.TeamID, checkpoint.CheckpointID)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Outcome:    events.OutcomeDuplicate,
		Duplicate:  true,
		UID:        uid,
		Team:       team,
		Checkpoint: checkpoint,
		CheckIn:    existing,
	}
	if wantDigest {
		res.Digest, res.WritebackError = p.writeback(device, uid, existing.RecordedAt.Unix())
	}
	return res, nil
}

func (p *Pipeline) manualDuplicate(ctx context.Context, team *domain.Team, checkpoint *domain.Checkpoint, wantDigest bool) (*Result, error) {
	existing, err := p.checkins.Get(ctx, team.CompetitionID, team.TeamID, checkpoint.CheckpointID)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Outcome:    events.OutcomeDuplicate,
		Duplicate:  true,
		Team:       team,
		Checkpoint: checkpoint,
		CheckIn:    existing,
	}
	if wantDigest {
		res.Digest, res.WritebackError = p.manualWriteback(ctx, team, checkpoint, existing.RecordedAt.Unix())
	}
	return res, nil
}

// writeback computes the counter:mac record the device stores on the tag. The
// counter is the effective check-in time, so repeated deliveries always yield
// the same record.
func (p *Pipeline) writeback(device *domain.Device, uid string, counter int64) (digest, writebackErr string) {
	secret := device.Secret
	if secret == "" {
		secret = p.fallback
	}
	if secret == "" {
		return "", "no digest secret configured for device"
	}
	return token.Compute(uid, device.DevNum, counter, secret, p.digestLen).String(), ""
}

// manualWriteback resolves the device and tag a manual check-in would have
// used. Failure degrades to a check-in without a tag record.
func (p *Pipeline) manualWriteback(ctx context.Context, team *domain.Team, checkpoint *domain.Checkpoint, counter int64) (digest, writebackErr string) {
	device, err := p.devices.ForCheckpoint(ctx, checkpoint.CheckpointID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", "no device bound to checkpoint"
		}
		return "", fmt.Sprintf("resolve device: %v", err)
	}
	tag, err := p.tags.GetByTeam(ctx, team.TeamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", "team has no tag assigned"
		}
		return "", fmt.Sprintf("resolve tag: %v", err)
	}
	return p.writeback(device, token.NormalizeUID(tag.UID), counter)
}
