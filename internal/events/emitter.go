// Package events publishes domain events to the Redis stream consumed by
// lora-cp-relay. Publishing is fire-and-forget: a Redis outage degrades the
// audit trail and collector forwarding, never the ingest path.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/redisx"
)

const (
	TypeIngestMessage       = "ingest.message"
	TypeCheckInCreated      = "checkin.created"
	TypeCheckInManual       = "checkin.manual"
	TypeVerifyMismatch      = "verify.mismatch"
	TypeVerifyCollision     = "verify.collision"
	TypeVerifyContradiction = "verify.contradiction"
)

// Outcomes recorded on ingest.message events and materialized audit rows.
const (
	OutcomeCreated       = "created"
	OutcomeDuplicate     = "duplicate"
	OutcomeUnknownTag    = "unknown_tag"
	OutcomeUnknownDevice = "unknown_device"
	OutcomeTelemetry     = "telemetry"
	OutcomeMalformed     = "malformed"
)

// Event is the envelope published for every domain event. EventID doubles as
// the audit-row primary key, which keeps relay materialization idempotent
// across redeliveries.
type Event struct {
	EventID       string   `json:"event_id"`
	EventType     string   `json:"event_type"`
	CompetitionID int64    `json:"competition_id,omitempty"`
	DevNum        int      `json:"dev_num,omitempty"`
	DeviceID      *int64   `json:"device_id,omitempty"`
	TeamID        *int64   `json:"team_id,omitempty"`
	CheckpointID  *int64   `json:"checkpoint_id,omitempty"`
	UID           string   `json:"uid,omitempty"`
	Payload       string   `json:"payload,omitempty"`
	RSSI          *float64 `json:"rssi,omitempty"`
	SNR           *float64 `json:"snr,omitempty"`
	Battery       *int     `json:"battery,omitempty"`
	Outcome       string   `json:"outcome,omitempty"`
	Digest        string   `json:"digest,omitempty"`
	OccurredAt    int64    `json:"occurred_at"`
}

type Emitter struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

func NewEmitter(client *redis.Client, stream string, logger *zap.Logger) *Emitter {
	return &Emitter{
		client: client,
		stream: stream,
		logger: logger,
	}
}

// Emit assigns the event id and timestamp when unset and appends the event to
// the stream. Failures are logged and swallowed. Returns the event id.
func (e *Emitter) Emit(ctx context.Context, evt Event) string {
	if evt.EventID == "" {
		evt.EventID = uuid.New().String()
	}
	if evt.OccurredAt == 0 {
		evt.OccurredAt = time.Now().Unix()
	}

	if _, err := redisx.PublishJSONToStream(ctx, e.client, e.stream, evt); err != nil {
		e.logger.Warn("Failed to publish event",
			zap.String("event_type", evt.EventType),
			zap.String("event_id", evt.EventID),
			zap.Error(err))
		return evt.EventID
	}

	e.logger.Debug("Published event",
		zap.String("event_type", evt.EventType),
		zap.String("event_id", evt.EventID),
		zap.String("outcome", evt.Outcome))
	return evt.EventID
}

// ParseStreamMessage decodes the event JSON out of a stream entry.
func ParseStreamMessage(msg redisx.StreamMessage) (*Event, error) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("stream message %s has no data field", msg.ID)
	}
	var evt Event
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		return nil, fmt.Errorf("unmarshal event from %s: %w", msg.ID, err)
	}
	return &evt, nil
}
