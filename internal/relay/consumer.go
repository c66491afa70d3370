// Package relay drains the event stream published by lora-cp. It
// materializes ingest events into the device_messages audit log, keeps
// device telemetry current, and forwards events to an external collector
// when one is configured. Materialization keys on the event id, so the
// at-least-once stream delivery never produces duplicate audit rows.
package relay

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/config"
	"github.com/brinsoko/LoRa-CP/internal/domain"
	"github.com/brinsoko/LoRa-CP/internal/events"
	"github.com/brinsoko/LoRa-CP/internal/redisx"
	"github.com/brinsoko/LoRa-CP/internal/repository"
)

type Consumer struct {
	redisClient *redis.Client
	messages    repository.MessagesRepo
	devices     repository.DevicesRepo
	collector   *CollectorClient
	logger      *zap.Logger

	stream       string
	groupName    string
	consumerName string
	batchSize    int64
}

// NewConsumer wires the relay. collector may be nil when no collector URL
// is configured; forwarding is then skipped.
func NewConsumer(
	redisClient *redis.Client,
	messages repository.MessagesRepo,
	devices repository.DevicesRepo,
	collector *CollectorClient,
	stream string,
	cfg config.RelayConfig,
	logger *zap.Logger,
) *Consumer {
	return &Consumer{
		redisClient:  redisClient,
		messages:     messages,
		devices:      devices,
		collector:    collector,
		logger:       logger,
		stream:       stream,
		groupName:    cfg.ConsumerGroup,
		consumerName: cfg.ConsumerName,
		batchSize:    int64(cfg.BatchSize),
	}
}

// Start consumes the stream until ctx is cancelled. Read errors back off
// exponentially so a Redis restart does not turn into a hot loop.
func (c *Consumer) Start(ctx context.Context) error {
	if err := redisx.CreateConsumerGroup(ctx, c.redisClient, c.stream, c.groupName); err != nil {
		return err
	}

	c.logger.Info("Event relay started",
		zap.String("stream", c.stream),
		zap.String("group", c.groupName),
		zap.String("consumer", c.consumerName))

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Event relay stopping")
			return ctx.Err()
		default:
		}

		if err := c.consumeBatch(ctx); err != nil {
			c.logger.Error("Failed to consume events", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoffDuration):
			}
			backoffDuration *= 2
			if backoffDuration > maxBackoff {
				backoffDuration = maxBackoff
			}
		} else {
			backoffDuration = time.Second
		}
	}
}

func (c *Consumer) consumeBatch(ctx context.Context) error {
	messages, err := redisx.ReadFromStream(ctx, c.redisClient, c.stream, c.groupName, c.consumerName, c.batchSize)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if err := c.processMessage(ctx, msg); err != nil {
			// Left unacked; the pending entry is redelivered on the
			// next claim, and materialization is idempotent.
			c.logger.Error("Failed to process event",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			continue
		}
		c.ack(ctx, msg.ID)
	}
	return nil
}

func (c *Consumer) processMessage(ctx context.Context, msg redisx.StreamMessage) error {
	evt, err := events.ParseStreamMessage(msg)
	if err != nil {
		// An undecodable entry can never succeed, so dropping it is the
		// only way to keep the group moving.
		c.logger.Error("Dropping undecodable event",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return nil
	}

	if err := c.materialize(ctx, evt); err != nil {
		return err
	}

	if c.collector != nil {
		if err := c.collector.Forward(ctx, evt); err != nil {
			// The audit log is authoritative; the collector gets a
			// best-effort feed and tolerates gaps.
			c.logger.Warn("Failed to forward event to collector",
				zap.String("event_id", evt.EventID),
				zap.String("event_type", evt.EventType),
				zap.Error(err))
		}
	}
	return nil
}

func (c *Consumer) materialize(ctx context.Context, evt *events.Event) error {
	if evt.EventType != events.TypeIngestMessage {
		return nil
	}

	receivedAt := time.Unix(evt.OccurredAt, 0).UTC()
	m := &domain.DeviceMessage{
		MessageID:     evt.EventID,
		CompetitionID: evt.CompetitionID,
		DevNum:        evt.DevNum,
		DeviceID:      evt.DeviceID,
		Payload:       evt.Payload,
		UID:           evt.UID,
		RSSI:          evt.RSSI,
		SNR:           evt.SNR,
		Outcome:       evt.Outcome,
		ReceivedAt:    receivedAt,
	}
	if err := c.messages.Insert(ctx, m); err != nil {
		return err
	}

	if evt.DeviceID != nil {
		if err := c.devices.TouchTelemetry(ctx, *evt.DeviceID, receivedAt, evt.RSSI, evt.SNR, evt.Battery); err != nil {
			return err
		}
	}

	c.logger.Debug("Materialized uplink",
		zap.String("message_id", m.MessageID),
		zap.Int("dev_num", m.DevNum),
		zap.String("outcome", m.Outcome))
	return nil
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := redisx.Ack(ctx, c.redisClient, c.stream, c.groupName, id); err != nil {
		c.logger.Warn("Failed to ack event",
			zap.String("message_id", id),
			zap.Error(err))
	}
}
