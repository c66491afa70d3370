// Package uplink bridges gateway MQTT uplinks into the ingest pipeline.
package uplink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/ingest"
	"github.com/brinsoko/LoRa-CP/internal/mqtt"
)

type Consumer struct {
	client   *mqtt.Client
	pipeline *ingest.Pipeline
	topic    string
	qos      byte
	logger   *zap.Logger
}

func NewConsumer(client *mqtt.Client, pipeline *ingest.Pipeline, topic string, qos byte, logger *zap.Logger) *Consumer {
	return &Consumer{
		client:   client,
		pipeline: pipeline,
		topic:    topic,
		qos:      qos,
		logger:   logger,
	}
}

func (c *Consumer) Start() error {
	return c.client.Subscribe(c.topic, c.qos, c.handle)
}

func (c *Consumer) handle(topic string, payload []byte) error {
	msg, err := ParseMessage(payload)
	if err != nil {
		return fmt.Errorf("uplink on %s: %w", topic, err)
	}

	res, err := c.pipeline.Ingest(context.Background(), msg)
	if err != nil {
		// Hard rejections are expected during setup (unregistered devices,
		// garbage payloads); log and drop, the gateway will not retry.
		if errors.Is(err, ingest.ErrUnknownDevice) || errors.Is(err, ingest.ErrMalformedPayload) {
			c.logger.Warn("Uplink rejected",
				zap.String("topic", topic),
				zap.Int("dev_num", msg.DevNum),
				zap.Error(err))
			return nil
		}
		return err
	}

	c.logger.Debug("Uplink processed",
		zap.String("topic", topic),
		zap.Int("dev_num", msg.DevNum),
		zap.String("outcome", res.Outcome))
	return nil
}

type jsonUplink struct {
	DevNum        int      `json:"dev_num"`
	Payload       string   `json:"payload"`
	RSSI          *float64 `json:"rssi"`
	SNR           *float64 `json:"snr"`
	CompetitionID int64    `json:"competition_id"`
	Battery       *int     `json:"battery"`
	TS            int64    `json:"ts"`
}

// ParseMessage decodes a gateway uplink. Gateways publish either the serial
// line format "dev_num|payload|rssi|snr" or a JSON object with the same
// fields. Unparseable signal values are dropped rather than failing the
// uplink; the check-in matters more than its telemetry.
func ParseMessage(payload []byte) (ingest.DeviceMessage, error) {
	raw := strings.TrimSpace(string(payload))
	if raw == "" {
		return ingest.DeviceMessage{}, fmt.Errorf("empty uplink: %w", ingest.ErrMalformedPayload)
	}

	if strings.HasPrefix(raw, "{") {
		var ju jsonUplink
		if err := json.Unmarshal([]byte(raw), &ju); err != nil {
			return ingest.DeviceMessage{}, fmt.Errorf("uplink json: %v: %w", err, ingest.ErrMalformedPayload)
		}
		if ju.DevNum <= 0 {
			return ingest.DeviceMessage{}, fmt.Errorf("uplink json missing dev_num: %w", ingest.ErrMalformedPayload)
		}
		msg := ingest.DeviceMessage{
			DevNum:        ju.DevNum,
			Payload:       ju.Payload,
			CompetitionID: ju.CompetitionID,
			RSSI:          ju.RSSI,
			SNR:           ju.SNR,
			Battery:       ju.Battery,
		}
		if ju.TS > 0 {
			msg.ReceivedAt = time.Unix(ju.TS, 0)
		}
		return msg, nil
	}

	parts := strings.Split(raw, "|")
	if len(parts) < 2 {
		return ingest.DeviceMessage{}, fmt.Errorf("uplink line %q: %w", raw, ingest.ErrMalformedPayload)
	}
	devNum, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || devNum <= 0 {
		return ingest.DeviceMessage{}, fmt.Errorf("uplink dev_num %q: %w", parts[0], ingest.ErrMalformedPayload)
	}

	msg := ingest.DeviceMessage{
		DevNum:  devNum,
		Payload: strings.TrimSpace(parts[1]),
	}
	if len(parts) > 2 {
		if rssi, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64); err == nil {
			msg.RSSI = &rssi
		}
	}
	if len(parts) > 3 {
		if snr, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64); err == nil {
			msg.SNR = &snr
		}
	}
	return msg, nil
}
