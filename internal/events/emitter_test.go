package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/redisx"
)

func newTestEmitter(t *testing.T) (*Emitter, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewEmitter(client, "loracp:events", zap.NewNop()), client
}

func TestEmit_PublishesEnvelope(t *testing.T) {
	emitter, client := newTestEmitter(t)
	ctx := context.Background()

	teamID := int64(7)
	id := emitter.Emit(ctx, Event{
		EventType:     TypeIngestMessage,
		CompetitionID: 1,
		DevNum:        12,
		TeamID:        &teamID,
		UID:           "04A1B2C3",
		Outcome:       OutcomeCreated,
	})
	require.NotEmpty(t, id)

	entries, err := client.XRange(ctx, "loracp:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	raw, ok := entries[0].Values["data"].(string)
	require.True(t, ok)

	var evt Event
	require.NoError(t, json.Unmarshal([]byte(raw), &evt))
	assert.Equal(t, id, evt.EventID)
	assert.Equal(t, TypeIngestMessage, evt.EventType)
	assert.Equal(t, int64(1), evt.CompetitionID)
	assert.Equal(t, 12, evt.DevNum)
	require.NotNil(t, evt.TeamID)
	assert.Equal(t, int64(7), *evt.TeamID)
	assert.Equal(t, "04A1B2C3", evt.UID)
	assert.Equal(t, OutcomeCreated, evt.Outcome)
	assert.NotZero(t, evt.OccurredAt)
}

func TestEmit_KeepsExplicitIDAndTime(t *testing.T) {
	emitter, _ := newTestEmitter(t)

	id := emitter.Emit(context.Background(), Event{
		EventID:    "fixed-id",
		EventType:  TypeCheckInManual,
		OccurredAt: 1700000000,
	})
	assert.Equal(t, "fixed-id", id)
}

func TestEmit_SwallowsPublishFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	emitter := NewEmitter(client, "loracp:events", zap.NewNop())
	mr.Close()

	id := emitter.Emit(context.Background(), Event{EventType: TypeIngestMessage})
	assert.NotEmpty(t, id)
}

func TestParseStreamMessage_RoundTrip(t *testing.T) {
	emitter, client := newTestEmitter(t)
	ctx := context.Background()

	emitter.Emit(ctx, Event{
		EventType: TypeVerifyMismatch,
		UID:       "DEADBEEF",
		Digest:    "1700000000:abcdef012345",
	})

	entries, err := client.XRange(ctx, "loracp:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	evt, err := ParseStreamMessage(redisx.StreamMessage{
		Stream: "loracp:events",
		ID:     entries[0].ID,
		Values: entries[0].Values,
	})
	require.NoError(t, err)
	assert.Equal(t, TypeVerifyMismatch, evt.EventType)
	assert.Equal(t, "DEADBEEF", evt.UID)
	assert.Equal(t, "1700000000:abcdef012345", evt.Digest)
}

func TestParseStreamMessage_MissingData(t *testing.T) {
	_, err := ParseStreamMessage(redisx.StreamMessage{
		Stream: "loracp:events",
		ID:     "1-0",
		Values: map[string]interface{}{"other": "x"},
	})
	assert.Error(t, err)
}
