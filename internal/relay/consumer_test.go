package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/config"
	"github.com/brinsoko/LoRa-CP/internal/domain"
	"github.com/brinsoko/LoRa-CP/internal/events"
	"github.com/brinsoko/LoRa-CP/internal/redisx"
	"github.com/brinsoko/LoRa-CP/internal/repository"
)

type fakeMessages struct {
	rows      map[string]*domain.DeviceMessage
	insertErr error
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{rows: make(map[string]*domain.DeviceMessage)}
}

func (f *fakeMessages) Insert(ctx context.Context, m *domain.DeviceMessage) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.rows[m.MessageID]; ok {
		return nil
	}
	cp := *m
	f.rows[m.MessageID] = &cp
	return nil
}

func (f *fakeMessages) List(ctx context.Context, _ repository.MessageFilter) ([]domain.DeviceMessage, error) {
	var out []domain.DeviceMessage
	for _, m := range f.rows {
		out = append(out, *m)
	}
	return out, nil
}

type telemetryTouch struct {
	deviceID int64
	seenAt   time.Time
	rssi     *float64
	snr      *float64
	battery  *int
}

type fakeDevices struct {
	touches  []telemetryTouch
	touchErr error
}

func (f *fakeDevices) GetByNum(ctx context.Context, competitionID int64, devNum int) (*domain.Device, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeDevices) FindByNum(ctx context.Context, devNum int) (*domain.Device, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeDevices) ListActive(ctx context.Context, competitionID int64) ([]domain.Device, error) {
	return nil, nil
}

func (f *fakeDevices) List(ctx context.Context, competitionID int64) ([]domain.Device, error) {
	return nil, nil
}

func (f *fakeDevices) ForCheckpoint(ctx context.Context, checkpointID int64) (*domain.Device, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeDevices) TouchTelemetry(ctx context.Context, deviceID int64, seenAt time.Time, rssi, snr *float64, battery *int) error {
	if f.touchErr != nil {
		return f.touchErr
	}
	f.touches = append(f.touches, telemetryTouch{deviceID: deviceID, seenAt: seenAt, rssi: rssi, snr: snr, battery: battery})
	return nil
}

type relayEnv struct {
	consumer *Consumer
	emitter  *events.Emitter
	client   *redis.Client
	messages *fakeMessages
	devices  *fakeDevices
}

const testStream = "loracp:events"

func newRelayEnv(t *testing.T, collector *CollectorClient) *relayEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	messages := newFakeMessages()
	devices := &fakeDevices{}
	cfg := config.RelayConfig{
		ConsumerGroup: "relay-test",
		ConsumerName:  "relay-1",
		BatchSize:     10,
	}
	consumer := NewConsumer(client, messages, devices, collector, testStream, cfg, zap.NewNop())

	require.NoError(t, redisx.CreateConsumerGroup(context.Background(), client, testStream, cfg.ConsumerGroup))

	return &relayEnv{
		consumer: consumer,
		emitter:  events.NewEmitter(client, testStream, zap.NewNop()),
		client:   client,
		messages: messages,
		devices:  devices,
	}
}

func (e *relayEnv) pendingCount(t *testing.T) int64 {
	t.Helper()
	pending, err := e.client.XPending(context.Background(), testStream, "relay-test").Result()
	require.NoError(t, err)
	return pending.Count
}

func TestConsumeBatch_MaterializesIngestEvent(t *testing.T) {
	env := newRelayEnv(t, nil)
	ctx := context.Background()

	deviceID := int64(5)
	rssi := -97.5
	snr := 8.25
	battery := 76
	id := env.emitter.Emit(ctx, events.Event{
		EventType:     events.TypeIngestMessage,
		CompetitionID: 1,
		DevNum:        12,
		DeviceID:      &deviceID,
		UID:           "04A1B2C3D4",
		Payload:       "04A1B2C3D4",
		RSSI:          &rssi,
		SNR:           &snr,
		Battery:       &battery,
		Outcome:       events.OutcomeCreated,
		OccurredAt:    1747470000,
	})

	require.NoError(t, env.consumer.consumeBatch(ctx))

	require.Len(t, env.messages.rows, 1)
	row := env.messages.rows[id]
	require.NotNil(t, row)
	assert.Equal(t, int64(1), row.CompetitionID)
	assert.Equal(t, 12, row.DevNum)
	require.NotNil(t, row.DeviceID)
	assert.Equal(t, int64(5), *row.DeviceID)
	assert.Equal(t, "04A1B2C3D4", row.UID)
	assert.Equal(t, events.OutcomeCreated, row.Outcome)
	assert.Equal(t, time.Unix(1747470000, 0).UTC(), row.ReceivedAt)

	require.Len(t, env.devices.touches, 1)
	touch := env.devices.touches[0]
	assert.Equal(t, int64(5), touch.deviceID)
	assert.Equal(t, time.Unix(1747470000, 0).UTC(), touch.seenAt)
	require.NotNil(t, touch.rssi)
	assert.Equal(t, -97.5, *touch.rssi)
	require.NotNil(t, touch.battery)
	assert.Equal(t, 76, *touch.battery)

	assert.Equal(t, int64(0), env.pendingCount(t))
}

func TestConsumeBatch_SkipsTelemetryWithoutDevice(t *testing.T) {
	env := newRelayEnv(t, nil)
	ctx := context.Background()

	env.emitter.Emit(ctx, events.Event{
		EventType:     events.TypeIngestMessage,
		CompetitionID: 1,
		DevNum:        99,
		Payload:       "04FFFFFFFF",
		Outcome:       events.OutcomeUnknownDevice,
	})

	require.NoError(t, env.consumer.consumeBatch(ctx))

	assert.Len(t, env.messages.rows, 1)
	assert.Empty(t, env.devices.touches)
	assert.Equal(t, int64(0), env.pendingCount(t))
}

func TestConsumeBatch_AcksNonIngestEvents(t *testing.T) {
	env := newRelayEnv(t, nil)
	ctx := context.Background()

	teamID := int64(42)
	env.emitter.Emit(ctx, events.Event{
		EventType:     events.TypeCheckInCreated,
		CompetitionID: 1,
		TeamID:        &teamID,
	})

	require.NoError(t, env.consumer.consumeBatch(ctx))

	assert.Empty(t, env.messages.rows)
	assert.Equal(t, int64(0), env.pendingCount(t))
}

func TestConsumeBatch_DropsUndecodableEntry(t *testing.T) {
	env := newRelayEnv(t, nil)
	ctx := context.Background()

	_, err := env.client.XAdd(ctx, &redis.XAddArgs{
		Stream: testStream,
		Values: map[string]interface{}{"garbage": "not an event"},
	}).Result()
	require.NoError(t, err)

	require.NoError(t, env.consumer.consumeBatch(ctx))

	assert.Empty(t, env.messages.rows)
	assert.Equal(t, int64(0), env.pendingCount(t))
}

func TestConsumeBatch_KeepsFailedEventPending(t *testing.T) {
	env := newRelayEnv(t, nil)
	ctx := context.Background()
	env.messages.insertErr = errors.New("connection refused")

	env.emitter.Emit(ctx, events.Event{
		EventType:     events.TypeIngestMessage,
		CompetitionID: 1,
		DevNum:        12,
		Outcome:       events.OutcomeCreated,
	})

	require.NoError(t, env.consumer.consumeBatch(ctx))

	assert.Empty(t, env.messages.rows)
	assert.Equal(t, int64(1), env.pendingCount(t))
}

func TestConsumeBatch_ForwardsToCollector(t *testing.T) {
	type capture struct {
		path string
		evt  events.Event
	}
	received := make(chan capture, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt events.Event
		_ = json.NewDecoder(r.Body).Decode(&evt)
		received <- capture{path: r.URL.Path, evt: evt}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	collector := NewCollectorClient(srv.URL, 2*time.Second, zap.NewNop())
	env := newRelayEnv(t, collector)
	ctx := context.Background()

	id := env.emitter.Emit(ctx, events.Event{
		EventType:     events.TypeVerifyMismatch,
		CompetitionID: 1,
		UID:           "04A1B2C3D4",
		Digest:        "1747470000:abcdef012345",
	})

	require.NoError(t, env.consumer.consumeBatch(ctx))

	select {
	case got := <-received:
		assert.Equal(t, "/events", got.path)
		assert.Equal(t, id, got.evt.EventID)
		assert.Equal(t, events.TypeVerifyMismatch, got.evt.EventType)
		assert.Equal(t, "1747470000:abcdef012345", got.evt.Digest)
	default:
		t.Fatal("collector never received the event")
	}
	assert.Equal(t, int64(0), env.pendingCount(t))
}

func TestConsumeBatch_CollectorFailureStillAcks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	collector := NewCollectorClient(srv.URL, 2*time.Second, zap.NewNop())
	env := newRelayEnv(t, collector)
	ctx := context.Background()

	env.emitter.Emit(ctx, events.Event{
		EventType:     events.TypeIngestMessage,
		CompetitionID: 1,
		DevNum:        12,
		Outcome:       events.OutcomeCreated,
	})

	require.NoError(t, env.consumer.consumeBatch(ctx))

	assert.Len(t, env.messages.rows, 1)
	assert.Equal(t, int64(0), env.pendingCount(t))
}

func TestConsumeBatch_Idempotent(t *testing.T) {
	env := newRelayEnv(t, nil)
	ctx := context.Background()

	env.emitter.Emit(ctx, events.Event{
		EventID:       "fixed-event-id",
		EventType:     events.TypeIngestMessage,
		CompetitionID: 1,
		DevNum:        12,
		Outcome:       events.OutcomeCreated,
	})
	env.emitter.Emit(ctx, events.Event{
		EventID:       "fixed-event-id",
		EventType:     events.TypeIngestMessage,
		CompetitionID: 1,
		DevNum:        12,
		Outcome:       events.OutcomeCreated,
	})

	require.NoError(t, env.consumer.consumeBatch(ctx))

	assert.Len(t, env.messages.rows, 1)
	assert.Equal(t, int64(0), env.pendingCount(t))
}

func TestStart_StopsOnCancel(t *testing.T) {
	env := newRelayEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.consumer.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
