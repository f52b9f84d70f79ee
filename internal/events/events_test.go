package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketflow/internal/models"
)

func sampleEvents() []models.Event {
	return []models.Event{
		{
			Kind: models.EventSessionHigh, Ticker: "AAPL", Price: 150.60, Time: 1700000002,
			Direction: models.DirectionUp, Channel: "tick",
			Fields: map[string]any{"previous_high": 150.20},
		},
		{
			Kind: models.EventFMVDeviation, Ticker: "AMD", Price: 150, Time: 1700000001,
			Fields: map[string]any{"deviation_percent": 6.667},
		},
	}
}

func TestRecorderCapturesAndResets(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Process(context.Background(), sampleEvents()))
	require.NoError(t, r.Process(context.Background(), nil))

	assert.Equal(t, 2, r.Count())
	got := r.Events()
	require.Len(t, got, 2)
	assert.Equal(t, models.EventSessionHigh, got[0].Kind)

	// The copy is detached from recorder state.
	got[0].Ticker = "mutated"
	assert.Equal(t, "AAPL", r.Events()[0].Ticker)

	r.Reset()
	assert.Equal(t, 0, r.Count())
}

func TestRedisPublisherPublishesJSON(t *testing.T) {
	client, mock := redismock.NewClientMock()
	pub := NewRedisPublisherWithClient(client, "")

	evs := sampleEvents()
	for i := range evs {
		payload, err := json.Marshal(&evs[i])
		require.NoError(t, err)
		mock.ExpectPublish(defaultRedisChannel, payload).SetVal(1)
	}

	require.NoError(t, pub.Process(context.Background(), evs))
	assert.Equal(t, int64(0), pub.Dropped())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisherCountsFailures(t *testing.T) {
	client, mock := redismock.NewClientMock()
	pub := NewRedisPublisherWithClient(client, "alerts")

	evs := sampleEvents()[:1]
	payload, err := json.Marshal(&evs[0])
	require.NoError(t, err)
	mock.ExpectPublish("alerts", payload).SetErr(errors.New("broker down"))

	require.NoError(t, pub.Process(context.Background(), evs), "publish failures stay local")
	assert.Equal(t, int64(1), pub.Dropped())
}

func TestFanoutForwardsToAll(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	f := NewFanout(a, b)

	require.NoError(t, f.Process(context.Background(), sampleEvents()))
	assert.Equal(t, 2, a.Count())
	assert.Equal(t, 2, b.Count())
	assert.NoError(t, f.Close())
}

func TestNewProcessorSelection(t *testing.T) {
	p, err := NewProcessor(SinkConfig{})
	require.NoError(t, err)
	assert.IsType(t, &LogSink{}, p)

	p, err = NewProcessor(SinkConfig{Type: SinkNoop})
	require.NoError(t, err)
	assert.IsType(t, &Recorder{}, p)

	_, err = NewProcessor(SinkConfig{Type: "kafka"})
	assert.Error(t, err)
}
