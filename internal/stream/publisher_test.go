package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/posturewatch/internal/config"
	"github.com/rewired-gh/posturewatch/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, *Publisher) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client, NewPublisher(client, "posture:alerts", "posture:sessions", 1000)
}

func TestPublishAlert(t *testing.T) {
	ctx := context.Background()
	_, client, pub := setupTestRedis(t)

	alert := models.Alert{
		ID:         "a-1",
		SessionID:  "s-1",
		Type:       models.AlertTypeBack,
		BackAngle:  142.5,
		Duration:   11 * time.Second,
		DetectedAt: time.Date(2026, 3, 2, 9, 0, 11, 0, time.UTC),
	}
	id, err := pub.PublishAlert(ctx, alert)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := client.XRange(ctx, "posture:alerts", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, EventAlert, msgs[0].Values["type"])
	assert.Equal(t, "s-1", msgs[0].Values["session_id"])

	var got models.Alert
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &got))
	assert.Equal(t, alert.Type, got.Type)
	assert.Equal(t, alert.BackAngle, got.BackAngle)
	assert.Equal(t, alert.Duration, got.Duration)
	assert.True(t, alert.DetectedAt.Equal(got.DetectedAt))
}

func TestPublishSummary(t *testing.T) {
	ctx := context.Background()
	_, client, pub := setupTestRedis(t)

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	session := models.Session{
		ID:        "s-1",
		UserID:    "u-1",
		StartTime: start,
		EndTime:   start.Add(100 * time.Second),
		Score:     75,
		Summary:   models.SessionSummary{BadPostureSeconds: 25, BadPosturePercentage: 25, AlertCount: 1},
	}
	require.NoError(t, pub.NotifySummary(ctx, session))

	msgs, err := client.XRange(ctx, "posture:sessions", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventSummary, msgs[0].Values["type"])

	var got models.Session
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &got))
	assert.Equal(t, 75.0, got.Score)
	assert.Equal(t, 25.0, got.Summary.BadPosturePercentage)

	n, err := client.XLen(ctx, "posture:alerts").Result()
	require.NoError(t, err)
	assert.Zero(t, n, "summaries go to their own stream")
}

func TestPublish_Ordering(t *testing.T) {
	ctx := context.Background()
	_, client, pub := setupTestRedis(t)

	for _, id := range []string{"a-1", "a-2", "a-3"} {
		require.NoError(t, pub.NotifyAlert(ctx, models.Alert{ID: id, SessionID: "s-1"}))
	}

	msgs, err := client.XRange(ctx, "posture:alerts", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, want := range []string{"a-1", "a-2", "a-3"} {
		var got models.Alert
		require.NoError(t, json.Unmarshal([]byte(msgs[i].Values["data"].(string)), &got))
		assert.Equal(t, want, got.ID)
	}
}

func TestPublish_ServerDown(t *testing.T) {
	mr, _, pub := setupTestRedis(t)
	mr.Close()

	err := pub.NotifyAlert(context.Background(), models.Alert{ID: "a-1"})
	assert.Error(t, err)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)

	addr := mr.Addr()

	client, err := Dial(context.Background(), config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	_ = client.Close()

	mr.Close()
	_, err = Dial(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
