// Package stream fans posture alerts and session summaries out to Redis
// Streams for downstream consumers.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/rewired-gh/posturewatch/internal/config"
	"github.com/rewired-gh/posturewatch/internal/models"
)

const (
	EventAlert   = "posture_alert"
	EventSummary = "session_summary"
)

// Publisher appends events to capped Redis streams.
type Publisher struct {
	client        *redis.Client
	alertStream   string
	summaryStream string
	maxLen        int64
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func NewPublisher(client *redis.Client, alertStream, summaryStream string, maxLen int64) *Publisher {
	return &Publisher{
		client:        client,
		alertStream:   alertStream,
		summaryStream: summaryStream,
		maxLen:        maxLen,
	}
}

func (p *Publisher) publish(ctx context.Context, stream, event, sessionID string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", event, err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"type":       event,
			"session_id": sessionID,
			"data":       string(payload),
			"timestamp":  time.Now().Unix(),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish %s to %s: %w", event, stream, err)
	}
	return id, nil
}

// PublishAlert appends an alert to the alert stream and returns the entry ID.
func (p *Publisher) PublishAlert(ctx context.Context, alert models.Alert) (string, error) {
	return p.publish(ctx, p.alertStream, EventAlert, alert.SessionID, alert)
}

// PublishSummary appends an ended session to the summary stream and returns the entry ID.
func (p *Publisher) PublishSummary(ctx context.Context, session models.Session) (string, error) {
	return p.publish(ctx, p.summaryStream, EventSummary, session.ID, session)
}

// NotifyAlert lets the publisher act as a monitor notifier.
func (p *Publisher) NotifyAlert(ctx context.Context, alert models.Alert) error {
	_, err := p.PublishAlert(ctx, alert)
	return err
}

// NotifySummary lets the publisher act as a monitor notifier.
func (p *Publisher) NotifySummary(ctx context.Context, session models.Session) error {
	_, err := p.PublishSummary(ctx, session)
	return err
}
