// Package posedetect provides a client for a remote pose-inference service.
package posedetect

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rewired-gh/posturewatch/internal/models"
)

// ClientConfig controls transport behaviour.
type ClientConfig struct {
	Timeout        time.Duration
	MaxRetries     int
	RetryDelayBase time.Duration
}

// Client calls the pose service. It satisfies posture.Detector.
type Client struct {
	http *resty.Client
}

type poseRequest struct {
	Image string `json:"image"`
}

type poseLandmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
	Presence   float64 `json:"presence"`
}

type poseResponse struct {
	Detected  bool                    `json:"detected"`
	Landmarks map[string]poseLandmark `json:"landmarks"`
	Overlay   string                  `json:"overlay"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient creates a client for the pose service at baseURL.
func NewClient(baseURL string, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryDelayBase).
		SetRetryMaxWaitTime(cfg.RetryDelayBase * time.Duration(cfg.MaxRetries+1)).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: client}
}

// Detect sends an encoded image to the service. It returns nil without an
// error when no body is found in the frame.
func (c *Client) Detect(ctx context.Context, frame []byte) (*models.Detection, error) {
	var out poseResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(poseRequest{Image: base64.StdEncoding.EncodeToString(frame)}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/pose")
	if err != nil {
		return nil, fmt.Errorf("pose request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error != "" {
			return nil, fmt.Errorf("pose service returned %d: %s", resp.StatusCode(), apiErr.Error)
		}
		return nil, fmt.Errorf("pose service returned %d", resp.StatusCode())
	}

	if !out.Detected || len(out.Landmarks) == 0 {
		return nil, nil
	}

	det := &models.Detection{Keypoints: make(models.KeypointSet, len(out.Landmarks))}
	for name, lm := range out.Landmarks {
		det.Keypoints[models.Landmark(name)] = models.Keypoint{
			X:          lm.X,
			Y:          lm.Y,
			Visibility: lm.Visibility,
		}
	}
	if out.Overlay != "" {
		overlay, err := base64.StdEncoding.DecodeString(out.Overlay)
		if err != nil {
			return nil, fmt.Errorf("failed to decode overlay: %w", err)
		}
		det.Overlay = overlay
	}
	return det, nil
}

// Health checks that the pose service is reachable.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("health check returned %d", resp.StatusCode())
	}
	return nil
}
