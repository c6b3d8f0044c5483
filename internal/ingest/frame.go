package ingest

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrEmptyFrame = errors.New("empty frame payload")

// framePayload is the JSON body published on <prefix>/<device>/frame.
type framePayload struct {
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	Frame     string `json:"frame"`
	UserID    string `json:"user_id,omitempty"`
}

// endPayload is the optional JSON body published on <prefix>/<device>/end.
type endPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// DecodeFrame decodes a base64 image, with or without a data-URL prefix
// such as "data:image/jpeg;base64,".
func DecodeFrame(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, errors.New("malformed data URL")
		}
		s = s[i+1:]
	}
	if s == "" {
		return nil, ErrEmptyFrame
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return data, nil
}

func parseFrame(payload []byte, now time.Time) (framePayload, []byte, time.Time, error) {
	var p framePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, nil, time.Time{}, fmt.Errorf("invalid frame message: %w", err)
	}
	frame, err := DecodeFrame(p.Frame)
	if err != nil {
		return p, nil, time.Time{}, err
	}
	return p, frame, timestampOr(p.Timestamp, now), nil
}

func parseEnd(payload []byte, now time.Time) time.Time {
	var p endPayload
	if len(payload) == 0 || json.Unmarshal(payload, &p) != nil {
		return now
	}
	return timestampOr(p.Timestamp, now)
}

func timestampOr(ms int64, fallback time.Time) time.Time {
	if ms <= 0 {
		return fallback
	}
	return time.UnixMilli(ms)
}
