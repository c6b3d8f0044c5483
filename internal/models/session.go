package models

import (
	"errors"
	"math"
	"time"
)

// Session is the persisted record of a monitoring session.
type Session struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time,omitempty"`
	Summary        SessionSummary `json:"summary"`
	Score          float64        `json:"score"`
	FramesAnalyzed int            `json:"frames_analyzed"`
	FramesMissed   int            `json:"frames_missed"`
}

// Ended reports whether the session has been finalized.
func (s *Session) Ended() bool {
	return !s.EndTime.IsZero()
}

// Duration is the wall-clock length of an ended session.
func (s *Session) Duration() time.Duration {
	if !s.Ended() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// CalculateScore returns the good-posture percentage rounded to two
// decimals, or 0 for a session without duration.
func (s *Session) CalculateScore() float64 {
	if s.Duration() <= 0 {
		return 0
	}
	good := 100 - s.Summary.BadPosturePercentage
	return math.Round(good*100) / 100
}

// Validate checks session field constraints.
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session ID must not be empty")
	}
	if s.UserID == "" {
		return errors.New("user ID must not be empty")
	}
	if s.StartTime.IsZero() {
		return errors.New("start time must be set")
	}
	if s.Ended() && s.EndTime.Before(s.StartTime) {
		return errors.New("end time must not be before start time")
	}
	if s.Summary.BadPosturePercentage < 0 || s.Summary.BadPosturePercentage > 100 {
		return errors.New("bad posture percentage must be between 0 and 100")
	}
	if s.Summary.AlertCount < 0 {
		return errors.New("alert count must not be negative")
	}
	return nil
}

// Alert is the persisted record of a bad-posture alert.
type Alert struct {
	ID           string        `json:"id"`
	SessionID    string        `json:"session_id"`
	Type         string        `json:"alert_type"`
	NeckAngle    float64       `json:"neck_angle"`
	BackAngle    float64       `json:"back_angle"`
	ShoulderDiff float64       `json:"shoulder_diff"`
	Duration     time.Duration `json:"duration"`
	DetectedAt   time.Time     `json:"detected_at"`
}

// NewAlert builds the persisted record for an alert event.
func NewAlert(id string, ev AlertEvent) Alert {
	return Alert{
		ID:           id,
		SessionID:    ev.SessionID,
		Type:         ev.Measurement.AlertType(),
		NeckAngle:    ev.Measurement.Neck.Value,
		BackAngle:    ev.Measurement.Back.Value,
		ShoulderDiff: ev.Measurement.Shoulders.Value,
		Duration:     ev.Elapsed,
		DetectedAt:   ev.At,
	}
}

// DailyStats aggregates one user's sessions for a calendar day.
type DailyStats struct {
	UserID         string        `json:"user_id"`
	Date           string        `json:"date"` // YYYY-MM-DD
	TotalTime      time.Duration `json:"total_time"`
	BadPostureTime time.Duration `json:"bad_posture_time"`
	SessionCount   int           `json:"session_count"`
	AlertCount     int           `json:"alert_count"`
	AverageScore   float64       `json:"average_score"`
}
