package models

import (
	"time"
)

// Phase is the debounced-alert state of a session.
type Phase int

const (
	PhaseGood Phase = iota
	PhaseBadPending
	PhaseBadAlerted
)

func (p Phase) String() string {
	switch p {
	case PhaseGood:
		return "good"
	case PhaseBadPending:
		return "bad_pending"
	case PhaseBadAlerted:
		return "bad_alerted"
	default:
		return "unknown"
	}
}

// SessionState is the mutable tracking state of one monitoring session.
// History is a ring buffer; HistoryIndex is the next write position.
type SessionState struct {
	SessionID string
	StartedAt time.Time

	Phase                Phase
	BadPostureSince      time.Time
	CumulativeBadPosture time.Duration
	AlertCount           int

	History      []bool
	HistoryIndex int

	NeckSamples     []float64
	BackSamples     []float64
	ShoulderSamples []float64

	FramesAnalyzed int
	FramesMissed   int
	LastFrameAt    time.Time
}

// InBadStreak reports whether a bad-posture streak is open.
func (s *SessionState) InBadStreak() bool {
	return s.Phase != PhaseGood
}

// AlertEvent is emitted once per streak when bad posture outlasts the
// alert latency.
type AlertEvent struct {
	SessionID   string
	Elapsed     time.Duration
	Measurement Measurement
	At          time.Time
}

// SessionSummary is the finalized statistics of a session.
type SessionSummary struct {
	BadPostureSeconds    float64 `json:"bad_posture_seconds"`
	BadPosturePercentage float64 `json:"bad_posture_percentage"`
	AlertCount           int     `json:"alert_count"`
	AvgNeckAngle         float64 `json:"avg_neck_angle"`
	AvgBackAngle         float64 `json:"avg_back_angle"`
	AvgShoulderDiff      float64 `json:"avg_shoulder_diff"`
}
