package monitor

import (
	"errors"
	"time"

	"github.com/rewired-gh/posturewatch/internal/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session already ended")
	ErrQueueFull       = errors.New("session frame queue full")
	ErrOutOfOrder      = errors.New("frame timestamp precedes last processed frame")
)

// TrackerConfig controls the debounced-alert state machine.
type TrackerConfig struct {
	AlertLatency time.Duration
	HistorySize  int
}

// DefaultTrackerConfig returns a 10 second alert latency and a 100 frame history.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		AlertLatency: 10 * time.Second,
		HistorySize:  100,
	}
}

// Tracker accumulates posture verdicts for one session. It is not safe for
// concurrent use; callers serialize access per session.
type Tracker struct {
	config TrackerConfig
	state  models.SessionState
	ended  bool
}

// NewTracker creates a tracker in the good phase.
func NewTracker(sessionID string, startedAt time.Time, config TrackerConfig) *Tracker {
	if config.HistorySize < 1 {
		config.HistorySize = DefaultTrackerConfig().HistorySize
	}
	return &Tracker{
		config: config,
		state: models.SessionState{
			SessionID: sessionID,
			StartedAt: startedAt,
			Phase:     models.PhaseGood,
			History:   make([]bool, 0, config.HistorySize),
		},
	}
}

// Phase returns the current state-machine phase.
func (t *Tracker) Phase() models.Phase {
	return t.state.Phase
}

// Ended reports whether Finalize has been called.
func (t *Tracker) Ended() bool {
	return t.ended
}

func (t *Tracker) checkTimestamp(ts time.Time) error {
	if t.ended {
		return ErrSessionEnded
	}
	if !t.state.LastFrameAt.IsZero() && ts.Before(t.state.LastFrameAt) {
		return ErrOutOfOrder
	}
	return nil
}

// Update feeds one analyzed frame captured at ts. It returns an alert event
// the first time a bad-posture streak reaches the alert latency.
func (t *Tracker) Update(m models.Measurement, ts time.Time) (*models.AlertEvent, error) {
	if err := t.checkTimestamp(ts); err != nil {
		return nil, err
	}

	s := &t.state
	s.LastFrameAt = ts
	s.FramesAnalyzed++
	pushHistory(s, m.IsGoodPosture, t.config.HistorySize)
	s.NeckSamples = append(s.NeckSamples, m.Neck.Value)
	s.BackSamples = append(s.BackSamples, m.Back.Value)
	s.ShoulderSamples = append(s.ShoulderSamples, m.Shoulders.Value)

	if m.IsGoodPosture {
		if s.InBadStreak() {
			s.CumulativeBadPosture += ts.Sub(s.BadPostureSince)
			s.BadPostureSince = time.Time{}
			s.Phase = models.PhaseGood
		}
		return nil, nil
	}

	switch s.Phase {
	case models.PhaseGood:
		s.Phase = models.PhaseBadPending
		s.BadPostureSince = ts
	case models.PhaseBadPending:
		elapsed := ts.Sub(s.BadPostureSince)
		if elapsed >= t.config.AlertLatency {
			s.Phase = models.PhaseBadAlerted
			s.AlertCount++
			return &models.AlertEvent{
				SessionID:   s.SessionID,
				Elapsed:     elapsed,
				Measurement: m,
				At:          ts,
			}, nil
		}
	case models.PhaseBadAlerted:
	}
	return nil, nil
}

// SkipFrame records a frame in which no body was detected. It leaves the
// state machine and the accumulators untouched.
func (t *Tracker) SkipFrame(ts time.Time) error {
	if err := t.checkTimestamp(ts); err != nil {
		return err
	}
	t.state.FramesMissed++
	return nil
}

// Finalize ends the session at endedAt, flushing an open bad-posture streak
// into the cumulative total, and returns the session summary.
func (t *Tracker) Finalize(endedAt time.Time) (models.SessionSummary, error) {
	if t.ended {
		return models.SessionSummary{}, ErrSessionEnded
	}
	t.ended = true

	s := &t.state
	if s.InBadStreak() {
		if d := endedAt.Sub(s.BadPostureSince); d > 0 {
			s.CumulativeBadPosture += d
		}
		s.BadPostureSince = time.Time{}
		s.Phase = models.PhaseGood
	}

	return Summarize(s, endedAt.Sub(s.StartedAt)), nil
}

// Snapshot returns a deep copy of the tracker state.
func (t *Tracker) Snapshot() models.SessionState {
	s := t.state
	s.History = append([]bool(nil), t.state.History...)
	s.NeckSamples = append([]float64(nil), t.state.NeckSamples...)
	s.BackSamples = append([]float64(nil), t.state.BackSamples...)
	s.ShoulderSamples = append([]float64(nil), t.state.ShoulderSamples...)
	return s
}
