package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/posturewatch/internal/logger"
	"github.com/rewired-gh/posturewatch/internal/models"
	"github.com/rewired-gh/posturewatch/internal/posture"
	"github.com/rewired-gh/posturewatch/internal/storage"
)

// Notifier receives alerts and finalized sessions. Failures are logged and
// never interrupt frame processing.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert models.Alert) error
	NotifySummary(ctx context.Context, session models.Session) error
}

type Config struct {
	AlertLatency time.Duration
	HistorySize  int
	QueueSize    int
}

func DefaultConfig() Config {
	return Config{
		AlertLatency: 10 * time.Second,
		HistorySize:  100,
		QueueSize:    32,
	}
}

const notifyTimeout = 5 * time.Second

type frameJob struct {
	frame []byte
	ts    time.Time
}

type activeSession struct {
	mu      sync.Mutex
	record  models.Session
	tracker *Tracker

	frames chan frameJob
	done   chan struct{}
	ending bool

	// ctx bounds detection for this session's frames; cancelled once the
	// session is finalized so the worker discards what is left.
	ctx    context.Context
	cancel context.CancelFunc
}

// Monitor owns the active sessions. Frames of one session are processed in
// arrival order by a dedicated worker; distinct sessions run concurrently.
type Monitor struct {
	storage   *storage.Storage
	evaluator *posture.Evaluator
	notifiers []Notifier
	config    Config

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*activeSession
}

func New(s *storage.Storage, evaluator *posture.Evaluator, config Config, notifiers ...Notifier) *Monitor {
	if config.QueueSize < 1 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		storage:   s,
		evaluator: evaluator,
		notifiers: notifiers,
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*activeSession),
	}
}

func (m *Monitor) trackerConfig() TrackerConfig {
	return TrackerConfig{
		AlertLatency: m.config.AlertLatency,
		HistorySize:  m.config.HistorySize,
	}
}

// StartSession creates and persists a new session for userID and starts its
// frame worker.
func (m *Monitor) StartSession(ctx context.Context, userID string, startedAt time.Time) (models.Session, error) {
	if err := ctx.Err(); err != nil {
		return models.Session{}, err
	}

	record := models.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		StartTime: startedAt,
	}
	if err := m.storage.CreateSession(&record); err != nil {
		return models.Session{}, fmt.Errorf("failed to create session: %w", err)
	}

	sctx, scancel := context.WithCancel(m.ctx)
	as := &activeSession{
		record:  record,
		tracker: NewTracker(record.ID, startedAt, m.trackerConfig()),
		frames:  make(chan frameJob, m.config.QueueSize),
		done:    make(chan struct{}),
		ctx:     sctx,
		cancel:  scancel,
	}

	m.mu.Lock()
	m.sessions[record.ID] = as
	m.mu.Unlock()

	go m.worker(as)

	logger.Info("Session %s started for user %s", record.ID, userID)
	return record, nil
}

func (m *Monitor) worker(as *activeSession) {
	defer close(as.done)
	for job := range as.frames {
		if as.ctx.Err() != nil {
			continue
		}
		if _, err := m.process(as.ctx, as, job.frame, job.ts); errors.Is(err, ErrSessionEnded) {
			logger.Debug("Discarding frame for finalized session %s", as.record.ID)
		}
	}
}

func (m *Monitor) lookup(sessionID string) (*activeSession, error) {
	m.mu.Lock()
	as, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		return as, nil
	}
	return nil, m.inactiveError(sessionID)
}

func (m *Monitor) inactiveError(sessionID string) error {
	record, err := m.storage.GetSession(sessionID)
	if err == nil && record.Ended() {
		return ErrSessionEnded
	}
	return ErrSessionNotFound
}

// Submit queues a frame for asynchronous processing. It never blocks: a full
// queue yields ErrQueueFull and the frame is dropped.
func (m *Monitor) Submit(sessionID string, frame []byte, ts time.Time) error {
	m.mu.Lock()
	as, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return m.inactiveError(sessionID)
	}
	if as.ending {
		m.mu.Unlock()
		return ErrSessionEnded
	}
	defer m.mu.Unlock()

	select {
	case as.frames <- frameJob{frame: frame, ts: ts}:
		return nil
	default:
		logger.Warn("Frame queue full for session %s, dropping frame", sessionID)
		return ErrQueueFull
	}
}

// ProcessFrame evaluates a frame synchronously and applies it to the session.
func (m *Monitor) ProcessFrame(ctx context.Context, sessionID string, frame []byte, ts time.Time) (posture.FrameResult, error) {
	as, err := m.lookup(sessionID)
	if err != nil {
		return posture.FrameResult{}, err
	}
	return m.process(ctx, as, frame, ts)
}

func (m *Monitor) process(ctx context.Context, as *activeSession, frame []byte, ts time.Time) (posture.FrameResult, error) {
	result := m.evaluator.Evaluate(ctx, frame)

	var event *models.AlertEvent
	var err error

	as.mu.Lock()
	switch result.Status {
	case posture.StatusFailed:
		logger.Warn("Frame evaluation failed for session %s: %v", as.record.ID, result.Err)
	case posture.StatusNotDetected:
		err = as.tracker.SkipFrame(ts)
	case posture.StatusAnalyzed:
		event, err = as.tracker.Update(result.Measurement, ts)
	}
	as.mu.Unlock()

	if err != nil {
		if errors.Is(err, ErrOutOfOrder) {
			logger.Debug("Dropping out-of-order frame for session %s at %v", as.record.ID, ts)
		}
		return result, err
	}

	if event != nil {
		m.raiseAlert(ctx, *event)
	}
	return result, nil
}

func (m *Monitor) raiseAlert(ctx context.Context, event models.AlertEvent) {
	alert := models.NewAlert(uuid.New().String(), event)
	logger.Info("Bad posture alert for session %s: %s after %v", alert.SessionID, alert.Type, alert.Duration)

	if err := m.storage.AddAlert(&alert); err != nil {
		logger.Error("Failed to store alert for session %s: %v", alert.SessionID, err)
	}
	for _, n := range m.notifiers {
		if err := n.NotifyAlert(ctx, alert); err != nil {
			logger.Warn("Failed to deliver alert notification: %v", err)
		}
	}
}

// EndSession drains the session's queue, finalizes its statistics and
// persists the result. If ctx expires before the queue is drained, pending
// detection is cancelled and the session is finalized with the frames
// processed so far. A zero endedAt ends the session at its last frame.
func (m *Monitor) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (models.Session, error) {
	m.mu.Lock()
	as, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return models.Session{}, m.inactiveError(sessionID)
	}
	if as.ending {
		m.mu.Unlock()
		return models.Session{}, ErrSessionEnded
	}
	as.ending = true
	close(as.frames)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.sessions, sessionID)
		m.mu.Unlock()
	}()

	select {
	case <-as.done:
	case <-ctx.Done():
		logger.Warn("Session %s queue not drained before deadline, discarding pending frames", sessionID)
	}
	as.cancel()

	as.mu.Lock()
	if endedAt.IsZero() {
		endedAt = as.tracker.Snapshot().LastFrameAt
	}
	if endedAt.Before(as.record.StartTime) {
		endedAt = as.record.StartTime
	}
	summary, err := as.tracker.Finalize(endedAt)
	state := as.tracker.Snapshot()
	as.mu.Unlock()
	if err != nil {
		return models.Session{}, err
	}

	record := as.record
	record.EndTime = endedAt
	record.Summary = summary
	record.Score = record.CalculateScore()
	record.FramesAnalyzed = state.FramesAnalyzed
	record.FramesMissed = state.FramesMissed

	logger.Info("Session %s ended: %.1fs bad posture (%.1f%%), %d alerts, score %.2f",
		record.ID, summary.BadPostureSeconds, summary.BadPosturePercentage, summary.AlertCount, record.Score)

	if err := m.storage.EndSession(&record); err != nil {
		return record, fmt.Errorf("failed to persist session %s: %w", record.ID, err)
	}

	// Notifications get their own budget when the caller's deadline is spent.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
	}
	if _, err := m.storage.UpdateDailyStats(record.UserID, record.StartTime); err != nil {
		logger.Warn("Failed to update daily stats for user %s: %v", record.UserID, err)
	}
	if err := m.storage.RotateSessions(); err != nil {
		logger.Warn("Failed to rotate sessions: %v", err)
	}

	for _, n := range m.notifiers {
		if err := n.NotifySummary(ctx, record); err != nil {
			logger.Warn("Failed to deliver session summary: %v", err)
		}
	}
	return record, nil
}

// Snapshot returns a copy of an active session's tracking state.
func (m *Monitor) Snapshot(sessionID string) (models.SessionState, error) {
	as, err := m.lookup(sessionID)
	if err != nil {
		return models.SessionState{}, err
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.tracker.Snapshot(), nil
}

// ActiveSessions returns the IDs of sessions that have not ended.
func (m *Monitor) ActiveSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id, as := range m.sessions {
		if !as.ending {
			ids = append(ids, id)
		}
	}
	return ids
}

// Shutdown ends every active session at the capture time of its last
// frame, since frame timestamps come from the device clock.
func (m *Monitor) Shutdown(ctx context.Context) {
	for _, id := range m.ActiveSessions() {
		if _, err := m.EndSession(ctx, id, time.Time{}); err != nil {
			logger.Warn("Failed to end session %s during shutdown: %v", id, err)
		}
	}
	m.cancel()
	logger.Info("Monitor shut down")
}
