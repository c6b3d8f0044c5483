// Package storage provides SQLite-backed persistence for sessions, alerts, and daily statistics.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/posturewatch/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

const dayLayout = "2006-01-02"

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db          *sql.DB
	maxSessions int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/posturewatch/data.db.
func New(maxSessions int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "posturewatch", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxSessions: maxSessions}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id                 TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL,
			start_day          TEXT NOT NULL,
			start_time         INTEGER NOT NULL,
			end_time           INTEGER NOT NULL DEFAULT 0,
			bad_posture_secs   REAL NOT NULL DEFAULT 0,
			bad_posture_pct    REAL NOT NULL DEFAULT 0,
			alert_count        INTEGER NOT NULL DEFAULT 0,
			avg_neck_angle     REAL NOT NULL DEFAULT 0,
			avg_back_angle     REAL NOT NULL DEFAULT 0,
			avg_shoulder_diff  REAL NOT NULL DEFAULT 0,
			score              REAL NOT NULL DEFAULT 0,
			frames_analyzed    INTEGER NOT NULL DEFAULT 0,
			frames_missed      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id              TEXT PRIMARY KEY,
			session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			alert_type      TEXT NOT NULL,
			neck_angle      REAL NOT NULL,
			back_angle      REAL NOT NULL,
			shoulder_diff   REAL NOT NULL,
			duration        INTEGER NOT NULL,
			detected_at     INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS daily_stats (
			user_id          TEXT NOT NULL,
			day              TEXT NOT NULL,
			total_time       INTEGER NOT NULL DEFAULT 0,
			bad_posture_time INTEGER NOT NULL DEFAULT 0,
			session_count    INTEGER NOT NULL DEFAULT 0,
			alert_count      INTEGER NOT NULL DEFAULT 0,
			average_score    REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, day)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_start ON sessions(user_id, start_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_day ON sessions(user_id, start_day)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_session ON alerts(session_id, detected_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateSession inserts a newly started session.
func (s *Storage) CreateSession(session *models.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, user_id, start_day, start_time)
		VALUES (?,?,?,?)`,
		session.ID, session.UserID, session.StartTime.Format(dayLayout), session.StartTime.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// EndSession stores the end time, summary, and score of a finalized session.
func (s *Storage) EndSession(session *models.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	if !session.Ended() {
		return fmt.Errorf("session %s has no end time", session.ID)
	}
	sum := session.Summary
	res, err := s.db.Exec(`
		UPDATE sessions SET
			end_time=?, bad_posture_secs=?, bad_posture_pct=?, alert_count=?,
			avg_neck_angle=?, avg_back_angle=?, avg_shoulder_diff=?, score=?,
			frames_analyzed=?, frames_missed=?
		WHERE id=?`,
		session.EndTime.UnixNano(), sum.BadPostureSeconds, sum.BadPosturePercentage, sum.AlertCount,
		sum.AvgNeckAngle, sum.AvgBackAngle, sum.AvgShoulderDiff, session.Score,
		session.FramesAnalyzed, session.FramesMissed,
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s: %w", session.ID, ErrNotFound)
	}
	return nil
}

// GetSession returns the session with the given id.
func (s *Storage) GetSession(id string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// ListSessions returns a user's most recent sessions, newest first.
func (s *Storage) ListSessions(userID string, limit int) ([]*models.Session, error) {
	rows, err := s.db.Query(`SELECT `+sessionCols+` FROM sessions
		WHERE user_id = ? ORDER BY start_time DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	sessions := []*models.Session{}
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// AddAlert inserts an alert for an existing session.
func (s *Storage) AddAlert(alert *models.Alert) error {
	_, err := s.db.Exec(`
		INSERT INTO alerts
			(id, session_id, alert_type, neck_angle, back_angle, shoulder_diff, duration, detected_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		alert.ID, alert.SessionID, alert.Type,
		alert.NeckAngle, alert.BackAngle, alert.ShoulderDiff,
		int64(alert.Duration), alert.DetectedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetAlerts returns a session's alerts, oldest first.
func (s *Storage) GetAlerts(sessionID string) ([]models.Alert, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, alert_type, neck_angle, back_angle, shoulder_diff, duration, detected_at
		FROM alerts WHERE session_id = ? ORDER BY detected_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var durationNano, detectedAtNano int64

		err := rows.Scan(
			&a.ID, &a.SessionID, &a.Type,
			&a.NeckAngle, &a.BackAngle, &a.ShoulderDiff,
			&durationNano, &detectedAtNano,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		a.Duration = time.Duration(durationNano)
		a.DetectedAt = time.Unix(0, detectedAtNano)
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// AlertDistribution counts a user's alerts by type for sessions started at
// or after since.
func (s *Storage) AlertDistribution(userID string, since time.Time) (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT a.alert_type, COUNT(*)
		FROM alerts a JOIN sessions s ON s.id = a.session_id
		WHERE s.user_id = ? AND s.start_time >= ?
		GROUP BY a.alert_type`, userID, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query alert distribution: %w", err)
	}
	defer rows.Close()

	dist := make(map[string]int)
	for rows.Next() {
		var alertType string
		var count int
		if err := rows.Scan(&alertType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan alert distribution: %w", err)
		}
		dist[alertType] = count
	}
	return dist, rows.Err()
}

// UpdateDailyStats recomputes a user's statistics for the calendar day of
// day from the ended sessions started on that day.
func (s *Storage) UpdateDailyStats(userID string, day time.Time) (*models.DailyStats, error) {
	key := day.Format(dayLayout)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stats := models.DailyStats{UserID: userID, Date: key}
	var totalNano, badSecs float64
	err = tx.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(end_time - start_time), 0),
		       COALESCE(SUM(bad_posture_secs), 0),
		       COALESCE(AVG(score), 0)
		FROM sessions
		WHERE user_id = ? AND start_day = ? AND end_time > 0`, userID, key,
	).Scan(&stats.SessionCount, &totalNano, &badSecs, &stats.AverageScore)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sessions: %w", err)
	}
	stats.TotalTime = time.Duration(totalNano)
	stats.BadPostureTime = time.Duration(badSecs * float64(time.Second))

	err = tx.QueryRow(`
		SELECT COUNT(*)
		FROM alerts a JOIN sessions s ON s.id = a.session_id
		WHERE s.user_id = ? AND s.start_day = ? AND s.end_time > 0`, userID, key,
	).Scan(&stats.AlertCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO daily_stats
			(user_id, day, total_time, bad_posture_time, session_count, alert_count, average_score)
		VALUES (?,?,?,?,?,?,?)`,
		stats.UserID, stats.Date, int64(stats.TotalTime), int64(stats.BadPostureTime),
		stats.SessionCount, stats.AlertCount, stats.AverageScore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save daily stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit daily stats: %w", err)
	}
	return &stats, nil
}

// GetDailyStats returns a user's daily statistics from since onward, oldest first.
func (s *Storage) GetDailyStats(userID string, since time.Time) ([]models.DailyStats, error) {
	rows, err := s.db.Query(`
		SELECT user_id, day, total_time, bad_posture_time, session_count, alert_count, average_score
		FROM daily_stats WHERE user_id = ? AND day >= ? ORDER BY day ASC`,
		userID, since.Format(dayLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var out []models.DailyStats
	for rows.Next() {
		var d models.DailyStats
		var totalNano, badNano int64
		if err := rows.Scan(&d.UserID, &d.Date, &totalNano, &badNano, &d.SessionCount, &d.AlertCount, &d.AverageScore); err != nil {
			return nil, fmt.Errorf("failed to scan daily stats: %w", err)
		}
		d.TotalTime = time.Duration(totalNano)
		d.BadPostureTime = time.Duration(badNano)
		out = append(out, d)
	}
	return out, rows.Err()
}

// RotateSessions keeps at most maxSessions ended sessions, newest by start time.
// Cascading deletes remove associated alerts. Open sessions are never rotated.
func (s *Storage) RotateSessions() error {
	_, err := s.db.Exec(`
		DELETE FROM sessions WHERE end_time > 0 AND id NOT IN (
			SELECT id FROM sessions WHERE end_time > 0 ORDER BY start_time DESC LIMIT ?
		)`, s.maxSessions)
	if err != nil {
		return fmt.Errorf("failed to rotate sessions: %w", err)
	}
	return nil
}

const sessionCols = `id, user_id, start_time, end_time, bad_posture_secs, bad_posture_pct,
	alert_count, avg_neck_angle, avg_back_angle, avg_shoulder_diff, score,
	frames_analyzed, frames_missed`

func scanSession(scan func(...any) error) (*models.Session, error) {
	var m models.Session
	var startNano, endNano int64
	err := scan(
		&m.ID, &m.UserID, &startNano, &endNano,
		&m.Summary.BadPostureSeconds, &m.Summary.BadPosturePercentage, &m.Summary.AlertCount,
		&m.Summary.AvgNeckAngle, &m.Summary.AvgBackAngle, &m.Summary.AvgShoulderDiff,
		&m.Score, &m.FramesAnalyzed, &m.FramesMissed,
	)
	if err != nil {
		return nil, err
	}
	m.StartTime = time.Unix(0, startNano)
	if endNano > 0 {
		m.EndTime = time.Unix(0, endNano)
	}
	return &m, nil
}
