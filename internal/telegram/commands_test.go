package telegram

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/posturewatch/internal/models"
	"github.com/rewired-gh/posturewatch/internal/storage"
)

type fakeSessions map[string]models.SessionState

func (f fakeSessions) ActiveSessions() []string {
	ids := make([]string, 0, len(f))
	for id := range f {
		ids = append(ids, id)
	}
	return append(ids, "gone")
}

func (f fakeSessions) Snapshot(id string) (models.SessionState, error) {
	state, ok := f[id]
	if !ok {
		return models.SessionState{}, errors.New("session not found")
	}
	return state, nil
}

var day = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestCommandReply_Basic(t *testing.T) {
	c := &Client{}
	if got := c.commandReply("ping", "", day); got != "Pong" {
		t.Errorf("ping reply = %q, want Pong", got)
	}
	if got := c.commandReply("status", "", day); got != "Status unavailable" {
		t.Errorf("status without source = %q", got)
	}
	if got := c.commandReply("stats", "u-1", day); got != "Stats unavailable" {
		t.Errorf("stats without source = %q", got)
	}
	if got := c.commandReply("unknown", "", day); got != "" {
		t.Errorf("unknown command reply = %q, want empty", got)
	}
}

func TestCommandReply_Status(t *testing.T) {
	c := &Client{}
	c.SetSources(fakeSessions{
		"s-1": {
			Phase:          models.PhaseBadPending,
			History:        []bool{false, true, true, true},
			HistoryIndex:   1,
			FramesAnalyzed: 9,
		},
		"s-2": {},
	}, nil)

	got := c.commandReply("status", "", day)
	want := "Active sessions: 3\n" +
		"s-1 bad_pending, good 75%, 9 frames\n" +
		"  ███▁\n" +
		"s-2 good, good 100%, 0 frames"
	if got != want {
		t.Errorf("status reply = %q, want %q", got, want)
	}
}

func TestTrendLine_KeepsNewest(t *testing.T) {
	history := make([]bool, trendWidth+5)
	history[len(history)-1] = true

	got := []rune(trendLine(history))
	if len(got) != trendWidth {
		t.Fatalf("trend width = %d, want %d", len(got), trendWidth)
	}
	if got[len(got)-1] != '█' || got[0] != '▁' {
		t.Errorf("trend = %q", string(got))
	}
}

func seedStats(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(100, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	for i, badPct := range []float64{20, 50} {
		sess := &models.Session{
			ID:        "s-" + string(rune('1'+i)),
			UserID:    "u-1",
			StartTime: day.Add(time.Duration(i) * time.Hour),
		}
		if err := s.CreateSession(sess); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		sess.EndTime = sess.StartTime.Add(10 * time.Minute)
		sess.Summary = models.SessionSummary{
			BadPostureSeconds:    600 * badPct / 100,
			BadPosturePercentage: badPct,
		}
		sess.Score = sess.CalculateScore()
		if err := s.EndSession(sess); err != nil {
			t.Fatalf("EndSession: %v", err)
		}
	}
	if err := s.CreateSession(&models.Session{ID: "open", UserID: "u-1", StartTime: day.Add(3 * time.Hour)}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	for i, typ := range []string{models.AlertTypeNeck, models.AlertTypeNeck, models.AlertTypeBack} {
		alert := &models.Alert{
			ID:         "a-" + string(rune('1'+i)),
			SessionID:  "s-1",
			Type:       typ,
			Duration:   10 * time.Second,
			DetectedAt: day.Add(time.Minute),
		}
		if err := s.AddAlert(alert); err != nil {
			t.Fatalf("AddAlert: %v", err)
		}
	}
	if _, err := s.UpdateDailyStats("u-1", day); err != nil {
		t.Fatalf("UpdateDailyStats: %v", err)
	}
	return s
}

func TestCommandReply_Stats(t *testing.T) {
	c := &Client{}
	c.SetSources(nil, seedStats(t))
	now := day.Add(24 * time.Hour)

	if got := c.commandReply("stats", "  ", now); got != "Usage: /stats <user_id>" {
		t.Errorf("stats without user = %q", got)
	}
	if got := c.commandReply("stats", "u-9", now); got != "No finished sessions for u-9" {
		t.Errorf("stats for unknown user = %q", got)
	}

	got := c.commandReply("stats", " u-1 ", now)
	for _, want := range []string{
		"Stats for u-1",
		"Last 2 sessions: score avg 65.00, best 80.00, worst 50.00",
		"Alerts (7d): back 1, neck 2",
		"2026-03-02: 2 sessions, score 65.00, bad 35%, 3 alerts",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("stats reply missing %q:\n%s", want, got)
		}
	}
}

func TestCommandReply_StatsOutsideWindow(t *testing.T) {
	c := &Client{}
	c.SetSources(nil, seedStats(t))

	got := c.commandReply("stats", "u-1", day.Add(30*24*time.Hour))
	if !strings.Contains(got, "Alerts (7d): none") {
		t.Errorf("old alerts must fall outside the window:\n%s", got)
	}
	if strings.Contains(got, "2026-03-02:") {
		t.Errorf("old days must fall outside the window:\n%s", got)
	}
}
