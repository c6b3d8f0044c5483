package telegram

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/posturewatch/internal/logger"
	"github.com/rewired-gh/posturewatch/internal/models"
	"github.com/rewired-gh/posturewatch/internal/monitor"
)

// SessionSource exposes the live sessions reported by /status.
type SessionSource interface {
	ActiveSessions() []string
	Snapshot(sessionID string) (models.SessionState, error)
}

// StatsSource exposes the stored history reported by /stats.
type StatsSource interface {
	ListSessions(userID string, limit int) ([]*models.Session, error)
	AlertDistribution(userID string, since time.Time) (map[string]int, error)
	GetDailyStats(userID string, since time.Time) ([]models.DailyStats, error)
}

const (
	statsSessionLimit = 10
	statsWindow       = 7 * 24 * time.Hour
	trendWidth        = 20
)

// SetSources registers what /status and /stats report from. Either may be nil.
func (c *Client) SetSources(sessions SessionSource, stats StatsSource) {
	c.sessions = sessions
	c.stats = stats
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	reply := c.commandReply(msg.Command(), msg.CommandArguments(), time.Now())
	if reply == "" {
		return
	}
	if _, err := c.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		logger.Warn("Failed to reply to /%s: %v", msg.Command(), err)
	}
}

func (c *Client) commandReply(command, args string, now time.Time) string {
	switch command {
	case "ping":
		return "Pong"
	case "status":
		return c.statusReply()
	case "stats":
		return c.statsReply(strings.TrimSpace(args), now)
	}
	return ""
}

func (c *Client) statusReply() string {
	if c.sessions == nil {
		return "Status unavailable"
	}
	ids := c.sessions.ActiveSessions()
	sort.Strings(ids)

	var b strings.Builder
	fmt.Fprintf(&b, "Active sessions: %d", len(ids))
	for _, id := range ids {
		state, err := c.sessions.Snapshot(id)
		if err != nil {
			continue // ended since the listing
		}
		fmt.Fprintf(&b, "\n%s %s, good %.0f%%, %d frames",
			id, state.Phase, monitor.GoodRatio(&state)*100, state.FramesAnalyzed)
		if trend := trendLine(monitor.RecentHistory(&state)); trend != "" {
			fmt.Fprintf(&b, "\n  %s", trend)
		}
	}
	return b.String()
}

// trendLine renders the newest flags of a history, good as a full block.
func trendLine(history []bool) string {
	if len(history) > trendWidth {
		history = history[len(history)-trendWidth:]
	}
	var b strings.Builder
	for _, good := range history {
		if good {
			b.WriteRune('█')
		} else {
			b.WriteRune('▁')
		}
	}
	return b.String()
}

func (c *Client) statsReply(userID string, now time.Time) string {
	if c.stats == nil {
		return "Stats unavailable"
	}
	if userID == "" {
		return "Usage: /stats <user_id>"
	}

	sessions, err := c.stats.ListSessions(userID, statsSessionLimit)
	if err != nil {
		logger.Error("Failed to list sessions for %s: %v", userID, err)
		return "Failed to load stats"
	}
	var scores []float64
	for _, s := range sessions {
		if s.Ended() {
			scores = append(scores, s.Score)
		}
	}
	if len(scores) == 0 {
		return fmt.Sprintf("No finished sessions for %s", userID)
	}

	since := now.Add(-statsWindow)
	dist, err := c.stats.AlertDistribution(userID, since)
	if err != nil {
		logger.Error("Failed to load alert distribution for %s: %v", userID, err)
		return "Failed to load stats"
	}
	daily, err := c.stats.GetDailyStats(userID, since)
	if err != nil {
		logger.Error("Failed to load daily stats for %s: %v", userID, err)
		return "Failed to load stats"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stats for %s\n", userID)
	fmt.Fprintf(&b, "Last %d sessions: score avg %.2f, best %.2f, worst %.2f\n",
		len(scores), stat.Mean(scores, nil), floats.Max(scores), floats.Min(scores))
	b.WriteString("Alerts (7d): " + formatDistribution(dist))
	for _, d := range daily {
		bad := 0.0
		if d.TotalTime > 0 {
			bad = float64(d.BadPostureTime) / float64(d.TotalTime) * 100
		}
		fmt.Fprintf(&b, "\n%s: %d sessions, score %.2f, bad %.0f%%, %d alerts",
			d.Date, d.SessionCount, d.AverageScore, bad, d.AlertCount)
	}
	return b.String()
}

func formatDistribution(dist map[string]int) string {
	if len(dist) == 0 {
		return "none"
	}
	types := make([]string, 0, len(dist))
	for t := range dist {
		types = append(types, t)
	}
	sort.Strings(types)
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = fmt.Sprintf("%s %d", t, dist[t])
	}
	return strings.Join(parts, ", ")
}
