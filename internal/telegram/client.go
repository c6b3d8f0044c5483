// Package telegram provides a client for sending posture notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/posturewatch/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration

	sessions SessionSource
	stats    StatsSource
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a detector error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(ctx context.Context, cause error) error {
	text := fmt.Sprintf("⚠️ *Pose detector error*\n`%s`", escapeMarkdownV2(cause.Error()))
	return c.sendMarkdownV2(ctx, text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(ctx context.Context, failureCount int) error {
	text := fmt.Sprintf("✅ *Pose detector recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(ctx, text)
}

// NotifyAlert sends a bad-posture alert.
func (c *Client) NotifyAlert(ctx context.Context, alert models.Alert) error {
	return c.sendMarkdownV2(ctx, formatAlert(alert))
}

// NotifySummary sends the summary of an ended session.
func (c *Client) NotifySummary(ctx context.Context, session models.Session) error {
	return c.sendMarkdownV2(ctx, formatSummary(session))
}

var alertHeadlines = map[string]string{
	models.AlertTypeNeck:      "Head tilted forward",
	models.AlertTypeBack:      "Back hunched",
	models.AlertTypeShoulders: "Shoulders misaligned",
	models.AlertTypeMultiple:  "Several posture problems",
}

func formatAlert(alert models.Alert) string {
	headline, ok := alertHeadlines[alert.Type]
	if !ok {
		headline = alert.Type
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🚨 *%s*\n", escapeMarkdownV2(headline))
	fmt.Fprintf(&b, "⏱ Bad posture for %s\n",
		escapeMarkdownV2(alert.Duration.Round(time.Second).String()))
	fmt.Fprintf(&b, "   Neck: %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f°", alert.NeckAngle)))
	fmt.Fprintf(&b, "   Back: %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f°", alert.BackAngle)))
	fmt.Fprintf(&b, "   Shoulders: %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f", alert.ShoulderDiff)))
	fmt.Fprintf(&b, "📅 %s", escapeMarkdownV2(alert.DetectedAt.Format("2006-01-02 15:04:05")))
	return b.String()
}

func formatSummary(session models.Session) string {
	s := session.Summary

	var b strings.Builder
	b.WriteString("📊 *Session summary*\n\n")
	fmt.Fprintf(&b, "Duration: %s\n", escapeMarkdownV2(session.Duration().Round(time.Second).String()))
	fmt.Fprintf(&b, "Score: *%s*\n", escapeMarkdownV2(fmt.Sprintf("%.2f", session.Score)))
	fmt.Fprintf(&b, "Bad posture: %s \\(%s\\)\n",
		escapeMarkdownV2(fmt.Sprintf("%.0fs", s.BadPostureSeconds)),
		escapeMarkdownV2(fmt.Sprintf("%.1f%%", s.BadPosturePercentage)))
	fmt.Fprintf(&b, "Alerts: %d\n", s.AlertCount)
	fmt.Fprintf(&b, "Averages: neck %s, back %s, shoulders %s",
		escapeMarkdownV2(fmt.Sprintf("%.1f°", s.AvgNeckAngle)),
		escapeMarkdownV2(fmt.Sprintf("%.1f°", s.AvgBackAngle)),
		escapeMarkdownV2(fmt.Sprintf("%.1f", s.AvgShoulderDiff)))
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
