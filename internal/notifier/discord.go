package notifier

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Discord limits
const (
	MaxEmbedDescription = 4096
	embedColor          = 0x00ff00
)

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds"`
}

// DiscordNotifier posts the report as a Discord webhook embed
type DiscordNotifier struct {
	httpClient *resty.Client
	webhookURL string
	logger     *zap.Logger
	now        func() time.Time
}

// NewDiscordNotifier creates a notifier. An empty webhookURL makes every delivery a logged skip.
func NewDiscordNotifier(webhookURL string, timeout time.Duration, logger *zap.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &DiscordNotifier{
		httpClient: client,
		webhookURL: webhookURL,
		logger:     logger,
		now:        time.Now,
	}
}

var _ Notifier = (*DiscordNotifier)(nil)

func (n *DiscordNotifier) Deliver(ctx context.Context, text string) Delivery {
	at := n.now().UTC()
	d := Delivery{Channel: "discord", At: at}

	if n.webhookURL == "" {
		n.logger.Warn("DISCORD_WEBHOOK_URL not set, skipping delivery")
		d.Status = StatusSkipped
		return d
	}

	msg := discordMessage{Embeds: []discordEmbed{{
		Title:       ReportTitle,
		Description: truncateRunes(text, MaxEmbedDescription),
		Color:       embedColor,
		Timestamp:   at.Format(time.RFC3339),
	}}}

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(msg).
		Post(n.webhookURL)

	if err != nil {
		n.logger.Error("Discord webhook call failed", zap.Error(err))
		d.Status = StatusFailed
		d.Err = fmt.Errorf("failed to call Discord webhook: %w", err)
		return d
	}

	d.StatusCode = resp.StatusCode()
	if resp.IsError() {
		n.logger.Error("Discord webhook returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", truncateRunes(resp.String(), 512)),
		)
		d.Status = StatusFailed
		d.Err = fmt.Errorf("Discord webhook error: status %d", resp.StatusCode())
		return d
	}

	n.logger.Info("Report delivered to Discord", zap.Int("status_code", resp.StatusCode()))
	d.Status = StatusDelivered
	return d
}

// truncateRunes cuts s to at most limit characters, marking the cut with an ellipsis.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
