package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

const channelMention = "<!channel>"

// SlackNotifier posts plain text messages to a Slack incoming webhook.
type SlackNotifier struct {
	client       *resty.Client
	webhookURL   string
	wholeChannel bool
}

func NewSlackNotifier(webhookURL string, wholeChannel bool) *SlackNotifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json")

	return &SlackNotifier{
		client:       client,
		webhookURL:   webhookURL,
		wholeChannel: wholeChannel,
	}
}

// Notify sends msg. Without a webhook URL the message is only logged.
func (n *SlackNotifier) Notify(ctx context.Context, msg string) error {
	if n.wholeChannel && !strings.Contains(msg, channelMention) {
		msg = channelMention + " " + msg
	}

	if n.webhookURL == "" {
		log.Info().Str("message", msg).Msg("Slack webhook not configured, skipping notification")
		return nil
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": msg}).
		Post(n.webhookURL)
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("slack webhook returned %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}

	log.Debug().Str("message", msg).Msg("Slack notification sent")
	return nil
}
