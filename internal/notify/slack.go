package notify

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// SlackConfig configures a SlackSink.
type SlackConfig struct {
	WebhookURL string
	Channel    string
	Username   string
	IconEmoji  string
	Timeout    time.Duration
	Retry      RetryPolicy
}

// SlackSink posts events to a Slack incoming webhook. Only HTTP 200 counts
// as delivered.
type SlackSink struct {
	cfg SlackConfig
	p   *poster
}

type slackPayload struct {
	Username  string `json:"username,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Text      string `json:"text"`
	IconEmoji string `json:"icon_emoji,omitempty"`
}

// NewSlackSink validates cfg and returns the sink.
func NewSlackSink(cfg SlackConfig) (*SlackSink, error) {
	if cfg.WebhookURL == "" {
		return nil, errors.New("slack: webhook url is required")
	}
	return &SlackSink{
		cfg: cfg,
		p: &poster{
			client: newHTTPClient(cfg.Timeout),
			retry:  cfg.Retry,
			accept: func(code int) bool { return code == http.StatusOK },
		},
	}, nil
}

// Name implements Sink.
func (s *SlackSink) Name() string { return "slack" }

// Send implements Sink.
func (s *SlackSink) Send(ctx context.Context, ev Event) error {
	return s.p.post(ctx, s.cfg.WebhookURL, slackPayload{
		Username:  s.cfg.Username,
		Channel:   s.cfg.Channel,
		Text:      ev.Text,
		IconEmoji: s.cfg.IconEmoji,
	})
}
