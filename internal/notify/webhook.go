package notify

import (
	"context"
	"errors"
	"time"
)

// WebhookConfig configures a WebhookSink.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	Retry   RetryPolicy
}

// WebhookSink posts the whole Event as JSON to an arbitrary endpoint. Any
// 2xx answer counts as delivered.
type WebhookSink struct {
	url string
	p   *poster
}

// NewWebhookSink validates cfg and returns the sink.
func NewWebhookSink(cfg WebhookConfig) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook: url is required")
	}
	return &WebhookSink{
		url: cfg.URL,
		p: &poster{
			client: newHTTPClient(cfg.Timeout),
			retry:  cfg.Retry,
			accept: func(code int) bool { return code >= 200 && code < 300 },
		},
	}, nil
}

// Name implements Sink.
func (w *WebhookSink) Name() string { return "webhook" }

// Send implements Sink.
func (w *WebhookSink) Send(ctx context.Context, ev Event) error {
	return w.p.post(ctx, w.url, ev)
}
