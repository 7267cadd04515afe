// Package notify tells humans about detection results. A Manager formats
// the message once and hands it to every configured sink (Slack, generic
// webhook). Delivery is best effort: the outcome is a bool and never affects
// detection.
package notify

import (
	"context"
	"time"

	"change-watch/internal/config"
	"change-watch/internal/delta"
	"change-watch/internal/logger"
)

// Notifier is what the monitor calls after each cycle.
type Notifier interface {
	// SendChange reports the counts of one source. It reports true when
	// there is nothing to say.
	SendChange(ctx context.Context, counts delta.Counts, source string) bool
	// SendError reports a failure; source may be empty.
	SendError(ctx context.Context, errorType, message, source string) bool
}

// Manager fans a notification out to its sinks.
type Manager struct {
	sinks     []Sink
	formatter *Formatter
	log       logger.Logger
}

var _ Notifier = (*Manager)(nil)

// NewManager returns a Manager over sinks.
func NewManager(log logger.Logger, sinks ...Sink) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		sinks:     sinks,
		formatter: NewFormatter(),
		log:       log.With(logger.String("component", "notify")),
	}
}

// FromConfig builds the sinks enabled in cfg. A sink whose URL cannot be
// resolved is skipped with a warning.
func FromConfig(cfg config.NotificationsConfig, log logger.Logger) *Manager {
	m := NewManager(log)
	retry := RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
	}

	if cfg.Slack.Enabled {
		url, err := config.ResolveSecret(cfg.Slack.WebhookURL)
		if err != nil {
			m.log.Warn("slack notifications disabled", logger.Error(err))
		} else if s, err := NewSlackSink(SlackConfig{
			WebhookURL: url,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			IconEmoji:  cfg.Slack.IconEmoji,
			Timeout:    cfg.Slack.Timeout,
			Retry:      retry,
		}); err != nil {
			m.log.Warn("slack notifications disabled", logger.Error(err))
		} else {
			m.sinks = append(m.sinks, s)
		}
	}

	if cfg.Webhook.Enabled {
		url, err := config.ResolveSecret(cfg.Webhook.URL)
		if err != nil {
			m.log.Warn("webhook notifications disabled", logger.Error(err))
		} else if w, err := NewWebhookSink(WebhookConfig{
			URL:     url,
			Timeout: cfg.Webhook.Timeout,
			Retry:   retry,
		}); err != nil {
			m.log.Warn("webhook notifications disabled", logger.Error(err))
		} else {
			m.sinks = append(m.sinks, w)
		}
	}
	return m
}

// Enabled reports whether at least one sink is configured.
func (m *Manager) Enabled() bool { return len(m.sinks) > 0 }

// SendChange implements Notifier.
func (m *Manager) SendChange(ctx context.Context, counts delta.Counts, source string) bool {
	text := m.formatter.ChangeMessage(counts, source)
	if text == "" {
		m.log.Debug("no changes, nothing to notify", logger.String("source", source))
		return true
	}
	c := counts
	return m.dispatch(ctx, Event{
		Kind:   KindChange,
		Source: source,
		Text:   text,
		Counts: &c,
		Time:   time.Now().UTC(),
	})
}

// SendError implements Notifier.
func (m *Manager) SendError(ctx context.Context, errorType, message, source string) bool {
	return m.dispatch(ctx, Event{
		Kind:      KindError,
		Source:    source,
		Text:      m.formatter.ErrorMessage(errorType, message, source),
		ErrorType: errorType,
		Error:     message,
		Time:      time.Now().UTC(),
	})
}

// dispatch succeeds when at least one sink delivered the event.
func (m *Manager) dispatch(ctx context.Context, ev Event) bool {
	if len(m.sinks) == 0 {
		m.log.Warn("no notification sinks configured", logger.String("kind", ev.Kind))
		return false
	}
	delivered := 0
	for _, s := range m.sinks {
		if err := s.Send(ctx, ev); err != nil {
			m.log.Warn("notification failed",
				logger.String("sink", s.Name()),
				logger.String("kind", ev.Kind),
				logger.String("source", ev.Source),
				logger.Error(err))
			continue
		}
		delivered++
		m.log.Debug("notification sent", logger.String("sink", s.Name()), logger.String("kind", ev.Kind))
	}
	return delivered > 0
}
