package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"change-watch/internal/config"
	"change-watch/internal/delta"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedFormatter() *Formatter {
	return &Formatter{now: func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }}
}

func TestFormatter_ChangeMessage(t *testing.T) {
	f := fixedFormatter()
	msg := f.ChangeMessage(delta.Counts{Added: 2, Changed: 1}, "vendor-docs")
	assert.Equal(t, "Changes detected\n\nSource: vendor-docs\nAdded: 2\nChanged: 1\nTime: 2024-03-01 09:30", msg)

	assert.Empty(t, f.ChangeMessage(delta.Counts{}, "vendor-docs"))
}

func TestFormatter_ErrorMessage(t *testing.T) {
	f := fixedFormatter()
	assert.Equal(t,
		"Error detected\n\nSource: feed\nType: analysis error\nDetail: boom\nTime: 2024-03-01 09:30",
		f.ErrorMessage("analysis error", "boom", "feed"))
	assert.NotContains(t, f.ErrorMessage("no data", "empty", ""), "Source:")
}

func TestSlackSink_Payload(t *testing.T) {
	var got slackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewSlackSink(SlackConfig{WebhookURL: srv.URL, Username: "cw", Channel: "#ops", IconEmoji: ":mag:"})
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), Event{Text: "hello"}))

	assert.Equal(t, slackPayload{Username: "cw", Channel: "#ops", Text: "hello", IconEmoji: ":mag:"}, got)
}

func TestSlackSink_Only200IsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := NewSlackSink(SlackConfig{WebhookURL: srv.URL})
	require.NoError(t, err)
	err = s.Send(context.Background(), Event{Text: "x"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNoContent, se.Code)
}

func TestWebhookSink_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var ev Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		if ev.Kind != KindChange {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w, err := NewWebhookSink(WebhookConfig{URL: srv.URL, Retry: RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond}})
	require.NoError(t, err)
	require.NoError(t, w.Send(context.Background(), Event{Kind: KindChange, Text: "x"}))
	assert.EqualValues(t, 3, calls.Load())
}

func TestWebhookSink_ClientErrorIsFinal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	w, err := NewWebhookSink(WebhookConfig{URL: srv.URL, Retry: RetryPolicy{MaxAttempts: 5, InitialInterval: time.Millisecond}})
	require.NoError(t, err)
	err = w.Send(context.Background(), Event{Text: "x"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "bad payload", se.Body)
	assert.EqualValues(t, 1, calls.Load())
}

type stubSink struct {
	name   string
	err    error
	events []Event
}

func (s *stubSink) Name() string { return s.name }
func (s *stubSink) Send(_ context.Context, ev Event) error {
	s.events = append(s.events, ev)
	return s.err
}

func TestManager_AtLeastOneSinkSucceeds(t *testing.T) {
	bad := &stubSink{name: "bad", err: errors.New("down")}
	good := &stubSink{name: "good"}
	m := NewManager(nil, bad, good)

	assert.True(t, m.SendChange(context.Background(), delta.Counts{Removed: 1}, "feed"))
	require.Len(t, good.events, 1)
	assert.Equal(t, KindChange, good.events[0].Kind)
	assert.Equal(t, 1, good.events[0].Counts.Removed)
	assert.True(t, strings.HasPrefix(good.events[0].Text, "Changes detected"))

	m = NewManager(nil, bad)
	assert.False(t, m.SendError(context.Background(), "system error", "x", "feed"))
}

func TestManager_NoChangesSendsNothing(t *testing.T) {
	sink := &stubSink{name: "s"}
	m := NewManager(nil, sink)
	assert.True(t, m.SendChange(context.Background(), delta.Counts{}, "feed"))
	assert.Empty(t, sink.events)
}

func TestManager_NoSinks(t *testing.T) {
	m := NewManager(nil)
	assert.False(t, m.Enabled())
	assert.False(t, m.SendError(context.Background(), "no data", "nothing found", ""))
}

func TestFromConfig(t *testing.T) {
	t.Setenv("CWTEST_SLACK", "https://hooks.example.test/slack")
	m := FromConfig(config.NotificationsConfig{
		Slack:   config.SlackConfig{Enabled: true, WebhookURL: "env:CWTEST_SLACK"},
		Webhook: config.WebhookConfig{Enabled: true, URL: "env:CWTEST_MISSING"},
	}, nil)
	require.Len(t, m.sinks, 1)
	assert.Equal(t, "slack", m.sinks[0].Name())
}
