package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"change-watch/internal/delta"
)

// Event kinds.
const (
	KindChange = "change"
	KindError  = "error"
)

// Event is what a sink delivers.
type Event struct {
	Kind      string        `json:"kind"`
	Source    string        `json:"source,omitempty"`
	Text      string        `json:"text"`
	Counts    *delta.Counts `json:"counts,omitempty"`
	ErrorType string        `json:"error_type,omitempty"`
	Error     string        `json:"error,omitempty"`
	Time      time.Time     `json:"time"`
}

// Sink delivers events to one platform.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// RetryPolicy bounds delivery attempts.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
}

// StatusError is returned when the endpoint answers with an unexpected status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// poster sends JSON bodies with retries. Network errors, 429 and 5xx are
// retried; any other rejected status is final.
type poster struct {
	client *http.Client
	retry  RetryPolicy
	accept func(code int) bool
}

func (p *poster) post(ctx context.Context, url string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	op := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		if p.accept(resp.StatusCode) {
			return struct{}{}, nil
		}
		serr := &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return struct{}{}, serr
		}
		return struct{}{}, backoff.Permanent(serr)
	}

	b := backoff.NewExponentialBackOff()
	if p.retry.InitialInterval > 0 {
		b.InitialInterval = p.retry.InitialInterval
	}
	attempts := p.retry.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	_, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(attempts))
	return err
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
