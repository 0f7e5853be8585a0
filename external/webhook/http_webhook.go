package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/foxseedlab/sessiondesk/internal/webhook"
)

const (
	requestTimeout     = 10 * time.Second
	maxDeliveryAttempt = 4
	defaultBackoff     = time.Second
	maxRetryAfter      = 30 * time.Second
	userAgent          = "sessiondesk-webhook/1"
)

// HTTPSender posts JSON events to a single endpoint. Deliveries carry the
// session id as an idempotency key, so receivers can drop retried copies.
type HTTPSender struct {
	url     string
	client  *http.Client
	backoff time.Duration
}

func NewHTTPSender(webhookURL string) webhook.Sender {
	return &HTTPSender{
		url:     webhookURL,
		client:  &http.Client{Timeout: requestTimeout},
		backoff: defaultBackoff,
	}
}

type statusError struct {
	code       int
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.code)
}

func (s *HTTPSender) SendSessionFinished(ctx context.Context, payload webhook.SessionFinishedPayload) error {
	if s.url == "" {
		return nil
	}
	if payload.Event == "" {
		payload.Event = webhook.EventSessionFinished
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	wait := s.backoff
	for attempt := 1; ; attempt++ {
		err := s.deliver(ctx, payload.SessionID, body)
		if err == nil {
			return nil
		}
		retryAfter, retry := retryDelay(err)
		if !retry || attempt == maxDeliveryAttempt {
			return err
		}
		if retryAfter > 0 {
			wait = retryAfter
		}
		slog.Warn("webhook delivery failed; retrying",
			"error", err,
			"attempt", attempt,
			"wait", wait,
			"session_id", payload.SessionID,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}

func (s *HTTPSender) deliver(ctx context.Context, key string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &statusError{code: resp.StatusCode, retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
}

// retryDelay reports whether err is worth another attempt and how long the
// receiver asked us to wait (0 when it did not say).
func retryDelay(err error) (time.Duration, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var se *statusError
	if !errors.As(err, &se) {
		// transport failure
		return 0, true
	}
	if se.code == http.StatusTooManyRequests || se.code >= http.StatusInternalServerError {
		return se.retryAfter, true
	}
	return 0, false
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}
