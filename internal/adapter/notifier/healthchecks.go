// Package notifier delivers run status events to external sinks.
package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/semmidev/dockdump/internal/domain"
)

// Healthchecks pings a Healthchecks.io check. Start and success are GETs;
// log and fail POST the event message as the request body. All pings carry
// the run id so the service can pair start with the final status.
type Healthchecks struct {
	baseURL string
	client  *http.Client
}

func NewHealthchecks(baseURL string) (*Healthchecks, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("healthcheck url is required")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid healthcheck url: %w", err)
	}

	return &Healthchecks{
		baseURL: trimmed,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (h *Healthchecks) Notify(ctx context.Context, event domain.Event) error {
	var suffix string
	switch event.Kind {
	case domain.EventStart:
		suffix = "/start"
	case domain.EventSuccess:
	case domain.EventFail:
		suffix = "/fail"
	case domain.EventLog:
		suffix = "/log"
	default:
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}

	target := h.baseURL + suffix
	if event.RunID != "" {
		target += "?" + url.Values{"rid": {event.RunID}}.Encode()
	}

	method := http.MethodGet
	var body io.Reader
	if (event.Kind == domain.EventFail || event.Kind == domain.EventLog) && event.Message != "" {
		method = http.MethodPost
		body = strings.NewReader(event.Message)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping %s: %w", event.Kind, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ping %s: received non-success status: %s", event.Kind, resp.Status)
	}

	return nil
}
