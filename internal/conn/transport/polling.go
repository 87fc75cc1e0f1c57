package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxPollBody = 4 << 20 // 4MB

// HTTPPoller implements PullTransport over plain HTTP GET.
type HTTPPoller struct {
	client *http.Client
}

// NewHTTPPoller creates a pull transport with the given request timeout.
func NewHTTPPoller(timeout time.Duration) *HTTPPoller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPPoller{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch issues one GET against the endpoint and returns the body.
func (p *HTTPPoller) Fetch(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("poll request %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPollBody))
	if err != nil {
		return nil, fmt.Errorf("poll %s: read body: %w", endpoint, err)
	}
	return payload, nil
}
