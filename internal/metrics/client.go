package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client pulls snapshots from a vLLM style /metrics endpoint.
type Client struct {
	url     string
	http    *http.Client
	retries uint64
}

func NewClient(url string, timeout time.Duration, retries int) *Client {
	if retries < 0 {
		retries = 0
	}

	return &Client{
		url: url,
		http: &http.Client{
			Timeout: timeout,
		},
		retries: uint64(retries),
	}
}

// Fetch reads the endpoint once and parses the result. Transient failures are
// retried with a short constant backoff, bounded by ctx. A non-nil snapshot
// may come back together with a non-nil error when some metric families
// failed to parse; the snapshot is usable, the error says what is missing.
func (c *Client) Fetch(ctx context.Context) (*Snapshot, error) {
	var snapshot *Snapshot
	var parseErr error

	fetch := func() error {
		s, err := c.fetchOnce(ctx)
		if s == nil {
			return err
		}

		snapshot = s
		parseErr = err
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), c.retries), ctx)
	if err := backoff.Retry(fetch, b); err != nil {
		return nil, err
	}

	return snapshot, parseErr
}

func (c *Client) fetchOnce(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metrics from %s: %w", c.url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from %s: %v", c.url, resp.StatusCode)
	}

	// partial parses still carry usable counters; the error rides along
	return ParseSnapshot(resp.Body, time.Now())
}
