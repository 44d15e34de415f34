// Package httpfetch implements the plain HTTP fetch capability.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fentz26/taskforge/internal/connectors"
)

// Fetcher is a connectors.Fetcher over net/http.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// New creates a fetcher. A nil client uses http.DefaultClient.
func New(client *http.Client, userAgent string) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, userAgent: userAgent}
}

// Get fetches url and drains the body. Any completed response is a result,
// whatever its status; only transport failures and timeouts are errors.
func (f *Fetcher) Get(ctx context.Context, url string, timeout time.Duration) (*connectors.FetchResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &connectors.FetchResult{
		StatusCode: resp.StatusCode,
		Elapsed:    time.Since(start),
		ByteLength: n,
	}, nil
}

var _ connectors.Fetcher = (*Fetcher)(nil)
