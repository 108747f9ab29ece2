package collectors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
)

// checkedHeaders are probed in this order so the collected line stream, and
// therefore the scan, is deterministic.
var checkedHeaders = []string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Frame-Options",
	"X-Content-Type-Options",
	"Referrer-Policy",
	"Permissions-Policy",
}

// HeaderCollector performs the passive header probe for a header-scan job
// and renders the result as one line per checked header, e.g.
// "header Content-Security-Policy missing".
type HeaderCollector struct {
	Client *http.Client
}

func NewHeaderCollector() *HeaderCollector {
	return &HeaderCollector{Client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *HeaderCollector) Collect(ctx context.Context, job domain.Job) (io.ReadCloser, error) {
	target := job.InputRef
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "https://" + target
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %q: %w", target, err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", target, err)
	}
	defer resp.Body.Close()
	// Only the response headers matter; drain a little to reuse the
	// connection and drop the rest.
	_, _ = io.CopyN(io.Discard, resp.Body, 4096)

	var b strings.Builder
	fmt.Fprintf(&b, "target %s status %d\n", target, resp.StatusCode)
	for _, h := range checkedHeaders {
		state := "present"
		if resp.Header.Get(h) == "" {
			state = "missing"
		}
		fmt.Fprintf(&b, "header %s %s\n", h, state)
	}
	return io.NopCloser(strings.NewReader(b.String())), nil
}
