package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/ports"
)

var (
	formTag   = regexp.MustCompile(`(?is)<form\b[^>]*>(.*?)</form>`)
	actionAtt = regexp.MustCompile(`(?i)action\s*=\s*["']([^"']*)["']`)
	methodAtt = regexp.MustCompile(`(?i)method\s*=\s*["']([^"']*)["']`)
	inputTag  = regexp.MustCompile(`(?i)<(input|textarea|select)\b`)
	passInput = regexp.MustCompile(`(?i)type\s*=\s*["']password["']`)
)

// CrawlCollector expands an interactive-scrape job's crawl spec into summary
// lines for the scan stage. The browser-driven crawl itself is a pluggable
// capability; this default performs a single rendered-free fetch of the
// start page and reports the form surface it can see statically.
type CrawlCollector struct {
	Uploads ports.UploadStore
	Client  *http.Client
}

func NewCrawlCollector(uploads ports.UploadStore) *CrawlCollector {
	return &CrawlCollector{Uploads: uploads, Client: &http.Client{Timeout: 30 * time.Second}}
}

func (c *CrawlCollector) Collect(ctx context.Context, job domain.Job) (io.ReadCloser, error) {
	id, err := uuid.Parse(job.InputRef)
	if err != nil {
		return nil, fmt.Errorf("invalid input ref %q: %w", job.InputRef, err)
	}
	raw, err := c.Uploads.GetUpload(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load crawl spec %s: %w", id, err)
	}
	var spec domain.CrawlSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("decode crawl spec: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.StartURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %q: %w", spec.StartURL, err)
	}
	if spec.UserAgent != "" {
		req.Header.Set("User-Agent", spec.UserAgent)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", spec.StartURL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", spec.StartURL, err)
	}

	return io.NopCloser(strings.NewReader(summarize(spec, string(body)))), nil
}

func summarize(spec domain.CrawlSpec, body string) string {
	forms := formTag.FindAllStringSubmatch(body, -1)

	var b strings.Builder
	fmt.Fprintf(&b, "crawl domain=%s pages=1 forms=%d user_agent=%q\n",
		registrable(spec.DomainToCheck), len(forms), spec.UserAgent)
	for _, m := range forms {
		full, inner := m[0], m[1]
		action := firstGroup(actionAtt, full)
		method := strings.ToLower(firstGroup(methodAtt, full))
		if method == "" {
			method = "get"
		}
		inputs := len(inputTag.FindAllString(inner, -1))
		kind := ""
		if passInput.MatchString(full) {
			kind = " login"
		}
		fmt.Fprintf(&b, "form action=%q method=%s inputs=%d%s\n", action, method, inputs, kind)
	}
	return b.String()
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

func registrable(host string) string {
	if r, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return r
	}
	return host
}
