package collectors

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/adapters/memory"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
)

func collect(t *testing.T, c interface {
	Collect(context.Context, domain.Job) (io.ReadCloser, error)
}, job domain.Job) string {
	t.Helper()
	rc, err := c.Collect(context.Background(), job)
	require.NoError(t, err)
	defer rc.Close()
	out, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(out)
}

func TestNewRegistry_CoversAllKinds(t *testing.T) {
	reg := NewRegistry(memory.New())
	for _, kind := range []domain.JobKind{domain.KindLogScan, domain.KindHeaderScan, domain.KindInteractiveScrape} {
		assert.Contains(t, reg, kind)
	}
}

func TestLogCollector_ReturnsUpload(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	id := uuid.New()
	require.NoError(t, store.PutUpload(ctx, id, []byte("line one\nline two\n")))

	c := &LogCollector{Uploads: store}
	out := collect(t, c, domain.Job{Kind: domain.KindLogScan, InputRef: id.String()})
	assert.Equal(t, "line one\nline two\n", out)
}

func TestLogCollector_BadRef(t *testing.T) {
	c := &LogCollector{Uploads: memory.New()}
	_, err := c.Collect(context.Background(), domain.Job{InputRef: "not-a-uuid"})
	assert.Error(t, err)

	_, err = c.Collect(context.Background(), domain.Job{InputRef: uuid.NewString()})
	assert.Error(t, err, "unknown upload id")
}

func TestHeaderCollector_ReportsHeaderState(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=63072000")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "<html></html>")
	}))
	defer ts.Close()

	c := &HeaderCollector{Client: &http.Client{Timeout: 5 * time.Second}}
	out := collect(t, c, domain.Job{Kind: domain.KindHeaderScan, InputRef: ts.URL})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1+len(checkedHeaders))
	assert.Contains(t, lines[0], "status 200")
	assert.Contains(t, out, "header Strict-Transport-Security present\n")
	assert.Contains(t, out, "header X-Content-Type-Options present\n")
	assert.Contains(t, out, "header Content-Security-Policy missing\n")
	assert.Contains(t, out, "header X-Frame-Options missing\n")
	assert.Contains(t, out, "header Referrer-Policy missing\n")
	assert.Contains(t, out, "header Permissions-Policy missing\n")

	// The probe order is stable.
	for i, h := range checkedHeaders {
		assert.True(t, strings.HasPrefix(lines[i+1], "header "+h+" "), "line %d: %s", i+1, lines[i+1])
	}
}

func TestHeaderCollector_UnreachableTarget(t *testing.T) {
	c := &HeaderCollector{Client: &http.Client{Timeout: time.Second}}
	_, err := c.Collect(context.Background(), domain.Job{InputRef: "http://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestCrawlCollector_SummarizesForms(t *testing.T) {
	const page = `<html><body>
<form action="/search" method="get"><input name="q"></form>
<form action="/login" method="POST">
  <input name="user"><input type="password" name="pass"><input type="submit">
</form>
</body></html>`

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "audit-bot/1.0", r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, page)
	}))
	defer ts.Close()

	ctx := context.Background()
	store := memory.New()
	spec := domain.CrawlSpec{StartURL: ts.URL, DomainToCheck: "example.com", MaxPages: 5, UserAgent: "audit-bot/1.0"}
	raw, err := json.Marshal(spec)
	require.NoError(t, err)
	specID := uuid.New()
	require.NoError(t, store.PutUpload(ctx, specID, raw))

	c := &CrawlCollector{Uploads: store, Client: &http.Client{Timeout: 5 * time.Second}}
	out := collect(t, c, domain.Job{Kind: domain.KindInteractiveScrape, InputRef: specID.String()})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `crawl domain=example.com pages=1 forms=2 user_agent="audit-bot/1.0"`, lines[0])
	assert.Equal(t, `form action="/search" method=get inputs=1`, lines[1])
	assert.Equal(t, `form action="/login" method=post inputs=3 login`, lines[2])
}

func TestCrawlCollector_BadSpec(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	specID := uuid.New()
	require.NoError(t, store.PutUpload(ctx, specID, []byte("{not json")))

	c := &CrawlCollector{Uploads: store, Client: &http.Client{Timeout: time.Second}}
	_, err := c.Collect(ctx, domain.Job{InputRef: specID.String()})
	assert.Error(t, err)
}

func TestSummarize_NoForms(t *testing.T) {
	out := summarize(domain.CrawlSpec{DomainToCheck: "sub.example.com", UserAgent: "ua"}, "<html><p>static</p></html>")
	assert.Equal(t, "crawl domain=example.com pages=1 forms=0 user_agent=\"ua\"\n", out)
}
