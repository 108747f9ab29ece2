package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
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
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/progress"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/services/analyzer"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store, *progress.Hub) {
	t.Helper()
	store := memory.New()
	hub := progress.NewHub()
	srv := New(analyzer.New(store, store, hub), hub, true)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, store, hub
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestHealth_DegradedWithoutGenerator(t *testing.T) {
	store := memory.New()
	hub := progress.NewHub()
	srv := New(analyzer.New(store, store, hub), hub, false)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "degraded", body["status"])
}

func TestStartLogAnalysis(t *testing.T) {
	ts, store, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "access.log")
	require.NoError(t, err)
	_, err = io.WriteString(fw, "192.168.1.1 - - \"GET / HTTP/1.1\" 200 5\n")
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("log_type", "nginx"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/analyze", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	var body map[string]string
	decodeBody(t, resp, &body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	jobID, err := uuid.Parse(body["job_id"])
	require.NoError(t, err)
	job, err := store.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.KindLogScan, job.Kind)
	assert.Equal(t, domain.SourceNginx, job.SourceFormat)
	assert.Equal(t, domain.StatusQueued, job.Status)
}

func TestStartLogAnalysis_MissingFile(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("log_type", "nginx"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/analyze", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartLogAnalysis_BadFormat(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "a.log")
	require.NoError(t, err)
	_, err = io.WriteString(fw, "line\n")
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("log_type", "syslog"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/analyze", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["detail"], "unsupported log format")
}

func TestStartHeaderScan(t *testing.T) {
	ts, store, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/scan-website-headers", map[string]string{"url": "example.com"})
	var body map[string]string
	decodeBody(t, resp, &body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	jobID, err := uuid.Parse(body["job_id"])
	require.NoError(t, err)
	job, err := store.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.KindHeaderScan, job.Kind)
	assert.Equal(t, "https://example.com", job.InputRef)
}

func TestStartHeaderScan_BadTarget(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/scan-website-headers", map[string]string{"url": ""})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartCrawl(t *testing.T) {
	ts, store, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/scrape", domain.CrawlSpec{StartURL: "example.com"})
	var body map[string]string
	decodeBody(t, resp, &body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	jobID, err := uuid.Parse(body["job_id"])
	require.NoError(t, err)
	job, err := store.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.KindInteractiveScrape, job.Kind)
}

func TestJobSnapshot(t *testing.T) {
	ts, store, _ := newTestServer(t)
	ctx := context.Background()

	job := &domain.Job{ID: uuid.New(), Kind: domain.KindLogScan, Status: domain.StatusQueued, CreatedAt: time.Now()}
	require.NoError(t, store.Submit(ctx, job))
	require.NoError(t, store.AppendProgress(ctx, domain.ProgressEvent{JobID: job.ID, Stage: domain.StageReceived, EmittedAt: time.Now()}))

	resp, err := http.Get(ts.URL + "/jobs/" + job.ID.String())
	require.NoError(t, err)
	var snap domain.Snapshot
	decodeBody(t, resp, &snap)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, job.ID, snap.Job.ID)
	require.Len(t, snap.Progress, 1)
	assert.Equal(t, domain.StageReceived, snap.Progress[0].Stage)
}

func TestJobSnapshot_NotFound(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/jobs/" + uuid.NewString())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobSnapshot_InvalidID(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/jobs/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelJob(t *testing.T) {
	ts, store, _ := newTestServer(t)
	ctx := context.Background()

	job := &domain.Job{ID: uuid.New(), Kind: domain.KindLogScan, Status: domain.StatusQueued, CreatedAt: time.Now()}
	require.NoError(t, store.Submit(ctx, job))

	resp, err := http.Post(ts.URL+"/jobs/"+job.ID.String()+"/cancel", "application/json", nil)
	require.NoError(t, err)
	var body map[string]bool
	decodeBody(t, resp, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body["cancelled_now"])

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestDownloadReport(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/download-report", map[string]string{
		"markdown_content": "## Findings\nAn **important** detail.",
		"title":            "Scan Result",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "SecurityReport.html")

	doc, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "<title>Scan Result</title>")
	assert.Contains(t, string(doc), "<b>important</b>")
}

func TestStreamResults_TerminalJobEndsImmediately(t *testing.T) {
	ts, store, _ := newTestServer(t)
	ctx := context.Background()

	job := &domain.Job{ID: uuid.New(), Kind: domain.KindLogScan, Status: domain.StatusQueued, CreatedAt: time.Now()}
	require.NoError(t, store.Submit(ctx, job))
	_, ok, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.MarkCompleted(ctx, job.ID, &domain.Report{Summary: "done"}))

	resp, err := http.Get(ts.URL + "/stream-results/" + job.ID.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "event: end")
	assert.Contains(t, body, `"summary":"done"`)
}

func TestStreamResults_PushesUpdatesUntilTerminal(t *testing.T) {
	ts, store, hub := newTestServer(t)
	ctx := context.Background()

	job := &domain.Job{ID: uuid.New(), Kind: domain.KindLogScan, Status: domain.StatusQueued, CreatedAt: time.Now()}
	require.NoError(t, store.Submit(ctx, job))

	done := make(chan string, 1)
	go func() {
		resp, err := http.Get(ts.URL + "/stream-results/" + job.ID.String())
		if err != nil {
			done <- "error: " + err.Error()
			return
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		done <- string(raw)
	}()

	// Give the subscriber time to attach before publishing.
	time.Sleep(100 * time.Millisecond)
	for _, stage := range []domain.ProgressStage{domain.StageScanning, domain.StageDone} {
		ev := domain.ProgressEvent{JobID: job.ID, Stage: stage, EmittedAt: time.Now()}
		require.NoError(t, store.AppendProgress(ctx, ev))
		hub.Publish(ev)
	}

	select {
	case body := <-done:
		assert.True(t, strings.Contains(body, "event: update"), "body: %s", body)
		assert.Contains(t, body, `"stage":"scanning"`)
		assert.Contains(t, body, "event: end")
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate")
	}
}

func TestStreamResults_EndsWhenQueuedJobCancelled(t *testing.T) {
	ts, store, _ := newTestServer(t)
	ctx := context.Background()

	job := &domain.Job{ID: uuid.New(), Kind: domain.KindLogScan, Status: domain.StatusQueued, CreatedAt: time.Now()}
	require.NoError(t, store.Submit(ctx, job))

	done := make(chan string, 1)
	go func() {
		resp, err := http.Get(ts.URL + "/stream-results/" + job.ID.String())
		if err != nil {
			done <- "error: " + err.Error()
			return
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		done <- string(raw)
	}()

	// Give the subscriber time to attach before cancelling.
	time.Sleep(100 * time.Millisecond)
	resp, err := http.Post(ts.URL+"/jobs/"+job.ID.String()+"/cancel", "application/json", nil)
	require.NoError(t, err)
	var body map[string]bool
	decodeBody(t, resp, &body)
	require.True(t, body["cancelled_now"])

	// A queued job never reaches a worker, so the cancel itself must
	// push the terminal event that closes the stream.
	select {
	case stream := <-done:
		assert.Contains(t, stream, `"stage":"error"`)
		assert.Contains(t, stream, `"detail":"cancelled"`)
		assert.Contains(t, stream, "event: end")
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate after cancel")
	}
}

func TestStreamResults_UnknownJob(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/stream-results/" + uuid.NewString())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
