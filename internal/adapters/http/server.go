// Package httpadapter exposes the ingestion, status and export boundaries
// over HTTP.
package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/export"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/progress"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/services/analyzer"
)

// maxUploadBytes caps a single log upload.
const maxUploadBytes = 64 << 20

type Server struct {
	analyzer *analyzer.Service
	hub      *progress.Hub

	// generatorReady reports whether a real generative collaborator is
	// configured; the health endpoint surfaces degraded mode.
	generatorReady bool
}

func New(analyzer *analyzer.Service, hub *progress.Hub, generatorReady bool) *Server {
	return &Server{analyzer: analyzer, hub: hub, generatorReady: generatorReady}
}

// Routes returns the chi router for the analysis API.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", s.health)
	r.Post("/analyze", s.startLogAnalysis)
	r.Post("/scan-website-headers", s.startHeaderScan)
	r.Post("/scrape", s.startCrawl)
	r.Get("/jobs/{id}", s.jobSnapshot)
	r.Post("/jobs/{id}/cancel", s.cancelJob)
	r.Get("/stream-results/{id}", s.streamResults)
	r.Post("/download-report", s.downloadReport)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	message := "analysis services are running"
	if !s.generatorReady {
		status = "degraded"
		message = "generative collaborator not configured; reports will omit the narrative"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status, "message": message})
}

// startLogAnalysis accepts a multipart log upload plus log_type and returns
// a job id immediately; execution happens in the worker pool.
func (s *Server) startLogAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}

	format := domain.SourceFormat(strings.ToLower(r.FormValue("log_type")))
	if format == "" {
		format = domain.SourceNginx
	}

	job, err := s.analyzer.SubmitLog(r.Context(), format, content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Analysis request received.",
		"job_id":  job.ID.String(),
	})
}

func (s *Server) startHeaderScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	job, err := s.analyzer.SubmitHeaderScan(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID.String()})
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var spec domain.CrawlSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode crawl spec: %w", err))
		return
	}
	job, err := s.analyzer.SubmitCrawl(r.Context(), spec)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID.String()})
}

// jobSnapshot is the poll view: current status, full progress sequence and
// the result or error when terminal.
func (s *Server) jobSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid job id"))
		return
	}
	snap, err := s.analyzer.Snapshot(r.Context(), id)
	if errors.Is(err, domain.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid job id"))
		return
	}
	cancelledNow, err := s.analyzer.Cancel(r.Context(), id)
	if errors.Is(err, domain.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled_now": cancelledNow})
}

func (s *Server) downloadReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MarkdownContent string `json:"markdown_content"`
		Title           string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Title == "" {
		req.Title = "Security Report"
	}
	doc := export.Render(req.Title, req.MarkdownContent)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename=SecurityReport.html`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"detail": err.Error()})
}
