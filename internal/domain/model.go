package domain

import (
	"time"

	"github.com/google/uuid"
)

// Core domain models shared by the stores, services and workers. HTTP
// payload shapes live in the http adapter; keep these decoupled.

// JobKind identifies which analysis pipeline input a job carries.
type JobKind string

const (
	KindLogScan           JobKind = "log_scan"
	KindHeaderScan        JobKind = "header_scan"
	KindInteractiveScrape JobKind = "interactive_scrape"
)

// SourceFormat selects the pattern source used for the deterministic scan
// stage and shapes the narrative wording.
type SourceFormat string

const (
	SourceNginx   SourceFormat = "nginx"
	SourceApache  SourceFormat = "apache"
	SourceHeaders SourceFormat = "headers"
	SourceCrawl   SourceFormat = "crawl"
)

// Category labels a detection rule and the findings it produces.
type Category string

const (
	CategorySQLi          Category = "sqli"
	CategoryXSS           Category = "xss"
	CategoryPathTraversal Category = "path_traversal"
	CategoryRecon         Category = "recon"
	CategoryCmdInjection  Category = "cmd_injection"
	CategoryHeaderMissing Category = "header_missing"
	CategoryCrawlSurface  Category = "crawl_surface"
	// CategoryUnparseable marks lines the scan engine could not decode.
	// Recorded, never dropped, so the report accounts for every line.
	CategoryUnparseable Category = "unparseable"
)

// Finding is a single pattern match against a single input line. Produced
// only by the scan engine, ordered by LineNumber ascending. At most one
// finding per (line, pattern) pair.
type Finding struct {
	PatternID  int        `json:"pattern_id"`
	Category   Category   `json:"category"`
	Line       string     `json:"line"`
	LineNumber int        `json:"line_number"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// KnowledgeSnippet is a retrieved reference document scored against the
// aggregated finding context. Ordered by Score descending, ties broken by
// SourceID ascending.
type KnowledgeSnippet struct {
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	SourceID string  `json:"source_id"`
}

// Report is the final artifact attached to a completed job. Immutable once
// set.
type Report struct {
	Summary     string    `json:"summary"`
	Findings    []Finding `json:"findings"`
	Narrative   string    `json:"narrative"`
	ConfigBlock string    `json:"config_block,omitempty"`
}

// Job is the unit of submitted work, tracked queued -> running -> terminal.
// Transitions are owned by the worker that claims the job; terminal states
// are final.
type Job struct {
	ID              uuid.UUID    `json:"id"`
	Kind            JobKind      `json:"kind"`
	SourceFormat    SourceFormat `json:"source_format"`
	InputRef        string       `json:"input_ref"`
	ContentHash     string       `json:"content_hash,omitempty"`
	Status          JobStatus    `json:"status"`
	Attempts        int          `json:"attempts"`
	CancelRequested bool         `json:"cancel_requested,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	FinishedAt      *time.Time   `json:"finished_at,omitempty"`
	Result          *Report      `json:"result,omitempty"`
	Error           *JobError    `json:"error,omitempty"`
}

// Terminal reports whether the job can no longer change state.
func (j *Job) Terminal() bool { return j.Status.Terminal() }

// Snapshot is a point-in-time read of a job plus its full progress sequence,
// served to polling clients.
type Snapshot struct {
	Job      Job             `json:"job"`
	Progress []ProgressEvent `json:"progress"`
}

// ProgressStage names a pipeline stage boundary.
type ProgressStage string

const (
	StageReceived     ProgressStage = "received"
	StageScanning     ProgressStage = "scanning"
	StageRetrieving   ProgressStage = "retrieving"
	StageSynthesizing ProgressStage = "synthesizing"
	StageDone         ProgressStage = "done"
	StageError        ProgressStage = "error"
)

// Terminal reports whether the stage ends the progress sequence.
func (s ProgressStage) Terminal() bool { return s == StageDone || s == StageError }

// ProgressEvent is one entry in a job's append-only progress sequence.
type ProgressEvent struct {
	JobID     uuid.UUID     `json:"job_id"`
	Stage     ProgressStage `json:"stage"`
	Detail    string        `json:"detail,omitempty"`
	EmittedAt time.Time     `json:"emitted_at"`
}

// CrawlSpec describes an interactive scrape request. The crawl mechanics are
// a pluggable capability; the engine only carries the spec through the job.
type CrawlSpec struct {
	StartURL      string `json:"start_url"`
	DomainToCheck string `json:"domain_to_check"`
	MaxPages      int    `json:"max_pages,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
}
