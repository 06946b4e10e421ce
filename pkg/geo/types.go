package geo

import (
	"context"
	"time"
)

// AnalysisInput is the content submitted for generative-engine scoring.
type AnalysisInput struct {
	Content string `json:"content"`
	Locale  string `json:"locale"`
}

// AnalysisResult is the structured outcome of a content analysis.
type AnalysisResult struct {
	Score           int              `json:"score"`
	Signals         *Signals         `json:"signals"`
	RuleResults     []RuleResult     `json:"rule_results"`
	Recommendations []Recommendation `json:"recommendations"`
}

type Recommendation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Question is one brand-visibility query a monitor asks answer engines.
type Question struct {
	ID      uint   `json:"id"`
	Text    string `json:"text"`
	Enabled bool   `json:"enabled"`
}

// MonitorSpec describes the brand a check verifies.
type MonitorSpec struct {
	Brand  string `json:"brand"`
	Domain string `json:"domain"`
}

// CheckInput is a monitor configuration plus its enabled questions.
type CheckInput struct {
	Monitor   MonitorSpec `json:"monitor"`
	Questions []Question  `json:"questions"`
	Engines   []Engine    `json:"engines"`
}

// Engine identifies one answer engine endpoint to probe.
type Engine struct {
	Name    string        `json:"name"`
	URL     string        `json:"url"`
	Timeout time.Duration `json:"-"`
}

// ProbeResult is the outcome of asking one engine one question.
type ProbeResult struct {
	Engine    string `json:"engine"`
	Question  string `json:"question"`
	Mentioned bool   `json:"mentioned"`
	Cited     bool   `json:"cited"`
	Snippet   string `json:"snippet,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// CheckSummary aggregates a full monitor check.
type CheckSummary struct {
	QueryCount  int     `json:"query_count"`
	EngineCount int     `json:"engine_count"`
	Mentions    int     `json:"mentions"`
	Citations   int     `json:"citations"`
	MentionRate float64 `json:"mention_rate"`
}

// CheckResult is the structured outcome of a brand-monitor check.
type CheckResult struct {
	Summary CheckSummary  `json:"summary"`
	Detail  []ProbeResult `json:"detail"`
}

// ContentAnalyzer runs the content analysis pipeline, reporting
// progress through sink. It returns a result or an error; cancellation
// of ctx stops further work.
type ContentAnalyzer interface {
	AnalyzeContent(ctx context.Context, input AnalysisInput, sink Sink) (*AnalysisResult, error)
}

// MonitorRunner executes a brand-monitor check, reporting progress
// through sink.
type MonitorRunner interface {
	RunCheck(ctx context.Context, input CheckInput, sink Sink) (*CheckResult, error)
}
