package geo

// Event is a progress notification emitted by a pipeline while it runs.
// The set of implementations is closed; transport layers switch on Kind
// and serialize Payload verbatim.
type Event interface {
	Kind() string
	Payload() any
	isEvent()
}

// Sink receives pipeline events in emission order.
type Sink func(Event)

// AnalysisStarted is emitted once before any analysis work begins.
type AnalysisStarted struct {
	Locale        string `json:"locale"`
	ContentLength int    `json:"content_length"`
}

func (AnalysisStarted) Kind() string   { return "analysis_started" }
func (e AnalysisStarted) Payload() any { return e }
func (AnalysisStarted) isEvent()       {}

// SignalsExtracted carries the structural signals found in the content.
type SignalsExtracted struct {
	Signals *Signals `json:"signals"`
}

func (SignalsExtracted) Kind() string   { return "signals_extracted" }
func (e SignalsExtracted) Payload() any { return e }
func (SignalsExtracted) isEvent()       {}

// ScoringProgress reports rule evaluation advancing.
type ScoringProgress struct {
	RulesEvaluated int `json:"rules_evaluated"`
	RulesTotal     int `json:"rules_total"`
}

func (ScoringProgress) Kind() string   { return "scoring_progress" }
func (e ScoringProgress) Payload() any { return e }
func (ScoringProgress) isEvent()       {}

// CheckStarted is emitted once before any engine probes are issued.
type CheckStarted struct {
	Brand     string `json:"brand"`
	Questions int    `json:"questions"`
	Engines   int    `json:"engines"`
}

func (CheckStarted) Kind() string   { return "check_started" }
func (e CheckStarted) Payload() any { return e }
func (CheckStarted) isEvent()       {}

// EngineProbe reports one engine query about to run.
type EngineProbe struct {
	Engine    string `json:"engine"`
	Question  string `json:"question"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

func (EngineProbe) Kind() string   { return "engine_probe" }
func (e EngineProbe) Payload() any { return e }
func (EngineProbe) isEvent()       {}

// EngineAnswer carries the outcome of one engine query.
type EngineAnswer struct {
	Result *ProbeResult `json:"result"`
}

func (EngineAnswer) Kind() string   { return "engine_answer" }
func (e EngineAnswer) Payload() any { return e }
func (EngineAnswer) isEvent()       {}
