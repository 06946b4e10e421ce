package geo

import (
	"context"
	"errors"
)

// ErrNoQuestions is returned when a check has nothing to ask.
var ErrNoQuestions = errors.New("monitor has no enabled questions")

// ErrNoEngines is returned when no answer engines are configured.
var ErrNoEngines = errors.New("no answer engines configured")

// Runner is the built-in MonitorRunner: every enabled question is
// asked on every configured engine, sequentially, in declaration
// order.
type Runner struct {
	probe *ProbeClient
}

func NewRunner(probe *ProbeClient) *Runner {
	if probe == nil {
		probe = NewProbeClient()
	}
	return &Runner{probe: probe}
}

func (r *Runner) RunCheck(ctx context.Context, input CheckInput, sink Sink) (*CheckResult, error) {
	questions := enabledQuestions(input.Questions)
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if len(input.Engines) == 0 {
		return nil, ErrNoEngines
	}

	sink(CheckStarted{
		Brand:     input.Monitor.Brand,
		Questions: len(questions),
		Engines:   len(input.Engines),
	})

	total := len(questions) * len(input.Engines)
	detail := make([]ProbeResult, 0, total)
	completed := 0
	mentions, citations := 0, 0

	for _, q := range questions {
		for _, engine := range input.Engines {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			sink(EngineProbe{Engine: engine.Name, Question: q.Text, Completed: completed, Total: total})

			result, err := r.probe.Ask(ctx, engine, input.Monitor, q.Text)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				// One failing engine does not fail the check.
				result = &ProbeResult{Engine: engine.Name, Question: q.Text, Error: err.Error()}
			}
			completed++

			sink(EngineAnswer{Result: result})
			detail = append(detail, *result)
			if result.Mentioned {
				mentions++
			}
			if result.Cited {
				citations++
			}
		}
	}

	summary := CheckSummary{
		QueryCount:  len(questions),
		EngineCount: len(input.Engines),
		Mentions:    mentions,
		Citations:   citations,
	}
	if total > 0 {
		summary.MentionRate = float64(mentions) / float64(total)
	}

	return &CheckResult{Summary: summary, Detail: detail}, nil
}

func enabledQuestions(in []Question) []Question {
	out := make([]Question, 0, len(in))
	for _, q := range in {
		if q.Enabled {
			out = append(out, q)
		}
	}
	return out
}

var _ MonitorRunner = (*Runner)(nil)
