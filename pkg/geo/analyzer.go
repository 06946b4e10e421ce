package geo

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyContent is returned when an analysis is started with no
// usable content.
var ErrEmptyContent = errors.New("content is empty")

// Analyzer is the built-in ContentAnalyzer: signal extraction followed
// by rule-based scoring.
type Analyzer struct {
	rules *RuleSet
}

func NewAnalyzer(rules *RuleSet) *Analyzer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Analyzer{rules: rules}
}

func (a *Analyzer) AnalyzeContent(ctx context.Context, input AnalysisInput, sink Sink) (*AnalysisResult, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, ErrEmptyContent
	}

	sink(AnalysisStarted{Locale: input.Locale, ContentLength: len(input.Content)})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	signals := CollectSignals(input.Content)
	sink(SignalsExtracted{Signals: signals})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sink(ScoringProgress{RulesEvaluated: 0, RulesTotal: len(a.rules.Rules)})
	results, recs, score := a.rules.Evaluate(signals)
	sink(ScoringProgress{RulesEvaluated: len(a.rules.Rules), RulesTotal: len(a.rules.Rules)})

	return &AnalysisResult{
		Score:           score,
		Signals:         signals,
		RuleResults:     results,
		Recommendations: recs,
	}, nil
}

var _ ContentAnalyzer = (*Analyzer)(nil)
