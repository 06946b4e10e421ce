package geo

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Rule struct {
	Name           string `yaml:"name"`
	Check          string `yaml:"check"`
	Weight         int    `yaml:"weight"`
	Recommendation string `yaml:"recommendation"`
}

type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

type RuleResult struct {
	Rule   string `json:"rule"`
	Passed bool   `json:"passed"`
	Weight int    `json:"weight"`
}

// LoadRules reads a rule set from a yaml file. A missing path yields
// the default rules.
func LoadRules(path string) (*RuleSet, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return nil, err
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, err
	}
	if len(rs.Rules) == 0 {
		return DefaultRules(), nil
	}
	return &rs, nil
}

// DefaultRules is the built-in scoring profile for answer-engine
// friendliness.
func DefaultRules() *RuleSet {
	return &RuleSet{Rules: []Rule{
		{Name: "has_title", Check: "has_title", Weight: 10,
			Recommendation: "Add a descriptive title so engines can identify the topic."},
		{Name: "substantial_content", Check: "word_count >= 300", Weight: 20,
			Recommendation: "Expand the content to at least 300 words of substance."},
		{Name: "structured_headings", Check: "headings >= 3", Weight: 15,
			Recommendation: "Break the content into sections with at least three headings."},
		{Name: "answers_questions", Check: "question_headings >= 1", Weight: 15,
			Recommendation: "Phrase at least one heading as a question users actually ask."},
		{Name: "cites_statistics", Check: "statistics >= 2", Weight: 15,
			Recommendation: "Back claims with concrete numbers or statistics."},
		{Name: "links_sources", Check: "links >= 2", Weight: 10,
			Recommendation: "Link to primary sources engines can verify."},
		{Name: "uses_lists", Check: "lists >= 1", Weight: 5,
			Recommendation: "Summarize key points in a list engines can lift directly."},
		{Name: "readable_sentences", Check: "avg_sentence_words <= 25", Weight: 10,
			Recommendation: "Shorten sentences; long ones get truncated in answers."},
	}}
}

// Evaluate scores signals against the rule set. The score is the
// weight-share of passing rules scaled to 0-100.
func (rs *RuleSet) Evaluate(sig *Signals) ([]RuleResult, []Recommendation, int) {
	results := make([]RuleResult, 0, len(rs.Rules))
	recs := []Recommendation{}
	total, passed := 0, 0

	for _, rule := range rs.Rules {
		ok := checkRule(sig, rule)
		results = append(results, RuleResult{Rule: rule.Name, Passed: ok, Weight: rule.Weight})
		total += rule.Weight
		if ok {
			passed += rule.Weight
		} else if rule.Recommendation != "" {
			recs = append(recs, Recommendation{Rule: rule.Name, Message: rule.Recommendation})
		}
	}

	score := 0
	if total > 0 {
		score = passed * 100 / total
	}
	return results, recs, score
}

func checkRule(sig *Signals, rule Rule) bool {
	switch rule.Check {
	case "has_title":
		return sig.Title != ""
	case "word_count >= 300":
		return sig.WordCount >= 300
	case "headings >= 3":
		return sig.HeadingCount >= 3
	case "question_headings >= 1":
		return sig.QuestionHeadings >= 1
	case "statistics >= 2":
		return sig.StatisticCount >= 2
	case "links >= 2":
		return sig.LinkCount >= 2
	case "lists >= 1":
		return sig.ListCount >= 1
	case "avg_sentence_words <= 25":
		return sig.SentenceCount == 0 || sig.AvgSentenceWords <= 25
	default:
		// Unknown checks pass so old rule files keep working.
		return true
	}
}
