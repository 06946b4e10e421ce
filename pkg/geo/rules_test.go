package geo

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEvaluateScoring(t *testing.T) {
	tests := []struct {
		name      string
		signals   *Signals
		wantScore int
		wantRecs  int
	}{
		{
			name: "everything passes",
			signals: &Signals{
				Title: "Guide", WordCount: 500, HeadingCount: 4,
				QuestionHeadings: 2, StatisticCount: 3, LinkCount: 3,
				ListCount: 1, SentenceCount: 20, AvgSentenceWords: 18,
			},
			wantScore: 100,
			wantRecs:  0,
		},
		{
			name:      "nothing passes",
			signals:   &Signals{AvgSentenceWords: 40, SentenceCount: 2},
			wantScore: 0,
			wantRecs:  8,
		},
		{
			name: "half weight",
			signals: &Signals{
				Title: "Guide", WordCount: 500, HeadingCount: 4,
				QuestionHeadings: 0, StatisticCount: 0, LinkCount: 0,
				ListCount: 0, SentenceCount: 10, AvgSentenceWords: 10,
			},
			// has_title 10 + word_count 20 + headings 15 + readable 10 = 55
			wantScore: 55,
			wantRecs:  4,
		},
	}

	rs := DefaultRules()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, recs, score := rs.Evaluate(tt.signals)

			if score != tt.wantScore {
				t.Errorf("score = %d, want %d", score, tt.wantScore)
			}
			if len(recs) != tt.wantRecs {
				t.Errorf("recommendations = %d, want %d", len(recs), tt.wantRecs)
			}
			if len(results) != len(rs.Rules) {
				t.Errorf("results = %d, want %d", len(results), len(rs.Rules))
			}
		})
	}
}

func TestLoadRulesMissingFileUsesDefaults(t *testing.T) {
	rs, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadRules() failed: %v", err)
	}
	if len(rs.Rules) != len(DefaultRules().Rules) {
		t.Errorf("rules = %d, want defaults", len(rs.Rules))
	}
}

func TestLoadRulesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := []byte("rules:\n  - name: only\n    check: has_title\n    weight: 5\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	rs, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() failed: %v", err)
	}
	if len(rs.Rules) != 1 || rs.Rules[0].Name != "only" {
		t.Errorf("unexpected rules: %+v", rs.Rules)
	}

	_, _, score := rs.Evaluate(&Signals{Title: "t"})
	if score != 100 {
		t.Errorf("score = %d, want 100", score)
	}
}

func TestUnknownCheckPasses(t *testing.T) {
	rs := &RuleSet{Rules: []Rule{{Name: "future", Check: "not_yet_implemented", Weight: 10}}}
	_, recs, score := rs.Evaluate(&Signals{})
	if score != 100 || len(recs) != 0 {
		t.Errorf("unknown check should pass, got score %d recs %d", score, len(recs))
	}
}
