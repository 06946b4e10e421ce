package geo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func fakeEngine(t *testing.T, answer string, sources []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req probeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad probe request: %v", err)
		}
		json.NewEncoder(w).Encode(probeResponse{Answer: answer, Sources: sources})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunCheckAggregates(t *testing.T) {
	mentions := fakeEngine(t, "DeepZD is a popular choice.", []string{"https://deepzd.com/docs"})
	silent := fakeEngine(t, "There are many tools available.", nil)

	input := CheckInput{
		Monitor: MonitorSpec{Brand: "DeepZD", Domain: "deepzd.com"},
		Questions: []Question{
			{ID: 1, Text: "best geo tool?", Enabled: true},
			{ID: 2, Text: "disabled question", Enabled: false},
		},
		Engines: []Engine{
			{Name: "alpha", URL: mentions.URL},
			{Name: "beta", URL: silent.URL},
		},
	}

	var kinds []string
	result, err := NewRunner(nil).RunCheck(context.Background(), input, func(e Event) {
		kinds = append(kinds, e.Kind())
	})
	if err != nil {
		t.Fatalf("RunCheck() failed: %v", err)
	}

	if result.Summary.QueryCount != 1 {
		t.Errorf("QueryCount = %d, want 1 (disabled question skipped)", result.Summary.QueryCount)
	}
	if result.Summary.EngineCount != 2 {
		t.Errorf("EngineCount = %d, want 2", result.Summary.EngineCount)
	}
	if result.Summary.Mentions != 1 || result.Summary.Citations != 1 {
		t.Errorf("mentions/citations = %d/%d, want 1/1", result.Summary.Mentions, result.Summary.Citations)
	}
	if result.Summary.MentionRate != 0.5 {
		t.Errorf("MentionRate = %f, want 0.5", result.Summary.MentionRate)
	}
	if len(result.Detail) != 2 {
		t.Fatalf("detail = %d results", len(result.Detail))
	}

	// check_started first, then probe/answer pairs.
	if kinds[0] != "check_started" {
		t.Errorf("first event = %s", kinds[0])
	}
	if len(kinds) != 1+2*2 {
		t.Errorf("events = %v", kinds)
	}
}

func TestRunCheckEngineFailureIsRecorded(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(broken.Close)

	input := CheckInput{
		Monitor:   MonitorSpec{Brand: "DeepZD", Domain: "deepzd.com"},
		Questions: []Question{{Text: "q", Enabled: true}},
		Engines:   []Engine{{Name: "flaky", URL: broken.URL}},
	}

	result, err := NewRunner(nil).RunCheck(context.Background(), input, func(Event) {})
	if err != nil {
		t.Fatalf("RunCheck() failed: %v", err)
	}
	if len(result.Detail) != 1 || result.Detail[0].Error == "" {
		t.Errorf("expected recorded engine error, got %+v", result.Detail)
	}
	if result.Summary.Mentions != 0 {
		t.Errorf("Mentions = %d, want 0", result.Summary.Mentions)
	}
}

func TestRunCheckValidation(t *testing.T) {
	r := NewRunner(nil)

	_, err := r.RunCheck(context.Background(), CheckInput{
		Questions: []Question{{Text: "q", Enabled: false}},
		Engines:   []Engine{{Name: "e", URL: "http://localhost"}},
	}, func(Event) {})
	if err != ErrNoQuestions {
		t.Errorf("err = %v, want ErrNoQuestions", err)
	}

	_, err = r.RunCheck(context.Background(), CheckInput{
		Questions: []Question{{Text: "q", Enabled: true}},
	}, func(Event) {})
	if err != ErrNoEngines {
		t.Errorf("err = %v, want ErrNoEngines", err)
	}
}

func TestRunCheckCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(nil).RunCheck(ctx, CheckInput{
		Questions: []Question{{Text: "q", Enabled: true}},
		Engines:   []Engine{{Name: "e", URL: "http://localhost:1"}},
	}, func(Event) {})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
