package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultProbeTimeout = 10 * time.Second

// ProbeClient queries answer engines and inspects their answers for
// brand mentions and domain citations.
type ProbeClient struct {
	client *http.Client
}

func NewProbeClient() *ProbeClient {
	return &ProbeClient{client: &http.Client{}}
}

type probeRequest struct {
	Query string `json:"query"`
}

type probeResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Ask submits one question to one engine and classifies the answer
// against the monitored brand and domain.
func (c *ProbeClient) Ask(ctx context.Context, engine Engine, spec MonitorSpec, question string) (*ProbeResult, error) {
	timeout := engine.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(probeRequest{Query: question})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, engine.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("engine %s returned status %d", engine.Name, resp.StatusCode)
	}

	var answer probeResponse
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("engine %s: decode answer: %w", engine.Name, err)
	}

	result := &ProbeResult{
		Engine:    engine.Name,
		Question:  question,
		Mentioned: containsFold(answer.Answer, spec.Brand),
		Snippet:   snippet(answer.Answer),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	result.Cited = citesDomain(answer, spec.Domain)
	return result, nil
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func citesDomain(answer probeResponse, domain string) bool {
	if domain == "" {
		return false
	}
	for _, src := range answer.Sources {
		if containsFold(src, domain) {
			return true
		}
	}
	return containsFold(answer.Answer, domain)
}

func snippet(answer string) string {
	const max = 200
	answer = strings.TrimSpace(answer)
	if len(answer) <= max {
		return answer
	}
	return answer[:max]
}
