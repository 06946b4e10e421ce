package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/deepzdhq/deepzd/pkg/config"
)

var (
	configPath = flag.String("config", "/etc/deepzd/runner.yaml", "Config file path")
	serverURL  = flag.String("server", "", "DeepZD server URL (overrides config)")
	interval   = flag.Duration("interval", 0, "Check interval (overrides config)")
	once       = flag.Bool("once", false, "Run one sweep and exit")
	Version    = "dev"
)

// Runner drives scheduled brand-monitor checks against a DeepZD
// server. It owns no pipeline logic; the server runs the checks, the
// runner just triggers them and drains the streams.
type Runner struct {
	config *config.Config
	client *http.Client
	retry  *retrier
}

func main() {
	flag.Parse()

	configureLogger()
	log.Info().Str("version", Version).Msg("deepzd runner starting")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *serverURL != "" {
		cfg.Runner.ServerURL = *serverURL
	}
	if *interval > 0 {
		cfg.Runner.IntervalS = int(interval.Seconds())
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.Runner.APIKey == "" {
		log.Fatal().Msg("runner requires an API key (runner.api_key or DEEPZD_API_KEY)")
	}

	applyLogging(cfg.Logging)

	runner := &Runner{
		config: cfg,
		// No client timeout: check streams are long-lived. Each probe
		// is bounded server-side.
		client: &http.Client{},
		retry:  newRetrier(cfg.Runner.RetryInitialMs, cfg.Runner.RetryMaxMs, cfg.Runner.RetryMaxRetries),
	}

	log.Info().
		Str("server", cfg.Runner.ServerURL).
		Int("interval_s", cfg.Runner.IntervalS).
		Msg("configuration loaded")

	runner.sweep()
	if *once {
		return
	}

	jitter := time.Duration(cfg.Runner.JitterS) * time.Second
	ticker := time.NewTicker(time.Duration(cfg.Runner.IntervalS) * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		// Jitter spreads fleets of runners off the shared interval.
		if jitter > 0 {
			time.Sleep(time.Duration(rand.Int63n(int64(jitter))))
		}
		runner.sweep()
	}
}

func configureLogger() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Millisecond

	level := zerolog.InfoLevel
	if raw := strings.ToLower(strings.TrimSpace(os.Getenv("DEEPZD_RUNNER_LOG_LEVEL"))); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	log.Logger = newLogger(os.Getenv("DEEPZD_RUNNER_LOG_FORMAT") == "json").Level(level)
	zerolog.SetGlobalLevel(level)
}

func applyLogging(cfg config.LoggingConfig) {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil {
		level = parsed
	}
	log.Logger = newLogger(cfg.JSON).Level(level)
	zerolog.SetGlobalLevel(level)
}

func newLogger(jsonOut bool) zerolog.Logger {
	if jsonOut {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(writer).With().Timestamp().Logger()
}

type monitorSummary struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Brand string `json:"brand"`
}

// sweep lists the account's monitors and runs a check for each.
func (r *Runner) sweep() {
	monitors, err := r.listMonitors()
	if err != nil {
		log.Error().Err(err).Msg("failed to list monitors")
		return
	}
	if len(monitors) == 0 {
		log.Info().Msg("no monitors configured")
		return
	}

	for _, m := range monitors {
		if err := r.runCheck(m); err != nil {
			log.Error().Err(err).Uint("monitor_id", m.ID).Str("brand", m.Brand).Msg("check failed")
			continue
		}
	}
}

func (r *Runner) listMonitors() ([]monitorSummary, error) {
	var monitors []monitorSummary
	err := r.retry.do(func() error {
		req, err := r.newRequest(http.MethodGet, "/v1/monitors")
		if err != nil {
			return err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			if isRetryableStatus(resp) {
				return retryableStatusError{status: resp.StatusCode}
			}
			return fmt.Errorf("list monitors: status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&monitors)
	}, isRetryableHTTP)
	return monitors, err
}

// runCheck triggers one check stream and drains it to the terminal
// event, logging per-engine progress at debug.
func (r *Runner) runCheck(m monitorSummary) error {
	return r.retry.do(func() error {
		req, err := r.newRequest(http.MethodPost, fmt.Sprintf("/v1/monitors/%d/check/stream", m.ID))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			if isRetryableStatus(resp) {
				return retryableStatusError{status: resp.StatusCode}
			}
			return fmt.Errorf("check stream: status %d", resp.StatusCode)
		}
		return r.drainStream(m, resp)
	}, isRetryableHTTP)
}

func (r *Runner) drainStream(m monitorSummary, resp *http.Response) error {
	var frame struct {
		Type string `json:"type"`
		Data struct {
			CheckID string `json:"check_id"`
			Message string `json:"message"`
			Code    string `json:"code"`
			Summary struct {
				QueryCount  int     `json:"query_count"`
				Mentions    int     `json:"mentions"`
				Citations   int     `json:"citations"`
				MentionRate float64 `json:"mention_rate"`
			} `json:"summary"`
		} `json:"data"`
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			log.Debug().Err(err).Msg("skipping malformed frame")
			continue
		}

		switch frame.Type {
		case "check_complete":
			log.Info().
				Uint("monitor_id", m.ID).
				Str("brand", m.Brand).
				Str("check_id", frame.Data.CheckID).
				Int("queries", frame.Data.Summary.QueryCount).
				Int("mentions", frame.Data.Summary.Mentions).
				Int("citations", frame.Data.Summary.Citations).
				Float64("mention_rate", frame.Data.Summary.MentionRate).
				Msg("check complete")
			return nil
		case "check_error":
			return fmt.Errorf("check failed: %s (%s)", frame.Data.Message, frame.Data.Code)
		default:
			log.Debug().Str("event", frame.Type).Msg("progress")
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream ended without terminal event")
}

func (r *Runner) newRequest(method, path string) (*http.Request, error) {
	req, err := http.NewRequest(method, r.config.Runner.ServerURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.config.Runner.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
