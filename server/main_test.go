package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/deepzdhq/deepzd/pkg/config"
	"github.com/deepzdhq/deepzd/pkg/geo"
)

type testEnv struct {
	server *Server
	gin    *gin.Engine
	apiKey string
	userID string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:deepzd-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(allModels()...))

	srv := &Server{
		db:         db,
		logger:     zerolog.Nop(),
		hasher:     NewKeyHasher([]byte("test-salt")),
		adminToken: "admin-secret",
		limiter:    NewRateLimiter(false, 0),
		routes: map[string]config.RouteLimit{
			"analyze": {Limit: 10, WindowS: 60},
			"check":   {Limit: 10, WindowS: 60},
			"api":     {Limit: 100, WindowS: 60},
		},
		quota:          NewQuotaGate(db, true),
		analyzer:       geo.NewAnalyzer(nil),
		runner:         geo.NewRunner(geo.NewProbeClient()),
		heartbeat:      50 * time.Millisecond,
		streamCapacity: 16,
		maxContentLen:  10_000,
	}

	apiKey := "dz_test-key"
	require.NoError(t, db.Create(&APIKey{
		UserID:    "user-1",
		Label:     "test",
		TokenHash: srv.hasher.HashString(apiKey),
	}).Error)

	g := gin.New()
	srv.registerAnalysisRoutes(g)
	srv.registerMonitorRoutes(g)
	srv.registerAPIKeyRoutes(g)
	g.GET("/v1/health", srv.handleHealth)
	g.GET("/v1/usage", srv.limitRoute("api"), srv.requireUser, srv.handleUsage)

	return testEnv{server: srv, gin: g, apiKey: apiKey, userID: "user-1"}
}

func (env testEnv) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+env.apiKey)
	resp := httptest.NewRecorder()
	env.gin.ServeHTTP(resp, req)
	return resp
}

type sseFrame struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// parseFrames decodes the data frames from an SSE body, skipping
// comment heartbeats.
func parseFrames(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame sseFrame
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		frames = append(frames, frame)
	}
	return frames
}

func TestHealthReportsStatus(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	resp := httptest.NewRecorder()
	env.gin.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, "ok", body["database"])
}

func TestUsageReflectsPlanAndConsumption(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.server.db.Create(&Subscription{UserID: env.userID, Plan: "starter", Status: "active"}).Error)
	require.NoError(t, env.server.db.Create(&UsageRecord{UserID: env.userID, Period: time.Now().UTC().Format("2006-01"), Count: 12}).Error)

	resp := env.request(t, http.MethodGet, "/v1/usage", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Plan      string `json:"plan"`
		Limit     int    `json:"limit"`
		Remaining int    `json:"remaining"`
		Used      int    `json:"used"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "starter", body.Plan)
	require.Equal(t, 50, body.Limit)
	require.Equal(t, 38, body.Remaining)
	require.Equal(t, 12, body.Used)
}

func TestUsageUnlimitedPlan(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.server.db.Create(&Subscription{UserID: env.userID, Plan: "enterprise", Status: "active"}).Error)

	resp := env.request(t, http.MethodGet, "/v1/usage", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Limit     int `json:"limit"`
		Remaining int `json:"remaining"`
		Used      int `json:"used"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, -1, body.Limit)
	require.Equal(t, -1, body.Remaining)
	require.Equal(t, 0, body.Used)
}
