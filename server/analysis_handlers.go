package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/deepzdhq/deepzd/pkg/geo"
)

func (s *Server) registerAnalysisRoutes(r *gin.Engine) {
	// Admission order: rate limit, then auth, then quota inside the
	// handler.
	group := r.Group("/v1/analyses")
	group.POST("/stream", s.limitRoute("analyze"), s.requireUser, s.handleAnalyzeStream)
	group.GET("", s.limitRoute("api"), s.requireUser, s.handleListAnalyses)
	group.GET("/:id", s.limitRoute("api"), s.requireUser, s.handleGetAnalysis)
}

func (s *Server) handleAnalyzeStream(c *gin.Context) {
	userID := currentUserID(c)
	logger := requestLogger(c, s.logger)

	var req struct {
		Content string `json:"content"`
		Locale  string `json:"locale"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), s.logger)
		return
	}
	if req.Content == "" {
		respondError(c, http.StatusBadRequest, "content is required", s.logger)
		return
	}
	if len(req.Content) > s.maxContentLen {
		respondError(c, http.StatusBadRequest,
			fmt.Sprintf("content exceeds maximum length of %d bytes", s.maxContentLen), s.logger)
		return
	}
	if req.Locale == "" {
		req.Locale = "en"
	}

	if !s.admitQuota(c, userID, logger) {
		return
	}

	record := Analysis{
		PublicID:      xid.New().String(),
		UserID:        userID,
		Locale:        req.Locale,
		ContentLength: len(req.Content),
		Status:        StatusRunning,
	}
	if err := s.db.Create(&record).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to create analysis", s.logger)
		return
	}

	session, err := newStreamSession(c, s.heartbeat, s.streamCapacity, logger.With().Str("analysis_id", record.PublicID).Logger())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), s.logger)
		return
	}

	input := geo.AnalysisInput{Content: req.Content, Locale: req.Locale}
	session.run(c.Request.Context(), streamRun{
		completeType: "analysis_complete",
		errorType:    "analysis_error",
		execute: func(ctx context.Context, sink geo.Sink) (any, error) {
			result, err := s.analyzer.AnalyzeContent(ctx, input, sink)
			if err != nil {
				return nil, err
			}
			return result, nil
		},
		persist: func(status string, result any, duration time.Duration, runErr error) error {
			return s.finishAnalysis(&record, status, result, duration, runErr, userID)
		},
		payload: func(result any, duration time.Duration) any {
			res := result.(*geo.AnalysisResult)
			return gin.H{
				"analysis_id": record.PublicID,
				"score":       res.Score,
				"result":      res,
				"duration_ms": duration.Milliseconds(),
			}
		},
	})
}

// finishAnalysis is the single terminal write for an analysis record.
// A completed analysis also counts against the monthly quota; that
// increment is detached so stream latency never waits on it.
func (s *Server) finishAnalysis(record *Analysis, status string, result any, duration time.Duration, runErr error, userID string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       status,
		"duration_ms":  duration.Milliseconds(),
		"completed_at": now,
	}
	if status == StatusCompleted {
		res := result.(*geo.AnalysisResult)
		raw, err := json.Marshal(res)
		if err != nil {
			return err
		}
		updates["score"] = res.Score
		updates["result_raw"] = string(raw)
	} else if runErr != nil {
		updates["error_message"] = runErr.Error()
	}

	if err := s.db.Model(record).Updates(updates).Error; err != nil {
		return err
	}

	if status == StatusCompleted {
		go func() {
			if err := s.quota.Increment(context.Background(), userID); err != nil {
				s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to record usage increment")
			}
		}()
	}
	return nil
}

func (s *Server) handleListAnalyses(c *gin.Context) {
	userID := currentUserID(c)
	limit := parseLimitParam(c.Query("limit"), 20, 100)

	var records []Analysis
	err := s.db.Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list analyses", s.logger)
		return
	}

	resp := make([]gin.H, 0, len(records))
	for _, a := range records {
		resp = append(resp, gin.H{
			"id":             a.PublicID,
			"status":         a.Status,
			"score":          a.Score,
			"locale":         a.Locale,
			"content_length": a.ContentLength,
			"duration_ms":    a.DurationMs,
			"created_at":     a.CreatedAt,
			"completed_at":   a.CompletedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	userID := currentUserID(c)

	var record Analysis
	err := s.db.Where("public_id = ? AND user_id = ?", c.Param("id"), userID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "analysis not found", s.logger)
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to load analysis", s.logger)
		return
	}

	resp := gin.H{
		"id":             record.PublicID,
		"status":         record.Status,
		"score":          record.Score,
		"locale":         record.Locale,
		"content_length": record.ContentLength,
		"duration_ms":    record.DurationMs,
		"created_at":     record.CreatedAt,
		"completed_at":   record.CompletedAt,
	}
	if record.ErrorMessage != "" {
		resp["error"] = record.ErrorMessage
	}
	if record.ResultRaw != "" {
		resp["result"] = json.RawMessage(record.ResultRaw)
	}
	c.JSON(http.StatusOK, resp)
}

// admitQuota enforces the monthly ceiling. A failing quota lookup is
// deliberately non-fatal: log and let the request through rather than
// block users on an infrastructure hiccup.
func (s *Server) admitQuota(c *gin.Context, userID string, logger zerolog.Logger) bool {
	decision, err := s.quota.Check(c.Request.Context(), userID)
	if err != nil {
		logger.Warn().Err(err).Msg("quota check failed; allowing request")
		return true
	}
	if !decision.Allowed {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":     "Quota exceeded",
			"remaining": 0,
			"limit":     decision.Limit,
			"plan":      decision.Plan,
		})
		return false
	}
	return true
}

func parseLimitParam(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
