package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
	"gorm.io/gorm"

	"github.com/deepzdhq/deepzd/pkg/geo"
)

func (s *Server) registerMonitorRoutes(r *gin.Engine) {
	group := r.Group("/v1/monitors")
	group.POST("", s.limitRoute("api"), s.requireUser, s.handleCreateMonitor)
	group.GET("", s.limitRoute("api"), s.requireUser, s.handleListMonitors)
	group.GET("/:id", s.limitRoute("api"), s.requireUser, s.handleGetMonitor)
	group.PUT("/:id", s.limitRoute("api"), s.requireUser, s.handleUpdateMonitor)
	group.DELETE("/:id", s.limitRoute("api"), s.requireUser, s.handleDeleteMonitor)
	group.GET("/:id/checks", s.limitRoute("api"), s.requireUser, s.handleListChecks)
	group.POST("/:id/check/stream", s.limitRoute("check"), s.requireUser, s.handleCheckStream)
}

type monitorRequest struct {
	Name      string `json:"name"`
	Brand     string `json:"brand"`
	Domain    string `json:"domain"`
	Questions []struct {
		Text    string `json:"text"`
		Enabled bool   `json:"enabled"`
	} `json:"questions"`
}

func (s *Server) handleCreateMonitor(c *gin.Context) {
	var req monitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), s.logger)
		return
	}
	if req.Brand == "" {
		respondError(c, http.StatusBadRequest, "brand is required", s.logger)
		return
	}
	if req.Name == "" {
		req.Name = req.Brand
	}

	monitor := BrandMonitor{
		UserID: currentUserID(c),
		Name:   req.Name,
		Brand:  req.Brand,
		Domain: req.Domain,
	}
	for _, q := range req.Questions {
		if q.Text == "" {
			continue
		}
		monitor.Questions = append(monitor.Questions, MonitorQuestion{Text: q.Text, Enabled: q.Enabled})
	}

	if err := s.db.Create(&monitor).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to create monitor", s.logger)
		return
	}
	c.JSON(http.StatusCreated, monitorResponse(&monitor))
}

func (s *Server) handleListMonitors(c *gin.Context) {
	var monitors []BrandMonitor
	err := s.db.Preload("Questions").
		Where("user_id = ?", currentUserID(c)).
		Order("created_at desc").
		Find(&monitors).Error
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list monitors", s.logger)
		return
	}

	resp := make([]gin.H, 0, len(monitors))
	for i := range monitors {
		resp = append(resp, monitorResponse(&monitors[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetMonitor(c *gin.Context) {
	monitor, ok := s.loadOwnedMonitor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, monitorResponse(monitor))
}

func (s *Server) handleUpdateMonitor(c *gin.Context) {
	monitor, ok := s.loadOwnedMonitor(c)
	if !ok {
		return
	}

	var req monitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), s.logger)
		return
	}
	if req.Brand == "" {
		respondError(c, http.StatusBadRequest, "brand is required", s.logger)
		return
	}
	if req.Name == "" {
		req.Name = req.Brand
	}

	monitor.Name = req.Name
	monitor.Brand = req.Brand
	monitor.Domain = req.Domain

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("brand_monitor_id = ?", monitor.ID).Delete(&MonitorQuestion{}).Error; err != nil {
			return err
		}
		monitor.Questions = nil
		for _, q := range req.Questions {
			if q.Text == "" {
				continue
			}
			monitor.Questions = append(monitor.Questions, MonitorQuestion{
				BrandMonitorID: monitor.ID,
				Text:           q.Text,
				Enabled:        q.Enabled,
			})
		}
		return tx.Save(monitor).Error
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to update monitor", s.logger)
		return
	}
	c.JSON(http.StatusOK, monitorResponse(monitor))
}

func (s *Server) handleDeleteMonitor(c *gin.Context) {
	monitor, ok := s.loadOwnedMonitor(c)
	if !ok {
		return
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("brand_monitor_id = ?", monitor.ID).Delete(&MonitorQuestion{}).Error; err != nil {
			return err
		}
		return tx.Delete(monitor).Error
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to delete monitor", s.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListChecks(c *gin.Context) {
	monitor, ok := s.loadOwnedMonitor(c)
	if !ok {
		return
	}
	limit := parseLimitParam(c.Query("limit"), 20, 100)

	var checks []CheckRecord
	err := s.db.Where("brand_monitor_id = ?", monitor.ID).
		Order("created_at desc").
		Limit(limit).
		Find(&checks).Error
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list checks", s.logger)
		return
	}

	resp := make([]gin.H, 0, len(checks))
	for _, ch := range checks {
		entry := gin.H{
			"id":           ch.PublicID,
			"status":       ch.Status,
			"query_count":  ch.QueryCount,
			"engine_count": ch.EngineCount,
			"duration_ms":  ch.DurationMs,
			"created_at":   ch.CreatedAt,
			"completed_at": ch.CompletedAt,
		}
		if ch.SummaryRaw != "" {
			entry["summary"] = json.RawMessage(ch.SummaryRaw)
		}
		if ch.ErrorMessage != "" {
			entry["error"] = ch.ErrorMessage
		}
		resp = append(resp, entry)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCheckStream(c *gin.Context) {
	userID := currentUserID(c)
	logger := requestLogger(c, s.logger)

	monitor, ok := s.loadOwnedMonitor(c)
	if !ok {
		return
	}

	if !s.admitQuota(c, userID, logger) {
		return
	}

	questions := make([]geo.Question, 0, len(monitor.Questions))
	for _, q := range monitor.Questions {
		questions = append(questions, geo.Question{ID: q.ID, Text: q.Text, Enabled: q.Enabled})
	}
	input := geo.CheckInput{
		Monitor:   geo.MonitorSpec{Brand: monitor.Brand, Domain: monitor.Domain},
		Questions: questions,
		Engines:   s.engines,
	}

	record := CheckRecord{
		PublicID:       xid.New().String(),
		BrandMonitorID: monitor.ID,
		UserID:         userID,
		Status:         StatusRunning,
	}
	if err := s.db.Create(&record).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to create check", s.logger)
		return
	}

	session, err := newStreamSession(c, s.heartbeat, s.streamCapacity, logger.With().Str("check_id", record.PublicID).Logger())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), s.logger)
		return
	}

	session.run(c.Request.Context(), streamRun{
		completeType: "check_complete",
		errorType:    "check_error",
		execute: func(ctx context.Context, sink geo.Sink) (any, error) {
			result, err := s.runner.RunCheck(ctx, input, sink)
			if err != nil {
				return nil, err
			}
			return result, nil
		},
		persist: func(status string, result any, duration time.Duration, runErr error) error {
			return s.finishCheck(&record, monitor, status, result, duration, runErr, userID)
		},
		payload: func(result any, duration time.Duration) any {
			res := result.(*geo.CheckResult)
			return gin.H{
				"check_id":    record.PublicID,
				"summary":     res.Summary,
				"detail":      res.Detail,
				"duration_ms": duration.Milliseconds(),
			}
		},
	})
}

// finishCheck is the single terminal write for a check record.
func (s *Server) finishCheck(record *CheckRecord, monitor *BrandMonitor, status string, result any, duration time.Duration, runErr error, userID string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       status,
		"duration_ms":  duration.Milliseconds(),
		"completed_at": now,
	}
	if status == StatusCompleted {
		res := result.(*geo.CheckResult)
		summary, err := json.Marshal(res.Summary)
		if err != nil {
			return err
		}
		detail, err := json.Marshal(res.Detail)
		if err != nil {
			return err
		}
		updates["query_count"] = res.Summary.QueryCount
		updates["engine_count"] = res.Summary.EngineCount
		updates["summary_raw"] = string(summary)
		updates["detail_raw"] = string(detail)
	} else if runErr != nil {
		updates["error_message"] = runErr.Error()
	}

	if err := s.db.Model(record).Updates(updates).Error; err != nil {
		return err
	}

	if status == StatusCompleted {
		if err := s.db.Model(monitor).Update("last_checked_at", now).Error; err != nil {
			s.logger.Warn().Err(err).Uint("monitor_id", monitor.ID).Msg("failed to update monitor last_checked_at")
		}
		go func() {
			if err := s.quota.Increment(context.Background(), userID); err != nil {
				s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to record usage increment")
			}
		}()
	}
	return nil
}

func (s *Server) loadOwnedMonitor(c *gin.Context) (*BrandMonitor, bool) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid monitor id", s.logger)
		return nil, false
	}

	var monitor BrandMonitor
	err = s.db.Preload("Questions").
		Where("id = ? AND user_id = ?", id, currentUserID(c)).
		First(&monitor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "monitor not found", s.logger)
			return nil, false
		}
		respondError(c, http.StatusInternalServerError, "failed to load monitor", s.logger)
		return nil, false
	}
	return &monitor, true
}

func monitorResponse(m *BrandMonitor) gin.H {
	questions := make([]gin.H, 0, len(m.Questions))
	for _, q := range m.Questions {
		questions = append(questions, gin.H{"id": q.ID, "text": q.Text, "enabled": q.Enabled})
	}
	return gin.H{
		"id":              m.ID,
		"name":            m.Name,
		"brand":           m.Brand,
		"domain":          m.Domain,
		"questions":       questions,
		"last_checked_at": m.LastCheckedAt,
		"created_at":      m.CreatedAt,
	}
}
