package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func (s *Server) registerAPIKeyRoutes(r *gin.Engine) {
	admin := r.Group("/v1/apikeys", s.requireAdmin)
	admin.POST("", s.handleIssueKey)
	admin.GET("", s.handleListKeys)
	admin.DELETE("/:id", s.handleRevokeKey)
}

func (s *Server) handleIssueKey(c *gin.Context) {
	var req struct {
		UserID           string `json:"user_id"`
		Label            string `json:"label"`
		ExpiresInSeconds int64  `json:"expires_in_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	raw, err := generateAPIKey()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate key"})
		return
	}

	expiresAt := time.Time{}
	if req.ExpiresInSeconds > 0 {
		expiresAt = time.Now().Add(time.Duration(req.ExpiresInSeconds) * time.Second)
	}

	record := APIKey{
		UserID:    req.UserID,
		Label:     req.Label,
		TokenHash: s.hasher.HashString(raw),
		ExpiresAt: expiresAt,
	}
	if err := s.db.Create(&record).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist key"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         record.ID,
		"key":        raw,
		"user_id":    record.UserID,
		"label":      record.Label,
		"expires_at": record.ExpiresAt,
	})
}

func (s *Server) handleListKeys(c *gin.Context) {
	var keys []APIKey
	if err := s.db.Order("created_at desc").Find(&keys).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list keys"})
		return
	}

	resp := make([]gin.H, 0, len(keys))
	for _, k := range keys {
		resp = append(resp, gin.H{
			"id":           k.ID,
			"user_id":      k.UserID,
			"label":        k.Label,
			"expires_at":   k.ExpiresAt,
			"revoked_at":   k.RevokedAt,
			"last_used_at": k.LastUsedAt,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRevokeKey(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key id"})
		return
	}

	var key APIKey
	if err := s.db.First(&key, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load key"})
		return
	}

	now := time.Now().UTC()
	if err := s.db.Model(&key).Update("revoked_at", now).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke key"})
		return
	}

	c.Status(http.StatusNoContent)
}

func generateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("dz_%s", base64.RawURLEncoding.EncodeToString(b)), nil
}

func parseUintParam(raw string) (uint, error) {
	if raw == "" {
		return 0, fmt.Errorf("empty")
	}
	id64, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id64), nil
}
