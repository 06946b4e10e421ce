package main

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const userIDContextKey = "user_id"

// requireUser resolves the bearer API key to a user and aborts with
// 401 otherwise.
func (s *Server) requireUser(c *gin.Context) {
	authz := c.GetHeader("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	raw := strings.TrimPrefix(authz, "Bearer ")

	var key APIKey
	err := s.db.Where("token_hash = ?", s.hasher.HashString(raw)).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "key lookup failed"})
		return
	}
	if key.RevokedAt != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "api key revoked"})
		return
	}
	if !key.ExpiresAt.IsZero() && time.Now().After(key.ExpiresAt) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "api key expired"})
		return
	}

	// Touch last_used_at best-effort; auth never fails on it.
	now := time.Now().UTC()
	if err := s.db.Model(&key).Update("last_used_at", now).Error; err != nil {
		requestLogger(c, s.logger).Warn().Err(err).Msg("failed to update key last_used_at")
	}

	c.Set(userIDContextKey, key.UserID)
	c.Next()
}

// requireAdmin guards key-management endpoints with the static admin
// token from config.
func (s *Server) requireAdmin(c *gin.Context) {
	authz := c.GetHeader("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	token := strings.TrimPrefix(authz, "Bearer ")
	if s.adminToken == "" || !secureCompare(token, s.adminToken) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token"})
		return
	}
	c.Next()
}

func currentUserID(c *gin.Context) string {
	if value, ok := c.Get(userIDContextKey); ok {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
