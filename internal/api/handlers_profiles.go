package api

import (
	"errors"
	"net/http"
	"strconv"

	"trading-orchestrator/internal/database"
	"trading-orchestrator/internal/events"

	"github.com/gin-gonic/gin"
)

// ============================================================================
// PROFILES
// ============================================================================

func (s *Server) handleListProfiles(c *gin.Context) {
	profiles, err := s.repo.ListProfiles(c.Request.Context())
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

func (s *Server) handleCreateProfile(c *gin.Context) {
	var p database.RiskProfile
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if p.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	p.IsSystem = false
	if err := s.repo.CreateProfile(c.Request.Context(), &p); err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleDeleteProfile(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	err := s.repo.DeleteProfile(c.Request.Context(), id)
	if errors.Is(err, database.ErrSystemProfile) {
		c.JSON(http.StatusForbidden, gin.H{"error": "system profiles cannot be deleted"})
		return
	}
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type applyProfileRequest struct {
	ProfileID int64 `json:"profile_id" binding:"required"`
}

func (s *Server) handleApplyProfile(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req applyProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := s.profiles.Apply(ctx, id, req.ProfileID); err != nil {
		s.notFoundOr500(c, err)
		return
	}
	settings, err := s.repo.GetSettings(ctx, id)
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}

	s.bus.Publish(events.Event{
		Type:    events.EventProfileApplied,
		ModelID: id,
		Data:    map[string]any{"profile_id": req.ProfileID},
	})
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleRecommendProfile(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	rec, err := s.profiles.Recommend(c.Request.Context(), id)
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleListSessions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	sessions, err := s.repo.ListSessions(c.Request.Context(), id, limit)
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// ============================================================================
// INCIDENTS
// ============================================================================

func (s *Server) handleListIncidents(c *gin.Context) {
	modelID, _ := strconv.ParseInt(c.Query("model_id"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	incidents, err := s.repo.ListIncidents(c.Request.Context(), modelID, limit)
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": incidents})
}

// ============================================================================
// EMERGENCY / GLOBAL TOGGLE
// ============================================================================

type emergencyPauseRequest struct {
	Target string `json:"target"`
}

func (s *Server) handleEmergencyPause(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req emergencyPauseRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.sched.EmergencyPause(c.Request.Context(), id, req.Target); err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (s *Server) handleEmergencyStopAll(c *gin.Context) {
	if err := s.sched.EmergencyStopAll(c.Request.Context()); err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) handleTradingEnable(c *gin.Context) {
	s.sched.SetTradingEnabled(true)
	c.JSON(http.StatusOK, gin.H{"trading_enabled": true})
}

func (s *Server) handleTradingDisable(c *gin.Context) {
	s.sched.SetTradingEnabled(false)
	c.JSON(http.StatusOK, gin.H{"trading_enabled": false})
}

func (s *Server) handleTradingStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"trading_enabled": s.sched.TradingEnabled()})
}
