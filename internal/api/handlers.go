package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"trading-orchestrator/internal/database"
	"trading-orchestrator/internal/secrets"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return id, true
}

func (s *Server) notFoundOr500(c *gin.Context, err error) {
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// ============================================================================
// MODELS
// ============================================================================

func (s *Server) handleListModels(c *gin.Context) {
	models, err := s.repo.ListModels(c.Request.Context())
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

type createModelRequest struct {
	Name           string          `json:"name" binding:"required"`
	Provider       string          `json:"provider" binding:"required"`
	AIModel        string          `json:"ai_model" binding:"required"`
	InitialCapital decimal.Decimal `json:"initial_capital" binding:"required"`
	ExchangeEnv    string          `json:"exchange_env"`
}

func (s *Server) handleCreateModel(c *gin.Context) {
	var req createModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.InitialCapital.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "initial_capital must be positive"})
		return
	}
	if req.ExchangeEnv == "" {
		req.ExchangeEnv = database.ExchangeTestnet
	}

	// New models start in the safest combination
	m := &database.Model{
		Name:           req.Name,
		Provider:       req.Provider,
		AIModel:        req.AIModel,
		InitialCapital: req.InitialCapital,
		Status:         database.ModelStatusActive,
		Environment:    database.EnvSimulation,
		Automation:     database.AutomationManual,
		ExchangeEnv:    req.ExchangeEnv,
	}
	if err := s.repo.CreateModel(c.Request.Context(), m); err != nil {
		s.notFoundOr500(c, err)
		return
	}

	if err := s.sched.SyncModels(c.Request.Context()); err != nil {
		s.logger.Error().Err(err).Msg("scheduler sync after model create failed")
	}
	c.JSON(http.StatusCreated, m)
}

func (s *Server) handleGetModel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	m, err := s.repo.GetModel(c.Request.Context(), id)
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type setFieldRequest struct {
	Value string `json:"value" binding:"required"`
}

func (s *Server) handleSetEnvironment(c *gin.Context) {
	s.setModelField(c, "environment", database.IncidentEnvironmentChange,
		map[string]bool{database.EnvSimulation: true, database.EnvLive: true},
		s.repo.UpdateModelEnvironment)
}

func (s *Server) handleSetAutomation(c *gin.Context) {
	s.setModelField(c, "automation", database.IncidentAutomationChange,
		map[string]bool{
			database.AutomationManual: true,
			database.AutomationSemi:   true,
			database.AutomationFull:   true,
		},
		s.repo.UpdateModelAutomation)
}

func (s *Server) handleSetStatus(c *gin.Context) {
	s.setModelField(c, "status", database.IncidentModeChange,
		map[string]bool{database.ModelStatusActive: true, database.ModelStatusPaused: true},
		s.repo.UpdateModelStatus)
}

func (s *Server) setModelField(
	c *gin.Context,
	field, incidentType string,
	allowed map[string]bool,
	update func(ctx context.Context, id int64, value string) error,
) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req setFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !allowed[req.Value] {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s %q", field, req.Value)})
		return
	}

	ctx := c.Request.Context()
	model, err := s.repo.GetModel(ctx, id)
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	previous := modelFieldValue(model, field)
	if previous == req.Value {
		c.JSON(http.StatusOK, model)
		return
	}

	if err := update(ctx, id, req.Value); err != nil {
		s.notFoundOr500(c, err)
		return
	}

	// Moving to live is worth a louder audit entry
	severity := database.SeverityLow
	if field == "environment" && req.Value == database.EnvLive {
		severity = database.SeverityMedium
	}
	inc := &database.Incident{
		ModelID:  &id,
		Type:     incidentType,
		Severity: severity,
		Message:  fmt.Sprintf("%s changed from %s to %s", field, previous, req.Value),
		Details:  map[string]any{"previous": previous, "new": req.Value},
	}
	if err := s.repo.CreateIncident(ctx, inc); err != nil {
		s.logger.Error().Err(err).Msg("failed to write change incident")
	}

	if field == "status" {
		if err := s.sched.SyncModels(ctx); err != nil {
			s.logger.Error().Err(err).Msg("scheduler sync after status change failed")
		}
	}

	model, err = s.repo.GetModel(ctx, id)
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, model)
}

func modelFieldValue(m *database.Model, field string) string {
	switch field {
	case "environment":
		return m.Environment
	case "automation":
		return m.Automation
	case "status":
		return m.Status
	}
	return ""
}

// ============================================================================
// SETTINGS / POSITIONS / TRADES
// ============================================================================

func (s *Server) handleGetSettings(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	settings, err := s.repo.GetSettings(c.Request.Context(), id)
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var settings database.ModelSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings.ModelID = id

	ctx := c.Request.Context()
	if err := s.repo.UpdateSettings(ctx, &settings); err != nil {
		s.notFoundOr500(c, err)
		return
	}
	if err := s.sched.RefreshModel(ctx, id); err != nil {
		s.logger.Error().Err(err).Msg("scheduler refresh after settings update failed")
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleListPositions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	positions, err := s.repo.ListPositions(c.Request.Context(), id)
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) handleListTrades(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	trades, err := s.repo.ListTrades(c.Request.Context(), id, limit)
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleRunCycle(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	report, err := s.engine.RunCycle(c.Request.Context(), id)
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ============================================================================
// CREDENTIALS
// ============================================================================

type putCredentialsRequest struct {
	Environment string `json:"environment" binding:"required"`
	APIKey      string `json:"api_key" binding:"required"`
	SecretKey   string `json:"secret_key" binding:"required"`
}

func (s *Server) handlePutCredentials(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req putCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Environment != database.ExchangeTestnet && req.Environment != database.ExchangeMainnet {
		c.JSON(http.StatusBadRequest, gin.H{"error": "environment must be testnet or mainnet"})
		return
	}

	ctx := c.Request.Context()
	if _, err := s.repo.GetModel(ctx, id); err != nil {
		s.notFoundOr500(c, err)
		return
	}
	err := s.secrets.Put(ctx, id, req.Environment, secrets.Credentials{
		APIKey:    req.APIKey,
		SecretKey: req.SecretKey,
	})
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	s.clients.Invalidate(id)
	c.JSON(http.StatusOK, gin.H{"status": "stored"})
}

func (s *Server) handleDeleteCredentials(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	env := c.Param("env")
	if env != database.ExchangeTestnet && env != database.ExchangeMainnet {
		c.JSON(http.StatusBadRequest, gin.H{"error": "environment must be testnet or mainnet"})
		return
	}
	if err := s.secrets.Delete(c.Request.Context(), id, env); err != nil {
		s.notFoundOr500(c, err)
		return
	}
	s.clients.Invalidate(id)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
