package api

import (
	"errors"
	"net/http"
	"strconv"

	"trading-orchestrator/internal/database"
	"trading-orchestrator/internal/pending"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (s *Server) handleListPending(c *gin.Context) {
	modelID, _ := strconv.ParseInt(c.Query("model_id"), 10, 64)
	decisions, err := s.queue.List(c.Request.Context(), modelID)
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": decisions})
}

func (s *Server) handleListModelPending(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	decisions, err := s.queue.List(c.Request.Context(), id)
	if err != nil {
		s.notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": decisions})
}

type approvePendingRequest struct {
	Quantity *decimal.Decimal `json:"quantity"`
	Leverage *int             `json:"leverage"`
	Note     string           `json:"note"`
}

func (s *Server) handleApprovePending(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req approvePendingRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity != nil && !req.Quantity.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be positive"})
		return
	}

	pd, err := s.queue.Approve(c.Request.Context(), id, &pending.Modifications{
		Quantity: req.Quantity,
		Leverage: req.Leverage,
		Note:     req.Note,
	})
	switch {
	case errors.Is(err, pending.ErrExpired):
		c.JSON(http.StatusConflict, gin.H{"error": "pending decision has expired"})
	case errors.Is(err, database.ErrNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": "pending decision already resolved"})
	case err != nil:
		s.notFoundOr500(c, err)
	default:
		c.JSON(http.StatusOK, pd)
	}
}

type rejectPendingRequest struct {
	Note string `json:"note"`
}

func (s *Server) handleRejectPending(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req rejectPendingRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pd, err := s.queue.Reject(c.Request.Context(), id, req.Note)
	switch {
	case errors.Is(err, database.ErrNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": "pending decision already resolved"})
	case err != nil:
		s.notFoundOr500(c, err)
	default:
		c.JSON(http.StatusOK, pd)
	}
}
