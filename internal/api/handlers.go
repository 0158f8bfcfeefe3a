package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"futures-advisor/internal/auth"
	"futures-advisor/internal/signal"
)

// handleHealth reports service liveness and component states
func (s *Server) handleHealth(c *gin.Context) {
	components := gin.H{}
	healthy := true

	if s.breaker != nil {
		state := s.breaker.State()
		components["data_source"] = string(state)
	}

	if s.repo != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.repo.HealthCheck(ctx); err != nil {
			components["database"] = "unhealthy"
			healthy = false
		} else {
			components["database"] = "healthy"
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":     status,
		"components": components,
		"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleStatus reports engine and transport diagnostics
func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"thresholds_version": s.engine.Thresholds().Version(),
		"symbols_tracked":    len(s.engine.Results()),
		"ws_clients":         s.hub.ClientCount(),
		"uptime":             time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.breaker != nil {
		status["data_source"] = s.breaker.Status()
	}
	successResponse(c, status)
}

// handleListAdvice returns the latest result for every tracked symbol
func (s *Server) handleListAdvice(c *gin.Context) {
	successResponse(c, s.engine.Results())
}

// handleGetAdvice returns the latest result for one symbol
func (s *Server) handleGetAdvice(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	res, ok := s.engine.LastResult(symbol)
	if !ok {
		errorResponse(c, http.StatusNotFound, "no advice for symbol "+symbol)
		return
	}
	successResponse(c, res)
}

// handleGetTrace returns recent pipeline traces for one symbol
func (s *Server) handleGetTrace(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	limit := 10
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			errorResponse(c, http.StatusBadRequest, "limit must be 1..100")
			return
		}
		limit = n
	}

	traces := s.engine.Traces(symbol, limit)
	if len(traces) == 0 {
		errorResponse(c, http.StatusNotFound, "no traces for symbol "+symbol)
		return
	}
	successResponse(c, traces)
}

// handleGetTags returns the closed reason-tag vocabulary
func (s *Server) handleGetTags(c *gin.Context) {
	successResponse(c, signal.TagCatalog())
}

// handleGetThresholds returns the active threshold snapshot
func (s *Server) handleGetThresholds(c *gin.Context) {
	t := s.engine.Thresholds()
	successResponse(c, gin.H{
		"version":    t.Version(),
		"thresholds": t,
	})
}

// handleReloadThresholds recompiles the threshold file and publishes it
func (s *Server) handleReloadThresholds(c *gin.Context) {
	version, err := s.engine.ReloadThresholds()

	s.trail.RecordReload(version, err)
	if s.eventBus != nil {
		s.eventBus.PublishThresholdsReloaded(version, err)
	}

	if err != nil {
		// The previous set stays active; report both facts.
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":          true,
			"message":        err.Error(),
			"active_version": version,
		})
		return
	}
	successResponse(c, gin.H{"version": version})
}

// handleClearState wipes decision state for one symbol or for all symbols
func (s *Server) handleClearState(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	actor := "anonymous"
	if claims, ok := auth.OperatorFromContext(c); ok {
		actor = claims.Name
	}

	s.engine.ClearState(symbol)
	s.trail.RecordStateClear(symbol, actor)
	if s.eventBus != nil {
		s.eventBus.PublishStateCleared(symbol)
	}

	scope := symbol
	if scope == "" {
		scope = "all"
	}
	successResponse(c, gin.H{"cleared": scope})
}

// handleGetHistory returns persisted results for one symbol
func (s *Server) handleGetHistory(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			errorResponse(c, http.StatusBadRequest, "limit must be 1..500")
			return
		}
		limit = n
	}

	records, err := s.repo.RecentBySymbol(c.Request.Context(), symbol, limit)
	if err != nil {
		s.logger.Error("history query failed", "symbol", symbol, "error", err.Error())
		errorResponse(c, http.StatusInternalServerError, "failed to query history")
		return
	}
	successResponse(c, records)
}
