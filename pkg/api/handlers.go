package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harun/trackd/pkg/analytics"
	"github.com/harun/trackd/pkg/session"
	"github.com/harun/trackd/pkg/storage"
)

const (
	msgInvalidRequest  = "Invalid request"
	msgSessionNotFound = "Session not found"
	msgSaveFailed      = "Failed to save session"
	msgTrackFailed     = "Failed to track action"
	msgRefreshFailed   = "Failed to refresh session"
	msgNoData          = "No data available"
	msgMetricsFailed   = "Failed to fetch metrics"
)

type sessionRequest struct {
	UserID string `json:"userId" binding:"required,uuid"`
}

type trackRequest struct {
	UserID string `json:"userId" binding:"required,uuid"`
	Action string `json:"action" binding:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func abortWith(c *gin.Context, code int, msg string, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(code, messageResponse{Message: msg})
}

func (s *Server) handleSaveSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, http.StatusBadRequest, msgInvalidRequest, err)
		return
	}

	id, outcome, err := s.cfg.Tracker.SaveOrRefresh(c.Request.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			abortWith(c, http.StatusConflict, msgSaveFailed, err)
			return
		}
		abortWith(c, http.StatusInternalServerError, msgSaveFailed, err)
		return
	}

	code := http.StatusOK
	if outcome == session.OutcomeCreated {
		code = http.StatusCreated
	}
	c.JSON(code, id)
}

func (s *Server) handleRefreshSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, http.StatusBadRequest, msgInvalidRequest, err)
		return
	}

	id, err := s.cfg.Tracker.RefreshSession(c.Request.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			abortWith(c, http.StatusNotFound, msgSessionNotFound, nil)
			return
		}
		abortWith(c, http.StatusInternalServerError, msgRefreshFailed, err)
		return
	}
	c.JSON(http.StatusOK, id)
}

func (s *Server) handleTrack(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, http.StatusBadRequest, msgInvalidRequest, err)
		return
	}
	actionType, err := session.ParseActionType(req.Action)
	if err != nil {
		abortWith(c, http.StatusBadRequest, msgInvalidRequest, err)
		return
	}

	id, err := s.cfg.Tracker.RecordAction(c.Request.Context(), req.UserID, actionType, c.GetHeader("Origin"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			abortWith(c, http.StatusNotFound, msgSessionNotFound, nil)
			return
		}
		abortWith(c, http.StatusInternalServerError, msgTrackFailed, err)
		return
	}
	c.JSON(http.StatusCreated, id)
}

func (s *Server) handleMetrics(c *gin.Context) {
	snap, err := s.cfg.Reader.Latest(c.Request.Context())
	if err != nil {
		if errors.Is(err, analytics.ErrNoDataYet) {
			abortWith(c, http.StatusServiceUnavailable, msgNoData, nil)
			return
		}
		abortWith(c, http.StatusInternalServerError, msgMetricsFailed, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":         "ok",
		"version":        s.cfg.Version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"stream_clients": s.cfg.Hub.Count(),
	}
	if s.cfg.Status != nil {
		for k, v := range s.cfg.Status(c.Request.Context()) {
			body[k] = v
		}
	}
	c.JSON(http.StatusOK, body)
}
