// Package api exposes the advisor over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"krishmitra-advisor/internal/advisor/orchestrator"
	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/internal/sessions"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readyTimeout = 2 * time.Second

type Advisor interface {
	Run(ctx context.Context, q models.Query) (models.SynthesizedAnswer, error)
}

type History interface {
	Append(ctx context.Context, q models.Query, a models.SynthesizedAnswer) error
	History(ctx context.Context, sessionID string, limit int) ([]sessions.Entry, error)
}

// ReadinessCheck pings one backend. *database.PostgresClient and friends satisfy it via Ping.
type ReadinessCheck func(ctx context.Context) error

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type AdviceRequest struct {
	Text      string `json:"text"`
	Location  string `json:"location"`
	Crop      string `json:"crop"`
	SessionID string `json:"sessionId"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type HistoryResponse struct {
	SessionID string           `json:"sessionId"`
	Entries   []sessions.Entry `json:"entries"`
}

type Server struct {
	engine  *gin.Engine
	advisor Advisor
	history History
	checks  map[string]ReadinessCheck
	log     Logger
}

// NewServer wires the routes. history may be nil, in which case answers are not recorded and
// the history endpoint reports 404.
func NewServer(advisor Advisor, history History, checks map[string]ReadinessCheck, log Logger) *Server {
	s := &Server{
		engine:  gin.New(),
		advisor: advisor,
		history: history,
		checks:  checks,
		log:     log,
	}
	s.engine.Use(gin.Recovery(), s.requestLog())

	s.engine.POST("/v1/advice", s.advice)
	s.engine.GET("/v1/sessions/:id/history", s.sessionHistory)
	s.engine.GET("/health", s.health)
	s.engine.GET("/ready", s.ready)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/metrics" || c.FullPath() == "/health" {
			return
		}
		s.log.Info("http request", map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"durationMs": time.Since(start).Milliseconds(),
		})
	}
}

func badRequest(c *gin.Context, kind, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: kind, Message: msg, Code: http.StatusBadRequest})
}

func (s *Server) advice(c *gin.Context) {
	var req AdviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(c, "empty_query", "text must not be empty")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	q := models.Query{Text: req.Text, Location: req.Location, Crop: req.Crop, SessionID: req.SessionID}
	answer, err := s.advisor.Run(c.Request.Context(), q)
	if errors.Is(err, orchestrator.ErrEmptyQuery) {
		badRequest(c, "empty_query", "text must not be empty")
		return
	}
	if err != nil {
		s.log.Error("advisor run failed", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "advisor failure", Code: http.StatusInternalServerError})
		return
	}

	if s.history != nil {
		if err := s.history.Append(c.Request.Context(), q, answer); err != nil {
			s.log.Warn("session history not recorded", map[string]interface{}{"sessionId": q.SessionID, "error": err.Error()})
		}
	}
	c.JSON(http.StatusOK, answer)
}

func (s *Server) sessionHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_configured", Message: "session history is disabled", Code: http.StatusNotFound})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	id := c.Param("id")
	entries, err := s.history.History(c.Request.Context(), id, limit)
	if errors.Is(err, sessions.ErrNoSessionID) {
		badRequest(c, "invalid_request", "session id is required")
		return
	}
	if err != nil {
		s.log.Warn("session history read failed", map[string]interface{}{"sessionId": id, "error": err.Error()})
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "session_store", Message: "session history unavailable", Code: http.StatusServiceUnavailable})
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{SessionID: id, Entries: entries})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": results,
		"time":   time.Now().Format(time.RFC3339),
	})
}
