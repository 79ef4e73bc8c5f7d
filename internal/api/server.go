package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/fundlens/lead-engine/internal/config"
	"github.com/fundlens/lead-engine/internal/db"
	"github.com/fundlens/lead-engine/internal/models"
	"github.com/fundlens/lead-engine/internal/predict"
	"github.com/fundlens/lead-engine/internal/query"
)

// Runner triggers batch runs; satisfied by *predict.Engine.
type Runner interface {
	Run(ctx context.Context, opts predict.RunOptions) (*models.RunSummary, error)
}

type Server struct {
	Echo   *echo.Echo
	Query  *query.Service
	Store  *db.Store
	Runner Runner

	cfg config.Config
	log zerolog.Logger

	// Background refresh tracking
	jobMu      sync.Mutex
	runningJob *refreshJob
}

type refreshJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Summary   *models.RunSummary `json:"summary,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

func NewServer(cfg config.Config, svc *query.Service, store *db.Store, runner Runner, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s := &Server{
		Echo:   e,
		Query:  svc,
		Store:  store,
		Runner: runner,
		cfg:    cfg,
		log:    log.With().Str("component", "api").Logger(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api/v1")
	api.GET("/opportunities", s.handleListOpportunities)
	api.GET("/opportunities/:id", s.handleGetOpportunity)
	api.PATCH("/opportunities/:id/status", s.handleUpdateStatus)
	api.GET("/stats", s.handleGetStats)
	api.GET("/refresh/status", s.handleRefreshStatus)

	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/refresh", s.handleTriggerRefresh)
	admin.GET("/refresh/runs", s.handleRecentRuns)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleListOpportunities(c echo.Context) error {
	params := db.ListParams{
		Brand:  c.QueryParam("brand"),
		SortBy: c.QueryParam("sort"),
	}

	for _, t := range splitCSV(c.QueryParam("type")) {
		params.Types = append(params.Types, models.PredictionType(t))
	}
	params.States = splitCSV(c.QueryParam("state"))
	for _, st := range splitCSV(c.QueryParam("status")) {
		params.Statuses = append(params.Statuses, models.Status(st))
	}

	if v, err := strconv.ParseFloat(c.QueryParam("min_confidence"), 64); err == nil {
		params.MinConfidence = v
	}
	if v, err := strconv.ParseFloat(c.QueryParam("min_value"), 64); err == nil {
		params.MinValue = v
	}
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil {
		params.Limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil {
		params.Offset = v
	}
	params.IncludeExpired = c.QueryParam("include_expired") == "true"
	params.SortAsc = strings.EqualFold(c.QueryParam("order"), "asc")

	result, err := s.Query.List(c.Request().Context(), params)
	if err != nil {
		if errors.Is(err, query.ErrInvalidFilter) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		s.log.Error().Err(err).Msg("Failed to list opportunities")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetOpportunity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid opportunity ID"})
	}

	// Fetching a lead marks it viewed unless the caller opts out.
	markViewed := c.QueryParam("mark_viewed") != "false"

	opp, err := s.Query.Get(c.Request().Context(), id, markViewed)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
		}
		s.log.Error().Err(err).Str("id", id.String()).Msg("Failed to get opportunity")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, opp)
}

func (s *Server) handleUpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid opportunity ID"})
	}

	var req struct {
		Status models.Status `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if err := s.Query.UpdateStatus(c.Request().Context(), id, req.Status); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
		case errors.Is(err, models.ErrInvalidTransition):
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		case errors.Is(err, query.ErrInvalidFilter):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		s.log.Error().Err(err).Str("id", id.String()).Msg("Failed to update status")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	opp, err := s.Query.Get(c.Request().Context(), id, false)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, opp)
}

func (s *Server) handleGetStats(c echo.Context) error {
	includeExpired := c.QueryParam("include_expired") == "true"

	stats, err := s.Query.Stats(c.Request().Context(), includeExpired)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to compute stats")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleRefreshStatus(c echo.Context) error {
	lastRun, err := s.Query.LastRefresh(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	s.jobMu.Lock()
	job := s.runningJob
	s.jobMu.Unlock()

	resp := map[string]any{"last_run": lastRun}
	if job != nil {
		resp["job"] = job
	}
	return c.JSON(http.StatusOK, resp)
}

// splitCSV splits a comma-separated query parameter into trimmed non-empty strings.
func splitCSV(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}
