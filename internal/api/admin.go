package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fundlens/lead-engine/internal/predict"
)

// refreshTimeout bounds one background batch run.
const refreshTimeout = 30 * time.Minute

// adminMiddleware validates an HMAC-signed JWT with an "admin" role claim.
func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.cfg.AdminJWTSecret == "" {
			return echo.NewHTTPError(http.StatusInternalServerError, "Server admin configuration error")
		}

		authHeader := c.Request().Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing or malformed Authorization header")
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(s.cfg.AdminJWTSecret), nil
		})
		if err != nil || !token.Valid {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || claims["role"] != "admin" {
			return echo.NewHTTPError(http.StatusForbidden, "Admin role required")
		}

		return next(c)
	}
}

func (s *Server) handleTriggerRefresh(c echo.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]any{
			"error":  "A refresh is already running",
			"job_id": job.ID,
		})
	}

	opts := predict.RunOptions{
		States:       splitCSV(c.QueryParam("states")),
		ForceRefresh: c.QueryParam("force") == "true",
	}

	// context.WithoutCancel detaches from the HTTP lifecycle; the timeout
	// keeps a wedged run from holding the lock forever.
	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), refreshTimeout,
	)

	jobID := uuid.New().String()[:8]
	job := &refreshJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()

		summary, err := s.Runner.Run(jobCtx, opts)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			s.log.Error().Err(err).Str("job_id", jobID).Msg("Refresh job failed")
			return
		}
		job.Status = "completed"
		job.Summary = summary
		s.log.Info().Str("job_id", jobID).Str("batch_id", summary.BatchID).Int("total", summary.Total).Msg("Refresh job completed")
	}()

	return c.JSON(http.StatusAccepted, map[string]any{
		"message": "Refresh started",
		"job_id":  jobID,
		"poll":    "/api/v1/refresh/status",
	})
}

func (s *Server) handleRecentRuns(c echo.Context) error {
	limit := 20
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}

	runs, err := s.Store.RecentRuns(c.Request().Context(), limit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return c.NoContent(http.StatusRequestTimeout)
		}
		s.log.Error().Err(err).Msg("Failed to list runs")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, map[string]any{"runs": runs})
}
