// Package server exposes the analysis cycle over HTTP for the dashboard. It
// returns data only; rendering happens in the client.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gyeh/readmitstats/internal/analysis"
	"github.com/gyeh/readmitstats/internal/claims"
	"github.com/gyeh/readmitstats/internal/model"
)

// Analyzer runs one analysis request. *analysis.Orchestrator satisfies it.
type Analyzer interface {
	Run(ctx context.Context, sess analysis.Session, req analysis.Request) (*analysis.Result, error)
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the dashboard data API.
type Server struct {
	echo     *echo.Echo
	analyzer Analyzer
	pinger   Pinger
	sessions *SessionStore
	log      zerolog.Logger
}

// New builds the router.
func New(analyzer Analyzer, pinger Pinger, sessions *SessionStore, log zerolog.Logger) *Server {
	log = log.With().Str("component", "server").Logger()
	s := &Server{
		echo:     echo.New(),
		analyzer: analyzer,
		pinger:   pinger,
		sessions: sessions,
		log:      log,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(Recovery(log))
	s.echo.Use(RequestID())
	s.echo.Use(Logger(log))

	s.echo.GET("/health", s.health)
	v1 := s.echo.Group("/api/v1")
	v1.POST("/analysis", s.analyze)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("starting server")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info().Msg("server stopped")
	return nil
}

// AnalysisRequest is the body of POST /api/v1/analysis.
type AnalysisRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Filter    string `json:"filter,omitempty"`
	KeepScope bool   `json:"keep_scope,omitempty"`
}

// AnalysisResponse is the reply to POST /api/v1/analysis.
type AnalysisResponse struct {
	SessionID    string                       `json:"session_id"`
	Status       string                       `json:"status"`
	TooBroad     bool                         `json:"too_broad"`
	Filter       string                       `json:"filter"`
	Codes        []model.DiagnosisDescription `json:"codes"`
	States       []analysis.StateRate         `json:"states"`
	Top          []analysis.StateRate         `json:"top"`
	MinRate      float64                      `json:"min_rate"`
	MaxRate      float64                      `json:"max_rate"`
	Admissions   int                          `json:"admissions"`
	Readmissions int                          `json:"readmissions"`
	Unplaced     int64                        `json:"unplaced"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) analyze(c echo.Context) error {
	var body AnalysisRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	var id uuid.UUID
	if body.SessionID != "" {
		parsed, err := uuid.Parse(body.SessionID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid session_id"})
		}
		id = parsed
	}
	sess := s.sessions.Load(id)

	res, err := s.analyzer.Run(c.Request().Context(), sess, analysis.Request{
		Text:      body.Filter,
		KeepScope: body.KeepScope,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, claims.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		s.log.Error().Err(err).Str("session", sess.ID.String()).Msg("analysis failed")
		return c.JSON(status, errorResponse{Error: "analysis unavailable"})
	}
	s.sessions.Save(res.Session)

	filter := ""
	if !res.Scope.IsUniversal() {
		filter = res.Scope.Filter
		if filter == "" {
			filter = res.Scope.String()
		}
	}
	return c.JSON(http.StatusOK, AnalysisResponse{
		SessionID:    res.Session.ID.String(),
		Status:       res.Status,
		TooBroad:     res.TooBroad,
		Filter:       filter,
		Codes:        nonNil(res.Codes),
		States:       nonNil(res.States),
		Top:          nonNil(res.Top),
		MinRate:      res.MinRate,
		MaxRate:      res.MaxRate,
		Admissions:   res.Admissions,
		Readmissions: res.Readmissions,
		Unplaced:     res.Unplaced,
	})
}

func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.pinger.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
