// Package ops exposes a read-only HTTP API over the agent's current state
// for local operators and fleet dashboards. It never mutates the agent;
// lifecycle control stays with the orchestrator.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lifeline-project/lifeline"
	"github.com/lifeline-project/lifeline/internal/health"
	"github.com/lifeline-project/lifeline/internal/journal"
	"github.com/lifeline-project/lifeline/internal/logging"
)

// Server serves the operator API.
type Server struct {
	engine  *lifeline.Engine
	journal *journal.Journal
	monitor *health.Monitor
	addr    string
	logger  zerolog.Logger
}

// New builds an operator API server. journal and monitor may be nil; their
// endpoints then report 404.
func New(engine *lifeline.Engine, j *journal.Journal, monitor *health.Monitor, addr string) *Server {
	return &Server{
		engine:  engine,
		journal: j,
		monitor: monitor,
		addr:    addr,
		logger:  logging.Component("ops"),
	}
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "OPTIONS"}
	router.Use(cors.New(corsCfg))

	api := router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/config", s.handleConfig)
	api.GET("/players", s.handlePlayers)
	if s.journal != nil {
		api.GET("/history", s.handleHistory)
	}
	if s.monitor != nil {
		api.GET("/system", s.handleSystem)
	}

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info().Str("addr", s.addr).Msg("operator API listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shut down operator API: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("operator API: %w", err)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"server_id": s.engine.ServerID(),
		"state":     s.engine.State().String(),
		"healthy":   s.engine.Healthy(),
	})
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"settings":        s.engine.ConfigSettings(),
		"initial_players": s.engine.InitialPlayers(),
		"connection_info": s.engine.GameServerConnectionInfo(),
	})
}

func (s *Server) handlePlayers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"players": s.engine.ConnectedPlayers(),
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit < 1 || limit > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
	}

	entries, err := s.journal.Recent(limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("journal query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleSystem(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"info":    health.GetSystemInfo(),
		"usage":   s.monitor.Last(),
		"healthy": s.monitor.Healthy(),
	})
}
