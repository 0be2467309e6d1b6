package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"studycal/internal/config"
	appLog "studycal/internal/log"
	"studycal/internal/metrics"
	"studycal/internal/planner"
)

const (
	eventsCacheTTL = 30 * time.Second
	// maxEventsCacheEntries bounds the distinct /api/events windows kept.
	maxEventsCacheEntries = 16
	// maxEventsHorizons bounds ?days= as a multiple of the configured horizon.
	maxEventsHorizons = 10
)

// Server exposes the planner over HTTP.
type Server struct {
	cfg     *config.Config
	planner *planner.Service
	metrics *metrics.Metrics
	router  *gin.Engine
	now     func() time.Time

	// Expanded feed occurrences, keyed by query window, so repeated
	// /api/events calls do not refetch and re-expand every feed.
	eventsMu    sync.RWMutex
	eventsCache map[eventsKey]*eventsCache
}

func NewServer(cfg *config.Config, svc *planner.Service, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:         cfg,
		planner:     svc,
		metrics:     m,
		now:         time.Now,
		eventsCache: map[eventsKey]*eventsCache{},
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(s.metrics.Middleware())
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		r.Use(basicAuth(s.cfg.BasicAuth.Username, s.cfg.BasicAuth.Password))
	}

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	api.GET("/events", s.handleEvents)
	api.POST("/schedule", s.handleSchedule)
	api.POST("/schedule/export", s.handleExport)
	api.POST("/stats", s.handleStats)
	api.POST("/history/:session/undo", s.handleUndo)
	api.POST("/history/:session/redo", s.handleRedo)
	return r
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials are treated as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

// StartRefresher refreshes the feed cache on cfg.RefreshCron and once
// immediately. The returned function stops the schedule and waits for a
// running refresh to finish.
func (s *Server) StartRefresher(ctx context.Context) (func(), error) {
	c := cron.New(cron.WithLocation(s.planner.Location()))
	_, err := c.AddFunc(s.cfg.RefreshCron, func() {
		if err := s.Refresh(ctx); err != nil {
			appLog.Error("scheduled feed refresh failed", err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	appLog.Info("feed refresher started", "schedule", s.cfg.RefreshCron)

	go func() {
		if err := s.Refresh(ctx); err != nil {
			appLog.Error("initial feed refresh failed", err)
		}
	}()

	return func() {
		<-c.Stop().Done()
	}, nil
}

// Refresh re-imports the default events window into the cache.
func (s *Server) Refresh(ctx context.Context) error {
	key := eventsKey{days: s.cfg.HorizonDays}
	resp, err := s.loadEvents(ctx, key)
	if err != nil {
		return err
	}
	s.storeEvents(key, resp)
	appLog.Info("feed cache refreshed", "occurrences", len(resp.Occurrences))
	return nil
}
