package web

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"studycal/internal/history"
	appLog "studycal/internal/log"
	"studycal/internal/model"
	"studycal/internal/planner"
	"studycal/internal/scheduler"
	"studycal/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

type eventsKey struct {
	days     int
	backfill int
}

type eventsCache struct {
	resp      eventsResponse
	updatedAt time.Time
}

type eventsResponse struct {
	Occurrences     []model.Occurrence `json:"occurrences"`
	RangeStart      time.Time          `json:"range_start"`
	RangeEnd        time.Time          `json:"range_end"`
	DisplayTimeZone string             `json:"display_timezone"`
}

type scheduleResponse struct {
	Events      []scheduler.Record `json:"events"`
	Placed      int                `json:"placed"`
	Unscheduled int                `json:"unscheduled"`
	WindowStart time.Time          `json:"window_start"`
	WindowEnd   time.Time          `json:"window_end"`
	Stored      int                `json:"stored,omitempty"`
	SnapshotID  string             `json:"snapshot_id,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// handleEvents returns feed occurrences for a window around now.
//
// GET /api/events?days=31&backfill=0
func (s *Server) handleEvents(c *gin.Context) {
	key := eventsKey{
		days:     parseIntDefault(c.Query("days"), s.cfg.HorizonDays),
		backfill: parseIntDefault(c.Query("backfill"), 0),
	}
	horizon := max(s.cfg.HorizonDays, 1)
	if key.days <= 0 {
		key.days = horizon
	}
	key.days = min(key.days, maxEventsHorizons*horizon)
	key.backfill = min(max(key.backfill, 0), horizon)

	s.eventsMu.RLock()
	ec := s.eventsCache[key]
	s.eventsMu.RUnlock()
	if ec != nil && s.now().Sub(ec.updatedAt) < eventsCacheTTL {
		c.JSON(http.StatusOK, ec.resp)
		return
	}

	resp, err := s.loadEvents(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	s.storeEvents(key, resp)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) loadEvents(ctx context.Context, key eventsKey) (eventsResponse, error) {
	loc := s.planner.Location()
	now := s.now().In(loc)
	start := now.AddDate(0, 0, -key.backfill)
	end := now.AddDate(0, 0, key.days)

	occs, err := s.planner.Import(ctx, start, end)
	if err != nil {
		return eventsResponse{}, err
	}
	if occs == nil {
		occs = []model.Occurrence{}
	}
	return eventsResponse{
		Occurrences:     occs,
		RangeStart:      start,
		RangeEnd:        end,
		DisplayTimeZone: loc.String(),
	}, nil
}

// storeEvents caches resp under key. Expired entries are dropped first,
// then the oldest one while the cache is full.
func (s *Server) storeEvents(key eventsKey, resp eventsResponse) {
	now := s.now()
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	for k, ec := range s.eventsCache {
		if now.Sub(ec.updatedAt) >= eventsCacheTTL {
			delete(s.eventsCache, k)
		}
	}
	if _, ok := s.eventsCache[key]; !ok && len(s.eventsCache) >= maxEventsCacheEntries {
		var oldest eventsKey
		var oldestAt time.Time
		for k, ec := range s.eventsCache {
			if oldestAt.IsZero() || ec.updatedAt.Before(oldestAt) {
				oldest, oldestAt = k, ec.updatedAt
			}
		}
		delete(s.eventsCache, oldest)
	}
	s.eventsCache[key] = &eventsCache{resp: resp, updatedAt: now}
}

func (s *Server) handleSchedule(c *gin.Context) {
	var req planner.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	out, err := s.planner.Schedule(c.Request.Context(), req, nil)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := scheduleResponse{
		Events:      scheduler.Records(out.Result.Events),
		Placed:      len(out.Result.Placed()),
		Unscheduled: len(out.Result.Unscheduled()),
		WindowStart: out.Result.WindowStart,
		WindowEnd:   out.Result.WindowEnd,
		Stored:      out.Stored,
	}
	if out.Snapshot != nil {
		resp.SnapshotID = out.Snapshot.ID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleExport(c *gin.Context) {
	var req planner.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	out, err := s.planner.Schedule(c.Request.Context(), req, nil)
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := s.planner.Export(&buf, out, c.Query("name")); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="studycal.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

func (s *Server) handleStats(c *gin.Context) {
	var req planner.StatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	report, err := s.planner.Stats(c.Request.Context(), req, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleUndo(c *gin.Context) {
	snap, err := s.planner.Undo(c.Request.Context(), c.Param("session"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleRedo(c *gin.Context) {
	snap, err := s.planner.Redo(c.Request.Context(), c.Param("session"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload: " + err.Error()})
}

// respondError maps domain errors onto status codes. Unexpected errors are
// logged and reported without detail.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, scheduler.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, history.ErrEmpty):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		appLog.Error("request failed", err, "path", c.FullPath())
		_ = c.Error(err)
		c.JSON(status, errorResponse{Error: "internal error"})
		return
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
