package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/foxseedlab/sessiondesk/internal/desk"
	"github.com/foxseedlab/sessiondesk/internal/draft"
	"github.com/foxseedlab/sessiondesk/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultRecordLimit = 50
	maxRecordLimit     = 500
)

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	if s.gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	desks := s.router.Group("/desks/:desk")
	desks.Use(requireDeskID())
	desks.GET("/ws", s.handleDeskSocket)
	desks.GET("/session", s.handleSessionView)

	s.router.GET("/patients/:patient/sessions", s.handlePatientSessions)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "desks": len(s.manager.DeskIDs())})
}

type sessionView struct {
	Session session.Snapshot      `json:"session"`
	Alerts  []session.AlertStatus `json:"alerts"`
	Unsaved int                   `json:"unsaved_records"`
	Draft   *draft.Snapshot       `json:"notes_draft,omitempty"`
}

func (s *Server) handleSessionView(c *gin.Context) {
	d, err := s.manager.Get(c.Request.Context(), c.Param("desk"))
	if err != nil {
		writeError(c, err)
		return
	}
	view := sessionView{
		Session: d.Controller.Snapshot(),
		Alerts:  d.Controller.Alerts(),
		Unsaved: d.Controller.UnsavedRecords(),
	}
	notes, _ := d.Draft(desk.NotesDraftName)
	pending, err := notes.Pending(c.Request.Context())
	if err != nil {
		slog.Warn("failed to read pending notes draft", "error", err, "desk_id", d.ID)
	}
	view.Draft = pending
	c.JSON(http.StatusOK, view)
}

func (s *Server) handlePatientSessions(c *gin.Context) {
	if s.records == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "record store is not configured"})
		return
	}
	limit := defaultRecordLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRecordLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}
	records, err := s.records.ListSessionRecordsByPatient(c.Request.Context(), c.Param("patient"), limit)
	if err != nil {
		slog.Error("failed to list session records", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list session records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func requireDeskID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !validDeskID(c.Param("desk")) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid desk id"})
			return
		}
		c.Next()
	}
}

func validDeskID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, session.ErrClosed) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}
	slog.Error("request failed", "error", err, "path", c.FullPath())
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
