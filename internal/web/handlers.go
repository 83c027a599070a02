package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"bookcal/internal/action"
	"bookcal/internal/booking"
	"bookcal/internal/ics"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pong": true})
}

// handleEcho logs and returns the request body. It is the default target
// of booking notifications.
func (s *Server) handleEcho(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	s.logger.Infow("echo", "method", c.Request.Method, "body", string(body))
	if len(body) > 0 && json.Valid(body) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"body": string(body)})
}

// GET /api/calendar?offset=N
func (s *Server) handleCalendarJSON(c *gin.Context) {
	offset := parseIntDefault(c.Query("offset"), 0)
	c.JSON(http.StatusOK, s.sched.View(c.Request.Context(), offset))
}

type toggleRequest struct {
	Offset int `json:"offset"`
	Day    int `json:"day"`
	Row    int `json:"row"`
}

type toggleResponse struct {
	Booked bool   `json:"booked"`
	Label  string `json:"label"`
	Date   string `json:"date"`
	Day    int    `json:"day"`
	Row    int    `json:"row"`

	// Effects are the configured book/unbook action's effects, for the
	// page to replay.
	Effects []action.Call `json:"effects"`
}

// POST /api/calendar/toggle {"offset":0,"day":3,"row":2}
func (s *Server) handleToggle(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec := &action.Recorder{}
	ctx := booking.ContextWithDispatcher(c.Request.Context(), s.recordingDispatcher(rec))
	cell, err := s.sched.ToggleAt(ctx, req.Offset, req.Day, req.Row)
	switch {
	case errors.Is(err, booking.ErrOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, booking.ErrClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "toggle failed"})
		return
	}

	c.JSON(http.StatusOK, toggleResponse{
		Booked:  cell.Booked,
		Label:   cell.Time,
		Date:    cell.Date,
		Day:     cell.Day,
		Row:     cell.Row,
		Effects: effectsOf(rec),
	})
}

type dispatchRequest struct {
	Action string `json:"action" binding:"required"`
}

// POST /api/dispatch {"action":"alert:hi"} runs the action against a
// recorder and returns the effects for the caller to replay. Store and api
// verbs are returned as effects too; the server never runs them.
func (s *Server) handleDispatch(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}

	rec := &action.Recorder{}
	s.recordingDispatcher(rec).Dispatch(c.Request.Context(), req.Action)
	c.JSON(http.StatusOK, gin.H{"effects": effectsOf(rec)})
}

func effectsOf(rec *action.Recorder) []action.Call {
	if calls := rec.Calls(); calls != nil {
		return calls
	}
	return []action.Call{}
}

func (s *Server) handleICS(c *gin.Context) {
	body := ics.Export(s.sched.Slots(c.Request.Context()), ics.ExportOptions{Name: "bookcal"})
	c.Header("Content-Disposition", `inline; filename="bookcal.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
}

// handlePreview serves the last captured PNG.
func (s *Server) handlePreview(c *gin.Context) {
	if _, err := os.Stat(s.cfg.PreviewPath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no preview captured yet"})
		return
	}
	c.File(s.cfg.PreviewPath)
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
