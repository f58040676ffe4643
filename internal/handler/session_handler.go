package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/dto"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/service"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/response"
)

// SessionHandler exposes read and administrative session endpoints. All
// lifecycle mutations flow through webhooks and the scheduler; the HTTP
// surface only observes, reprocesses, and cancels.
type SessionHandler struct {
	sessions   *service.SessionService
	attendance *service.AttendanceService
	reports    *service.ReportService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions *service.SessionService, attendance *service.AttendanceService, reports *service.ReportService) *SessionHandler {
	return &SessionHandler{sessions: sessions, attendance: attendance, reports: reports}
}

// List godoc
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Param academyId query string false "Filter by academy"
// @Param kind query string false "Filter by kind"
// @Param status query string false "Filter by status"
// @Param teacherId query string false "Filter by teacher"
// @Param studentId query string false "Filter by student"
// @Param from query string false "Scheduled from (RFC3339)"
// @Param to query string false "Scheduled before (RFC3339)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	var filter models.SessionFilter
	filter.AcademyID = c.Query("academyId")
	filter.TeacherID = c.Query("teacherId")
	filter.StudentID = c.Query("studentId")
	if kind := models.SessionKind(c.Query("kind")); kind != "" && kind.Valid() {
		filter.Kind = &kind
	}
	if status := models.SessionStatus(c.Query("status")); status != "" && status.Valid() {
		filter.Status = &status
	}
	if from, err := time.Parse(time.RFC3339, c.Query("from")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("to")); err == nil {
		filter.To = &to
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	// Non-superadmins only ever see their own tenant.
	if claims := claimsFromContext(c); claims != nil && claims.Role != models.RoleSuperAdmin {
		filter.AcademyID = claims.AcademyID
	}

	sessions, pagination, err := h.sessions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Get godoc
// @Summary Get session detail
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Window godoc
// @Summary Get a session's current timing window
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{id}/window [get]
func (h *SessionHandler) Window(c *gin.Context) {
	session, window, err := h.sessions.Window(c.Request.Context(), c.Param("id"), time.Now().UTC())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.SessionWindowResponse{
		Session: session,
		Window:  dto.NewTimingWindowResponse(window),
	}, nil)
}

// Attendance godoc
// @Summary Get persisted attendance verdicts for a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{id}/attendance [get]
func (h *SessionHandler) Attendance(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.sessions.Get(c.Request.Context(), sessionID); err != nil {
		response.Error(c, err)
		return
	}
	verdicts, err := h.attendance.Verdicts(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.SessionAttendanceResponse{
		SessionID: sessionID,
		Verdicts:  verdicts,
	}, nil)
}

// Cycles godoc
// @Summary Get a participant's join/leave cycles for a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param userId path string true "User ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{id}/attendance/{userId}/cycles [get]
func (h *SessionHandler) Cycles(c *gin.Context) {
	sessionID := c.Param("id")
	userID := c.Param("userId")
	cycles, err := h.attendance.Cycles(c.Request.Context(), sessionID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ParticipantCyclesResponse{
		SessionID: sessionID,
		UserID:    userID,
		Cycles:    cycles,
	}, nil)
}

// Reprocess godoc
// @Summary Recompute attendance verdicts for a finalized session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{id}/reprocess [post]
func (h *SessionHandler) Reprocess(c *gin.Context) {
	verdicts, err := h.sessions.Reprocess(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.SessionAttendanceResponse{
		SessionID: c.Param("id"),
		Verdicts:  verdicts,
	}, nil)
}

// Cancel godoc
// @Summary Cancel a session before it starts
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{id}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	applied, err := h.sessions.Cancel(c.Request.Context(), c.Param("id"), time.Now().UTC())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"cancelled": applied}, nil)
}

// Report godoc
// @Summary Download a session attendance report
// @Tags Sessions
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /sessions/{id}/report [get]
func (h *SessionHandler) Report(c *gin.Context) {
	format := service.ReportFormat(c.DefaultQuery("format", "csv"))
	report, err := h.reports.SessionReport(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+report.Filename)
	c.Data(http.StatusOK, report.ContentType, report.Content)
}
