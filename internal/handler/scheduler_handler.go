package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/dto"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/service"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/response"
)

// SchedulerHandler exposes the manual tick trigger for operators.
type SchedulerHandler struct {
	scheduler *service.SchedulerService
}

// NewSchedulerHandler constructs SchedulerHandler.
func NewSchedulerHandler(scheduler *service.SchedulerService) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler}
}

// Tick godoc
// @Summary Run one scheduler pass
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param request body dto.TickRequest false "Tick options"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /scheduler/tick [post]
func (h *SchedulerHandler) Tick(c *gin.Context) {
	var req dto.TickRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, err)
			return
		}
	}

	summary, err := h.scheduler.Tick(c.Request.Context(), service.TickOptions{
		AcademyID: req.AcademyID,
		DryRun:    req.DryRun,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.TickResponse{
		Created:      summary.Created,
		Transitioned: summary.Transitioned,
		Terminated:   summary.Terminated,
		Errors:       summary.Errors,
		DryRun:       req.DryRun,
	}, nil)
}
