package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/dto"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/service"
)

// WebhookHandler receives meeting lifecycle events from the media
// provider. It always answers 200: retries would only replay events the
// dispatcher already dedups or treats as no-ops.
type WebhookHandler struct {
	webhooks *service.WebhookService
}

// NewWebhookHandler constructs WebhookHandler.
func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Receive godoc
// @Summary Receive a meeting lifecycle event
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param event body models.MeetingEvent true "Meeting event"
// @Success 200 {object} dto.WebhookAckResponse
// @Router /webhooks/meetings [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	var event models.MeetingEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusOK, dto.WebhookAckResponse{Handled: false})
		return
	}

	handled := h.webhooks.Dispatch(c.Request.Context(), event)
	c.JSON(http.StatusOK, dto.WebhookAckResponse{Handled: handled})
}
