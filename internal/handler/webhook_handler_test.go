package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/dto"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/service"
)

func newWebhookRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	webhooks := service.NewWebhookService(nil, nil, nil, nil, time.Minute, time.Minute, nil, nil)
	r := gin.New()
	r.POST("/webhooks/meetings", NewWebhookHandler(webhooks).Receive)
	return r
}

func TestWebhookReceiveMalformedBodyStillAcks(t *testing.T) {
	r := newWebhookRouter()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/meetings", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var ack dto.WebhookAckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.False(t, ack.Handled)
}

func TestWebhookReceiveUnknownEventTypeAcks(t *testing.T) {
	r := newWebhookRouter()

	body, err := json.Marshal(map[string]interface{}{
		"eventType": "recording_started",
		"room":      map[string]string{"name": "quran_sess-1", "sid": "RM_1"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/meetings", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var ack dto.WebhookAckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.False(t, ack.Handled)
}
