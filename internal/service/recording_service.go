package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/config"
	appErrors "github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/errors"
)

// HTTPRecordingService asks the media backend to start a composite
// recording for a room. Recording is always best-effort: callers log
// failures and move on.
type HTTPRecordingService struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPRecordingService(cfg config.RecordingConfig, logger *zap.Logger) *HTTPRecordingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPRecordingService{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (s *HTTPRecordingService) StartRecording(ctx context.Context, session *models.Session) error {
	payload, err := json.Marshal(map[string]string{
		"room_name":  session.EncodedRoomName(),
		"session_id": session.ID,
	})
	if err != nil {
		return fmt.Errorf("encode recording request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/recordings/start", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build recording request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", appErrors.ErrRecordingUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", appErrors.ErrRecordingUpstream, resp.StatusCode)
	}

	s.logger.Sugar().Infow("recording started", "session_id", session.ID)
	return nil
}

// NoopRecordingService is used when recording is disabled.
type NoopRecordingService struct{}

func (NoopRecordingService) StartRecording(context.Context, *models.Session) error { return nil }
