package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
	appErrors "github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/errors"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/export"
)

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Report is a rendered attendance export ready for download.
type Report struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ReportService renders per-session attendance reports from persisted
// verdicts and cycles.
type ReportService struct {
	sessions   *SessionService
	attendance *AttendanceService
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	logger     *zap.Logger
}

func NewReportService(sessions *SessionService, attendance *AttendanceService, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		sessions:   sessions,
		attendance: attendance,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		logger:     logger,
	}
}

// SessionReport builds and renders the attendance report for one session.
func (s *ReportService) SessionReport(ctx context.Context, sessionID string, format ReportFormat) (*Report, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	verdicts, err := s.attendance.Verdicts(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	data := s.buildDataset(session, verdicts)
	timestamp := time.Now().UTC().Format("20060102-150405")

	switch format {
	case ReportFormatCSV:
		content, err := s.csv.Render(data)
		if err != nil {
			return nil, fmt.Errorf("render csv report: %w", err)
		}
		return &Report{
			Content:     content,
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("attendance-%s-%s.csv", sessionID, timestamp),
		}, nil
	case ReportFormatPDF:
		title := fmt.Sprintf("Attendance Report - Session %s", sessionID)
		content, err := s.pdf.Render(data, title)
		if err != nil {
			return nil, fmt.Errorf("render pdf report: %w", err)
		}
		return &Report{
			Content:     content,
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("attendance-%s-%s.pdf", sessionID, timestamp),
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported export format %q", format))
	}
}

func (s *ReportService) buildDataset(session *models.Session, verdicts []models.AttendanceVerdict) export.Dataset {
	headers := []string{"User ID", "Verdict", "Attended Minutes", "Late Minutes", "First Joined At", "Policy", "Computed At"}
	rows := make([]map[string]string, 0, len(verdicts))
	for _, v := range verdicts {
		firstJoined := ""
		if v.FirstJoinedAt != nil {
			firstJoined = v.FirstJoinedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, map[string]string{
			"User ID":          v.UserID,
			"Verdict":          string(v.Verdict),
			"Attended Minutes": strconv.Itoa(v.AttendedMinutes),
			"Late Minutes":     strconv.Itoa(v.LateMinutes),
			"First Joined At":  firstJoined,
			"Policy":           v.Policy,
			"Computed At":      v.ComputedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
