package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
	appErrors "github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/errors"
)

// AcademyRepository reads tenant records and their meeting settings.
// Academy provisioning is owned by another service; this module only
// consumes the data.
type AcademyRepository struct {
	db *sqlx.DB
}

// NewAcademyRepository constructs an AcademyRepository.
func NewAcademyRepository(db *sqlx.DB) *AcademyRepository {
	return &AcademyRepository{db: db}
}

// Get fetches an academy by ID.
func (r *AcademyRepository) Get(ctx context.Context, id string) (*models.Academy, error) {
	query := `SELECT id, name, slug, active, created_at, updated_at FROM academies WHERE id = $1`
	var academy models.Academy
	if err := r.db.GetContext(ctx, &academy, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAcademyNotFound
		}
		return nil, fmt.Errorf("get academy: %w", err)
	}
	return &academy, nil
}

// SettingsFor returns the academy's meeting settings. An academy without
// explicit settings yields the zero value, which the caller normalizes
// against platform defaults.
func (r *AcademyRepository) SettingsFor(ctx context.Context, academyID string) (models.MeetingSettings, error) {
	query := `SELECT academy_id, preparation_minutes, late_join_minutes, buffer_minutes,
			auto_create_meetings, meeting_creation_hours_before, recording_enabled
		FROM academy_meeting_settings
		WHERE academy_id = $1`
	var settings models.MeetingSettings
	if err := r.db.GetContext(ctx, &settings, query, academyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MeetingSettings{AcademyID: academyID}, nil
		}
		return models.MeetingSettings{}, fmt.Errorf("get meeting settings: %w", err)
	}
	return settings, nil
}
