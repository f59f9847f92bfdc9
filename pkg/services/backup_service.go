package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/yourmoment/yourmoment/pkg/backup"
	"github.com/yourmoment/yourmoment/pkg/models"
)

// BackupStore is the tracked-student persistence surface the service needs.
type BackupStore interface {
	GetTrackedStudent(ctx context.Context, id uuid.UUID) (*models.TrackedStudent, error)
	ListTrackedStudents(ctx context.Context, userID uuid.UUID) ([]models.TrackedStudent, error)
	DeactivateTrackedStudent(ctx context.Context, id uuid.UUID) error
	ListVersions(ctx context.Context, studentID uuid.UUID, articleID int) ([]models.ArticleVersion, error)
}

// StudentTracker registers students for backup; the backup service enforces
// the per-user cap and the admin-login requirement.
type StudentTracker interface {
	TrackStudent(ctx context.Context, ts *models.TrackedStudent) error
}

// BackupService exposes the student backup feature to API users.
type BackupService struct {
	backups BackupStore
	tracker StudentTracker
	logins  LoginStore
}

// NewBackupService creates the backup service.
func NewBackupService(backups BackupStore, tracker StudentTracker, logins LoginStore) *BackupService {
	return &BackupService{backups: backups, tracker: tracker, logins: logins}
}

// TrackStudentRequest is the input for tracking a student.
type TrackStudentRequest struct {
	UserID            uuid.UUID  `json:"-"`
	MyMomentStudentID int        `json:"mymoment_student_id"`
	PlatformLoginID   *uuid.UUID `json:"platform_login_id"`
	DisplayName       *string    `json:"display_name"`
	Notes             *string    `json:"notes"`
}

// TrackStudent registers a student for periodic backups.
func (s *BackupService) TrackStudent(ctx context.Context, req TrackStudentRequest) (*models.TrackedStudent, error) {
	if req.MyMomentStudentID <= 0 {
		return nil, NewValidationError("mymoment_student_id", "must be a positive platform student id")
	}
	if req.PlatformLoginID == nil {
		return nil, NewValidationError("platform_login_id", "an admin platform login is required")
	}
	login, err := s.logins.GetByID(ctx, *req.PlatformLoginID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if login.UserID != req.UserID {
		return nil, ErrForbidden
	}

	ts := &models.TrackedStudent{
		ID:                uuid.New(),
		UserID:            req.UserID,
		PlatformLoginID:   req.PlatformLoginID,
		MyMomentStudentID: req.MyMomentStudentID,
		DisplayName:       req.DisplayName,
		Notes:             req.Notes,
	}
	if err := s.tracker.TrackStudent(ctx, ts); err != nil {
		switch {
		case errors.Is(err, backup.ErrStudentLimitReached):
			return nil, NewValidationError("mymoment_student_id", err.Error())
		case errors.Is(err, backup.ErrAdminLoginRequired):
			return nil, NewValidationError("platform_login_id", err.Error())
		}
		return nil, mapStoreErr(err)
	}
	return ts, nil
}

// ListTrackedStudents returns the user's tracked students.
func (s *BackupService) ListTrackedStudents(ctx context.Context, userID uuid.UUID) ([]models.TrackedStudent, error) {
	students, err := s.backups.ListTrackedStudents(ctx, userID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return students, nil
}

// UntrackStudent stops backing up a student. Existing versions are kept.
func (s *BackupService) UntrackStudent(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.getOwned(ctx, userID, id); err != nil {
		return err
	}
	return mapStoreErr(s.backups.DeactivateTrackedStudent(ctx, id))
}

// ListVersions returns the stored versions of one article of a tracked
// student, newest first.
func (s *BackupService) ListVersions(ctx context.Context, userID, studentID uuid.UUID, articleID int) ([]models.ArticleVersion, error) {
	if _, err := s.getOwned(ctx, userID, studentID); err != nil {
		return nil, err
	}
	versions, err := s.backups.ListVersions(ctx, studentID, articleID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return versions, nil
}

func (s *BackupService) getOwned(ctx context.Context, userID, id uuid.UUID) (*models.TrackedStudent, error) {
	ts, err := s.backups.GetTrackedStudent(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if ts.UserID != userID {
		return nil, ErrForbidden
	}
	return ts, nil
}
