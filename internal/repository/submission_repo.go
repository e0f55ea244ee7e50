package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/gradeflow/gradeflow-api/internal/models"
)

// SubmissionRepository defines data operations for student submissions.
type SubmissionRepository interface {
	GetByID(ctx context.Context, id uint) (models.StudentSubmission, error)
	Update(ctx context.Context, submission *models.StudentSubmission) error
	UpdateStatus(ctx context.Context, id uint, status string) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.StudentSubmission, error) {
	var submission models.StudentSubmission
	if err := r.db.WithContext(ctx).
		Preload("ExamTemplate").
		First(&submission, id).Error; err != nil {
		return models.StudentSubmission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.StudentSubmission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	return r.db.WithContext(ctx).
		Model(&models.StudentSubmission{}).
		Where("id = ?", id).
		Update("status", status).Error
}
