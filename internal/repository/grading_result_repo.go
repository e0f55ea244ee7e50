package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gradeflow/gradeflow-api/internal/models"
)

// GradingResultRepository defines data operations for grading results.
type GradingResultRepository interface {
	FindBySubmissionID(ctx context.Context, submissionID uint) (models.GradingResult, error)
	FindByGradeID(ctx context.Context, gradeID string) (models.GradingResult, error)
	ListPendingReview(ctx context.Context) ([]models.GradingResult, error)
	Upsert(ctx context.Context, result *models.GradingResult) error
	Update(ctx context.Context, result *models.GradingResult) error
}

type gradingResultRepository struct {
	db *gorm.DB
}

// NewGradingResultRepository instantiates the repository.
func NewGradingResultRepository(db *gorm.DB) GradingResultRepository {
	return &gradingResultRepository{db: db}
}

func (r *gradingResultRepository) FindBySubmissionID(ctx context.Context, submissionID uint) (models.GradingResult, error) {
	var result models.GradingResult
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		First(&result).Error; err != nil {
		return models.GradingResult{}, err
	}

	return result, nil
}

func (r *gradingResultRepository) FindByGradeID(ctx context.Context, gradeID string) (models.GradingResult, error) {
	var result models.GradingResult
	if err := r.db.WithContext(ctx).
		Where("grade_id = ?", gradeID).
		First(&result).Error; err != nil {
		return models.GradingResult{}, err
	}

	return result, nil
}

func (r *gradingResultRepository) ListPendingReview(ctx context.Context) ([]models.GradingResult, error) {
	var results []models.GradingResult
	if err := r.db.WithContext(ctx).
		Where("needs_review = ?", true).
		Where("reviewed_at IS NULL").
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}

// Upsert writes the result, overwriting any existing row for the same
// submission. Redelivered jobs therefore never produce duplicate results.
func (r *gradingResultRepository) Upsert(ctx context.Context, result *models.GradingResult) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "submission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"grade_id", "ai_score", "final_score", "confidence", "needs_review",
			"question_scores", "ai_feedback", "teacher_override", "processing_time_ms",
			"updated_at",
		}),
	}).Create(result).Error
}

func (r *gradingResultRepository) Update(ctx context.Context, result *models.GradingResult) error {
	return r.db.WithContext(ctx).Save(result).Error
}
