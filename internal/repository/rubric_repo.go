package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/gradeflow/gradeflow-api/internal/models"
)

// RubricRepository defines data operations for answer rubrics.
type RubricRepository interface {
	ListByTemplate(ctx context.Context, examTemplateID uint) ([]models.AnswerRubric, error)
}

type rubricRepository struct {
	db *gorm.DB
}

// NewRubricRepository instantiates the repository.
func NewRubricRepository(db *gorm.DB) RubricRepository {
	return &rubricRepository{db: db}
}

func (r *rubricRepository) ListByTemplate(ctx context.Context, examTemplateID uint) ([]models.AnswerRubric, error) {
	var rubrics []models.AnswerRubric
	if err := r.db.WithContext(ctx).
		Where("exam_template_id = ?", examTemplateID).
		Order("question_number ASC").
		Find(&rubrics).Error; err != nil {
		return nil, err
	}

	return rubrics, nil
}
