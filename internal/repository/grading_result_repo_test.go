package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gradeflow/gradeflow-api/internal/models"
)

func setupGradingTestDB(t *testing.T, entities ...interface{}) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(entities...))
	return db
}

func TestGradingResultRepositoryUpsertReplacesExistingRow(t *testing.T) {
	db := setupGradingTestDB(t, &models.GradingResult{})
	repo := NewGradingResultRepository(db)

	first := models.GradingResult{
		GradeID:      "grade-1",
		SubmissionID: 10,
		AIScore:      6,
		FinalScore:   6,
		Confidence:   0.70,
		NeedsReview:  true,
	}
	require.NoError(t, repo.Upsert(context.Background(), &first))

	redelivered := models.GradingResult{
		GradeID:      "grade-2",
		SubmissionID: 10,
		AIScore:      8,
		FinalScore:   8,
		Confidence:   0.91,
		NeedsReview:  false,
	}
	require.NoError(t, repo.Upsert(context.Background(), &redelivered))

	var count int64
	require.NoError(t, db.Model(&models.GradingResult{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	stored, err := repo.FindBySubmissionID(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, "grade-2", stored.GradeID)
	require.InDelta(t, 0.91, stored.Confidence, 1e-9)
	require.False(t, stored.NeedsReview)
}

func TestGradingResultRepositoryFindByGradeID(t *testing.T) {
	db := setupGradingTestDB(t, &models.GradingResult{})
	repo := NewGradingResultRepository(db)

	result := models.GradingResult{GradeID: "grade-7", SubmissionID: 7, Confidence: 0.88}
	require.NoError(t, repo.Upsert(context.Background(), &result))

	stored, err := repo.FindByGradeID(context.Background(), "grade-7")
	require.NoError(t, err)
	require.Equal(t, uint(7), stored.SubmissionID)

	_, err = repo.FindByGradeID(context.Background(), "missing")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestGradingResultRepositoryListPendingReview(t *testing.T) {
	db := setupGradingTestDB(t, &models.GradingResult{})
	repo := NewGradingResultRepository(db)

	reviewedAt := time.Now()
	flagged := models.GradingResult{GradeID: "g-flagged", SubmissionID: 1, NeedsReview: true}
	reviewed := models.GradingResult{GradeID: "g-reviewed", SubmissionID: 2, NeedsReview: true, ReviewedAt: &reviewedAt}
	confident := models.GradingResult{GradeID: "g-confident", SubmissionID: 3, NeedsReview: false}

	require.NoError(t, repo.Upsert(context.Background(), &flagged))
	require.NoError(t, repo.Upsert(context.Background(), &reviewed))
	require.NoError(t, repo.Upsert(context.Background(), &confident))

	pending, err := repo.ListPendingReview(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "g-flagged", pending[0].GradeID)
}
