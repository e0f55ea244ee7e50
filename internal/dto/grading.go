package dto

import (
	"encoding/json"
	"time"

	"github.com/gradeflow/gradeflow-api/internal/models"
)

// EnqueueGradingResponse confirms a grading job was queued.
type EnqueueGradingResponse struct {
	SubmissionID uint   `json:"submission_id"`
	Status       string `json:"status"`
}

// QuestionScoreResponse is one per-question entry of a grading breakdown.
type QuestionScoreResponse struct {
	QuestionNumber  int     `json:"question_number"`
	PointsAwarded   float64 `json:"points_awarded"`
	PointsAvailable float64 `json:"points_available"`
	Confidence      float64 `json:"confidence"`
	Illegible       bool    `json:"illegible"`
	Feedback        string  `json:"feedback"`
}

// GradingResultResponse is the API representation of a grading result.
type GradingResultResponse struct {
	GradeID          string                  `json:"grade_id"`
	SubmissionID     uint                    `json:"submission_id"`
	AIScore          float64                 `json:"ai_score"`
	FinalScore       float64                 `json:"final_score"`
	Confidence       float64                 `json:"confidence"`
	NeedsReview      bool                    `json:"needs_review"`
	QuestionScores   []QuestionScoreResponse `json:"question_scores"`
	AIFeedback       string                  `json:"ai_feedback"`
	TeacherOverride  bool                    `json:"teacher_override"`
	ReviewedBy       *uint                   `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time              `json:"reviewed_at,omitempty"`
	ProcessingTimeMs int                     `json:"processing_time_ms"`
	CreatedAt        time.Time               `json:"created_at"`
}

// NewGradingResultResponse maps a model to its API representation.
func NewGradingResultResponse(result models.GradingResult) GradingResultResponse {
	var scores []QuestionScoreResponse
	if len(result.QuestionScores) > 0 {
		var entries []models.QuestionScore
		if err := json.Unmarshal(result.QuestionScores, &entries); err == nil {
			scores = make([]QuestionScoreResponse, 0, len(entries))
			for _, entry := range entries {
				scores = append(scores, QuestionScoreResponse{
					QuestionNumber:  entry.QuestionNumber,
					PointsAwarded:   entry.PointsAwarded,
					PointsAvailable: entry.PointsAvailable,
					Confidence:      entry.Confidence,
					Illegible:       entry.Illegible,
					Feedback:        entry.Feedback,
				})
			}
		}
	}

	return GradingResultResponse{
		GradeID:          result.GradeID,
		SubmissionID:     result.SubmissionID,
		AIScore:          result.AIScore,
		FinalScore:       result.FinalScore,
		Confidence:       result.Confidence,
		NeedsReview:      result.NeedsReview,
		QuestionScores:   scores,
		AIFeedback:       result.AIFeedback,
		TeacherOverride:  result.TeacherOverride,
		ReviewedBy:       result.ReviewedBy,
		ReviewedAt:       result.ReviewedAt,
		ProcessingTimeMs: result.ProcessingTimeMs,
		CreatedAt:        result.CreatedAt,
	}
}

// NewGradingResultResponseSlice maps a slice of results.
func NewGradingResultResponseSlice(results []models.GradingResult) []GradingResultResponse {
	responses := make([]GradingResultResponse, 0, len(results))
	for _, result := range results {
		responses = append(responses, NewGradingResultResponse(result))
	}

	return responses
}

// ReviewRequest carries a teacher's manual review of a flagged result.
type ReviewRequest struct {
	FinalScore float64 `json:"final_score" validate:"gte=0"`
	Feedback   string  `json:"feedback" validate:"max=4000"`
}
