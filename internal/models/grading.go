package models

import (
	"time"

	"gorm.io/datatypes"
)

// QuestionScore is one entry of the per-question breakdown stored on a GradingResult.
type QuestionScore struct {
	QuestionNumber  int     `json:"question_number"`
	PointsAwarded   float64 `json:"points_awarded"`
	PointsAvailable float64 `json:"points_available"`
	Confidence      float64 `json:"confidence"`
	Illegible       bool    `json:"illegible"`
	Feedback        string  `json:"feedback"`
}

// GradingResult holds the outcome of one successful AI grading pass over a
// submission. There is at most one row per submission; a redelivered job that
// finds an existing row returns it instead of grading again.
type GradingResult struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	GradeID      string         `gorm:"size:36;uniqueIndex;not null" json:"grade_id"`
	SubmissionID uint           `gorm:"uniqueIndex;not null" json:"submission_id"`
	AIScore      float64        `gorm:"not null" json:"ai_score"`
	FinalScore   float64        `gorm:"not null" json:"final_score"`

	// Confidence is the mean of per-question confidences, on the 0.0-1.0 scale.
	Confidence float64 `gorm:"not null" json:"confidence"`

	NeedsReview      bool           `gorm:"not null;index" json:"needs_review"`
	QuestionScores   datatypes.JSON `gorm:"type:json" json:"question_scores"`
	AIFeedback       string         `gorm:"type:text" json:"ai_feedback"`
	TeacherOverride  bool           `gorm:"not null;default:false" json:"teacher_override"`
	ReviewedBy       *uint          `json:"reviewed_by"`
	ReviewedAt       *time.Time     `json:"reviewed_at"`
	ProcessingTimeMs int            `gorm:"not null" json:"processing_time_ms"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	Submission StudentSubmission `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
