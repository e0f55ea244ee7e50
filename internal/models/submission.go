package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	// SubmissionStatusPending indicates a grading job has been enqueued.
	SubmissionStatusPending = "pending"
	// SubmissionStatusProcessing indicates a worker is grading the submission.
	SubmissionStatusProcessing = "processing"
	// SubmissionStatusCompleted indicates grading finished and a result exists.
	SubmissionStatusCompleted = "completed"
	// SubmissionStatusFailed indicates the last grading attempt failed.
	SubmissionStatusFailed = "failed"
)

// StudentSubmission is a scanned paper exam submitted for AI grading.
type StudentSubmission struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ExamTemplateID uint           `gorm:"not null;index" json:"exam_template_id"`
	StudentID      uint           `gorm:"not null;index" json:"student_id"`
	TeacherID      uint           `gorm:"not null;index" json:"teacher_id"`
	Status         string         `gorm:"size:32;not null;default:pending" json:"status"`
	ImageURLs      datatypes.JSON `gorm:"type:json" json:"image_urls"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	ExamTemplate ExamTemplate `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Student      Student      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// FirstImageURL returns the first stored submission image, or "" when none exist.
func (s StudentSubmission) FirstImageURL() string {
	var urls []string
	if err := json.Unmarshal(s.ImageURLs, &urls); err != nil || len(urls) == 0 {
		return ""
	}

	return urls[0]
}
