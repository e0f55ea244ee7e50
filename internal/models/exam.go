package models

import "time"

// ExamTemplate describes a paper exam whose submissions can be AI-graded.
type ExamTemplate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TeacherID uint      `gorm:"not null;index" json:"teacher_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Subject   string    `gorm:"size:128" json:"subject"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Teacher User          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Rubrics []AnswerRubric `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"rubrics,omitempty"`
}

// AnswerRubric is the expected answer and point value for one exam question.
type AnswerRubric struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	ExamTemplateID       uint      `gorm:"not null;index:idx_rubric_template_question,unique" json:"exam_template_id"`
	QuestionNumber       int       `gorm:"not null;index:idx_rubric_template_question,unique" json:"question_number"`
	AnswerText           string    `gorm:"type:text" json:"answer_text"`
	AcceptableVariations string    `gorm:"type:text" json:"acceptable_variations"`
	GradingNotes         string    `gorm:"type:text" json:"grading_notes"`
	PointsAvailable      float64   `gorm:"not null" json:"points_available"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
