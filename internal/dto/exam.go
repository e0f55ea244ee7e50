package dto

import "github.com/gradeflow/gradeflow-api/pkg/ai"

// ExamGenerationRequest describes the exam a teacher wants generated.
type ExamGenerationRequest struct {
	Subject                string `json:"subject" validate:"required,max=128"`
	Topic                  string `json:"topic" validate:"required,max=255"`
	GradeLevel             string `json:"grade_level" validate:"required,max=64"`
	QuestionCount          int    `json:"question_count" validate:"required,min=1,max=50"`
	Difficulty             string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	AdditionalInstructions string `json:"additional_instructions" validate:"max=2000"`
}

// GeneratedQuestionResponse is one question of a generated exam.
type GeneratedQuestionResponse struct {
	QuestionNumber  int     `json:"question_number"`
	QuestionText    string  `json:"question_text"`
	ExpectedAnswer  string  `json:"expected_answer"`
	GradingGuidance string  `json:"grading_guidance"`
	PointsAvailable float64 `json:"points_available"`
}

// ExamGenerationResponse is the API representation of a generated exam.
type ExamGenerationResponse struct {
	Subject    string                      `json:"subject"`
	Topic      string                      `json:"topic"`
	GradeLevel string                      `json:"grade_level"`
	Questions  []GeneratedQuestionResponse `json:"questions"`
}

// NewExamGenerationResponse maps a generated exam to its API representation.
func NewExamGenerationResponse(exam ai.GeneratedExam) ExamGenerationResponse {
	questions := make([]GeneratedQuestionResponse, 0, len(exam.Questions))
	for _, q := range exam.Questions {
		questions = append(questions, GeneratedQuestionResponse{
			QuestionNumber:  q.QuestionNumber,
			QuestionText:    q.QuestionText,
			ExpectedAnswer:  q.ExpectedAnswer,
			GradingGuidance: q.GradingGuidance,
			PointsAvailable: q.PointsAvailable,
		})
	}

	return ExamGenerationResponse{
		Subject:    exam.Subject,
		Topic:      exam.Topic,
		GradeLevel: exam.GradeLevel,
		Questions:  questions,
	}
}
