package ai

import "context"

// GradeRequest contains the artefacts needed to grade one handwritten answer.
type GradeRequest struct {
	SubmissionImageURL   string
	QuestionNumber       int
	ExpectedAnswer       string
	AcceptableVariations string
	GradingNotes         string
	PointsAvailable      float64
}

// QuestionGrade is the structured grading verdict for a single question.
type QuestionGrade struct {
	QuestionNumber  int     `json:"question_number"`
	PointsAwarded   float64 `json:"points_awarded"`
	PointsAvailable float64 `json:"points_available"`

	// Confidence is the model's certainty in its own verdict, 0.0 to 1.0.
	Confidence float64 `json:"confidence"`
	Feedback   string  `json:"feedback"`

	// Illegible is true when the model could not read the handwriting. The
	// question scores zero but grading still completes normally.
	Illegible bool `json:"illegible"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ExamRequest describes the exam a teacher wants generated.
type ExamRequest struct {
	Subject                string
	Topic                  string
	GradeLevel             string
	QuestionCount          int
	Difficulty             string
	AdditionalInstructions string
}

// GeneratedQuestion is one question produced by exam generation.
type GeneratedQuestion struct {
	QuestionNumber  int     `json:"questionNumber"`
	QuestionText    string  `json:"questionText"`
	ExpectedAnswer  string  `json:"expectedAnswer"`
	GradingGuidance string  `json:"gradingGuidance"`
	PointsAvailable float64 `json:"pointsAvailable"`
}

// GeneratedExam is the full output of an exam generation call.
type GeneratedExam struct {
	Subject          string              `json:"subject"`
	Topic            string              `json:"topic"`
	GradeLevel       string              `json:"grade_level"`
	Questions        []GeneratedQuestion `json:"questions"`
	PromptTokens     int                 `json:"prompt_tokens"`
	CompletionTokens int                 `json:"completion_tokens"`
}

// Grader describes an AI model capable of grading handwritten answers and
// generating exams.
type Grader interface {
	GradeAnswer(ctx context.Context, req GradeRequest) (QuestionGrade, error)
	GenerateExam(ctx context.Context, req ExamRequest) (GeneratedExam, error)
}
