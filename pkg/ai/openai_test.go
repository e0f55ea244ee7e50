package ai

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	openai "github.com/sashabaranov/go-openai"
)

type stubCompleter struct {
	calls     int
	responses []stubResponse
}

type stubResponse struct {
	content string
	err     error
}

func (s *stubCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++

	r := s.responses[idx]
	if r.err != nil {
		return openai.ChatCompletionResponse{}, r.err
	}

	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: r.content}},
		},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5},
	}, nil
}

func newTestGrader(t *testing.T, stub *stubCompleter, maxRetries int) *OpenAIGrader {
	t.Helper()

	grader, err := NewOpenAIGrader(OpenAIConfig{
		APIKey:     "test-key",
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)

	grader.api = stub
	grader.policy.Sleep = func(time.Duration) {}
	return grader
}

func gradeRequest() GradeRequest {
	return GradeRequest{
		SubmissionImageURL: "https://cdn.example.com/scan.jpg",
		QuestionNumber:     2,
		ExpectedAnswer:     "42",
		PointsAvailable:    10,
	}
}

func TestGradeAnswerParsesVerdict(t *testing.T) {
	stub := &stubCompleter{responses: []stubResponse{
		{content: `{"pointsAwarded": 8.5, "feedback": "minor arithmetic slip", "confidenceScore": 0.92, "illegible": false}`},
	}}
	grader := newTestGrader(t, stub, 3)

	grade, err := grader.GradeAnswer(context.Background(), gradeRequest())
	require.NoError(t, err)
	require.Equal(t, 2, grade.QuestionNumber)
	require.Equal(t, 8.5, grade.PointsAwarded)
	require.Equal(t, 10.0, grade.PointsAvailable)
	require.Equal(t, 0.92, grade.Confidence)
	require.False(t, grade.Illegible)
	require.Equal(t, 10, grade.PromptTokens)
}

func TestGradeAnswerIllegibleScoresZero(t *testing.T) {
	stub := &stubCompleter{responses: []stubResponse{
		{content: `{"pointsAwarded": 5, "feedback": "cannot read", "confidenceScore": 0.2, "illegible": true}`},
	}}
	grader := newTestGrader(t, stub, 3)

	grade, err := grader.GradeAnswer(context.Background(), gradeRequest())
	require.NoError(t, err)
	require.True(t, grade.Illegible)
	require.Equal(t, 0.0, grade.PointsAwarded)
}

func TestGradeAnswerRetriesRateLimitThenSucceeds(t *testing.T) {
	stub := &stubCompleter{responses: []stubResponse{
		{err: &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}},
		{content: `{"pointsAwarded": 10, "feedback": "correct", "confidenceScore": 0.97, "illegible": false}`},
	}}
	grader := newTestGrader(t, stub, 3)

	grade, err := grader.GradeAnswer(context.Background(), gradeRequest())
	require.NoError(t, err)
	require.Equal(t, 2, stub.calls)
	require.Equal(t, 10.0, grade.PointsAwarded)
}

func TestGradeAnswerExhaustsRetryBudget(t *testing.T) {
	stub := &stubCompleter{responses: []stubResponse{
		{err: &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}},
	}}
	grader := newTestGrader(t, stub, 3)

	_, err := grader.GradeAnswer(context.Background(), gradeRequest())
	require.Equal(t, 4, stub.calls)

	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	require.Equal(t, 4, rateErr.Attempts)
}

func TestGradeAnswerFailsFastOnServerError(t *testing.T) {
	stub := &stubCompleter{responses: []stubResponse{
		{err: &openai.APIError{HTTPStatusCode: 500, Message: "internal"}},
	}}
	grader := newTestGrader(t, stub, 3)

	_, err := grader.GradeAnswer(context.Background(), gradeRequest())
	require.Equal(t, 1, stub.calls)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 500, apiErr.StatusCode)
	require.False(t, IsRetryable(err))
}

func TestGradeAnswerParseFailureIsNotRetried(t *testing.T) {
	stub := &stubCompleter{responses: []stubResponse{
		{content: `this is not json`},
	}}
	grader := newTestGrader(t, stub, 3)

	_, err := grader.GradeAnswer(context.Background(), gradeRequest())
	require.Equal(t, 1, stub.calls)
	require.Error(t, err)
	require.False(t, IsRetryable(err))
}

func TestGradeAnswerClampsAwardToAvailablePoints(t *testing.T) {
	stub := &stubCompleter{responses: []stubResponse{
		{content: `{"pointsAwarded": 99, "feedback": "generous", "confidenceScore": 1.3, "illegible": false}`},
	}}
	grader := newTestGrader(t, stub, 3)

	grade, err := grader.GradeAnswer(context.Background(), gradeRequest())
	require.NoError(t, err)
	require.Equal(t, 10.0, grade.PointsAwarded)
	require.Equal(t, 1.0, grade.Confidence)
}

func TestGenerateExamParsesQuestions(t *testing.T) {
	stub := &stubCompleter{responses: []stubResponse{
		{content: `{"questions": [{"questionNumber": 1, "questionText": "What is 6*7?", "expectedAnswer": "42", "gradingGuidance": "exact", "pointsAvailable": 5}]}`},
	}}
	grader := newTestGrader(t, stub, 3)

	exam, err := grader.GenerateExam(context.Background(), ExamRequest{
		Subject:       "math",
		Topic:         "multiplication",
		GradeLevel:    "5th grade",
		QuestionCount: 1,
	})
	require.NoError(t, err)
	require.Len(t, exam.Questions, 1)
	require.Equal(t, "42", exam.Questions[0].ExpectedAnswer)
}

func TestGenerateExamRejectsEmptyQuestionList(t *testing.T) {
	stub := &stubCompleter{responses: []stubResponse{
		{content: `{"questions": []}`},
	}}
	grader := newTestGrader(t, stub, 3)

	_, err := grader.GenerateExam(context.Background(), ExamRequest{Subject: "math", Topic: "x", QuestionCount: 3})
	require.Error(t, err)
}
