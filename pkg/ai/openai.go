package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	opGrading        = "grading"
	opExamGeneration = "exam_generation"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gradeflow",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of AI completion requests",
	}, []string{"operation", "model"})

	aiRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gradeflow",
		Subsystem: "ai",
		Name:      "request_retries_total",
		Help:      "Number of AI requests retried after a 429 response",
	}, []string{"operation"})
)

// chatCompleter is the slice of the OpenAI client the grader needs. Satisfied
// by *openai.Client; replaced with a stub in tests.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig defines configuration options for the OpenAI grader.
type OpenAIConfig struct {
	APIKey      string
	VisionModel string
	ChatModel   string
	MaxTokens   int
	Temperature float32
	MaxRetries  int
	RetryDelay  time.Duration
	Logger      zerolog.Logger
}

// OpenAIGrader implements Grader against the OpenAI chat completion API,
// retrying rate-limited calls per the configured policy.
type OpenAIGrader struct {
	api    chatCompleter
	cfg    OpenAIConfig
	policy Policy
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGrader builds a grader using the provided configuration.
func NewOpenAIGrader(cfg OpenAIConfig) (*OpenAIGrader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.VisionModel == "" {
		cfg.VisionModel = "gpt-4o"
	}

	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OpenAIGrader{
		api:    openai.NewClient(cfg.APIKey),
		cfg:    cfg,
		policy: Policy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryDelay},
		tracer: otel.Tracer("github.com/gradeflow/gradeflow-api/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_grader").Logger(),
	}, nil
}

// GradeAnswer grades one handwritten answer from the submission image.
func (g *OpenAIGrader) GradeAnswer(parent context.Context, req GradeRequest) (QuestionGrade, error) {
	ctx, span := g.tracer.Start(parent, "openai.grade_answer", trace.WithAttributes(
		attribute.String("model", g.cfg.VisionModel),
		attribute.Int("question_number", req.QuestionNumber),
	))
	defer span.End()

	body := openai.ChatCompletionRequest{
		Model:       g.cfg.VisionModel,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: gradingSystemPrompt(),
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: buildGradingPrompt(req),
					},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: req.SubmissionImageURL},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := g.completeWithRetry(ctx, opGrading, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return QuestionGrade{}, err
	}

	grade, err := parseGradeResponse(resp, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return QuestionGrade{}, err
	}

	return grade, nil
}

// GenerateExam produces exam questions for the requested subject and topic.
func (g *OpenAIGrader) GenerateExam(parent context.Context, req ExamRequest) (GeneratedExam, error) {
	ctx, span := g.tracer.Start(parent, "openai.generate_exam", trace.WithAttributes(
		attribute.String("model", g.cfg.ChatModel),
		attribute.String("subject", req.Subject),
	))
	defer span.End()

	body := openai.ChatCompletionRequest{
		Model:       g.cfg.ChatModel,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: examSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildExamPrompt(req),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := g.completeWithRetry(ctx, opExamGeneration, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GeneratedExam{}, err
	}

	exam, err := parseExamResponse(resp, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GeneratedExam{}, err
	}

	return exam, nil
}

func (g *OpenAIGrader) completeWithRetry(ctx context.Context, operation string, body openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var resp openai.ChatCompletionResponse

	attempt := 0
	err := g.policy.Do(operation, func() error {
		attempt++
		if attempt > 1 {
			aiRetries.WithLabelValues(operation).Inc()
			g.logger.Warn().
				Str("operation", operation).
				Int("attempt", attempt).
				Int("max_retries", g.policy.MaxRetries).
				Msg("retrying rate-limited AI call")
		}

		start := time.Now()
		var callErr error
		resp, callErr = g.api.CreateChatCompletion(ctx, body)
		aiDuration.WithLabelValues(operation, body.Model).Observe(time.Since(start).Seconds())

		if callErr != nil {
			return translateError(operation, callErr)
		}

		return nil
	})
	if err != nil {
		var rateErr *RateLimitError
		if errors.As(err, &rateErr) {
			g.logger.Error().
				Str("operation", operation).
				Int("attempts", rateErr.Attempts).
				Msg("AI rate limit exhausted")
		}
		return openai.ChatCompletionResponse{}, err
	}

	return resp, nil
}

// translateError maps transport and API failures into the closed error
// taxonomy the retry policy classifies on.
func translateError(operation string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			Operation:  operation,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{
			Operation:  operation,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    reqErr.Error(),
			Err:        err,
		}
	}

	return &APIError{Operation: operation, Message: err.Error(), Err: err}
}

func gradingSystemPrompt() string {
	return "You are an expert grader. Analyze handwritten student answers in images. " +
		"Respond in strict JSON format with these exact fields: pointsAwarded (number), " +
		"feedback (string), confidenceScore (number between 0.0 and 1.0), illegible (boolean). " +
		"If the handwriting cannot be read, set illegible=true and pointsAwarded=0."
}

func buildGradingPrompt(req GradeRequest) string {
	variations := req.AcceptableVariations
	if variations == "" {
		variations = "none specified"
	}

	notes := req.GradingNotes
	if notes == "" {
		notes = "none"
	}

	builder := strings.Builder{}
	fmt.Fprintf(&builder, "Grade the handwritten answer in the image for question %d.\n", req.QuestionNumber)
	fmt.Fprintf(&builder, "Expected answer: %s\n", req.ExpectedAnswer)
	fmt.Fprintf(&builder, "Acceptable variations: %s\n", variations)
	fmt.Fprintf(&builder, "Grading notes: %s\n", notes)
	fmt.Fprintf(&builder, "Points available: %g\n", req.PointsAvailable)
	builder.WriteString("Respond with JSON only.")
	return builder.String()
}

func examSystemPrompt() string {
	return "You are an expert educator. Generate exam questions in strict JSON format. " +
		"Your response must be a valid JSON object with a \"questions\" array. Each question " +
		"must have these exact fields: questionNumber (integer), questionText (string), " +
		"expectedAnswer (string), gradingGuidance (string), pointsAvailable (number)."
}

func buildExamPrompt(req ExamRequest) string {
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = "medium"
	}

	extra := ""
	if req.AdditionalInstructions != "" {
		extra = " Additional instructions: " + req.AdditionalInstructions
	}

	return fmt.Sprintf(
		"Generate %d %s-level exam questions for %s students studying '%s' about '%s'.%s",
		req.QuestionCount, difficulty, req.GradeLevel, req.Subject, req.Topic, extra)
}

func parseGradeResponse(resp openai.ChatCompletionResponse, req GradeRequest) (QuestionGrade, error) {
	content, err := firstChoiceContent(resp, opGrading)
	if err != nil {
		return QuestionGrade{}, err
	}

	type payload struct {
		PointsAwarded   float64 `json:"pointsAwarded"`
		Feedback        string  `json:"feedback"`
		ConfidenceScore float64 `json:"confidenceScore"`
		Illegible       bool    `json:"illegible"`
	}

	var data payload
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return QuestionGrade{}, &APIError{
			Operation: opGrading,
			Message:   fmt.Sprintf("parse grading json: %v", err),
			Err:       err,
		}
	}

	if data.ConfidenceScore < 0 {
		data.ConfidenceScore = 0
	}
	if data.ConfidenceScore > 1 {
		data.ConfidenceScore = 1
	}

	if data.Illegible {
		data.PointsAwarded = 0
	}

	if data.PointsAwarded < 0 {
		data.PointsAwarded = 0
	}
	if data.PointsAwarded > req.PointsAvailable {
		data.PointsAwarded = req.PointsAvailable
	}

	return QuestionGrade{
		QuestionNumber:   req.QuestionNumber,
		PointsAwarded:    data.PointsAwarded,
		PointsAvailable:  req.PointsAvailable,
		Confidence:       data.ConfidenceScore,
		Feedback:         data.Feedback,
		Illegible:        data.Illegible,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func parseExamResponse(resp openai.ChatCompletionResponse, req ExamRequest) (GeneratedExam, error) {
	content, err := firstChoiceContent(resp, opExamGeneration)
	if err != nil {
		return GeneratedExam{}, err
	}

	var data struct {
		Questions []GeneratedQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return GeneratedExam{}, &APIError{
			Operation: opExamGeneration,
			Message:   fmt.Sprintf("parse exam json: %v", err),
			Err:       err,
		}
	}

	if len(data.Questions) == 0 {
		return GeneratedExam{}, &APIError{
			Operation: opExamGeneration,
			Message:   "exam response contained no questions",
		}
	}

	return GeneratedExam{
		Subject:          req.Subject,
		Topic:            req.Topic,
		GradeLevel:       req.GradeLevel,
		Questions:        data.Questions,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func firstChoiceContent(resp openai.ChatCompletionResponse, operation string) (string, error) {
	if len(resp.Choices) == 0 {
		return "", &APIError{Operation: operation, Message: "no choices returned"}
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
