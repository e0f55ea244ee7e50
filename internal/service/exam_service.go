package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gradeflow/gradeflow-api/internal/dto"
	"github.com/gradeflow/gradeflow-api/pkg/ai"
)

// ExamService generates printable exams from teacher prompts.
type ExamService interface {
	Generate(ctx context.Context, payload dto.ExamGenerationRequest) (dto.ExamGenerationResponse, error)
}

type examService struct {
	grader    ai.Grader
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewExamService constructs an ExamService instance.
func NewExamService(grader ai.Grader, validate *validator.Validate, logger zerolog.Logger) ExamService {
	return &examService{
		grader:    grader,
		validator: validate,
		logger:    logger.With().Str("component", "exam_service").Logger(),
		tracer:    otel.Tracer("github.com/gradeflow/gradeflow-api/internal/service/exam"),
	}
}

func (s *examService) Generate(ctx context.Context, payload dto.ExamGenerationRequest) (dto.ExamGenerationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "exam.generate")
	span.SetAttributes(
		attribute.String("exam.subject", payload.Subject),
		attribute.Int("exam.question_count", payload.QuestionCount),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.ExamGenerationResponse{}, err
	}

	exam, err := s.grader.GenerateExam(ctx, ai.ExamRequest{
		Subject:                payload.Subject,
		Topic:                  payload.Topic,
		GradeLevel:             payload.GradeLevel,
		QuestionCount:          payload.QuestionCount,
		Difficulty:             payload.Difficulty,
		AdditionalInstructions: payload.AdditionalInstructions,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation_failed")
		return dto.ExamGenerationResponse{}, err
	}

	s.logger.Info().
		Str("subject", payload.Subject).
		Str("topic", payload.Topic).
		Int("questions", len(exam.Questions)).
		Msg("exam generated")

	return dto.NewExamGenerationResponse(exam), nil
}
