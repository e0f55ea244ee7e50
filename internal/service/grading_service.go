package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gradeflow/gradeflow-api/internal/dto"
	"github.com/gradeflow/gradeflow-api/internal/events"
	"github.com/gradeflow/gradeflow-api/internal/models"
	"github.com/gradeflow/gradeflow-api/internal/observability"
	"github.com/gradeflow/gradeflow-api/internal/repository"
	"github.com/gradeflow/gradeflow-api/pkg/ai"
)

// EnqueueStatusAlreadyGraded reports that an enqueue request found a finished
// result for the submission and did not queue a new job.
const EnqueueStatusAlreadyGraded = "already_graded"

// ErrGradingSubmissionNotFound indicates the submission a job references does not exist.
var ErrGradingSubmissionNotFound = errors.New("submission not found")

// ErrResultNotFound indicates no grading result exists for the lookup.
var ErrResultNotFound = errors.New("grading result not found")

// ErrResultAlreadyReviewed indicates the result was already manually reviewed.
var ErrResultAlreadyReviewed = errors.New("grading result already reviewed")

// ErrPermanentFailure marks grading failures that redelivering the job cannot
// fix, such as a submission with no rubric or no scanned images. The worker
// acknowledges these jobs instead of letting them retry.
var ErrPermanentFailure = errors.New("permanent grading failure")

// JobEnqueuer places grading jobs on the durable queue.
type JobEnqueuer interface {
	Publish(ctx context.Context, submissionID uint) error
}

// EventPublisher broadcasts grading lifecycle events.
type EventPublisher interface {
	Publish(event events.GradingCompleted)
}

// GradingService orchestrates the asynchronous grading pipeline: enqueueing
// jobs, executing grading passes, and routing low-confidence results to review.
type GradingService interface {
	EnqueueGrading(ctx context.Context, submissionID uint) (dto.EnqueueGradingResponse, error)
	Grade(ctx context.Context, submissionID uint) error
	GetResult(ctx context.Context, submissionID uint) (dto.GradingResultResponse, error)
	PendingReviews(ctx context.Context) ([]dto.GradingResultResponse, error)
	Review(ctx context.Context, gradeID string, reviewerID uint, payload dto.ReviewRequest) (dto.GradingResultResponse, error)
}

type gradingService struct {
	submissions repository.SubmissionRepository
	rubrics     repository.RubricRepository
	results     repository.GradingResultRepository
	grader      ai.Grader
	thresholds  ThresholdService
	enqueuer    JobEnqueuer
	publisher   EventPublisher
	metrics     observability.Recorder
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	now         func() time.Time
}

// NewGradingService constructs a GradingService instance.
func NewGradingService(
	submissions repository.SubmissionRepository,
	rubrics repository.RubricRepository,
	results repository.GradingResultRepository,
	grader ai.Grader,
	thresholds ThresholdService,
	enqueuer JobEnqueuer,
	publisher EventPublisher,
	metrics observability.Recorder,
	validate *validator.Validate,
	logger zerolog.Logger,
) GradingService {
	return &gradingService{
		submissions: submissions,
		rubrics:     rubrics,
		results:     results,
		grader:      grader,
		thresholds:  thresholds,
		enqueuer:    enqueuer,
		publisher:   publisher,
		metrics:     metrics,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "grading_service").Logger(),
		now:         time.Now,
	}
}

func (s *gradingService) EnqueueGrading(ctx context.Context, submissionID uint) (dto.EnqueueGradingResponse, error) {
	tracer := otel.Tracer("github.com/gradeflow/gradeflow-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.enqueue")
	span.SetAttributes(attribute.Int64("grading.submission_id", int64(submissionID)))
	defer span.End()

	if existing, err := s.results.FindBySubmissionID(ctx, submissionID); err == nil {
		span.SetAttributes(attribute.Bool("grading.already_graded", true))
		s.logger.Info().
			Uint("submission_id", submissionID).
			Str("grade_id", existing.GradeID).
			Msg("submission already graded, skipping enqueue")
		return dto.EnqueueGradingResponse{
			SubmissionID: submissionID,
			Status:       EnqueueStatusAlreadyGraded,
		}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		return dto.EnqueueGradingResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "submission_not_found")
			return dto.EnqueueGradingResponse{}, ErrGradingSubmissionNotFound
		}
		span.RecordError(err)
		return dto.EnqueueGradingResponse{}, err
	}

	if s.enqueuer == nil {
		// No queue and no worker: grade in the request path so the
		// submission is not stranded in pending.
		s.logger.Debug().Uint("submission_id", submission.ID).Msg("grading queue not configured, grading synchronously")
		if err := s.Grade(ctx, submission.ID); err != nil {
			span.RecordError(err)
			return dto.EnqueueGradingResponse{}, err
		}
		return dto.EnqueueGradingResponse{
			SubmissionID: submission.ID,
			Status:       models.SubmissionStatusCompleted,
		}, nil
	}

	if err := s.submissions.UpdateStatus(ctx, submission.ID, models.SubmissionStatusPending); err != nil {
		span.RecordError(err)
		return dto.EnqueueGradingResponse{}, err
	}

	if err := s.enqueuer.Publish(ctx, submission.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue_failed")
		return dto.EnqueueGradingResponse{}, fmt.Errorf("enqueue grading job: %w", err)
	}

	return dto.EnqueueGradingResponse{
		SubmissionID: submission.ID,
		Status:       models.SubmissionStatusPending,
	}, nil
}

// Grade executes one grading pass for the submission. It is idempotent: when
// a result already exists, for instance because the queue redelivered the job
// after a worker crashed between persisting and acknowledging, the pass
// succeeds without calling the AI again.
func (s *gradingService) Grade(ctx context.Context, submissionID uint) error {
	tracer := otel.Tracer("github.com/gradeflow/gradeflow-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.grade")
	span.SetAttributes(attribute.Int64("grading.submission_id", int64(submissionID)))
	defer span.End()

	started := s.now()

	if existing, err := s.results.FindBySubmissionID(ctx, submissionID); err == nil {
		span.SetAttributes(attribute.Bool("grading.idempotent", true))
		s.logger.Info().
			Uint("submission_id", submissionID).
			Str("grade_id", existing.GradeID).
			Msg("submission already graded, skipping")
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		return err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "submission_not_found")
			return fmt.Errorf("%w: submission %d", ErrPermanentFailure, submissionID)
		}
		span.RecordError(err)
		return err
	}

	if err := s.submissions.UpdateStatus(ctx, submission.ID, models.SubmissionStatusProcessing); err != nil {
		span.RecordError(err)
		return err
	}

	rubrics, err := s.rubrics.ListByTemplate(ctx, submission.ExamTemplateID)
	if err != nil {
		span.RecordError(err)
		return s.failSubmission(ctx, submission.ID, err)
	}

	if len(rubrics) == 0 {
		err := fmt.Errorf("%w: exam template %d has no rubric", ErrPermanentFailure, submission.ExamTemplateID)
		return s.failSubmission(ctx, submission.ID, err)
	}

	imageURL := submission.FirstImageURL()
	if imageURL == "" {
		err := fmt.Errorf("%w: submission %d has no scanned images", ErrPermanentFailure, submission.ID)
		return s.failSubmission(ctx, submission.ID, err)
	}

	grades := make([]models.QuestionScore, 0, len(rubrics))
	for _, rubric := range rubrics {
		grade, err := s.grader.GradeAnswer(ctx, ai.GradeRequest{
			SubmissionImageURL:   imageURL,
			QuestionNumber:       rubric.QuestionNumber,
			ExpectedAnswer:       rubric.AnswerText,
			AcceptableVariations: rubric.AcceptableVariations,
			GradingNotes:         rubric.GradingNotes,
			PointsAvailable:      rubric.PointsAvailable,
		})
		if err != nil {
			s.metrics.AICall(observability.OutcomeFailure)
			s.logger.Error().Err(err).
				Uint("submission_id", submission.ID).
				Int("question", rubric.QuestionNumber).
				Msg("ai grading call failed")
			return s.failSubmission(ctx, submission.ID, err)
		}

		s.metrics.AICall(observability.OutcomeSuccess)
		grades = append(grades, models.QuestionScore{
			QuestionNumber:  grade.QuestionNumber,
			PointsAwarded:   grade.PointsAwarded,
			PointsAvailable: grade.PointsAvailable,
			Confidence:      grade.Confidence,
			Illegible:       grade.Illegible,
			Feedback:        grade.Feedback,
		})
	}

	var totalAwarded, totalAvailable, confidenceSum float64
	anyIllegible := false
	for _, grade := range grades {
		totalAwarded += grade.PointsAwarded
		totalAvailable += grade.PointsAvailable
		confidenceSum += grade.Confidence
		if grade.Illegible {
			anyIllegible = true
		}
	}

	// The stored score is a percentage of the available points, rounded to
	// two decimals. A rubric whose questions carry no points scores zero.
	score := 0.0
	if totalAvailable > 0 {
		score = math.Round(totalAwarded/totalAvailable*100*100) / 100
	}

	aggregateConfidence := confidenceSum / float64(len(grades))
	threshold := s.thresholds.Resolve(ctx, submission.TeacherID)
	needsReview := aggregateConfidence < threshold.Threshold || anyIllegible

	span.SetAttributes(
		attribute.Float64("grading.confidence", aggregateConfidence),
		attribute.Float64("grading.threshold", threshold.Threshold),
		attribute.Bool("grading.needs_review", needsReview),
	)

	scoresJSON, err := json.Marshal(grades)
	if err != nil {
		span.RecordError(err)
		return s.failSubmission(ctx, submission.ID, err)
	}

	elapsed := s.now().Sub(started)
	result := models.GradingResult{
		GradeID:          uuid.NewString(),
		SubmissionID:     submission.ID,
		AIScore:          score,
		FinalScore:       score,
		Confidence:       aggregateConfidence,
		NeedsReview:      needsReview,
		QuestionScores:   datatypes.JSON(scoresJSON),
		AIFeedback:       summarizeFeedback(grades),
		ProcessingTimeMs: int(elapsed.Milliseconds()),
	}

	if err := s.results.Upsert(ctx, &result); err != nil {
		span.RecordError(err)
		return s.failSubmission(ctx, submission.ID, err)
	}

	if err := s.submissions.UpdateStatus(ctx, submission.ID, models.SubmissionStatusCompleted); err != nil {
		span.RecordError(err)
		return err
	}

	s.metrics.JobCompleted(observability.OutcomeSuccess)
	s.metrics.ProcessingTime(elapsed)
	s.metrics.ConfidenceScore(aggregateConfidence)
	if needsReview {
		s.metrics.ReviewFlagged()
	}

	s.publisher.Publish(events.GradingCompleted{
		SubmissionID: submission.ID,
		GradeID:      result.GradeID,
		FinalScore:   result.FinalScore,
		Confidence:   result.Confidence,
		NeedsReview:  result.NeedsReview,
		CompletedAt:  s.now(),
	})

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Str("grade_id", result.GradeID).
		Float64("score", score).
		Float64("awarded", totalAwarded).
		Float64("available", totalAvailable).
		Float64("confidence", aggregateConfidence).
		Bool("needs_review", needsReview).
		Dur("elapsed", elapsed).
		Msg("submission graded")

	return nil
}

func (s *gradingService) GetResult(ctx context.Context, submissionID uint) (dto.GradingResultResponse, error) {
	result, err := s.results.FindBySubmissionID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradingResultResponse{}, ErrResultNotFound
		}
		return dto.GradingResultResponse{}, err
	}

	return dto.NewGradingResultResponse(result), nil
}

func (s *gradingService) PendingReviews(ctx context.Context) ([]dto.GradingResultResponse, error) {
	results, err := s.results.ListPendingReview(ctx)
	if err != nil {
		return nil, err
	}

	return dto.NewGradingResultResponseSlice(results), nil
}

// Review applies a teacher's manual verdict to a flagged result. The final
// score replaces the AI score and the result leaves the review queue.
func (s *gradingService) Review(ctx context.Context, gradeID string, reviewerID uint, payload dto.ReviewRequest) (dto.GradingResultResponse, error) {
	tracer := otel.Tracer("github.com/gradeflow/gradeflow-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.review")
	span.SetAttributes(
		attribute.String("grading.grade_id", gradeID),
		attribute.Int64("grading.reviewer_id", int64(reviewerID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		return dto.GradingResultResponse{}, err
	}

	result, err := s.results.FindByGradeID(ctx, gradeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "result_not_found")
			return dto.GradingResultResponse{}, ErrResultNotFound
		}
		span.RecordError(err)
		return dto.GradingResultResponse{}, err
	}

	if result.ReviewedAt != nil {
		span.SetStatus(codes.Error, "already_reviewed")
		return dto.GradingResultResponse{}, ErrResultAlreadyReviewed
	}

	feedback := strings.TrimSpace(s.sanitizer.Sanitize(payload.Feedback))

	result.FinalScore = payload.FinalScore
	result.TeacherOverride = true
	result.NeedsReview = false
	if feedback != "" {
		result.AIFeedback = feedback
	}
	reviewedAt := s.now()
	result.ReviewedAt = &reviewedAt
	reviewer := reviewerID
	result.ReviewedBy = &reviewer

	if err := s.results.Update(ctx, &result); err != nil {
		span.RecordError(err)
		return dto.GradingResultResponse{}, err
	}

	s.logger.Info().
		Str("grade_id", gradeID).
		Uint("reviewer_id", reviewerID).
		Float64("final_score", payload.FinalScore).
		Msg("grading result reviewed")

	return dto.NewGradingResultResponse(result), nil
}

// failSubmission marks the submission failed and returns the original error.
// No grading result is written: the row is created only by a successful pass.
func (s *gradingService) failSubmission(ctx context.Context, submissionID uint, cause error) error {
	if err := s.submissions.UpdateStatus(ctx, submissionID, models.SubmissionStatusFailed); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("failed to mark submission failed")
	}

	s.metrics.JobCompleted(observability.OutcomeFailure)

	return cause
}

func summarizeFeedback(grades []models.QuestionScore) string {
	var b strings.Builder
	for i, grade := range grades {
		if i > 0 {
			b.WriteString("\n")
		}
		if grade.Illegible {
			fmt.Fprintf(&b, "Q%d: illegible answer, scored 0 of %.4g", grade.QuestionNumber, grade.PointsAvailable)
			continue
		}
		fmt.Fprintf(&b, "Q%d (%.4g/%.4g): %s", grade.QuestionNumber, grade.PointsAwarded, grade.PointsAvailable, grade.Feedback)
	}

	return b.String()
}
