package service

import (
	"context"
	"errors"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/gradeflow/gradeflow-api/internal/dto"
	"github.com/gradeflow/gradeflow-api/internal/repository"
)

const (
	// ThresholdSourceOverride marks a threshold taken from the teacher's own setting.
	ThresholdSourceOverride = "teacher_override"
	// ThresholdSourceDefault marks the configured system-wide threshold.
	ThresholdSourceDefault = "default"
	// ThresholdSourceFallback marks the hard-coded safety net used when the
	// configured default is missing or out of range.
	ThresholdSourceFallback = "fallback"

	fallbackThreshold = 0.80
)

// ErrTeacherNotFound indicates an active teacher account could not be located.
var ErrTeacherNotFound = errors.New("teacher not found")

// ThresholdService resolves and manages the confidence threshold below which
// grading results are routed to manual review.
type ThresholdService interface {
	Resolve(ctx context.Context, teacherID uint) dto.ThresholdResponse
	Get(ctx context.Context, teacherID uint) (dto.ThresholdResponse, error)
	Update(ctx context.Context, teacherID uint, payload dto.ThresholdUpdateRequest) (dto.ThresholdResponse, error)
}

type thresholdService struct {
	users            repository.UserRepository
	defaultThreshold float64
	validator        *validator.Validate
	logger           zerolog.Logger
}

// NewThresholdService constructs a ThresholdService instance.
func NewThresholdService(users repository.UserRepository, defaultThreshold float64, validate *validator.Validate, logger zerolog.Logger) ThresholdService {
	return &thresholdService{
		users:            users,
		defaultThreshold: defaultThreshold,
		validator:        validate,
		logger:           logger.With().Str("component", "threshold_service").Logger(),
	}
}

// Resolve returns the threshold in effect for the teacher. It never fails:
// lookup errors degrade to the configured default, and an invalid default
// degrades to the built-in fallback.
func (s *thresholdService) Resolve(ctx context.Context, teacherID uint) dto.ThresholdResponse {
	user, err := s.users.GetTeacherByID(ctx, teacherID)
	if err == nil && user.ConfidenceThreshold != nil {
		override := *user.ConfidenceThreshold
		if override >= 0 && override <= 1 {
			return dto.ThresholdResponse{Threshold: override, Source: ThresholdSourceOverride}
		}

		s.logger.Warn().
			Uint("teacher_id", teacherID).
			Float64("override", override).
			Msg("ignoring out-of-range teacher threshold override")
	}

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Warn().Err(err).Uint("teacher_id", teacherID).Msg("teacher lookup failed, using configured threshold")
	}

	// A zero default is deliberate: it means no result gets flagged on
	// confidence alone. NaN fails both comparisons and falls through.
	if s.defaultThreshold >= 0 && s.defaultThreshold <= 1 {
		return dto.ThresholdResponse{Threshold: s.defaultThreshold, Source: ThresholdSourceDefault}
	}

	s.logger.Warn().
		Float64("configured", s.defaultThreshold).
		Float64("fallback", fallbackThreshold).
		Msg("configured confidence threshold invalid, using fallback")

	return dto.ThresholdResponse{Threshold: fallbackThreshold, Source: ThresholdSourceFallback}
}

func (s *thresholdService) Get(ctx context.Context, teacherID uint) (dto.ThresholdResponse, error) {
	if _, err := s.users.GetTeacherByID(ctx, teacherID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ThresholdResponse{}, ErrTeacherNotFound
		}
		return dto.ThresholdResponse{}, err
	}

	return s.Resolve(ctx, teacherID), nil
}

func (s *thresholdService) Update(ctx context.Context, teacherID uint, payload dto.ThresholdUpdateRequest) (dto.ThresholdResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ThresholdResponse{}, err
	}

	user, err := s.users.GetTeacherByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ThresholdResponse{}, ErrTeacherNotFound
		}
		return dto.ThresholdResponse{}, err
	}

	threshold := math.Round(payload.Threshold*100) / 100
	user.ConfidenceThreshold = &threshold

	if err := s.users.Update(ctx, &user); err != nil {
		return dto.ThresholdResponse{}, err
	}

	s.logger.Info().
		Uint("teacher_id", teacherID).
		Float64("threshold", threshold).
		Msg("teacher confidence threshold updated")

	return dto.ThresholdResponse{Threshold: threshold, Source: ThresholdSourceOverride}, nil
}
