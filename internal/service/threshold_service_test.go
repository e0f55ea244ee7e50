package service

import (
	"context"
	"math"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gradeflow/gradeflow-api/internal/dto"
	"github.com/gradeflow/gradeflow-api/internal/models"
)

type fakeUserRepo struct {
	user    models.User
	missing bool
	updated *models.User
}

func (f *fakeUserRepo) GetTeacherByID(ctx context.Context, id uint) (models.User, error) {
	if f.missing {
		return models.User{}, gorm.ErrRecordNotFound
	}
	return f.user, nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user *models.User) error {
	f.updated = user
	return nil
}

func newThresholdService(repo *fakeUserRepo, defaultThreshold float64) ThresholdService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewThresholdService(repo, defaultThreshold, validate, testLogger())
}

func TestResolveUsesTeacherOverride(t *testing.T) {
	override := 0.95
	svc := newThresholdService(&fakeUserRepo{user: models.User{ID: 1, ConfidenceThreshold: &override}}, 0.80)

	resolved := svc.Resolve(context.Background(), 1)
	require.InDelta(t, 0.95, resolved.Threshold, 1e-9)
	require.Equal(t, ThresholdSourceOverride, resolved.Source)
}

func TestResolveFallsBackToConfiguredDefault(t *testing.T) {
	svc := newThresholdService(&fakeUserRepo{user: models.User{ID: 1}}, 0.85)

	resolved := svc.Resolve(context.Background(), 1)
	require.InDelta(t, 0.85, resolved.Threshold, 1e-9)
	require.Equal(t, ThresholdSourceDefault, resolved.Source)
}

func TestResolveIgnoresOutOfRangeOverride(t *testing.T) {
	override := 1.5
	svc := newThresholdService(&fakeUserRepo{user: models.User{ID: 1, ConfidenceThreshold: &override}}, 0.85)

	resolved := svc.Resolve(context.Background(), 1)
	require.InDelta(t, 0.85, resolved.Threshold, 1e-9)
	require.Equal(t, ThresholdSourceDefault, resolved.Source)
}

func TestResolveZeroDefaultMeansNeverFlag(t *testing.T) {
	svc := newThresholdService(&fakeUserRepo{user: models.User{ID: 1}}, 0)

	resolved := svc.Resolve(context.Background(), 1)
	require.InDelta(t, 0, resolved.Threshold, 1e-9)
	require.Equal(t, ThresholdSourceDefault, resolved.Source)
}

func TestResolveHardFallbackWhenDefaultInvalid(t *testing.T) {
	svc := newThresholdService(&fakeUserRepo{user: models.User{ID: 1}}, math.NaN())

	resolved := svc.Resolve(context.Background(), 1)
	require.InDelta(t, 0.80, resolved.Threshold, 1e-9)
	require.Equal(t, ThresholdSourceFallback, resolved.Source)
}

func TestResolveUnknownTeacherUsesDefault(t *testing.T) {
	svc := newThresholdService(&fakeUserRepo{missing: true}, 0.85)

	resolved := svc.Resolve(context.Background(), 42)
	require.InDelta(t, 0.85, resolved.Threshold, 1e-9)
	require.Equal(t, ThresholdSourceDefault, resolved.Source)
}

func TestUpdateRoundsToTwoDecimals(t *testing.T) {
	repo := &fakeUserRepo{user: models.User{ID: 1}}
	svc := newThresholdService(repo, 0.80)

	resp, err := svc.Update(context.Background(), 1, dto.ThresholdUpdateRequest{Threshold: 0.8765})
	require.NoError(t, err)
	require.InDelta(t, 0.88, resp.Threshold, 1e-9)
	require.Equal(t, ThresholdSourceOverride, resp.Source)

	require.NotNil(t, repo.updated)
	require.NotNil(t, repo.updated.ConfidenceThreshold)
	require.InDelta(t, 0.88, *repo.updated.ConfidenceThreshold, 1e-9)
}

func TestUpdateRejectsOutOfRange(t *testing.T) {
	repo := &fakeUserRepo{user: models.User{ID: 1}}
	svc := newThresholdService(repo, 0.80)

	_, err := svc.Update(context.Background(), 1, dto.ThresholdUpdateRequest{Threshold: 1.5})
	require.Error(t, err)
	require.Nil(t, repo.updated)
}

func TestUpdateUnknownTeacher(t *testing.T) {
	svc := newThresholdService(&fakeUserRepo{missing: true}, 0.80)

	_, err := svc.Update(context.Background(), 42, dto.ThresholdUpdateRequest{Threshold: 0.9})
	require.ErrorIs(t, err, ErrTeacherNotFound)
}

func TestGetUnknownTeacher(t *testing.T) {
	svc := newThresholdService(&fakeUserRepo{missing: true}, 0.80)

	_, err := svc.Get(context.Background(), 42)
	require.ErrorIs(t, err, ErrTeacherNotFound)
}
