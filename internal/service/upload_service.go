package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gradeflow/gradeflow-api/internal/dto"
	"github.com/gradeflow/gradeflow-api/internal/models"
	"github.com/gradeflow/gradeflow-api/internal/observability"
	"github.com/gradeflow/gradeflow-api/internal/repository"
)

var (
	// ErrUploadTooLarge indicates the image exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the MIME type is not a supported scan format.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
)

// FileStorage abstracts the destination for scanned submission images.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// UploadService validates and stores scanned submission images.
type UploadService interface {
	StoreSubmissionImage(ctx context.Context, submissionID uint, file *multipart.FileHeader, userID *uint) (dto.UploadResponse, error)
}

type uploadService struct {
	storage     FileStorage
	uploads     repository.UploadRepository
	submissions repository.SubmissionRepository
	logger      zerolog.Logger
	maxSize     int64
	tracer      trace.Tracer
	now         func() time.Time
}

// NewUploadService constructs an upload service.
func NewUploadService(storage FileStorage, uploads repository.UploadRepository, submissions repository.SubmissionRepository, maxSizeMB int, logger zerolog.Logger) UploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &uploadService{
		storage:     storage,
		uploads:     uploads,
		submissions: submissions,
		logger:      logger.With().Str("component", "upload_service").Logger(),
		maxSize:     int64(maxSizeMB) * 1024 * 1024,
		tracer:      otel.Tracer("github.com/gradeflow/gradeflow-api/internal/service/upload"),
		now:         time.Now,
	}
}

// StoreSubmissionImage validates the scan, pushes it to storage, and appends
// the resulting URL to the submission's image list.
func (s *uploadService) StoreSubmissionImage(ctx context.Context, submissionID uint, file *multipart.FileHeader, userID *uint) (dto.UploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "upload.store")
	span.SetAttributes(attribute.Int64("upload.submission_id", int64(submissionID)))
	defer span.End()

	start := s.now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	if file == nil {
		err := errors.New("file is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.UploadResponse{}, err
	}

	if file.Size > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.SetStatus(codes.Error, "payload too large")
		return dto.UploadResponse{}, ErrUploadTooLarge
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "submission not found")
			return dto.UploadResponse{}, ErrGradingSubmissionNotFound
		}
		span.RecordError(err)
		return dto.UploadResponse{}, err
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		return dto.UploadResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		return dto.UploadResponse{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.SetStatus(codes.Error, "payload too large")
		return dto.UploadResponse{}, ErrUploadTooLarge
	}

	mime := mimetype.Detect(buf.Bytes())
	detected := mime.String()
	span.SetAttributes(attribute.String("upload.detected_mime", detected))
	if !isAllowedScanType(detected) {
		observability.UploadRejected().WithLabelValues("type").Inc()
		span.SetStatus(codes.Error, "type not allowed")
		return dto.UploadResponse{}, ErrUploadTypeNotAllowed
	}

	checksum := sha256.Sum256(buf.Bytes())
	name := sanitizeFileName(file.Filename, s.now)

	url, err := s.storage.Upload(ctx, name, bytes.NewReader(buf.Bytes()))
	if err != nil {
		observability.UploadRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.UploadResponse{}, err
	}

	if err := s.appendImageURL(ctx, &submission, url); err != nil {
		span.RecordError(err)
		return dto.UploadResponse{}, err
	}

	record := models.UploadRecord{
		SubmissionID: submission.ID,
		UserID:       userID,
		FileName:     name,
		URL:          url,
		MimeType:     detected,
		SizeBytes:    int64(buf.Len()),
		Checksum:     hex.EncodeToString(checksum[:]),
	}
	if err := s.uploads.Create(ctx, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.UploadResponse{}, err
	}

	observability.UploadRequests().WithLabelValues(detected).Inc()
	span.SetStatus(codes.Ok, "stored")

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Str("file", name).
		Int("size_bytes", buf.Len()).
		Msg("submission image stored")

	return dto.NewUploadResponse(record), nil
}

func (s *uploadService) appendImageURL(ctx context.Context, submission *models.StudentSubmission, url string) error {
	var urls []string
	if len(submission.ImageURLs) > 0 {
		if err := json.Unmarshal(submission.ImageURLs, &urls); err != nil {
			return fmt.Errorf("decode submission image urls: %w", err)
		}
	}

	urls = append(urls, url)
	encoded, err := json.Marshal(urls)
	if err != nil {
		return err
	}

	submission.ImageURLs = datatypes.JSON(encoded)

	return s.submissions.Update(ctx, submission)
}

// isAllowedScanType accepts the formats phone scanner apps produce.
func isAllowedScanType(mime string) bool {
	switch {
	case strings.HasPrefix(mime, "image/jpeg"),
		strings.HasPrefix(mime, "image/png"),
		strings.HasPrefix(mime, "image/webp"),
		strings.HasPrefix(mime, "application/pdf"):
		return true
	}

	return false
}

func sanitizeFileName(name string, now func() time.Time) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("scan-%d", now().Unix())
	}

	return base + strings.ToLower(filepath.Ext(name))
}
