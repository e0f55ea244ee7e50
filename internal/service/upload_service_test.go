package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gradeflow/gradeflow-api/internal/models"
)

type storageStub struct {
	uploaded bytes.Buffer
	names    []string
}

func (s *storageStub) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	s.uploaded.Reset()
	if _, err := s.uploaded.ReadFrom(reader); err != nil {
		return "", err
	}
	s.names = append(s.names, name)
	return "https://cdn.example.com/" + name, nil
}

type uploadRepoStub struct {
	record models.UploadRecord
}

func (u *uploadRepoStub) Create(ctx context.Context, record *models.UploadRecord) error {
	u.record = *record
	return nil
}

func newUploadFixture(maxSizeMB int) (*storageStub, *uploadRepoStub, *fakeSubmissionRepo, UploadService) {
	storage := &storageStub{}
	repo := &uploadRepoStub{}
	submissions := &fakeSubmissionRepo{
		submission: models.StudentSubmission{ID: 1, ExamTemplateID: 2, TeacherID: 4},
	}
	svc := NewUploadService(storage, repo, submissions, maxSizeMB, testLogger())
	return storage, repo, submissions, svc
}

func TestStoreSubmissionImageRejectsSize(t *testing.T) {
	_, _, _, svc := newUploadFixture(1)

	file := buildFileHeader(t, "scan.jpg", bytes.Repeat([]byte("a"), 2*1024*1024))

	_, err := svc.StoreSubmissionImage(context.Background(), 1, file, nil)
	require.ErrorIs(t, err, ErrUploadTooLarge)
}

func TestStoreSubmissionImageRejectsType(t *testing.T) {
	_, _, _, svc := newUploadFixture(5)

	file := buildFileHeader(t, "notes.txt", []byte("plain text"))

	_, err := svc.StoreSubmissionImage(context.Background(), 1, file, nil)
	require.ErrorIs(t, err, ErrUploadTypeNotAllowed)
}

func TestStoreSubmissionImageUnknownSubmission(t *testing.T) {
	_, _, submissions, svc := newUploadFixture(5)
	submissions.missing = true

	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	file := buildFileHeader(t, "scan.png", pngHeader)

	_, err := svc.StoreSubmissionImage(context.Background(), 9, file, nil)
	require.ErrorIs(t, err, ErrGradingSubmissionNotFound)
}

func TestStoreSubmissionImageAppendsURL(t *testing.T) {
	_, repo, submissions, svc := newUploadFixture(5)

	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	file := buildFileHeader(t, "Page One!.png", pngHeader)

	resp, err := svc.StoreSubmissionImage(context.Background(), 1, file, nil)
	require.NoError(t, err)
	require.Equal(t, uint(1), resp.SubmissionID)
	require.Contains(t, resp.FileURL, "page-one")
	require.Equal(t, "image/png", resp.ContentType)

	require.Equal(t, "image/png", repo.record.MimeType)
	require.NotEmpty(t, repo.record.Checksum)

	var urls []string
	require.NoError(t, json.Unmarshal(submissions.submission.ImageURLs, &urls))
	require.Len(t, urls, 1)
	require.Equal(t, resp.FileURL, urls[0])
}

func TestStoreSubmissionImageAccumulatesPages(t *testing.T) {
	_, _, submissions, svc := newUploadFixture(5)

	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

	_, err := svc.StoreSubmissionImage(context.Background(), 1, buildFileHeader(t, "page-1.png", pngHeader), nil)
	require.NoError(t, err)
	_, err = svc.StoreSubmissionImage(context.Background(), 1, buildFileHeader(t, "page-2.png", pngHeader), nil)
	require.NoError(t, err)

	var urls []string
	require.NoError(t, json.Unmarshal(submissions.submission.ImageURLs, &urls))
	require.Len(t, urls, 2)
}

func buildFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content) + 1024))
	require.NoError(t, err)
	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}
