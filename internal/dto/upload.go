package dto

import "github.com/gradeflow/gradeflow-api/internal/models"

// UploadResponse reports a stored submission image.
type UploadResponse struct {
	SubmissionID uint   `json:"submission_id"`
	FileURL      string `json:"file_url"`
	FileName     string `json:"file_name"`
	FileSize     int64  `json:"file_size"`
	ContentType  string `json:"content_type"`
}

// NewUploadResponse maps an upload record to its API representation.
func NewUploadResponse(record models.UploadRecord) UploadResponse {
	return UploadResponse{
		SubmissionID: record.SubmissionID,
		FileURL:      record.URL,
		FileName:     record.FileName,
		FileSize:     record.SizeBytes,
		ContentType:  record.MimeType,
	}
}
