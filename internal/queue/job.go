package queue

import "time"

// GradingJob is the payload of one queued grading request. It is created at
// enqueue time, consumed by the worker, and never persisted outside the queue.
type GradingJob struct {
	SubmissionID uint      `json:"submission_id"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}
