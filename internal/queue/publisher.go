package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gradeflow/gradeflow-api/internal/observability"
)

// Publisher enqueues grading jobs for asynchronous processing.
type Publisher struct {
	queue   Queue
	metrics observability.Recorder
	logger  zerolog.Logger
}

// NewPublisher constructs a publisher bound to the grading queue.
func NewPublisher(q Queue, metrics observability.Recorder, logger zerolog.Logger) *Publisher {
	return &Publisher{
		queue:   q,
		metrics: metrics,
		logger:  logger.With().Str("component", "grading_publisher").Logger(),
	}
}

// Publish places a grading job on the queue and returns once the message is
// durably queued.
func (p *Publisher) Publish(ctx context.Context, submissionID uint) error {
	job := GradingJob{
		SubmissionID: submissionID,
		EnqueuedAt:   time.Now().UTC(),
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal grading job for submission %d: %w", submissionID, err)
	}

	messageID, err := p.queue.Enqueue(ctx, body)
	if err != nil {
		return fmt.Errorf("enqueue grading job for submission %d: %w", submissionID, err)
	}

	p.metrics.JobEnqueued()
	p.logger.Info().
		Uint("submission_id", submissionID).
		Str("message_id", messageID).
		Msg("published grading job")

	return nil
}
