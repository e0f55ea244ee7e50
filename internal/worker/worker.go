package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gradeflow/gradeflow-api/internal/config"
	"github.com/gradeflow/gradeflow-api/internal/observability"
	"github.com/gradeflow/gradeflow-api/internal/queue"
	"github.com/gradeflow/gradeflow-api/internal/service"
)

// GradingExecutor runs one grading pass for a submission.
type GradingExecutor interface {
	Grade(ctx context.Context, submissionID uint) error
}

// Worker polls the grading queue and executes jobs. Messages are deleted only
// after their grading pass succeeds; a crash mid-pass leaves the message
// in flight, so the queue redelivers it once the visibility timeout expires.
type Worker struct {
	queue    queue.Queue
	executor GradingExecutor
	cfg      config.QueueConfig
	metrics  observability.Recorder
	logger   zerolog.Logger
}

// New constructs a grading worker.
func New(q queue.Queue, executor GradingExecutor, cfg config.QueueConfig, metrics observability.Recorder, logger zerolog.Logger) *Worker {
	return &Worker{
		queue:    q,
		executor: executor,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.With().Str("component", "grading_worker").Logger(),
	}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Int("max_messages", w.cfg.MaxMessages).
		Msg("grading worker started")

	// Fixed-delay scheduling: the interval is measured from the end of the
	// previous cycle, so a long receive never collapses the pause between
	// cycles to zero.
	for {
		w.poll(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("grading worker stopped")
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// poll runs one receive-and-process cycle. A receive failure ends the cycle;
// the next tick retries, so a Redis blip never kills the worker.
func (w *Worker) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	messages, err := w.queue.Receive(ctx, w.cfg.MaxMessages, w.cfg.WaitTime, w.cfg.VisibilityTimeout)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.metrics.QueueReceiveError()
		w.logger.Error().Err(err).Msg("failed to receive grading jobs")
		return
	}

	for _, msg := range messages {
		w.handle(ctx, msg)
	}
}

func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	var job queue.GradingJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		// A body that never parses would redeliver forever; drop it now.
		w.logger.Error().Err(err).Str("message_id", msg.ID).Msg("discarding malformed grading job")
		w.delete(ctx, msg)
		return
	}

	err := w.grade(ctx, job.SubmissionID)
	switch {
	case err == nil:
		w.delete(ctx, msg)
	case errors.Is(err, service.ErrPermanentFailure):
		w.logger.Warn().Err(err).
			Uint("submission_id", job.SubmissionID).
			Msg("grading job failed permanently, acknowledging")
		w.delete(ctx, msg)
	default:
		// Leave the message in flight; the visibility timeout will
		// redeliver it, and the queue dead-letters it after exhausting
		// its receive budget.
		w.logger.Error().Err(err).
			Uint("submission_id", job.SubmissionID).
			Msg("grading job failed, leaving for redelivery")
	}
}

// grade invokes the executor, converting a panic into an error so one bad job
// cannot take the worker down.
func (w *Worker) grade(ctx context.Context, submissionID uint) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("grading panicked: %v", r)
		}
	}()

	return w.executor.Grade(ctx, submissionID)
}

func (w *Worker) delete(ctx context.Context, msg queue.Message) {
	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		w.logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to delete grading job")
	}
}
