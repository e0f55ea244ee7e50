package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gradeflow/gradeflow-api/internal/observability"
)

func newTestQueue(t *testing.T, maxReceiveCount int) (*RedisQueue, *time.Time) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := NewRedisQueue(client, "grading-jobs", maxReceiveCount, zerolog.Nop())
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }
	return q, &now
}

func TestEnqueueReceiveDelete(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, 3)

	id, err := q.Enqueue(ctx, []byte(`{"submission_id": 7}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	messages, err := q.Receive(ctx, 10, 0, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, id, messages[0].ID)
	require.JSONEq(t, `{"submission_id": 7}`, string(messages[0].Body))

	require.NoError(t, q.Delete(ctx, messages[0].ReceiptHandle))

	// Acknowledged messages never come back, even past the visibility window.
	messages, err = q.Receive(ctx, 10, 0, 5*time.Minute)
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestReceivedMessageIsHiddenUntilVisibilityExpires(t *testing.T) {
	ctx := context.Background()
	q, now := newTestQueue(t, 3)

	_, err := q.Enqueue(ctx, []byte(`{"submission_id": 1}`))
	require.NoError(t, err)

	first, err := q.Receive(ctx, 10, 0, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Still hidden inside the visibility window.
	hidden, err := q.Receive(ctx, 10, 0, 5*time.Minute)
	require.NoError(t, err)
	require.Empty(t, hidden)

	// After the window elapses the message is redelivered with a new handle.
	*now = now.Add(5*time.Minute + time.Second)
	redelivered, err := q.Receive(ctx, 10, 0, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, redelivered, 1)
	require.Equal(t, first[0].ID, redelivered[0].ID)
	require.NotEqual(t, first[0].ReceiptHandle, redelivered[0].ReceiptHandle)
}

func TestMessageMovesToDeadLetterAfterMaxReceives(t *testing.T) {
	ctx := context.Background()
	q, now := newTestQueue(t, 2)

	_, err := q.Enqueue(ctx, []byte(`{"submission_id": 3}`))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		messages, err := q.Receive(ctx, 10, 0, time.Minute)
		require.NoError(t, err)
		require.Len(t, messages, 1, "receive %d", i+1)
		*now = now.Add(time.Minute + time.Second)
	}

	// Third receive reclaims the expired second delivery and dead-letters it.
	messages, err := q.Receive(ctx, 10, 0, time.Minute)
	require.NoError(t, err)
	require.Empty(t, messages)

	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.JSONEq(t, `{"submission_id": 3}`, string(dead[0]))
}

func TestReceiveHonoursBatchLimit(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, 3)

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(ctx, []byte(`{}`))
		require.NoError(t, err)
	}

	messages, err := q.Receive(ctx, 3, 0, time.Minute)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	rest, err := q.Receive(ctx, 10, 0, time.Minute)
	require.NoError(t, err)
	require.Len(t, rest, 2)
}

func TestDeleteUnknownReceiptIsNoOp(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, 3)

	require.NoError(t, q.Delete(ctx, "no-such-receipt"))
}

type fakeQueue struct {
	bodies  [][]byte
	failure error
}

func (f *fakeQueue) Enqueue(ctx context.Context, body []byte) (string, error) {
	if f.failure != nil {
		return "", f.failure
	}
	f.bodies = append(f.bodies, body)
	return "msg-1", nil
}

func (f *fakeQueue) Receive(ctx context.Context, max int, wait, visibility time.Duration) ([]Message, error) {
	return nil, nil
}

func (f *fakeQueue) Delete(ctx context.Context, receiptHandle string) error {
	return nil
}

func TestPublisherMarshalsJob(t *testing.T) {
	q := &fakeQueue{}
	p := NewPublisher(q, observability.NopRecorder{}, zerolog.Nop())

	require.NoError(t, p.Publish(context.Background(), 42))
	require.Len(t, q.bodies, 1)

	var job GradingJob
	require.NoError(t, json.Unmarshal(q.bodies[0], &job))
	require.Equal(t, uint(42), job.SubmissionID)
	require.False(t, job.EnqueuedAt.IsZero())
}
