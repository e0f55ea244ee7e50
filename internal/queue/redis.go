package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// envelope wraps a message body with its delivery bookkeeping while it lives
// inside Redis.
type envelope struct {
	ID           string `json:"id"`
	Body         []byte `json:"body"`
	ReceiveCount int    `json:"receive_count"`
}

// RedisQueue implements Queue on top of Redis. Layout per queue name:
//
//	{name}:ready     LIST  deliverable envelopes, oldest first
//	{name}:inflight  HASH  receipt handle -> envelope
//	{name}:deadlines ZSET  receipt handle scored by visibility deadline
//	{name}:dlq       LIST  envelopes that exhausted their receive budget
//
// Receive reclaims expired in-flight entries before popping, which is where
// redelivery and dead-lettering happen.
type RedisQueue struct {
	client          *redis.Client
	name            string
	maxReceiveCount int
	logger          zerolog.Logger
	now             func() time.Time
}

// NewRedisQueue constructs a queue bound to the given name.
func NewRedisQueue(client *redis.Client, name string, maxReceiveCount int, logger zerolog.Logger) *RedisQueue {
	if maxReceiveCount <= 0 {
		maxReceiveCount = 3
	}

	return &RedisQueue{
		client:          client,
		name:            name,
		maxReceiveCount: maxReceiveCount,
		logger:          logger.With().Str("component", "redis_queue").Str("queue", name).Logger(),
		now:             time.Now,
	}
}

// Enqueue appends the body to the ready list and returns the message id.
func (q *RedisQueue) Enqueue(ctx context.Context, body []byte) (string, error) {
	env := envelope{ID: uuid.NewString(), Body: body}

	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal queue envelope: %w", err)
	}

	if err := q.client.RPush(ctx, q.readyKey(), raw).Err(); err != nil {
		return "", fmt.Errorf("enqueue message: %w", err)
	}

	return env.ID, nil
}

// Receive returns up to max messages, long-polling for up to wait when the
// queue is empty. Each returned message is hidden for the visibility timeout.
func (q *RedisQueue) Receive(ctx context.Context, max int, wait, visibility time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}

	if err := q.reclaimExpired(ctx); err != nil {
		return nil, err
	}

	raws, err := q.popReady(ctx, max, wait)
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(raws))
	deadline := q.now().Add(visibility)

	for _, raw := range raws {
		var env envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			// A corrupt envelope cannot be tracked in-flight; surface it once
			// with an unparsable body so the consumer can discard it.
			q.logger.Error().Err(err).Msg("dropping corrupt queue envelope")
			continue
		}

		env.ReceiveCount++
		receipt := uuid.NewString()

		tracked, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("marshal in-flight envelope: %w", err)
		}

		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, q.inflightKey(), receipt, tracked)
		pipe.ZAdd(ctx, q.deadlinesKey(), redis.Z{
			Score:  float64(deadline.UnixMilli()),
			Member: receipt,
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("track in-flight message: %w", err)
		}

		messages = append(messages, Message{
			ID:            env.ID,
			ReceiptHandle: receipt,
			Body:          env.Body,
		})
	}

	return messages, nil
}

// Delete acknowledges a delivery. Deleting an unknown or already-expired
// receipt handle is a no-op.
func (q *RedisQueue) Delete(ctx context.Context, receiptHandle string) error {
	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, q.inflightKey(), receiptHandle)
	pipe.ZRem(ctx, q.deadlinesKey(), receiptHandle)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	return nil
}

// DeadLetters returns the jobs that exhausted their receive budget. Intended
// for operational tooling, not the worker.
func (q *RedisQueue) DeadLetters(ctx context.Context) ([][]byte, error) {
	raws, err := q.client.LRange(ctx, q.dlqKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}

	bodies := make([][]byte, 0, len(raws))
	for _, raw := range raws {
		var env envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			continue
		}
		bodies = append(bodies, env.Body)
	}

	return bodies, nil
}

// reclaimExpired moves in-flight messages whose visibility deadline passed
// back to the ready list, or to the dead-letter list once their receive count
// reaches the queue's ceiling.
func (q *RedisQueue) reclaimExpired(ctx context.Context) error {
	nowMilli := fmt.Sprintf("%d", q.now().UnixMilli())

	receipts, err := q.client.ZRangeByScore(ctx, q.deadlinesKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: nowMilli,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("scan expired deliveries: %w", err)
	}

	for _, receipt := range receipts {
		raw, err := q.client.HGet(ctx, q.inflightKey(), receipt).Result()
		if errors.Is(err, redis.Nil) {
			// Acknowledged between the scan and now; drop the stale deadline.
			q.client.ZRem(ctx, q.deadlinesKey(), receipt)
			continue
		}
		if err != nil {
			return fmt.Errorf("load expired delivery: %w", err)
		}

		var env envelope
		dest := q.readyKey()
		if jsonErr := json.Unmarshal([]byte(raw), &env); jsonErr == nil && env.ReceiveCount >= q.maxReceiveCount {
			dest = q.dlqKey()
			q.logger.Warn().
				Str("message_id", env.ID).
				Int("receive_count", env.ReceiveCount).
				Msg("message exhausted receive budget, moving to dead-letter queue")
		}

		pipe := q.client.TxPipeline()
		pipe.HDel(ctx, q.inflightKey(), receipt)
		pipe.ZRem(ctx, q.deadlinesKey(), receipt)
		pipe.RPush(ctx, dest, raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("reclaim expired delivery: %w", err)
		}
	}

	return nil
}

func (q *RedisQueue) popReady(ctx context.Context, max int, wait time.Duration) ([]string, error) {
	raws := make([]string, 0, max)

	for len(raws) < max {
		raw, err := q.client.LPop(ctx, q.readyKey()).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pop ready message: %w", err)
		}
		raws = append(raws, raw)
	}

	if len(raws) > 0 || wait <= 0 {
		return raws, nil
	}

	// Long poll: block for the first message, then drain without waiting.
	values, err := q.client.BLPop(ctx, wait, q.readyKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("long-poll ready message: %w", err)
	}

	if len(values) == 2 {
		raws = append(raws, values[1])
	}

	for len(raws) < max {
		raw, err := q.client.LPop(ctx, q.readyKey()).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pop ready message: %w", err)
		}
		raws = append(raws, raw)
	}

	return raws, nil
}

func (q *RedisQueue) readyKey() string     { return q.name + ":ready" }
func (q *RedisQueue) inflightKey() string  { return q.name + ":inflight" }
func (q *RedisQueue) deadlinesKey() string { return q.name + ":deadlines" }
func (q *RedisQueue) dlqKey() string       { return q.name + ":dlq" }
