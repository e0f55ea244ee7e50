package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	subjectGradingCompleted = "gradeflow.grading.completed"
	subscriberBufferSize    = 16
)

// GradingCompleted is emitted after a grading pass persists its result.
type GradingCompleted struct {
	SubmissionID uint      `json:"submission_id"`
	GradeID      string    `json:"grade_id"`
	FinalScore   float64   `json:"final_score"`
	Confidence   float64   `json:"confidence"`
	NeedsReview  bool      `json:"needs_review"`
	CompletedAt  time.Time `json:"completed_at"`
}

type gradingEnvelope struct {
	Source string           `json:"source"`
	Event  GradingCompleted `json:"event"`
}

// Broker fans grading events out to in-process subscribers (the review feed)
// and, when a NATS connection is configured, across worker processes.
type Broker struct {
	nats   *nats.Conn
	nodeID string
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[chan GradingCompleted]struct{}
}

// NewBroker constructs a broker. The NATS connection may be nil, in which
// case events stay within the process.
func NewBroker(natsConn *nats.Conn, logger zerolog.Logger) *Broker {
	return &Broker{
		nats:        natsConn,
		nodeID:      uuid.NewString(),
		logger:      logger.With().Str("component", "grading_events").Logger(),
		subscribers: make(map[chan GradingCompleted]struct{}),
	}
}

// Start wires the NATS subscription so events from other nodes reach local
// subscribers. No-op without a connection.
func (b *Broker) Start(ctx context.Context) error {
	if b.nats == nil {
		return nil
	}

	sub, err := b.nats.Subscribe(subjectGradingCompleted, func(msg *nats.Msg) {
		var env gradingEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			b.logger.Error().Err(err).Msg("discarding malformed grading event")
			return
		}

		// Local publishes already fanned out; only relay remote ones.
		if env.Source == b.nodeID {
			return
		}

		b.fanOut(env.Event)
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	return nil
}

// Publish delivers the event to local subscribers and, when connected,
// broadcasts it over NATS. Delivery failures are logged, never propagated:
// eventing must not fail a grading pass.
func (b *Broker) Publish(event GradingCompleted) {
	b.fanOut(event)

	if b.nats == nil {
		return
	}

	payload, err := json.Marshal(gradingEnvelope{Source: b.nodeID, Event: event})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to marshal grading event")
		return
	}

	if err := b.nats.Publish(subjectGradingCompleted, payload); err != nil {
		b.logger.Error().Err(err).Msg("failed to publish grading event to nats")
	}
}

// Subscribe registers a listener. The returned cancel function must be called
// to release the subscription.
func (b *Broker) Subscribe() (<-chan GradingCompleted, func()) {
	ch := make(chan GradingCompleted, subscriberBufferSize)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, cancel
}

func (b *Broker) fanOut(event GradingCompleted) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Slow consumers drop events rather than stall grading.
		}
	}
}
