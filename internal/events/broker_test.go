package events

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBrokerFansOutToSubscribers(t *testing.T) {
	broker := NewBroker(nil, zerolog.Nop())

	ch, cancel := broker.Subscribe()
	defer cancel()

	broker.Publish(GradingCompleted{SubmissionID: 42, GradeID: "g-1", NeedsReview: true})

	select {
	case event := <-ch:
		require.Equal(t, uint(42), event.SubmissionID)
		require.Equal(t, "g-1", event.GradeID)
		require.True(t, event.NeedsReview)
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}

func TestBrokerCancelStopsDelivery(t *testing.T) {
	broker := NewBroker(nil, zerolog.Nop())

	ch, cancel := broker.Subscribe()
	cancel()
	cancel() // idempotent

	broker.Publish(GradingCompleted{SubmissionID: 1})

	_, open := <-ch
	require.False(t, open)
}

func TestBrokerDropsForSlowSubscribers(t *testing.T) {
	broker := NewBroker(nil, zerolog.Nop())

	ch, cancel := broker.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBufferSize+10; i++ {
		broker.Publish(GradingCompleted{SubmissionID: uint(i + 1)})
	}

	require.Len(t, ch, subscriberBufferSize)
}

