package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/scribe/internal/domain"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	eb := NewEventBus()
	a := eb.Subscribe("job-a")
	b := eb.Subscribe("job-b")

	eb.Publish("job-a", Event{Type: EventStage, JobID: "job-a", Stage: domain.StageSegmenting})

	select {
	case e := <-a:
		assert.Equal(t, domain.StageSegmenting, e.Stage)
	default:
		t.Fatal("subscriber of job-a got nothing")
	}
	select {
	case e := <-b:
		t.Fatalf("job-b received %+v", e)
	default:
	}

	eb.Unsubscribe("job-a", a)
	eb.Unsubscribe("job-b", b)
	_, open := <-a
	assert.False(t, open)
}

func TestEventBus_DropsWhenSubscriberIsSlow(t *testing.T) {
	eb := NewEventBus()
	ch := eb.Subscribe("job")

	for range cap(ch) + 10 {
		eb.Publish("job", Event{Type: EventSegment})
	}

	assert.Len(t, ch, cap(ch))
	eb.Unsubscribe("job", ch)
}

func TestEventBus_UnsubscribeRemovesEmptyEntries(t *testing.T) {
	eb := NewEventBus()
	ch := eb.Subscribe("job")
	eb.Unsubscribe("job", ch)

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	_, ok := eb.subscribers["job"]
	require.False(t, ok)
}

func TestEvent_Terminal(t *testing.T) {
	assert.True(t, Event{Type: EventStage, Stage: domain.StageCompleted}.Terminal())
	assert.True(t, Event{Type: EventStage, Stage: domain.StageFailed}.Terminal())
	assert.False(t, Event{Type: EventStage, Stage: domain.StageJoining}.Terminal())
	assert.False(t, Event{Type: EventSegment, SegmentStatus: domain.SegmentStatusDone}.Terminal())
}
