package service

import (
	"sync"

	"github.com/bnema/scribe/internal/domain"
)

const (
	EventStage   = "stage"
	EventSegment = "segment"
)

// Event reports a job stage change or a segment status change. Segment is -1
// for job-level events.
type Event struct {
	Type          string               `json:"type"`
	JobID         string               `json:"job_id"`
	Stage         domain.Stage         `json:"stage,omitempty"`
	Status        domain.JobStatus     `json:"status,omitempty"`
	Segment       int                  `json:"segment"`
	SegmentStatus domain.SegmentStatus `json:"segment_status,omitempty"`
	TranscriptID  int64                `json:"transcript_id,omitempty"`
	Message       string               `json:"message,omitempty"`
}

// Terminal reports whether no further events follow for the job.
func (e Event) Terminal() bool {
	return e.Type == EventStage && e.Stage.IsTerminal()
}

type EventPublisher interface {
	Publish(jobID string, event Event)
}

type EventBus struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan Event),
	}
}

func (eb *EventBus) Subscribe(jobID string) chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, 32)
	eb.subscribers[jobID] = append(eb.subscribers[jobID], ch)
	return ch
}

func (eb *EventBus) Unsubscribe(jobID string, ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[jobID]
	for i, sub := range subs {
		if sub == ch {
			eb.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}

	if len(eb.subscribers[jobID]) == 0 {
		delete(eb.subscribers, jobID)
	}
}

func (eb *EventBus) Publish(jobID string, event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, ch := range eb.subscribers[jobID] {
		select {
		case ch <- event:
		default:
			// Drop event if subscriber is slow
		}
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, Event) {}
