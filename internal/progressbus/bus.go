// Package progressbus is an in-process pub/sub for job progress events. It
// never blocks a publisher: a slow subscriber drops its oldest buffered
// event rather than stall the pipeline, and a new subscriber is caught up
// with a snapshot of the job's last known state instead of replaying
// history it missed.
package progressbus

import (
	"sync"

	"github.com/dharsanguruparan/ingestkit/internal/model"
)

const allJobsTopic = "*"

// Bus fans out progress events to per-job and all-jobs subscribers.
type Bus struct {
	mu          sync.Mutex
	bufferSize  int
	subscribers map[string][]*subscription
	lastState   map[string]model.ProgressEvent
}

type subscription struct {
	ch chan model.ProgressEvent
}

// New creates a Bus with the given per-subscriber buffer size.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		bufferSize:  bufferSize,
		subscribers: make(map[string][]*subscription),
		lastState:   make(map[string]model.ProgressEvent),
	}
}

// Publish fans an event out to that job's subscribers and the all-jobs
// subscribers, and records it as the job's last known state.
func (b *Bus) Publish(evt model.ProgressEvent) {
	b.mu.Lock()
	b.lastState[evt.JobID] = evt
	targets := append([]*subscription{}, b.subscribers[evt.JobID]...)
	targets = append(targets, b.subscribers[allJobsTopic]...)
	b.mu.Unlock()

	for _, sub := range targets {
		b.deliver(sub, evt)
	}
}

// deliver sends an event without blocking: if the subscriber's buffer is
// full, its oldest queued event is dropped to make room.
func (b *Bus) deliver(sub *subscription, evt model.ProgressEvent) {
	select {
	case sub.ch <- evt:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- evt:
	default:
	}
}

// Subscribe returns a channel of progress events for one job, and an unsubscribe
// function the caller must call when done. If the job already has known
// state, it is pushed as the first event so a late subscriber (e.g. an SSE
// client connecting mid-job) doesn't start blind.
func (b *Bus) Subscribe(jobID string) (<-chan model.ProgressEvent, func()) {
	return b.subscribe(jobID)
}

// SubscribeAll returns a channel receiving every job's progress events.
func (b *Bus) SubscribeAll() (<-chan model.ProgressEvent, func()) {
	return b.subscribe(allJobsTopic)
}

func (b *Bus) subscribe(topic string) (<-chan model.ProgressEvent, func()) {
	sub := &subscription{ch: make(chan model.ProgressEvent, b.bufferSize)}

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	if topic != allJobsTopic {
		if snapshot, ok := b.lastState[topic]; ok {
			sub.ch <- snapshot
		}
	}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[topic]
		for i, s := range subs {
			if s == sub {
				b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(sub.ch)
	}
	return sub.ch, unsubscribe
}

// Snapshot returns the last known progress event for a job, if any.
func (b *Bus) Snapshot(jobID string) (model.ProgressEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	evt, ok := b.lastState[jobID]
	return evt, ok
}
