package progressbus

import (
	"testing"
	"time"

	"github.com/dharsanguruparan/ingestkit/internal/model"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	bus := New(4)
	ch, unsubscribe := bus.Subscribe("job-1")
	defer unsubscribe()

	bus.Publish(model.ProgressEvent{JobID: "job-1", Progress: 0.5, Status: model.JobProcessing})

	select {
	case evt := <-ch:
		if evt.JobID != "job-1" || evt.Progress != 0.5 {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeIgnoresOtherJobs(t *testing.T) {
	bus := New(4)
	ch, unsubscribe := bus.Subscribe("job-1")
	defer unsubscribe()

	bus.Publish(model.ProgressEvent{JobID: "job-2", Progress: 0.1})

	select {
	case evt := <-ch:
		t.Fatalf("did not expect event for another job, got %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllReceivesEveryJob(t *testing.T) {
	bus := New(4)
	ch, unsubscribe := bus.SubscribeAll()
	defer unsubscribe()

	bus.Publish(model.ProgressEvent{JobID: "job-1", Progress: 0.1})
	bus.Publish(model.ProgressEvent{JobID: "job-2", Progress: 0.2})

	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case evt := <-ch:
			seen[evt.JobID] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	if !seen["job-1"] || !seen["job-2"] {
		t.Fatalf("expected events from both jobs, got %v", seen)
	}
}

func TestSubscribeAfterPublishGetsSnapshot(t *testing.T) {
	bus := New(4)
	bus.Publish(model.ProgressEvent{JobID: "job-1", Progress: 0.75, Status: model.JobProcessing})

	ch, unsubscribe := bus.Subscribe("job-1")
	defer unsubscribe()

	select {
	case evt := <-ch:
		if evt.Progress != 0.75 {
			t.Fatalf("expected snapshot progress 0.75, got %v", evt.Progress)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestPublishDoesNotBlockOnFullSubscriberBuffer(t *testing.T) {
	bus := New(2)
	_, unsubscribe := bus.Subscribe("job-1")
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(model.ProgressEvent{JobID: "job-1", Progress: float64(i) / 100})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New(4)
	ch, unsubscribe := bus.Subscribe("job-1")
	unsubscribe()

	bus.Publish(model.ProgressEvent{JobID: "job-1", Progress: 0.9})

	// Channel should be closed; reading from it should not block forever.
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected channel to be closed or empty after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out reading from channel after unsubscribe")
	}
}

func TestSnapshotReturnsLastKnownState(t *testing.T) {
	bus := New(4)
	if _, ok := bus.Snapshot("job-1"); ok {
		t.Fatalf("expected no snapshot before any publish")
	}
	bus.Publish(model.ProgressEvent{JobID: "job-1", Progress: 0.3})
	evt, ok := bus.Snapshot("job-1")
	if !ok || evt.Progress != 0.3 {
		t.Fatalf("expected snapshot with progress 0.3, got %+v ok=%v", evt, ok)
	}
}
