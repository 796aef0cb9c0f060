package model

import (
	"testing"
	"time"
)

func TestJobStatusIsTerminal(t *testing.T) {
	cases := map[JobStatus]bool{
		JobQueued:     false,
		JobProcessing: false,
		JobCompleted:  true,
		JobCancelled:  true,
		JobFailed:     true,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Errorf("status %q: IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestEstimatedCompletionNilWhenNotProcessing(t *testing.T) {
	j := &Job{Status: JobQueued, Progress: 0.5}
	if got := j.EstimatedCompletion(); got != nil {
		t.Fatalf("expected nil ETA for a non-processing job, got %v", got)
	}
}

func TestEstimatedCompletionNilWhenNoStartTime(t *testing.T) {
	j := &Job{Status: JobProcessing, Progress: 0.5}
	if got := j.EstimatedCompletion(); got != nil {
		t.Fatalf("expected nil ETA without a start time, got %v", got)
	}
}

func TestEstimatedCompletionNilWhenProgressTooLow(t *testing.T) {
	now := time.Now().Add(-time.Minute)
	j := &Job{Status: JobProcessing, Progress: 0.05, StartedAt: &now}
	if got := j.EstimatedCompletion(); got != nil {
		t.Fatalf("expected nil ETA for negligible progress, got %v", got)
	}
}

func TestEstimatedCompletionReturnsFutureTime(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	j := &Job{Status: JobProcessing, Progress: 0.5, StartedAt: &started}
	eta := j.EstimatedCompletion()
	if eta == nil {
		t.Fatal("expected a non-nil ETA")
	}
	if !eta.After(started) {
		t.Fatalf("expected ETA after start time, got %v (started %v)", eta, started)
	}
}
