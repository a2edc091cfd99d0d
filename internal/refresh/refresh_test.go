package refresh

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestEnqueueDedupesInFlightJobs(t *testing.T) {
	started := make(chan Job, 4)
	release := make(chan struct{})
	var calls atomic.Int32

	r := New(4, 1, func(ctx context.Context, j Job) {
		calls.Add(1)
		started <- j
		<-release
	})

	job := Job{Provider: "bridge", ListingKey: "L100"}
	r.Enqueue(job)
	<-started // worker is holding the job

	// A duplicate of an in-flight job is skipped. The same key under a
	// different provider is a distinct job.
	r.Enqueue(job)
	r.Enqueue(Job{Provider: "mlsgrid", ListingKey: "L100"})

	close(release)
	second := <-started
	if second.Provider != "mlsgrid" {
		t.Fatalf("second job provider = %q, want mlsgrid", second.Provider)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("worker ran %d jobs, want 2", got)
	}
}

func TestEnqueueDropsWhenSaturated(t *testing.T) {
	started := make(chan Job, 4)
	release := make(chan struct{})
	var calls atomic.Int32

	r := New(1, 1, func(ctx context.Context, j Job) {
		calls.Add(1)
		started <- j
		<-release
	})

	r.Enqueue(Job{Provider: "bridge", ListingKey: "A"})
	<-started // queue is empty again, worker busy

	r.Enqueue(Job{Provider: "bridge", ListingKey: "B"}) // fills the queue
	r.Enqueue(Job{Provider: "bridge", ListingKey: "C"}) // dropped

	close(release)
	if got := (<-started).ListingKey; got != "B" {
		t.Fatalf("second job = %q, want B", got)
	}

	// The dropped job left no in-flight marker, so it can be queued again.
	r.Enqueue(Job{Provider: "bridge", ListingKey: "C"})
	if got := (<-started).ListingKey; got != "C" {
		t.Fatalf("third job = %q, want C", got)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("worker ran %d jobs, want 3", got)
	}
}

func TestCompletedJobCanRunAgain(t *testing.T) {
	done := make(chan struct{}, 2)
	r := New(2, 1, func(ctx context.Context, j Job) {
		done <- struct{}{}
	})

	job := Job{Provider: "attom", ListingKey: "Z9"}
	r.Enqueue(job)
	<-done

	// Spin until the worker's cleanup clears the in-flight marker.
	for {
		if _, busy := r.inFly.Load(job.key()); !busy {
			break
		}
	}
	r.Enqueue(job)
	<-done
}
