package refresh

import (
	"context"
	"sync"
	"time"
)

// Job asks for one listing to be refetched from its provider.
type Job struct {
	Provider   string
	ListingKey string
}

func (j Job) key() string { return j.Provider + "/" + j.ListingKey }

// Refresher fans stale-listing refetches out to background workers. A
// listing is never in flight twice, and Enqueue never blocks a request
// path: when the queue is full the job is dropped.
type Refresher struct {
	ch      chan Job
	inFly   sync.Map // job key -> struct{}
	do      func(ctx context.Context, j Job)
	timeout time.Duration
}

func New(capacity int, workerCount int, do func(ctx context.Context, j Job)) *Refresher {
	if capacity <= 0 {
		capacity = 256
	}
	if workerCount <= 0 {
		workerCount = 2
	}
	r := &Refresher{
		ch:      make(chan Job, capacity),
		do:      do,
		timeout: 15 * time.Second,
	}
	for i := 0; i < workerCount; i++ {
		go r.worker()
	}
	return r
}

func (r *Refresher) Enqueue(j Job) {
	if _, exists := r.inFly.LoadOrStore(j.key(), struct{}{}); exists {
		return
	}
	select {
	case r.ch <- j:
	default:
		// drop if saturated
		r.inFly.Delete(j.key())
	}
}

func (r *Refresher) worker() {
	for j := range r.ch {
		r.run(j)
	}
}

func (r *Refresher) run(j Job) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer func() {
		r.inFly.Delete(j.key())
		cancel()
	}()
	if r.do != nil {
		r.do(ctx, j)
	}
}
