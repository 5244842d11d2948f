package deliverer

import (
	"context"
	"sync"

	"github.com/klppl/apfed/internal/idurl"
)

// DefaultPoolSize is federation.deliverer_pool_size's default, per spec.md
// §6.
const DefaultPoolSize = 10

// Job is one queued delivery task, per the outgoing-queue-entry shape in
// spec.md §6 ("id, sender_id, recipient_inbox, activity_json, ...").
type Job struct {
	ID              string
	Sender          Sender
	RecipientInbox  string
	ActivityJSON    []byte
}

// Pool runs delivery jobs with a configured concurrency bound; onion
// targets are serialized to one at a time to avoid Tor circuit contention,
// per spec.md §4.7 ("Parallelism").
type Pool struct {
	deliverer *Deliverer
	size      int
	sem       chan struct{}
	onionSem  chan struct{}
}

// NewPool builds a Pool of the given size (DefaultPoolSize if size <= 0).
func NewPool(d *Deliverer, size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{
		deliverer: d,
		size:      size,
		sem:       make(chan struct{}, size),
		onionSem:  make(chan struct{}, 1),
	}
}

// Run delivers job, respecting the pool's concurrency bound and the
// onion-serialization rule, and invokes onResult with the outcome. Each
// per-delivery task is independent of the others, per spec.md §4.7.
func (p *Pool) Run(ctx context.Context, job Job, onResult func(Job, Result, error)) {
	isOnion := idurl.IsHostOnion(hostOf(job.RecipientInbox))

	gate := p.sem
	if isOnion {
		gate = p.onionSem
	}

	gate <- struct{}{}
	defer func() { <-gate }()

	result, err := p.deliverer.SendObject(ctx, job.ActivityJSON, job.RecipientInbox, job.Sender)
	onResult(job, result, err)
}

// RunAll fans jobs out across the pool and blocks until all complete.
func (p *Pool) RunAll(ctx context.Context, jobs []Job, onResult func(Job, Result, error)) {
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			p.Run(ctx, j, onResult)
		}(job)
	}
	wg.Wait()
}

func hostOf(rawURL string) string {
	u, err := idurl.ParseHttpUrl(rawURL)
	if err != nil {
		return ""
	}
	return u.Host()
}
