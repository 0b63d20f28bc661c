package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Resyncable is anything that can refetch and merge missed messages.
type Resyncable interface {
	Resync(ctx context.Context) (int, error)
}

// Resyncer periodically re-fetches history on a cron schedule so messages
// dropped by the realtime stream still appear.
type Resyncer struct {
	cron    *cron.Cron
	target  Resyncable
	timeout time.Duration
	entry   cron.EntryID
}

// NewResyncer schedules target on spec, a standard 5-field cron expression.
// Each run is bounded by timeout when positive.
func NewResyncer(spec string, target Resyncable, timeout time.Duration) (*Resyncer, error) {
	if target == nil {
		return nil, fmt.Errorf("chat: resync target is required")
	}
	r := &Resyncer{
		cron:    cron.New(),
		target:  target,
		timeout: timeout,
	}
	id, err := r.cron.AddFunc(spec, func() { r.RunOnce(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("chat: resync schedule %q: %w", spec, err)
	}
	r.entry = id
	return r, nil
}

// Start runs the schedule until ctx is cancelled.
func (r *Resyncer) Start(ctx context.Context) {
	r.cron.Start()
	go func() {
		<-ctx.Done()
		r.Stop()
	}()
}

// Stop halts the schedule and waits for a running resync to finish.
func (r *Resyncer) Stop() {
	<-r.cron.Stop().Done()
}

// Next returns the next scheduled run, or the zero time before Start.
func (r *Resyncer) Next() time.Time {
	return r.cron.Entry(r.entry).Next
}

// RunOnce performs one resync and returns how many messages were added.
// Failures are logged.
func (r *Resyncer) RunOnce(ctx context.Context) int {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	n, err := r.target.Resync(ctx)
	if err != nil {
		log.Printf("chat: resync: %v", err)
		return 0
	}
	if n > 0 {
		log.Printf("chat: resync added %d message(s)", n)
	}
	return n
}
