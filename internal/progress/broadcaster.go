package progress

import (
	"sync"
	"time"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
)

const subscriberBuffer = 16

// lastEventTTL is how long a finished job's terminal event stays
// queryable. After that the job row in the store is the only record.
const lastEventTTL = time.Hour

// Broadcaster fans progress events out to any number of subscribers.
// It is instantiated once at process start and passed by reference; there
// is no ambient global bus. The last event per job is retained so the
// status endpoint can answer after subscribers are gone, and dropped
// after a grace window once the job reaches a terminal event.
type Broadcaster struct {
	mu        sync.Mutex
	nextID    int
	retention time.Duration
	subs      map[string]map[int]chan domain.ProgressEvent
	last      map[string]domain.ProgressEvent
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		retention: lastEventTTL,
		subs:      make(map[string]map[int]chan domain.ProgressEvent),
		last:      make(map[string]domain.ProgressEvent),
	}
}

// Subscribe returns a stream of events for one job plus a cancel function.
// The channel is closed after the job's terminal event. If the job already
// produced events, the latest one is replayed immediately.
func (b *Broadcaster) Subscribe(jobID string) (<-chan domain.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan domain.ProgressEvent, subscriberBuffer)
	if last, ok := b.last[jobID]; ok {
		ch <- last
		if last.Terminal() {
			close(ch)
			return ch, func() {}
		}
	}

	id := b.nextID
	b.nextID++
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[int]chan domain.ProgressEvent)
	}
	b.subs[jobID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		set, ok := b.subs[jobID]
		if !ok {
			return
		}
		if _, ok := set[id]; !ok {
			return
		}
		delete(set, id)
		close(ch)
		if len(set) == 0 {
			delete(b.subs, jobID)
		}
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers of its job. Slow consumers
// may lose intermediate events; the terminal event evicts an old one from
// a full buffer so it is never lost. Terminal events close all streams.
func (b *Broadcaster) Publish(ev domain.ProgressEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.last[ev.JobID] = ev

	for _, ch := range b.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
			if ev.Terminal() {
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- ev:
				default:
				}
			}
		}
	}

	if ev.Terminal() {
		for _, ch := range b.subs[ev.JobID] {
			close(ch)
		}
		delete(b.subs, ev.JobID)
		time.AfterFunc(b.retention, func() { b.Forget(ev.JobID) })
	}
}

// Last returns the most recent event for a job, if any.
func (b *Broadcaster) Last(jobID string) (domain.ProgressEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev, ok := b.last[jobID]
	return ev, ok
}

// Forget drops retained state for a job once nobody needs it anymore.
func (b *Broadcaster) Forget(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.last, jobID)
}
