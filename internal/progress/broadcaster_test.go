package progress

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
)

func runningEvent(jobID string, stage domain.Stage) domain.ProgressEvent {
	return domain.ProgressEvent{JobID: jobID, Stage: stage, Status: domain.StageRunning}
}

func terminalEvent(jobID string) domain.ProgressEvent {
	return domain.ProgressEvent{JobID: jobID, Stage: domain.StageComplete, Status: domain.StageCompleted, Percentage: 100}
}

func TestBroadcaster_DeliversToSubscriber(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	b.Publish(runningEvent("job-1", domain.StageInit))

	ev := <-ch
	assert.Equal(t, domain.StageInit, ev.Stage)
	assert.False(t, ev.Timestamp.IsZero(), "timestamp is stamped on publish")
}

func TestBroadcaster_IsolatesJobs(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	b.Publish(runningEvent("job-2", domain.StageInit))

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for other job: %+v", ev)
	default:
	}
}

func TestBroadcaster_TerminalClosesStream(t *testing.T) {
	b := NewBroadcaster()
	ch, _ := b.Subscribe("job-1")

	b.Publish(runningEvent("job-1", domain.StageInit))
	b.Publish(terminalEvent("job-1"))

	var events []domain.ProgressEvent
	for ev := range ch {
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.True(t, events[1].Terminal())
}

func TestBroadcaster_LateSubscriberGetsReplay(t *testing.T) {
	b := NewBroadcaster()
	b.Publish(runningEvent("job-1", domain.StageTransaction))

	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	ev := <-ch
	assert.Equal(t, domain.StageTransaction, ev.Stage)
}

func TestBroadcaster_SubscribeAfterTerminal(t *testing.T) {
	b := NewBroadcaster()
	b.Publish(terminalEvent("job-1"))

	ch, _ := b.Subscribe("job-1")

	ev, ok := <-ch
	require.True(t, ok)
	assert.True(t, ev.Terminal())

	_, ok = <-ch
	assert.False(t, ok, "stream closes right after replaying a terminal event")
}

func TestBroadcaster_SlowConsumerNeverLosesTerminal(t *testing.T) {
	b := NewBroadcaster()
	ch, _ := b.Subscribe("job-1")

	// Overflow the subscriber buffer without draining.
	for i := 0; i < subscriberBuffer+5; i++ {
		b.Publish(domain.ProgressEvent{
			JobID:  "job-1",
			Stage:  domain.StageReviewsFetch,
			Status: domain.StageRunning,
			Counts: domain.CommitResult{Reviews: i},
		})
	}
	b.Publish(terminalEvent("job-1"))

	var last domain.ProgressEvent
	for ev := range ch {
		last = ev
	}
	assert.True(t, last.Terminal())
}

func TestBroadcaster_CancelStopsDelivery(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("job-1")
	cancel()

	// Publishing after cancel must not panic on a closed channel.
	b.Publish(runningEvent("job-1", domain.StageInit))
	b.Publish(terminalEvent("job-1"))

	_, ok := <-ch
	assert.False(t, ok)
}

func TestBroadcaster_LastAndForget(t *testing.T) {
	b := NewBroadcaster()

	_, ok := b.Last("job-1")
	assert.False(t, ok)

	b.Publish(runningEvent("job-1", domain.StageLocationsFetch))

	ev, ok := b.Last("job-1")
	require.True(t, ok)
	assert.Equal(t, domain.StageLocationsFetch, ev.Stage)

	b.Forget("job-1")
	_, ok = b.Last("job-1")
	assert.False(t, ok)
}

func TestBroadcaster_RetainedEventExpiresAfterTerminal(t *testing.T) {
	b := NewBroadcaster()
	b.retention = 10 * time.Millisecond

	b.Publish(terminalEvent("job-1"))

	_, ok := b.Last("job-1")
	require.True(t, ok, "terminal event stays queryable during the grace window")

	assert.Eventually(t, func() bool {
		_, ok := b.Last("job-1")
		return !ok
	}, time.Second, 5*time.Millisecond, "retained event dropped after the window")
}

func TestBroadcaster_RunningEventsAreRetainedIndefinitely(t *testing.T) {
	b := NewBroadcaster()
	b.retention = 10 * time.Millisecond

	b.Publish(runningEvent("job-1", domain.StageInit))
	time.Sleep(30 * time.Millisecond)

	_, ok := b.Last("job-1")
	assert.True(t, ok, "only terminal events start the expiry clock")
}

func TestBroadcaster_ManySubscribers(t *testing.T) {
	b := NewBroadcaster()

	var chans []<-chan domain.ProgressEvent
	for i := 0; i < 4; i++ {
		ch, _ := b.Subscribe("job-1")
		chans = append(chans, ch)
	}

	b.Publish(terminalEvent("job-1"))

	for i, ch := range chans {
		ev, ok := <-ch
		require.True(t, ok, fmt.Sprintf("subscriber %d", i))
		assert.True(t, ev.Terminal())
	}
}
