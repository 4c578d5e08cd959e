package progress

import (
	"time"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
)

// Stage weights drive the percentage so progress stays monotonic even
// when item counts are unknown up front.
var stageWeights = map[domain.Stage]int{
	domain.StageInit:           5,
	domain.StageLocationsFetch: 20,
	domain.StageReviewsFetch:   30,
	domain.StageQuestionsFetch: 20,
	domain.StageTransaction:    15,
	domain.StageCacheRefresh:   10,
}

// Tracker drives one job through its fixed stage sequence and publishes
// events for each transition. It is used by the single worker goroutine
// that owns the job.
type Tracker struct {
	b           *Broadcaster
	jobID       string
	totalWeight int
	doneWeight  int
	counts      domain.CommitResult
	started     time.Time
	terminal    bool
}

// NewTracker builds a tracker for the stages in scope. Stages scoped out
// of the job carry no weight, so an out-of-scope questions stage does not
// cap progress below 100.
func NewTracker(b *Broadcaster, jobID string, scope domain.SyncScope) *Tracker {
	total := stageWeights[domain.StageInit] +
		stageWeights[domain.StageLocationsFetch] +
		stageWeights[domain.StageTransaction] +
		stageWeights[domain.StageCacheRefresh]
	if scope.IncludesReviews() {
		total += stageWeights[domain.StageReviewsFetch]
	}
	if scope.IncludesQuestions() {
		total += stageWeights[domain.StageQuestionsFetch]
	}

	return &Tracker{
		b:           b,
		jobID:       jobID,
		totalWeight: total,
		started:     time.Now(),
	}
}

// StageRunning announces a stage has started.
func (t *Tracker) StageRunning(stage domain.Stage) {
	if t.terminal {
		return
	}
	t.publish(stage, domain.StageRunning, "")
}

// StageCompleted marks a stage done and advances the percentage.
func (t *Tracker) StageCompleted(stage domain.Stage) {
	if t.terminal {
		return
	}
	t.doneWeight += stageWeights[stage]
	t.publish(stage, domain.StageCompleted, "")
}

// RecordCounts merges per-resource counts into subsequent events.
func (t *Tracker) RecordCounts(c domain.CommitResult) {
	if c.Locations > 0 {
		t.counts.Locations = c.Locations
	}
	if c.Reviews > 0 {
		t.counts.Reviews = c.Reviews
	}
	if c.Questions > 0 {
		t.counts.Questions = c.Questions
	}
}

// Fail publishes the failing stage and the terminal error event,
// short-circuiting any remaining stages.
func (t *Tracker) Fail(stage domain.Stage, err error) {
	if t.terminal {
		return
	}
	t.publish(stage, domain.StageError, err.Error())
	t.terminal = true
	t.b.Publish(domain.ProgressEvent{
		JobID:      t.jobID,
		Stage:      domain.StageComplete,
		Status:     domain.StageError,
		Counts:     t.counts,
		Percentage: t.percentage(),
		Error:      err.Error(),
	})
}

// Done publishes the terminal success event at 100 percent.
func (t *Tracker) Done() {
	if t.terminal {
		return
	}
	t.terminal = true
	t.b.Publish(domain.ProgressEvent{
		JobID:      t.jobID,
		Stage:      domain.StageComplete,
		Status:     domain.StageCompleted,
		Counts:     t.counts,
		Percentage: 100,
	})
}

func (t *Tracker) publish(stage domain.Stage, status domain.StageStatus, errMsg string) {
	t.b.Publish(domain.ProgressEvent{
		JobID:      t.jobID,
		Stage:      stage,
		Status:     status,
		Counts:     t.counts,
		Percentage: t.percentage(),
		ETAMillis:  t.eta(),
		Error:      errMsg,
	})
}

func (t *Tracker) percentage() int {
	if t.totalWeight == 0 {
		return 0
	}
	p := t.doneWeight * 100 / t.totalWeight
	if p > 100 {
		p = 100
	}
	return p
}

// eta extrapolates elapsed time per completed weight unit over the
// remaining weight. Refreshed on each event; an estimate, not a promise.
func (t *Tracker) eta() int64 {
	if t.doneWeight == 0 || t.doneWeight >= t.totalWeight {
		return 0
	}
	elapsed := time.Since(t.started)
	remaining := time.Duration(float64(elapsed) / float64(t.doneWeight) * float64(t.totalWeight-t.doneWeight))
	return remaining.Milliseconds()
}
