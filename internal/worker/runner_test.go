package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslink/crosslink/internal/matcher"
)

// fakeScanner returns a fixed result. When release is non-nil the scan blocks
// until release is closed or the job context is cancelled; a cancelled scan
// returns a partial summary the way the real matcher does.
type fakeScanner struct {
	mu      sync.Mutex
	release chan struct{}
	summary *matcher.Summary
	err     error

	started chan struct{}
	once    sync.Once
}

func (f *fakeScanner) Scan(ctx context.Context) (*matcher.Summary, error) {
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return &matcher.Summary{CreatedConnections: 3}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summary, f.err
}

func waitForStatus(t *testing.T, r *Runner, jobID string, want JobStatus) *ScanJob {
	t.Helper()
	var job *ScanJob
	require.Eventually(t, func() bool {
		j, ok := r.GetJob(jobID)
		if !ok || j.Status != want {
			return false
		}
		job = j
		return true
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", jobID, want)
	return job
}

func TestEnqueueRunsToCompletion(t *testing.T) {
	scanner := &fakeScanner{
		summary: &matcher.Summary{CreatedConnections: 4, SkippedConnections: 1},
	}
	r := NewRunner(scanner, nil, 1)
	defer r.Close()

	id, err := r.Enqueue()
	require.NoError(t, err)

	job := waitForStatus(t, r, id, JobStatusCompleted)
	require.NotNil(t, job.Summary)
	assert.Equal(t, 4, job.Summary.CreatedConnections)
	assert.Equal(t, 1, job.Summary.SkippedConnections)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.DoneAt)
	assert.Empty(t, job.Error)
}

func TestFailingScanMarksJobFailed(t *testing.T) {
	scanner := &fakeScanner{err: errors.New("storage unavailable")}
	r := NewRunner(scanner, nil, 1)
	defer r.Close()

	id, err := r.Enqueue()
	require.NoError(t, err)

	job := waitForStatus(t, r, id, JobStatusFailed)
	assert.Contains(t, job.Error, "storage unavailable")
}

func TestCancelRunningJobKeepsPartialSummary(t *testing.T) {
	scanner := &fakeScanner{
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	r := NewRunner(scanner, nil, 1)
	defer r.Close()

	id, err := r.Enqueue()
	require.NoError(t, err)
	<-scanner.started
	waitForStatus(t, r, id, JobStatusRunning)

	require.True(t, r.Cancel(id))

	job := waitForStatus(t, r, id, JobStatusCancelled)
	require.NotNil(t, job.Summary, "partial work survives the cancel")
	assert.Equal(t, 3, job.Summary.CreatedConnections)
}

func TestCancelPendingJob(t *testing.T) {
	scanner := &fakeScanner{
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	r := NewRunner(scanner, nil, 1)
	defer r.Close()

	// First job occupies the only worker.
	running, err := r.Enqueue()
	require.NoError(t, err)
	<-scanner.started

	pending, err := r.Enqueue()
	require.NoError(t, err)

	require.True(t, r.Cancel(pending))
	job, ok := r.GetJob(pending)
	require.True(t, ok)
	assert.Equal(t, JobStatusCancelled, job.Status)
	assert.NotNil(t, job.DoneAt)

	close(scanner.release)
	waitForStatus(t, r, running, JobStatusCompleted)
}

func TestCancelUnknownOrFinishedJob(t *testing.T) {
	scanner := &fakeScanner{summary: &matcher.Summary{}}
	r := NewRunner(scanner, nil, 1)
	defer r.Close()

	assert.False(t, r.Cancel("nope"))

	id, err := r.Enqueue()
	require.NoError(t, err)
	waitForStatus(t, r, id, JobStatusCompleted)

	assert.False(t, r.Cancel(id), "finished jobs are not cancellable")
}

func TestListJobsNewestFirstWithLimit(t *testing.T) {
	scanner := &fakeScanner{summary: &matcher.Summary{}}
	r := NewRunner(scanner, nil, 2)
	defer r.Close()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := r.Enqueue()
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(5 * time.Millisecond) // distinct CreatedAt
	}
	for _, id := range ids {
		waitForStatus(t, r, id, JobStatusCompleted)
	}

	jobs := r.ListJobs(0)
	require.Len(t, jobs, 3)
	for i := 1; i < len(jobs); i++ {
		assert.False(t, jobs[i-1].CreatedAt.Before(jobs[i].CreatedAt),
			"jobs sorted newest first")
	}

	assert.Len(t, r.ListJobs(2), 2)
}

func TestBroadcastsScanLifecycle(t *testing.T) {
	scanner := &fakeScanner{summary: &matcher.Summary{CreatedConnections: 1}}
	b := &captureBroadcaster{}
	r := NewRunner(scanner, b, 1)
	defer r.Close()

	id, err := r.Enqueue()
	require.NoError(t, err)
	waitForStatus(t, r, id, JobStatusCompleted)

	require.Eventually(t, func() bool {
		return len(b.events()) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	events := b.events()
	assert.Equal(t, "match:scan_started", events[0].Event)
	assert.Equal(t, "match:scan_finished", events[1].Event)
}

func TestCloseIsIdempotent(t *testing.T) {
	r := NewRunner(&fakeScanner{summary: &matcher.Summary{}}, nil, 1)
	r.Close()
	r.Close()
}

type captureBroadcaster struct {
	mu   sync.Mutex
	evts []BroadcastEvent
}

func (c *captureBroadcaster) Broadcast(e BroadcastEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evts = append(c.evts, e)
}

func (c *captureBroadcaster) events() []BroadcastEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]BroadcastEvent, len(c.evts))
	copy(out, c.evts)
	return out
}
