// Package worker runs match scans in the background so long scans never block
// interactive graph queries.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crosslink/crosslink/internal/matcher"
)

// ---------------------------------------------------------------------------
// Broadcaster interface — avoids circular import with api package
// ---------------------------------------------------------------------------

// Broadcaster is a minimal interface for pushing events to connected clients.
// The api.SSEBroadcaster satisfies this interface.
type Broadcaster interface {
	Broadcast(event BroadcastEvent)
}

// BroadcastEvent mirrors api.SSEEvent without importing the api package.
type BroadcastEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ---------------------------------------------------------------------------
// Scanner interface
// ---------------------------------------------------------------------------

// Scanner runs one match scan. *matcher.Matcher satisfies this interface.
type Scanner interface {
	Scan(ctx context.Context) (*matcher.Summary, error)
}

// ---------------------------------------------------------------------------
// Job types
// ---------------------------------------------------------------------------

// JobStatus tracks the lifecycle of a match-scan job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ScanJob represents a queued or completed match scan. A cancelled scan still
// carries the partial Summary: connections created before the cancel are kept.
type ScanJob struct {
	ID        string           `json:"id"`
	Status    JobStatus        `json:"status"`
	Summary   *matcher.Summary `json:"summary,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	StartedAt *time.Time       `json:"started_at,omitempty"`
	DoneAt    *time.Time       `json:"done_at,omitempty"`

	cancel context.CancelFunc
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

const defaultQueueSize = 64

// Runner manages asynchronous match scans with a background worker pool.
type Runner struct {
	mu   sync.RWMutex
	jobs map[string]*ScanJob

	queue       chan string
	scanner     Scanner
	broadcaster Broadcaster

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewRunner creates a runner with the given number of workers.
// Pass nil for broadcaster if SSE notifications are not needed.
func NewRunner(scanner Scanner, broadcaster Broadcaster, workers int) *Runner {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		jobs:        make(map[string]*ScanJob),
		queue:       make(chan string, defaultQueueSize),
		scanner:     scanner,
		broadcaster: broadcaster,
		ctx:         ctx,
		cancel:      cancel,
	}

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	// Background eviction of finished jobs older than 1 hour.
	r.wg.Add(1)
	go r.evictExpiredJobs()

	slog.Info("match-scan runner started", "workers", workers)
	return r
}

// Enqueue creates a new scan job and returns its ID immediately.
func (r *Runner) Enqueue() (string, error) {
	job := &ScanJob{
		ID:        uuid.New().String(),
		Status:    JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	select {
	case r.queue <- job.ID:
		slog.Debug("match scan enqueued", "job_id", job.ID)
	default:
		r.mu.Lock()
		job.Status = JobStatusFailed
		job.Error = "queue full"
		now := time.Now().UTC()
		job.DoneAt = &now
		r.mu.Unlock()
		return job.ID, fmt.Errorf("worker: queue full")
	}

	return job.ID, nil
}

// GetJob returns the current state of a job.
func (r *Runner) GetJob(id string) (*ScanJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	// Return a copy.
	cp := *j
	cp.cancel = nil
	return &cp, true
}

// ListJobs returns all jobs, ordered by creation time descending.
func (r *Runner) ListJobs(limit int) []*ScanJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*ScanJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		cp := *j
		cp.cancel = nil
		all = append(all, &cp)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Cancel aborts a running job. Pending jobs are cancelled before they start;
// finished jobs report false. Connections already created stay persisted.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return false
	}
	switch job.Status {
	case JobStatusPending:
		job.Status = JobStatusCancelled
		now := time.Now().UTC()
		job.DoneAt = &now
		return true
	case JobStatusRunning:
		if job.cancel != nil {
			job.cancel()
		}
		return true
	default:
		return false
	}
}

// Close signals workers to stop and waits for them to finish.
// Safe to call multiple times.
func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		r.cancel()
		close(r.queue)
		r.wg.Wait()
		slog.Info("match-scan runner shut down")
	})
}

// evictExpiredJobs removes finished jobs older than 1 hour every 15 minutes.
// Runs as a background goroutine until ctx is cancelled.
func (r *Runner) evictExpiredJobs() {
	defer r.wg.Done()
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-1 * time.Hour)
			var evicted int

			r.mu.Lock()
			for id, job := range r.jobs {
				if job.Status != JobStatusPending && job.Status != JobStatusRunning &&
					job.DoneAt != nil && job.DoneAt.Before(cutoff) {
					delete(r.jobs, id)
					evicted++
				}
			}
			r.mu.Unlock()

			if evicted > 0 {
				slog.Debug("scan job eviction", "evicted", evicted)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Worker loop
// ---------------------------------------------------------------------------

func (r *Runner) worker(id int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case jobID, ok := <-r.queue:
			if !ok {
				return
			}
			r.processJob(jobID, id)
		}
	}
}

func (r *Runner) processJob(jobID string, workerID int) {
	jobCtx, jobCancel := context.WithCancel(r.ctx)
	defer jobCancel()

	r.mu.Lock()
	job, ok := r.jobs[jobID]
	if !ok || job.Status != JobStatusPending {
		r.mu.Unlock()
		return
	}
	job.Status = JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	job.cancel = jobCancel
	r.mu.Unlock()

	slog.Debug("match scan processing", "worker", workerID, "job_id", jobID)
	r.broadcast("match:scan_started", map[string]any{"job_id": jobID})

	summary, err := r.scanner.Scan(jobCtx)

	r.mu.Lock()
	doneAt := time.Now().UTC()
	job.DoneAt = &doneAt
	job.Summary = summary
	job.cancel = nil
	switch {
	case errors.Is(err, context.Canceled):
		job.Status = JobStatusCancelled
		slog.Info("match scan cancelled", "worker", workerID, "job_id", jobID,
			"created", summary.CreatedConnections)
	case err != nil:
		job.Status = JobStatusFailed
		job.Error = err.Error()
		slog.Error("match scan failed", "worker", workerID, "job_id", jobID, "error", err)
	default:
		job.Status = JobStatusCompleted
		slog.Info("match scan complete", "worker", workerID, "job_id", jobID,
			"created", summary.CreatedConnections,
			"skipped", summary.SkippedConnections,
			"errors", len(summary.Errors))
	}
	status := job.Status
	r.mu.Unlock()

	r.broadcast("match:scan_finished", map[string]any{
		"job_id":  jobID,
		"status":  status,
		"summary": summary,
	})
}

// ---------------------------------------------------------------------------
// Broadcast helper
// ---------------------------------------------------------------------------

func (r *Runner) broadcast(event string, data any) {
	if r.broadcaster == nil {
		return
	}
	r.broadcaster.Broadcast(BroadcastEvent{Event: event, Data: data})
}
